package gxrsp

// --------------------------------------------------------------------------
//
//	Gurux Ltd
//
// Filename:        $HeadURL$
//
// Version:         $Revision$,
//
//	$Date$
//	$Author$
//
// # Copyright (c) Gurux Ltd
//
// ---------------------------------------------------------------------------
//
//	DESCRIPTION
//
// This file is a part of Gurux Device Framework.
//
// Gurux Device Framework is Open Source software; you can redistribute it
// and/or modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2 of the License.
// Gurux Device Framework is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU General Public License for more details.
//
// More information of Gurux products: https://www.gurux.org
//
// This code is licensed under the GNU General Public License v2.
// Full text may be retrieved at http://www.gnu.org/licenses/gpl-2.0.txt
// ---------------------------------------------------------------------------

import (
	"fmt"
	"strings"

	"github.com/Gurux/gxcommon-go"
)

// BreakpointAccess selects the watch condition of a data breakpoint.
type BreakpointAccess int

const (
	// BreakpointAccessWrite triggers on writes (Z2).
	BreakpointAccessWrite BreakpointAccess = iota
	// BreakpointAccessRead triggers on reads (Z3).
	BreakpointAccessRead
	// BreakpointAccessReadWrite triggers on any access (Z4).
	BreakpointAccessReadWrite
)

// BreakpointAccessParse converts the given string into a BreakpointAccess
// value.
//
// It returns the corresponding BreakpointAccess constant if the string
// matches a known access name, or an error if the input is invalid.
func BreakpointAccessParse(value string) (BreakpointAccess, error) {
	var ret BreakpointAccess
	var err error
	switch strings.ToUpper(value) {
	case "WRITE":
		ret = BreakpointAccessWrite
	case "READ":
		ret = BreakpointAccessRead
	case "READWRITE", "ACCESS":
		ret = BreakpointAccessReadWrite
	default:
		err = fmt.Errorf("%w: %q", gxcommon.ErrUnknownEnum, value)
	}
	return ret, err
}

// String returns the canonical name of the breakpoint access.
// It satisfies fmt.Stringer.
func (g BreakpointAccess) String() string {
	var ret string
	switch g {
	case BreakpointAccessWrite:
		ret = "WRITE"
	case BreakpointAccessRead:
		ret = "READ"
	case BreakpointAccessReadWrite:
		ret = "READWRITE"
	}
	return ret
}

// kind returns the Z/z packet type number of the watchpoint.
func (g BreakpointAccess) kind() int {
	switch g {
	case BreakpointAccessRead:
		return 3
	case BreakpointAccessReadWrite:
		return 4
	}
	return 2
}
