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

// MemoryType selects the address space used by memory transfers.
//
// MemoryTypeData uses the standard m/M packets. The other values use the
// vendor qtrace32.memory and Qtrace32.memory packets, which open physical,
// supervisor, hypervisor, special-register or coprocessor windows on stubs
// that advertise them.
type MemoryType int

const (
	// MemoryTypeData defines the default virtual data space.
	MemoryTypeData MemoryType = iota
	// MemoryTypePhysical defines the physical address space.
	MemoryTypePhysical
	// MemoryTypeSupervisor defines the supervisor (EL1) address space.
	MemoryTypeSupervisor
	// MemoryTypeHypervisor defines the hypervisor (EL2) address space.
	MemoryTypeHypervisor
	// MemoryTypeSpecialRegister defines the special-register window.
	MemoryTypeSpecialRegister
	// MemoryTypeC15 defines the ARM coprocessor 15 window.
	MemoryTypeC15
)

// MemoryTypeParse converts the given string into a MemoryType value.
//
// It returns the corresponding MemoryType constant if the string matches
// a known space name, or an error if the input is invalid.
func MemoryTypeParse(value string) (MemoryType, error) {
	var ret MemoryType
	var err error
	switch strings.ToUpper(value) {
	case "DATA":
		ret = MemoryTypeData
	case "PHYSICAL":
		ret = MemoryTypePhysical
	case "SUPERVISOR":
		ret = MemoryTypeSupervisor
	case "HYPERVISOR":
		ret = MemoryTypeHypervisor
	case "SPR":
		ret = MemoryTypeSpecialRegister
	case "C15":
		ret = MemoryTypeC15
	default:
		err = fmt.Errorf("%w: %q", gxcommon.ErrUnknownEnum, value)
	}
	return ret, err
}

// String returns the canonical name of the memory type.
// It satisfies fmt.Stringer.
func (g MemoryType) String() string {
	var ret string
	switch g {
	case MemoryTypeData:
		ret = "DATA"
	case MemoryTypePhysical:
		ret = "PHYSICAL"
	case MemoryTypeSupervisor:
		ret = "SUPERVISOR"
	case MemoryTypeHypervisor:
		ret = "HYPERVISOR"
	case MemoryTypeSpecialRegister:
		ret = "SPR"
	case MemoryTypeC15:
		ret = "C15"
	}
	return ret
}

// qualifier returns the access-class tag carried in the vendor
// qtrace32.memory packets. The data space has no tag; it never travels
// through the vendor path.
func (g MemoryType) qualifier() string {
	switch g {
	case MemoryTypePhysical:
		return "a"
	case MemoryTypeSupervisor:
		return "s"
	case MemoryTypeHypervisor:
		return "h"
	case MemoryTypeSpecialRegister:
		return "SPR"
	case MemoryTypeC15:
		return "C15"
	}
	return ""
}
