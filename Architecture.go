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

// Architecture selects the register table and breakpoint encoding of the
// debugged target.
type Architecture int

const (
	// ArchitectureX86 defines a 32-bit x86 target.
	ArchitectureX86 Architecture = iota
	// ArchitectureAmd64 defines a 64-bit x86 target.
	ArchitectureAmd64
	// ArchitectureArm32 defines a 32-bit ARM target (Thumb breakpoints).
	ArchitectureArm32
	// ArchitectureArm64 defines a 64-bit ARM target.
	ArchitectureArm64
)

// ArchitectureParse converts the given string into an Architecture value.
//
// It returns the corresponding Architecture constant if the string matches
// a known architecture name, or an error if the input is invalid.
func ArchitectureParse(value string) (Architecture, error) {
	var ret Architecture
	var err error
	switch strings.ToUpper(value) {
	case "X86":
		ret = ArchitectureX86
	case "AMD64", "X64":
		ret = ArchitectureAmd64
	case "ARM32", "ARM":
		ret = ArchitectureArm32
	case "ARM64", "AARCH64":
		ret = ArchitectureArm64
	default:
		err = fmt.Errorf("%w: %q", gxcommon.ErrUnknownEnum, value)
	}
	return ret, err
}

// String returns the canonical name of the architecture.
// It satisfies fmt.Stringer.
func (g Architecture) String() string {
	var ret string
	switch g {
	case ArchitectureX86:
		ret = "X86"
	case ArchitectureAmd64:
		ret = "AMD64"
	case ArchitectureArm32:
		ret = "ARM32"
	case ArchitectureArm64:
		ret = "ARM64"
	}
	return ret
}

// breakpointKind returns the encoded breakpoint size sent in Z0/z0 packets.
func (g Architecture) breakpointKind() int {
	switch g {
	case ArchitectureArm32:
		return 2
	case ArchitectureArm64:
		return 4
	default:
		return 1
	}
}

// pointerSize returns the register pointer width in bytes.
func (g Architecture) pointerSize() int {
	switch g {
	case ArchitectureAmd64, ArchitectureArm64:
		return 8
	default:
		return 4
	}
}

// statusRegister returns the name of the execution status register used to
// resolve the current execution level, or an empty string when the
// architecture does not expose one.
func (g Architecture) statusRegister() string {
	switch g {
	case ArchitectureArm32, ArchitectureArm64:
		return "cpsr"
	default:
		return ""
	}
}
