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
	"encoding/hex"
	"fmt"
)

// RegisterDescriptor describes one target register: its name, its protocol
// order (the number used in p/P packets and T-reply field tags) and its
// width in bytes. The tables are immutable; one is selected per controller
// at construction.
type RegisterDescriptor struct {
	Name  string
	Order int
	Size  int
}

// Register numbering follows the org.gnu.gdb feature tables served by
// common stubs for each architecture.
var (
	registersX86 = []RegisterDescriptor{
		{"eax", 0, 4}, {"ecx", 1, 4}, {"edx", 2, 4}, {"ebx", 3, 4},
		{"esp", 4, 4}, {"ebp", 5, 4}, {"esi", 6, 4}, {"edi", 7, 4},
		{"eip", 8, 4}, {"eflags", 9, 4},
		{"cs", 10, 4}, {"ss", 11, 4}, {"ds", 12, 4},
		{"es", 13, 4}, {"fs", 14, 4}, {"gs", 15, 4},
	}
	registersAmd64 = []RegisterDescriptor{
		{"rax", 0, 8}, {"rbx", 1, 8}, {"rcx", 2, 8}, {"rdx", 3, 8},
		{"rsi", 4, 8}, {"rdi", 5, 8}, {"rbp", 6, 8}, {"rsp", 7, 8},
		{"r8", 8, 8}, {"r9", 9, 8}, {"r10", 10, 8}, {"r11", 11, 8},
		{"r12", 12, 8}, {"r13", 13, 8}, {"r14", 14, 8}, {"r15", 15, 8},
		{"rip", 16, 8}, {"eflags", 17, 4},
		{"cs", 18, 4}, {"ss", 19, 4}, {"ds", 20, 4},
		{"es", 21, 4}, {"fs", 22, 4}, {"gs", 23, 4},
	}
	registersArm32 = []RegisterDescriptor{
		{"r0", 0, 4}, {"r1", 1, 4}, {"r2", 2, 4}, {"r3", 3, 4},
		{"r4", 4, 4}, {"r5", 5, 4}, {"r6", 6, 4}, {"r7", 7, 4},
		{"r8", 8, 4}, {"r9", 9, 4}, {"r10", 10, 4}, {"r11", 11, 4},
		{"r12", 12, 4}, {"sp", 13, 4}, {"lr", 14, 4}, {"pc", 15, 4},
		{"cpsr", 25, 4},
	}
	registersArm64 = []RegisterDescriptor{
		{"x0", 0, 8}, {"x1", 1, 8}, {"x2", 2, 8}, {"x3", 3, 8},
		{"x4", 4, 8}, {"x5", 5, 8}, {"x6", 6, 8}, {"x7", 7, 8},
		{"x8", 8, 8}, {"x9", 9, 8}, {"x10", 10, 8}, {"x11", 11, 8},
		{"x12", 12, 8}, {"x13", 13, 8}, {"x14", 14, 8}, {"x15", 15, 8},
		{"x16", 16, 8}, {"x17", 17, 8}, {"x18", 18, 8}, {"x19", 19, 8},
		{"x20", 20, 8}, {"x21", 21, 8}, {"x22", 22, 8}, {"x23", 23, 8},
		{"x24", 24, 8}, {"x25", 25, 8}, {"x26", 26, 8}, {"x27", 27, 8},
		{"x28", 28, 8}, {"x29", 29, 8}, {"x30", 30, 8},
		{"sp", 31, 8}, {"pc", 32, 8}, {"cpsr", 33, 4},
	}

	registerTables = map[Architecture][]RegisterDescriptor{
		ArchitectureX86:   registersX86,
		ArchitectureAmd64: registersAmd64,
		ArchitectureArm32: registersArm32,
		ArchitectureArm64: registersArm64,
	}

	pcRegisterNames = map[Architecture]string{
		ArchitectureX86:   "eip",
		ArchitectureAmd64: "rip",
		ArchitectureArm32: "pc",
		ArchitectureArm64: "pc",
	}
)

// registerTable resolves the register table of the architecture.
func registerTable(architecture Architecture) ([]RegisterDescriptor, error) {
	table, ok := registerTables[architecture]
	if !ok {
		return nil, fmt.Errorf("%w: architecture %v", ErrNotSupported, architecture)
	}
	return table, nil
}

// pcDescriptor resolves the program counter descriptor of the architecture.
func pcDescriptor(architecture Architecture) (RegisterDescriptor, error) {
	table, err := registerTable(architecture)
	if err != nil {
		return RegisterDescriptor{}, err
	}
	name := pcRegisterNames[architecture]
	for _, d := range table {
		if d.Name == name {
			return d, nil
		}
	}
	return RegisterDescriptor{}, fmt.Errorf("%w: no pc register for %v", ErrNotSupported, architecture)
}

// swapRegisterBytes converts one register's hex string between wire order
// (target little-endian) and value order by reversing the decoded bytes
// within the register's width. The transform is its own inverse. The swap
// works on bytes, never by reversing the hex text.
func swapRegisterBytes(value string, size int) (string, error) {
	data, err := hex.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: register value %q: %v", ErrUnparsedReply, value, err)
	}
	if len(data) != size {
		return "", fmt.Errorf("%w: register value %q: want %d bytes, got %d", ErrUnparsedReply, value, size, len(data))
	}
	for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
		data[i], data[j] = data[j], data[i]
	}
	return hex.EncodeToString(data), nil
}

// registerValue parses a wire-order register hex string into an integer.
func registerValue(wire string, size int) (uint64, error) {
	swapped, err := swapRegisterBytes(wire, size)
	if err != nil {
		return 0, err
	}
	data, _ := hex.DecodeString(swapped)
	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// registerWire encodes an integer into a wire-order register hex string of
// the given width.
func registerWire(value uint64, size int) string {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(value >> (8 * i))
	}
	return hex.EncodeToString(data)
}
