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
	"errors"
	"strings"
	"testing"
)

func breakpointStub(t *testing.T) (*GXController, *mockStub) {
	t.Helper()
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if strings.HasPrefix(command, "Z") || strings.HasPrefix(command, "z") {
			return []string{"OK"}
		}
		return []string{""}
	}))
	return openController(t, testSettings(ArchitectureX86, stub)), stub
}

func TestCodeBreakpointSlotReuse(t *testing.T) {
	c, stub := breakpointStub(t)

	a, err := c.CreateCodeBreakpoint(0x1000)
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := c.CreateCodeBreakpoint(0x2000)
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a != 0 || b != 1 {
		t.Fatalf("slots = %d, %d", a, b)
	}
	if err := c.DeleteCodeBreakpoint(a); err != nil {
		t.Fatalf("delete a: %v", err)
	}
	// The freed slot is claimed before the slice grows.
	reused, err := c.CreateCodeBreakpoint(0x3000)
	if err != nil {
		t.Fatalf("create c: %v", err)
	}
	if reused != a {
		t.Errorf("slot = %d, want reuse of %d", reused, a)
	}

	// The x86 breakpoint kind is 1.
	var sawSet, sawClear bool
	for _, cmd := range stub.commands() {
		if cmd == "Z0,1000,1" {
			sawSet = true
		}
		if cmd == "z0,1000,1" {
			sawClear = true
		}
	}
	if !sawSet || !sawClear {
		t.Errorf("breakpoint commands missing: %v", stub.commands())
	}
}

func TestDeleteCodeBreakpointInactiveSlot(t *testing.T) {
	c, _ := breakpointStub(t)
	if err := c.DeleteCodeBreakpoint(0); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("out of range slot: %v", err)
	}
	slot, err := c.CreateCodeBreakpoint(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteCodeBreakpoint(slot); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteCodeBreakpoint(slot); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("double delete: %v", err)
	}
}

func TestCreateCodeBreakpointRefused(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if strings.HasPrefix(command, "Z") {
			return []string{"E01"}
		}
		return []string{""}
	}))
	c := openController(t, testSettings(ArchitectureX86, stub))

	var pe *ProtocolError
	if _, err := c.CreateCodeBreakpoint(0x1000); !errors.As(err, &pe) {
		t.Fatalf("refused breakpoint: %v", err)
	}
	// A refused breakpoint claims no slot; the next one starts at zero.
	count := 0
	for _, cmd := range stub.commands() {
		if strings.HasPrefix(cmd, "Z0,") {
			count++
		}
	}
	if count != maxBreakpointAttempts {
		t.Errorf("attempts = %d, want %d", count, maxBreakpointAttempts)
	}
	if len(c.codeBreakpoints) != 0 {
		t.Errorf("slots claimed: %d", len(c.codeBreakpoints))
	}
}

func TestDataBreakpointCommands(t *testing.T) {
	c, stub := breakpointStub(t)

	slot, err := c.CreateDataBreakpoint(0x8000, 4, BreakpointAccessReadWrite)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.DeleteDataBreakpoint(slot); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var sawSet, sawClear bool
	for _, cmd := range stub.commands() {
		if cmd == "Z4,8000,4" {
			sawSet = true
		}
		if cmd == "z4,8000,4" {
			sawClear = true
		}
	}
	if !sawSet || !sawClear {
		t.Errorf("watchpoint commands missing: %v", stub.commands())
	}
	if _, err := c.CreateDataBreakpoint(0x8000, 0, BreakpointAccessWrite); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("zero width: %v", err)
	}
}

func TestBreakpointOnEveryCore(t *testing.T) {
	handler := func(command string) []string {
		if strings.HasPrefix(command, "Z") {
			return []string{"OK"}
		}
		if command == "qSupported" {
			return []string{stubFeatures}
		}
		return []string{""}
	}
	stub1 := startMockStub(t, handler)
	stub2 := startMockStub(t, handler)
	c := openController(t, testSettings(ArchitectureX86, stub1, stub2))

	if _, err := c.CreateCodeBreakpoint(0x1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, stub := range []*mockStub{stub1, stub2} {
		found := false
		for _, cmd := range stub.commands() {
			if cmd == "Z0,1000,1" {
				found = true
			}
		}
		if !found {
			t.Errorf("core %d did not receive the breakpoint", i)
		}
	}
}
