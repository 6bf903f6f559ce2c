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
	"reflect"
	"testing"

	"github.com/Gurux/gxcommon-go"
)

func TestSettingsRoundTrip(t *testing.T) {
	original := NewGXSettings([]string{"localhost:2345", "localhost:2346"}, ArchitectureArm64)
	original.MultiCore = true
	original.MaxPacketLength = 1024
	original.ThrowOnMemoryError = true
	original.AgentName = "QAgent:test"

	restored := NewGXSettings(nil, ArchitectureX86)
	if err := restored.SetSettings(original.GetSettings()); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	if !reflect.DeepEqual(original, restored) {
		t.Errorf("round trip mismatch:\n%+v\n%+v", original, restored)
	}
}

func TestSettingsValidate(t *testing.T) {
	s := NewGXSettings(nil, ArchitectureX86)
	if err := s.Validate(); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("no connections: %v", err)
	}
	s = NewGXSettings([]string{"localhost"}, ArchitectureX86)
	if err := s.Validate(); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("missing port: %v", err)
	}
	s = NewGXSettings([]string{"localhost:0"}, ArchitectureX86)
	if err := s.Validate(); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("port zero: %v", err)
	}
	s = NewGXSettings([]string{"localhost:2345"}, ArchitectureX86)
	if err := s.Validate(); err != nil {
		t.Errorf("valid settings: %v", err)
	}
	s.MaxConnectAttempts = 0
	if err := s.Validate(); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("zero attempts: %v", err)
	}
}

func TestArchitectureParse(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Architecture
	}{
		{"x86", ArchitectureX86},
		{"AMD64", ArchitectureAmd64},
		{"x64", ArchitectureAmd64},
		{"arm", ArchitectureArm32},
		{"AArch64", ArchitectureArm64},
	} {
		got, err := ArchitectureParse(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ArchitectureParse(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := ArchitectureParse("mips"); !errors.Is(err, gxcommon.ErrUnknownEnum) {
		t.Errorf("unknown architecture: %v", err)
	}
}

func TestBreakpointAccessParse(t *testing.T) {
	got, err := BreakpointAccessParse("access")
	if err != nil || got != BreakpointAccessReadWrite {
		t.Errorf("BreakpointAccessParse(access) = %v, %v", got, err)
	}
	if _, err := BreakpointAccessParse("execute"); !errors.Is(err, gxcommon.ErrUnknownEnum) {
		t.Errorf("unknown access: %v", err)
	}
}

func TestMemoryTypeQualifiers(t *testing.T) {
	for _, tt := range []struct {
		memType MemoryType
		want    string
	}{
		{MemoryTypeData, ""},
		{MemoryTypePhysical, "a"},
		{MemoryTypeSupervisor, "s"},
		{MemoryTypeHypervisor, "h"},
		{MemoryTypeSpecialRegister, "SPR"},
		{MemoryTypeC15, "C15"},
	} {
		if got := tt.memType.qualifier(); got != tt.want {
			t.Errorf("%v qualifier = %q, want %q", tt.memType, got, tt.want)
		}
	}
}
