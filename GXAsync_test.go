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
	"testing"
	"time"
)

func TestAsynchronousCommand(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if command == "c" {
			time.Sleep(100 * time.Millisecond)
			return []string{"T05thread:00000001;08:7f586281;"}
		}
		return []string{""}
	}))
	c := openController(t, testSettings(ArchitectureX86, stub))

	if c.IsAsynchronousCommandInProgress() {
		t.Fatal("in progress before start")
	}
	if err := c.StartAsynchronousCommand("c", true); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.IsAsynchronousCommandInProgress() {
		t.Fatal("not in progress after start")
	}

	reply, done, err := c.GetAsynchronousCommandResult(2 * time.Second)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !done {
		t.Fatal("command not finished")
	}
	e := parseStopReply(reply, x86Pc(t))
	if !e.IsTPacket || e.Reason != SignalTrap {
		t.Errorf("reply = %q", reply)
	}
	if c.IsAsynchronousCommandInProgress() {
		t.Error("still in progress after consuming the result")
	}
}

func TestSecondAsynchronousCommandRejected(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if command == "c" {
			time.Sleep(200 * time.Millisecond)
			return []string{"T05thread:00000001;08:7f586281;"}
		}
		return []string{""}
	}))
	c := openController(t, testSettings(ArchitectureX86, stub))

	if err := c.StartAsynchronousCommand("c", true); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting again fails and leaves the first command undisturbed;
	// synchronous commands are rejected the same way.
	if err := c.StartAsynchronousCommand("s", true); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("second start: %v", err)
	}
	if _, err := c.QueryAllRegisters(0); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("sync command during async: %v", err)
	}

	reply, done, err := c.GetAsynchronousCommandResult(2 * time.Second)
	if err != nil || !done {
		t.Fatalf("result = %v, %v", done, err)
	}
	if reply != "T05thread:00000001;08:7f586281;" {
		t.Errorf("first command's reply lost: %q", reply)
	}
}

func TestAsynchronousResultTimeout(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if command == "c" {
			return nil
		}
		return []string{""}
	}))
	c := openController(t, testSettings(ArchitectureX86, stub))

	if err := c.StartAsynchronousCommand("c", true); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, done, err := c.GetAsynchronousCommandResult(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if done {
		t.Fatal("silent target reported done")
	}
	if !c.IsAsynchronousCommandInProgress() {
		t.Error("timeout consumed the command")
	}
}

func TestHandleInterruptTarget(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if command == "c" {
			// The run only ends when the interrupt arrives.
			return nil
		}
		return []string{""}
	}))
	stub.onInterrupt = func() []string {
		return []string{"T02thread:00000001;08:7f586281;"}
	}
	c := openController(t, testSettings(ArchitectureX86, stub))

	if err := c.StartAsynchronousCommand("c", true); err != nil {
		t.Fatalf("start: %v", err)
	}
	ok, err := c.HandleInterruptTarget()
	if err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if !ok {
		t.Fatal("interrupt not confirmed")
	}
	if c.GetLastKnownActiveCpu() != 1 {
		t.Errorf("last active cpu = %d", c.GetLastKnownActiveCpu())
	}
	if c.IsAsynchronousCommandInProgress() {
		t.Error("async command still in flight after interrupt")
	}
}

func TestHandleInterruptTargetUnconfirmed(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if command == "c" {
			return nil
		}
		return []string{""}
	}))
	stub.onInterrupt = func() []string {
		// No thread id: the interrupt cannot be confirmed.
		return []string{"S02"}
	}
	c := openController(t, testSettings(ArchitectureX86, stub))

	if err := c.StartAsynchronousCommand("c", true); err != nil {
		t.Fatalf("start: %v", err)
	}
	ok, err := c.HandleInterruptTarget()
	if err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if ok {
		t.Error("interrupt confirmed without thread and pc fields")
	}
}

func TestMultiCoreRunRace(t *testing.T) {
	// Core 0 never halts; core 1 reports the stop.
	silent := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if command == "c" {
			return nil
		}
		if command == "?" {
			return []string{"OK"}
		}
		return []string{""}
	}))
	halting := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		if command == "c" {
			return []string{"T05thread:00000002;08:7f586281;"}
		}
		return []string{""}
	}))
	settings := testSettings(ArchitectureX86, silent, halting)
	settings.MultiCore = true
	c := openController(t, settings)

	if err := c.StartAsynchronousCommand("c", true); err != nil {
		t.Fatalf("start: %v", err)
	}
	reply, done, err := c.GetAsynchronousCommandResult(2 * time.Second)
	if err != nil || !done {
		t.Fatalf("result = %v, %v", done, err)
	}
	e := parseStopReply(reply, x86Pc(t))
	if !e.IsTPacket || e.ProcessorNumber != 2 {
		t.Fatalf("reply = %q", reply)
	}
	// The winning connection becomes the last known active cpu.
	if c.GetLastKnownActiveCpu() != 1 {
		t.Errorf("last active cpu = %d, want 1", c.GetLastKnownActiveCpu())
	}
	// The loser's buffer holds no stale reply; the next command on it gets
	// a fresh answer.
	reply, err = c.ExecuteCommandOnProcessor("?", true, 0)
	if err != nil {
		t.Fatalf("command after race: %v", err)
	}
	if reply != "OK" {
		t.Errorf("stale reply on loser: %q", reply)
	}
}
