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
	"strings"
	"testing"
)

func TestFrameChecksum(t *testing.T) {
	// The g command frames to $g#67: 'g' is 0x67.
	if got := frame("g"); got != "$g#67" {
		t.Errorf("frame(g) = %q", got)
	}
	if got := frame(""); got != "$#00" {
		t.Errorf("frame empty = %q", got)
	}
	// Sum wraps modulo 256.
	payload := strings.Repeat("z", 100)
	want := byte(100 * 'z' % 256)
	if got := checksum(payload); got != want {
		t.Errorf("checksum = %#x, want %#x", got, want)
	}
}

func TestParsePacket(t *testing.T) {
	payload, ok := parsePacket([]byte(frame("OK")))
	if !ok || payload != "OK" {
		t.Fatalf("parsePacket = %q, %v", payload, ok)
	}
	// Stray ack bytes before the start marker are tolerated.
	payload, ok = parsePacket([]byte("++" + frame("T05")))
	if !ok || payload != "T05" {
		t.Fatalf("parsePacket with stray acks = %q, %v", payload, ok)
	}
	if _, ok := parsePacket([]byte("$OK#00")); ok {
		t.Error("bad checksum accepted")
	}
	if _, ok := parsePacket([]byte("OK#9a")); ok {
		t.Error("missing start marker accepted")
	}
	if _, ok := parsePacket([]byte("$OK9a")); ok {
		t.Error("missing end marker accepted")
	}
}

func TestDecodePayload(t *testing.T) {
	// '}' escapes the next byte by flipping bit 5.
	if got := decodePayload("ab}\x03cd"); got != "ab#cd" {
		t.Errorf("escape = %q", got)
	}
	// '*' repeats the previous byte; the count byte carries count+29.
	if got := decodePayload("0* "); got != "0000" {
		t.Errorf("run-length = %q", got)
	}
	if got := decodePayload("plain"); got != "plain" {
		t.Errorf("plain = %q", got)
	}
}

func TestSendResendsOnNak(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		return []string{"OK"}
	}))
	c := openController(t, testSettings(ArchitectureX86, stub))

	stub.nakOnce(1)
	reply, err := c.ExecuteCommandOnProcessor("Hg0", true, 0)
	if err != nil {
		t.Fatalf("ExecuteCommandOnProcessor: %v", err)
	}
	if reply != "OK" {
		t.Fatalf("reply = %q", reply)
	}
	// The refused packet was sent again unchanged.
	count := 0
	for _, cmd := range stub.commands() {
		if cmd == "Hg0" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("command seen %d times, want 2", count)
	}
}

func TestCorruptedReplyIsRereadAfterNak(t *testing.T) {
	stub := startMockStub(t, withFeatures(stubFeatures, func(command string) []string {
		return []string{"OK"}
	}))
	c := openController(t, testSettings(ArchitectureX86, stub))

	stub.corruptOnce(1)
	reply, err := c.ExecuteCommandOnProcessor("Hg0", true, 0)
	if err != nil {
		t.Fatalf("ExecuteCommandOnProcessor: %v", err)
	}
	if reply != "OK" {
		t.Fatalf("reply = %q, want OK after nak and resend", reply)
	}
}

func TestNegotiateNoAckMode(t *testing.T) {
	stub := startMockStub(t, func(command string) []string {
		switch command {
		case "qSupported":
			return []string{"PacketSize=400;QStartNoAckMode+"}
		case "QStartNoAckMode":
			return []string{"OK"}
		}
		return []string{""}
	})
	c := openController(t, testSettings(ArchitectureX86, stub))

	f, err := c.Features(0)
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if !f.noAckActive {
		t.Error("no-ack mode not activated")
	}
	if got := f.packetSize(); got != 0x400 {
		t.Errorf("packetSize = %d, want %d", got, 0x400)
	}
	// Commands still work without the ack round trip.
	reply, err := c.ExecuteCommandOnProcessor("Hg0", true, 0)
	if err != nil || reply != "" {
		t.Fatalf("command in no-ack mode = %q, %v", reply, err)
	}
}

func TestNegotiateSilentStubKeepsDefaults(t *testing.T) {
	stub := startMockStub(t, func(command string) []string {
		return nil
	})
	settings := testSettings(ArchitectureX86, stub)
	settings.ReceiveTimeout = 200
	c := openController(t, settings)

	f, err := c.Features(0)
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if f.noAckActive {
		t.Error("no-ack mode active without negotiation")
	}
	if got := f.packetSize(); got != defaultPacketSize {
		t.Errorf("packetSize = %d, want default %d", got, defaultPacketSize)
	}
}
