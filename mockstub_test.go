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
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
)

// mockStub is a loopback gdbserver used by the tests. It speaks the server
// side of the packet protocol on a local TCP listener and delegates command
// semantics to a pluggable handler. The handler returns zero or more reply
// payloads; each is framed and sent. Fault injection is supported: nakNext
// refuses incoming packets with a nak, corruptNext sends replies with a bad
// checksum first.
type mockStub struct {
	t  *testing.T
	ln net.Listener

	handler     func(command string) []string
	onInterrupt func() []string

	mu          sync.Mutex
	received    []string
	nakNext     int
	corruptNext int
}

// startMockStub listens on a loopback port and serves every connection
// with the given handler. The listener is closed by t.Cleanup.
func startMockStub(t *testing.T, handler func(command string) []string) *mockStub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &mockStub{t: t, ln: ln, handler: handler}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go m.serve(conn)
		}
	}()
	return m
}

// address returns the host:port the stub listens on.
func (m *mockStub) address() string {
	return m.ln.Addr().String()
}

// commands returns a copy of every command payload received so far.
func (m *mockStub) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received...)
}

// nakOnce makes the stub refuse the next n incoming packets with a nak.
func (m *mockStub) nakOnce(n int) {
	m.mu.Lock()
	m.nakNext = n
	m.mu.Unlock()
}

// corruptOnce makes the stub corrupt the checksum of the next n replies.
func (m *mockStub) corruptOnce(n int) {
	m.mu.Lock()
	m.corruptNext = n
	m.mu.Unlock()
}

func (m *mockStub) serve(conn net.Conn) {
	defer conn.Close()
	var buf []byte
	var last []string
	tmp := make([]byte, 4096)
	for {
		n, err := conn.Read(tmp)
		if err != nil {
			return
		}
		buf = append(buf, tmp[:n]...)
		for {
			consumed := m.consume(conn, &buf, &last)
			if !consumed {
				break
			}
		}
	}
}

// consume handles one leading token of the receive buffer: a client ack, a
// nak asking for a resend, the interrupt byte or one framed packet. It
// reports false when the buffer needs more data.
func (m *mockStub) consume(conn net.Conn, buf *[]byte, last *[]string) bool {
	b := *buf
	if len(b) == 0 {
		return false
	}
	switch b[0] {
	case '+':
		*buf = b[1:]
		return true
	case '-':
		*buf = b[1:]
		for _, f := range *last {
			conn.Write([]byte(f))
		}
		return true
	case 0x03:
		*buf = b[1:]
		if m.onInterrupt != nil {
			*last = m.send(conn, m.onInterrupt())
		}
		return true
	case '$':
		end := bytes.IndexByte(b, '#')
		if end < 0 || len(b) < end+3 {
			return false
		}
		command := string(b[1:end])
		*buf = b[end+3:]
		m.mu.Lock()
		m.received = append(m.received, command)
		nak := m.nakNext > 0
		if nak {
			m.nakNext--
		}
		m.mu.Unlock()
		if nak {
			conn.Write([]byte{'-'})
			return true
		}
		conn.Write([]byte{'+'})
		*last = m.send(conn, m.handler(command))
		return true
	default:
		// Stray byte between packets; skip it.
		*buf = b[1:]
		return true
	}
}

// send frames and writes the replies, corrupting the first frame's checksum
// when fault injection asks for it. The correct frames are returned so a
// nak can resend them.
func (m *mockStub) send(conn net.Conn, replies []string) []string {
	frames := make([]string, 0, len(replies))
	for _, r := range replies {
		frames = append(frames, frame(r))
	}
	m.mu.Lock()
	corrupt := m.corruptNext > 0
	if corrupt {
		m.corruptNext--
	}
	m.mu.Unlock()
	for i, f := range frames {
		if corrupt && i == 0 {
			bad := f[:len(f)-2] + "00"
			if strings.HasSuffix(f, "00") {
				bad = f[:len(f)-2] + "11"
			}
			conn.Write([]byte(bad))
			continue
		}
		conn.Write([]byte(f))
	}
	return frames
}

// stubFeatures is the qSupported reply the default test handlers use.
const stubFeatures = "PacketSize=1000;QStartNoAckMode-"

// withFeatures wraps a handler so it answers qSupported, letting the test
// body handle only its own commands.
func withFeatures(features string, handler func(command string) []string) func(string) []string {
	return func(command string) []string {
		if command == "qSupported" {
			return []string{features}
		}
		return handler(command)
	}
}

// testSettings builds settings pointing at the given stubs with short
// timeouts suitable for tests.
func testSettings(architecture Architecture, stubs ...*mockStub) *GXSettings {
	connections := make([]string, 0, len(stubs))
	for _, s := range stubs {
		connections = append(connections, s.address())
	}
	settings := NewGXSettings(connections, architecture)
	settings.ReceiveTimeout = 2000
	return settings
}

// openController builds and opens a controller against the stubs, closing
// it by t.Cleanup.
func openController(t *testing.T, settings *GXSettings) *GXController {
	t.Helper()
	c, err := NewGXController(settings)
	if err != nil {
		t.Fatalf("NewGXController: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
