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
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// GXSettings holds the connection and behavior configuration of a
// GXController. It is passed to the constructor by value; the controller
// never consults ambient or global configuration.
type GXSettings struct {
	// Connections lists one "host:port" entry per core, or a single entry
	// when one gdbserver reports every core as a thread.
	Connections []string

	// Architecture selects the register table and breakpoint encoding.
	Architecture Architecture

	// MultiCore defines if run and step commands race across every
	// connection. It has no effect with a single connection.
	MultiCore bool

	// MaxPacketLength bounds memory transfer chunks in bytes.
	// Zero means use the negotiated packet size, or the default.
	MaxPacketLength int

	// MaxConnectAttempts bounds connection attempts per link.
	MaxConnectAttempts int

	// SendTimeout is the write timeout in milliseconds.
	SendTimeout int

	// ReceiveTimeout is the reply wait time in milliseconds.
	ReceiveTimeout int

	// ThrowOnMemoryError defines if a partial memory transfer is returned
	// as an error instead of the bytes accumulated so far.
	ThrowOnMemoryError bool

	// AgentName is an optional packet sent before feature negotiation to
	// identify the connecting agent to the stub. Empty disables it.
	AgentName string
}

// NewGXSettings creates settings for the given connections and architecture
// with the default timeouts and retry bounds.
func NewGXSettings(connections []string, architecture Architecture) *GXSettings {
	return &GXSettings{
		Connections:        connections,
		Architecture:       architecture,
		MaxConnectAttempts: 3,
		SendTimeout:        5000,
		ReceiveTimeout:     5000,
	}
}

// Validate checks that the settings can build a controller.
func (g *GXSettings) Validate() error {
	if len(g.Connections) == 0 {
		return fmt.Errorf("%w: no connections", ErrInvalidUsage)
	}
	for _, c := range g.Connections {
		host, port, err := net.SplitHostPort(c)
		if err != nil {
			return fmt.Errorf("%w: connection %q: %v", ErrInvalidUsage, c, err)
		}
		if host == "" {
			return fmt.Errorf("%w: connection %q: missing host", ErrInvalidUsage, c)
		}
		if n, err := strconv.Atoi(port); err != nil || n <= 0 {
			return fmt.Errorf("%w: connection %q: invalid port", ErrInvalidUsage, c)
		}
	}
	if g.MaxConnectAttempts < 1 {
		return fmt.Errorf("%w: MaxConnectAttempts must be at least 1", ErrInvalidUsage)
	}
	return nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// GetSettings returns the settings as an XML fragment.
func (g *GXSettings) GetSettings() string {
	var b strings.Builder
	for _, c := range g.Connections {
		fmt.Fprintf(&b, "<Connection>%s</Connection>\n", xmlEscape(c))
	}
	fmt.Fprintf(&b, "<Architecture>%s</Architecture>\n", g.Architecture.String())
	if g.MultiCore {
		b.WriteString("<MultiCore>1</MultiCore>\n")
	}
	if g.MaxPacketLength != 0 {
		fmt.Fprintf(&b, "<MaxPacketLength>%d</MaxPacketLength>\n", g.MaxPacketLength)
	}
	if g.MaxConnectAttempts != 0 {
		fmt.Fprintf(&b, "<MaxConnectAttempts>%d</MaxConnectAttempts>\n", g.MaxConnectAttempts)
	}
	if g.SendTimeout != 0 {
		fmt.Fprintf(&b, "<SendTimeout>%d</SendTimeout>\n", g.SendTimeout)
	}
	if g.ReceiveTimeout != 0 {
		fmt.Fprintf(&b, "<ReceiveTimeout>%d</ReceiveTimeout>\n", g.ReceiveTimeout)
	}
	if g.ThrowOnMemoryError {
		b.WriteString("<ThrowOnMemoryError>1</ThrowOnMemoryError>\n")
	}
	if g.AgentName != "" {
		fmt.Fprintf(&b, "<AgentName>%s</AgentName>\n", xmlEscape(g.AgentName))
	}
	return b.String()
}

// SetSettings restores the settings from an XML fragment produced by
// GetSettings. Existing connections are replaced when the fragment carries
// Connection elements.
func (g *GXSettings) SetSettings(value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	dec := xml.NewDecoder(strings.NewReader("<root>" + value + "</root>"))
	var connections []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "Connection":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			connections = append(connections, strings.TrimSpace(v))
		case "Architecture":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			if a, err := ArchitectureParse(strings.TrimSpace(v)); err == nil {
				g.Architecture = a
			}
		case "MultiCore":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			g.MultiCore = strings.TrimSpace(v) == "1"
		case "MaxPacketLength":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				g.MaxPacketLength = n
			}
		case "MaxConnectAttempts":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				g.MaxConnectAttempts = n
			}
		case "SendTimeout":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				g.SendTimeout = n
			}
		case "ReceiveTimeout":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				g.ReceiveTimeout = n
			}
		case "ThrowOnMemoryError":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			g.ThrowOnMemoryError = strings.TrimSpace(v) == "1"
		case "AgentName":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			g.AgentName = v
		}
	}
	if len(connections) != 0 {
		g.Connections = connections
	}
	return nil
}
