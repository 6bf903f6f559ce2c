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
	"strconv"
	"strings"
)

// defaultPacketSize is used until a stub advertises its own PacketSize.
const defaultPacketSize = 512

// Feature is one negotiated stub capability.
type Feature struct {
	// Name is the qSupported token.
	Name string
	// Enabled reports whether the stub advertised the feature.
	Enabled bool
	// Value carries the advertised value of name=value features.
	Value string
}

// FeatureSet caches the capabilities one connection advertised in its
// qSupported reply. It is negotiated once per connection and read-only
// afterward; failed negotiation leaves the defaults in effect.
type FeatureSet struct {
	// PacketSize is the maximum packet length the stub accepts, in bytes.
	PacketSize Feature
	// NoAckMode removes the per-packet ack byte once activated.
	NoAckMode Feature
	// VCont reports vCont support for run and step.
	VCont Feature
	// VendorMemoryRead reports qtrace32.memory support.
	VendorMemoryRead Feature
	// VendorMemoryWrite reports Qtrace32.memory support.
	VendorMemoryWrite Feature

	// noAckActive is set once QStartNoAckMode has been acknowledged; from
	// then on Send skips the ack byte on this connection.
	noAckActive bool
}

// newFeatureSet returns the defaults used before (or without) negotiation.
func newFeatureSet() *FeatureSet {
	return &FeatureSet{
		PacketSize:        Feature{Name: "PacketSize", Value: strconv.FormatInt(defaultPacketSize, 16)},
		NoAckMode:         Feature{Name: "QStartNoAckMode"},
		VCont:             Feature{Name: "vContSupported"},
		VendorMemoryRead:  Feature{Name: "qtrace32.memory"},
		VendorMemoryWrite: Feature{Name: "Qtrace32.memory"},
	}
}

// parse fills the set from a qSupported reply. Tokens are separated by
// semicolons; "name+" enables a feature, "name-" disables it and
// "name=value" enables it with a value.
func (f *FeatureSet) parse(reply string) {
	for _, token := range strings.Split(reply, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		var name, value string
		enabled := true
		if i := strings.IndexByte(token, '='); i >= 0 {
			name, value = token[:i], token[i+1:]
		} else {
			switch token[len(token)-1] {
			case '+':
				name = token[:len(token)-1]
			case '-', '?':
				name = token[:len(token)-1]
				enabled = false
			default:
				name = token
			}
		}
		switch name {
		case "PacketSize":
			f.PacketSize.Enabled = enabled
			if value != "" {
				f.PacketSize.Value = value
			}
		case "QStartNoAckMode":
			f.NoAckMode.Enabled = enabled
		case "vContSupported":
			f.VCont.Enabled = enabled
		case "qtrace32.memory":
			f.VendorMemoryRead.Enabled = enabled
		case "Qtrace32.memory":
			f.VendorMemoryWrite.Enabled = enabled
		}
	}
}

// packetSize returns the negotiated packet size in bytes. The PacketSize
// value travels as hex, per the RSP specification.
func (f *FeatureSet) packetSize() int {
	n, err := strconv.ParseInt(f.PacketSize.Value, 16, 32)
	if err != nil || n <= 0 {
		return defaultPacketSize
	}
	return int(n)
}
