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
	"strconv"
	"strings"
)

// Signal numbers carried in T and S stop replies.
const (
	// SignalInt is SIGINT, reported after an interrupt request.
	SignalInt = 2
	// SignalTrap is SIGTRAP, reported for breakpoints and single steps.
	SignalTrap = 5
)

// StopReplyEvent is the parsed form of one stop reply. It is produced when
// a halt reason arrives and consumed immediately; it is never persisted.
type StopReplyEvent struct {
	// Reason is the signal number of T and S replies, or the exit status
	// of W replies.
	Reason int
	// ProcessorNumber is the core the reply names, valid with
	// IsThreadFound.
	ProcessorNumber int
	// CurrentAddress is the program counter, valid with IsPcRegFound.
	CurrentAddress uint64

	IsTPacket     bool
	IsSPacket     bool
	IsWPacket     bool
	IsThreadFound bool
	IsPcRegFound  bool
	// IsPowerDown is set for the S00 power-down reply.
	IsPowerDown bool
	// IsCoreRunning is set for the bare OK reply of a still-running core.
	IsCoreRunning bool
	// IsParsed is cleared when the reply matched none of the known forms;
	// Raw then carries the input for diagnosis.
	IsParsed bool
	Raw      string
}

// parseStopReply classifies one reply by its first byte. T and S replies
// carry a two-hex signal number; T replies additionally carry
// "thread:<hex>;" and "<order>:<hex>;" fields, where order is the two-hex
// protocol order of a register. The register value fields are wire order
// and byte-swapped before exposure. Input matching no known form yields an
// unparsed event, never an error.
func parseStopReply(reply string, pc RegisterDescriptor) StopReplyEvent {
	e := StopReplyEvent{Raw: reply, ProcessorNumber: -1}
	if reply == "OK" {
		e.IsCoreRunning = true
		e.IsParsed = true
		return e
	}
	if len(reply) >= 1 && reply[0] == 'W' {
		e.IsWPacket = true
		e.IsParsed = true
		if status, err := strconv.ParseUint(reply[1:], 16, 32); err == nil {
			e.Reason = int(status)
		}
		return e
	}
	if len(reply) < 3 {
		return e
	}
	reason, err := strconv.ParseUint(reply[1:3], 16, 8)
	if err != nil {
		return e
	}
	switch reply[0] {
	case 'S':
		e.IsSPacket = true
		e.IsParsed = true
		e.Reason = int(reason)
		if reason == 0 {
			e.IsPowerDown = true
		}
		return e
	case 'T':
		e.IsTPacket = true
		e.IsParsed = true
		e.Reason = int(reason)
		pcTag := fmt.Sprintf("%02x", pc.Order)
		for _, field := range strings.Split(reply[3:], ";") {
			i := strings.IndexByte(field, ':')
			if i < 0 {
				continue
			}
			key, value := field[:i], field[i+1:]
			switch key {
			case "thread":
				if id, err := strconv.ParseUint(value, 16, 32); err == nil {
					e.ProcessorNumber = int(id)
					e.IsThreadFound = true
				}
			case pcTag:
				if addr, err := registerValue(value, len(value)/2); err == nil {
					e.CurrentAddress = addr
					e.IsPcRegFound = true
				}
			}
		}
		return e
	}
	return e
}
