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
	"fmt"
	"strconv"
)

// Sentinel errors for the RSP client. Callers distinguish the error classes
// with errors.Is and decide per class whether a retry makes sense; transport
// and usage errors never do.
var (
	// ErrTransport indicates a fatal link failure: socket error, checksum
	// or ack failures exhausting the retry bound, or connect attempts
	// exhausted.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidUsage indicates a caller mistake such as an invalid core
	// index, an unknown breakpoint slot or a second asynchronous command.
	ErrInvalidUsage = errors.New("invalid usage")

	// ErrUnparsedReply indicates a stop reply that matched none of the
	// T/S/W/OK forms.
	ErrUnparsedReply = errors.New("unparsed stop reply")

	// ErrNotSupported indicates an operation the selected architecture or
	// the connected stub does not implement.
	ErrNotSupported = errors.New("not supported")
)

// ProtocolError is an E NN reply from the stub. Register and breakpoint
// operations treat it as fatal to the operation; memory transfers tolerate
// it as partial success unless strict mode is configured.
type ProtocolError struct {
	// Command is the command the stub rejected.
	Command string
	// Code is the two-hex error number from the reply.
	Code byte
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("target replied E%02x to %q", e.Code, e.Command)
}

// isErrorReply reports whether reply is an E NN error packet.
func isErrorReply(reply string) bool {
	if len(reply) < 3 || reply[0] != 'E' {
		return false
	}
	_, err := strconv.ParseUint(reply[1:3], 16, 8)
	return err == nil
}

// newProtocolError builds a ProtocolError from an E NN reply.
func newProtocolError(command, reply string) *ProtocolError {
	code, _ := strconv.ParseUint(reply[1:3], 16, 8)
	return &ProtocolError{Command: command, Code: byte(code)}
}
