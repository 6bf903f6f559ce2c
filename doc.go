// Package gxrsp provides a GDB Remote Serial Protocol (RSP) client for Gurux
// components. It drives a hardware or emulated debug target that exposes a
// gdbserver compatible stub over TCP: one connection per processor core, or a
// single connection where the stub reports each core as a thread.
//
// Features
//
//   - Transport: packet framing ($payload#checksum), ack/nak handling with a
//     bounded retry policy, per-connection feature negotiation (packet size,
//     no-ack mode, vendor memory extensions).
//   - Commands: register query/set with per-architecture register tables,
//     chunked memory read/write including the qtrace32.memory vendor windows,
//     breakpoint set/delete on every core, halt-reason reporting.
//   - Execution: run/step on a background worker, out-of-band interrupt,
//     stop-reply classification into structured events.
//   - Tracing: configurable trace level/mask for sent/received/error/info.
//   - Events: Received, Error, Trace and MediaState callbacks per link.
//
// # Construction
//
// Use NewGXController with a GXSettings value listing one "host:port" entry
// per core (or a single entry for a multi-threaded gdbserver) and the target
// architecture. Additional options (timeouts, packet length, tracing) are
// configured through the settings and setters.
//
// Example
//
//	s := gxrsp.NewGXSettings([]string{"127.0.0.1:2331"}, gxrsp.ArchitectureArm64)
//	c, err := gxrsp.NewGXController(s)
//	if err != nil {
//	    // handle settings error
//	}
//	if err := c.Open(); err != nil {
//	    // handle connect error
//	}
//	defer c.Close()
//
//	regs, err := c.QueryAllRegisters(0)
//	buf, err := c.ReadMemory(0x1000, 64, gxrsp.MemoryTypeData)
//
// # Concurrency
//
// All synchronous operations run on the caller's goroutine. A run or step
// started with StartAsynchronousCommand owns exactly one background worker;
// synchronous commands are rejected while it is in flight. The worker's
// result is retrieved with GetAsynchronousCommandResult, or consumed by
// HandleInterruptTarget after the interrupt byte halts the target.
//
// # Errors
//
// Transport faults (socket failure, retries exhausted) wrap ErrTransport.
// An E NN reply from the stub is returned as a *ProtocolError. Caller
// mistakes (unknown breakpoint slot, second asynchronous command, bad core
// index) wrap ErrInvalidUsage and are never retried.
//
// # Notes
//
// The zero value of GXController is not ready for use; always construct via
// NewGXController. Long-running work in event handlers should be offloaded
// to a separate goroutine to avoid blocking I/O paths.
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
