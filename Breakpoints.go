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

import "fmt"

// maxBreakpointAttempts bounds how often one Z or z packet is retried per
// core before the breakpoint operation fails.
const maxBreakpointAttempts = 3

// codeBreakpointSlot mirrors one software breakpoint on the client side.
// Slots of deleted breakpoints stay in the slice and are reused.
type codeBreakpointSlot struct {
	active  bool
	address uint64
}

// dataBreakpointSlot mirrors one watchpoint on the client side.
type dataBreakpointSlot struct {
	active  bool
	address uint64
	width   int
	access  BreakpointAccess
}

// breakpointCommand sends one Z or z packet to every core and requires OK
// from each of them. A refused packet is retried per core up to the attempt
// bound; any core that keeps refusing fails the whole operation.
func (c *GXController) breakpointCommand(command string) error {
	for core := range c.session.links {
		var lastErr error
		ok := false
		for attempt := 0; attempt < maxBreakpointAttempts; attempt++ {
			reply, err := c.executeOn(core, command, true)
			if err != nil {
				lastErr = err
				continue
			}
			if reply == "OK" {
				ok = true
				break
			}
			if isErrorReply(reply) {
				lastErr = newProtocolError(command, reply)
				continue
			}
			lastErr = fmt.Errorf("%w: breakpoint reply %q", ErrUnparsedReply, reply)
		}
		if !ok {
			if lastErr == nil {
				lastErr = fmt.Errorf("%w: %q refused", ErrTransport, command)
			}
			return lastErr
		}
	}
	return nil
}

// takeCodeSlot claims the first free code breakpoint slot, growing the
// slice when every slot is taken.
func (c *GXController) takeCodeSlot(address uint64) int {
	for i := range c.codeBreakpoints {
		if !c.codeBreakpoints[i].active {
			c.codeBreakpoints[i] = codeBreakpointSlot{active: true, address: address}
			return i
		}
	}
	c.codeBreakpoints = append(c.codeBreakpoints, codeBreakpointSlot{active: true, address: address})
	return len(c.codeBreakpoints) - 1
}

// takeDataSlot claims the first free data breakpoint slot, growing the
// slice when every slot is taken.
func (c *GXController) takeDataSlot(slot dataBreakpointSlot) int {
	for i := range c.dataBreakpoints {
		if !c.dataBreakpoints[i].active {
			c.dataBreakpoints[i] = slot
			return i
		}
	}
	c.dataBreakpoints = append(c.dataBreakpoints, slot)
	return len(c.dataBreakpoints) - 1
}

// CreateCodeBreakpoint plants a software breakpoint at the address on every
// core and returns the client-side slot number. The breakpoint kind is the
// architecture's instruction width. Refusal by any core is a hard error and
// no slot is claimed.
func (c *GXController) CreateCodeBreakpoint(address uint64) (int, error) {
	if err := c.checkIdle(); err != nil {
		return -1, err
	}
	cmd := fmt.Sprintf("Z0,%x,%x", address, c.settings.Architecture.breakpointKind())
	if err := c.breakpointCommand(cmd); err != nil {
		return -1, err
	}
	return c.takeCodeSlot(address), nil
}

// DeleteCodeBreakpoint removes the breakpoint held in the given slot from
// every core and frees the slot for reuse. An inactive or out-of-range slot
// is a usage error.
func (c *GXController) DeleteCodeBreakpoint(slot int) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if slot < 0 || slot >= len(c.codeBreakpoints) || !c.codeBreakpoints[slot].active {
		return fmt.Errorf("%w: code breakpoint slot %d not active", ErrInvalidUsage, slot)
	}
	cmd := fmt.Sprintf("z0,%x,%x", c.codeBreakpoints[slot].address, c.settings.Architecture.breakpointKind())
	if err := c.breakpointCommand(cmd); err != nil {
		return err
	}
	c.codeBreakpoints[slot].active = false
	return nil
}

// CreateDataBreakpoint plants a watchpoint covering width bytes at the
// address on every core. The access type selects the packet: Z2 for write,
// Z3 for read and Z4 for access watchpoints.
func (c *GXController) CreateDataBreakpoint(address uint64, width int, access BreakpointAccess) (int, error) {
	if err := c.checkIdle(); err != nil {
		return -1, err
	}
	if width <= 0 {
		return -1, fmt.Errorf("%w: watchpoint width %d", ErrInvalidUsage, width)
	}
	cmd := fmt.Sprintf("Z%d,%x,%x", access.kind(), address, width)
	if err := c.breakpointCommand(cmd); err != nil {
		return -1, err
	}
	return c.takeDataSlot(dataBreakpointSlot{active: true, address: address, width: width, access: access}), nil
}

// DeleteDataBreakpoint removes the watchpoint held in the given slot from
// every core and frees the slot for reuse.
func (c *GXController) DeleteDataBreakpoint(slot int) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if slot < 0 || slot >= len(c.dataBreakpoints) || !c.dataBreakpoints[slot].active {
		return fmt.Errorf("%w: data breakpoint slot %d not active", ErrInvalidUsage, slot)
	}
	s := c.dataBreakpoints[slot]
	cmd := fmt.Sprintf("z%d,%x,%x", s.access.kind(), s.address, s.width)
	if err := c.breakpointCommand(cmd); err != nil {
		return err
	}
	c.dataBreakpoints[slot].active = false
	return nil
}
