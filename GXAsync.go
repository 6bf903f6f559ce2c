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
	"time"
)

// asynchronousCommand is one background run or step. The worker goroutine
// fills reply, winner and err, then closes done; the caller consumes the
// result through GetAsynchronousCommandResult or HandleInterruptTarget.
type asynchronousCommand struct {
	command    string
	needsReply bool
	reply      string
	winner     int
	err        error
	done       chan struct{}
}

// IsAsynchronousCommandInProgress reports whether a background command has
// been started and not yet consumed to completion. A finished but
// unconsumed command still counts as in progress; only consuming its result
// frees the slot.
func (c *GXController) IsAsynchronousCommandInProgress() bool {
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()
	return c.async != nil
}

// StartAsynchronousCommand sends a run or step command and returns without
// waiting for the target to halt. At most one command may be in flight;
// starting a second one is a usage error and leaves the first undisturbed.
// With one connection per core the command goes to every core and the
// replies are raced; the winning core becomes the last known active cpu
// when the result is consumed.
func (c *GXController) StartAsynchronousCommand(command string, needsReply bool) error {
	c.asyncMu.Lock()
	if c.async != nil {
		c.asyncMu.Unlock()
		return fmt.Errorf("%w: asynchronous command in progress", ErrInvalidUsage)
	}
	a := &asynchronousCommand{
		command:    command,
		needsReply: needsReply,
		winner:     -1,
		done:       make(chan struct{}),
	}
	c.async = a
	c.asyncMu.Unlock()

	multi := c.settings.MultiCore && c.session.ConnectionCount() > 1
	go func() {
		defer close(a.done)
		if multi {
			if a.err = c.session.SendToAll(a.command); a.err != nil {
				return
			}
			if a.needsReply {
				a.reply, a.winner, a.err = c.session.Receive(0, true, true, false)
			}
			return
		}
		link := c.linkFor(c.currentCore)
		if a.err = c.session.Send(link, a.command); a.err != nil {
			return
		}
		if a.needsReply {
			a.reply, a.winner, a.err = c.session.Receive(link, true, false, false)
		}
	}()
	return nil
}

// GetAsynchronousCommandResult waits up to timeout for the background
// command to finish. The second result reports completion: false means the
// command is still running and remains in flight. On completion the result
// is consumed, the slot is freed and, when the reply named a winning core,
// the last known active cpu is updated.
func (c *GXController) GetAsynchronousCommandResult(timeout time.Duration) (string, bool, error) {
	c.asyncMu.Lock()
	a := c.async
	c.asyncMu.Unlock()
	if a == nil {
		return "", false, fmt.Errorf("%w: no asynchronous command in progress", ErrInvalidUsage)
	}
	if timeout > 0 {
		select {
		case <-a.done:
		case <-time.After(timeout):
			return "", false, nil
		}
	} else {
		<-a.done
	}
	c.asyncMu.Lock()
	c.async = nil
	c.asyncMu.Unlock()
	if a.err == nil && a.winner >= 0 {
		c.lastActiveCpu = a.winner
	}
	return a.reply, true, a.err
}

// HandleInterruptTarget sends the interrupt byte and resolves the stop
// reason it produced. A pending asynchronous run absorbs the stop reply and
// its result is consumed here; otherwise the reason is queried with ?. The
// interrupt is considered successful when the target reports SIGINT or
// SIGTRAP together with a thread id and a program counter; the reporting
// core then becomes the last known active cpu.
func (c *GXController) HandleInterruptTarget() (bool, error) {
	c.asyncMu.Lock()
	a := c.async
	c.asyncMu.Unlock()

	if a != nil {
		if c.settings.MultiCore && c.session.ConnectionCount() > 1 {
			for _, link := range c.session.links {
				if err := link.SendInterrupt(); err != nil {
					return false, err
				}
			}
		} else {
			if err := c.session.links[c.linkFor(c.currentCore)].SendInterrupt(); err != nil {
				return false, err
			}
		}
		reply, _, err := c.GetAsynchronousCommandResult(c.session.receiveWait())
		if err != nil {
			return false, err
		}
		e := parseStopReply(reply, c.pc)
		ok := (e.Reason == SignalInt || e.Reason == SignalTrap) && e.IsThreadFound && e.IsPcRegFound
		if ok {
			c.lastActiveCpu = e.ProcessorNumber
		}
		return ok, nil
	}

	link := c.linkFor(c.currentCore)
	if err := c.session.links[link].SendInterrupt(); err != nil {
		return false, err
	}
	reply, _, err := c.session.Receive(link, false, false, false)
	if err != nil {
		// A target that was not running has nothing to report.
		reply, err = c.executeOn(link, "?", true)
		if err != nil {
			return false, err
		}
	}
	e := parseStopReply(reply, c.pc)
	ok := (e.Reason == SignalInt || e.Reason == SignalTrap) && e.IsThreadFound && e.IsPcRegFound
	if ok {
		c.lastActiveCpu = e.ProcessorNumber
	}
	return ok, nil
}
