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
	"sync"
	"time"
)

// synchronousMediaBase buffers bytes appended by the reader goroutine for
// synchronous consumers. Search blocks until the wanted terminator or byte
// count is buffered, Get consumes, and Close wakes every blocked Search so
// the media can shut down while a consumer waits.
type synchronousMediaBase struct {
	mu     sync.Mutex
	buf    []byte
	notify chan struct{}
	closed bool
}

func newGXSynchronousMediaBase() *synchronousMediaBase {
	return &synchronousMediaBase{notify: make(chan struct{})}
}

// Append adds received bytes and wakes blocked searches. Bytes arriving
// after Close are discarded; the notify channel is already closed then and
// must not be closed again.
func (s *synchronousMediaBase) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, data...)
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// match returns the smallest end offset i such that buf[:i] ends with eop
// (when eop is not empty) and i >= count, or -1 when no such prefix is
// buffered yet.
func (s *synchronousMediaBase) match(eop []byte, count int) int {
	if len(eop) == 0 {
		if count > 0 && len(s.buf) >= count {
			return count
		}
		return -1
	}
	start := 0
	for {
		j := bytes.Index(s.buf[start:], eop)
		if j < 0 {
			return -1
		}
		end := start + j + len(eop)
		if end >= count {
			return end
		}
		start += j + 1
	}
}

// Search blocks until a prefix terminated by eop and spanning at least count
// bytes is buffered, and returns its end offset. A wait of zero blocks
// forever. It returns -1 on timeout or when the media is closed.
func (s *synchronousMediaBase) Search(eop []byte, count int, wait time.Duration) int {
	var deadline time.Time
	if wait > 0 {
		deadline = time.Now().Add(wait)
	}
	for {
		s.mu.Lock()
		if i := s.match(eop, count); i >= 0 {
			s.mu.Unlock()
			return i
		}
		if s.closed {
			s.mu.Unlock()
			return -1
		}
		ch := s.notify
		s.mu.Unlock()

		if wait <= 0 {
			<-ch
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return -1
		}
		t := time.NewTimer(remaining)
		select {
		case <-ch:
			t.Stop()
		case <-t.C:
			return -1
		}
	}
}

// Get consumes and returns the first count buffered bytes. A negative count
// consumes everything.
func (s *synchronousMediaBase) Get(count int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count < 0 || count > len(s.buf) {
		count = len(s.buf)
	}
	out := make([]byte, count)
	copy(out, s.buf)
	s.buf = s.buf[count:]
	return out
}

// Len returns the number of buffered bytes.
func (s *synchronousMediaBase) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Reset discards every buffered byte.
func (s *synchronousMediaBase) Reset() {
	s.mu.Lock()
	s.buf = nil
	s.mu.Unlock()
}

// Close marks the buffer closed and wakes blocked searches.
func (s *synchronousMediaBase) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.notify)
	}
	s.mu.Unlock()
}
