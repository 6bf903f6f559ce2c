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
	"time"

	"golang.org/x/text/language"
)

// maxPacketAttempts bounds resends after a nak and rereads after a
// malformed reply. Exhausting it is a transport error, not a protocol error.
const maxPacketAttempts = 3

// pollSlice is how long one connection is watched per round when a reply is
// raced across every connection.
const pollSlice = 50 * time.Millisecond

// drainWait bounds how long a losing connection is given to deliver its
// stale reply before its buffer is cleared.
const drainWait = 250 * time.Millisecond

// GXSession frames RSP packets over one link per core. It owns the
// $payload#checksum framing, the ack/nak retry policy and the per-connection
// feature negotiation; command semantics live in GXController.
type GXSession struct {
	settings *GXSettings
	links    []*GXLink
	features []*FeatureSet
	releases []func()
}

// newGXSession builds one link per configured connection.
func newGXSession(settings *GXSettings) (*GXSession, error) {
	s := &GXSession{settings: settings}
	for i, c := range settings.Connections {
		link, err := newGXLinkFromConnection(c, i, settings)
		if err != nil {
			return nil, err
		}
		s.links = append(s.links, link)
		s.features = append(s.features, newFeatureSet())
	}
	return s, nil
}

// ConnectionCount returns the number of links.
func (s *GXSession) ConnectionCount() int {
	return len(s.links)
}

// Link returns the link serving the given core.
func (s *GXSession) Link(core int) *GXLink {
	return s.links[core]
}

// Features returns the negotiated capabilities of the given connection.
func (s *GXSession) Features(core int) *FeatureSet {
	return s.features[core]
}

// Open connects every link, switches them to synchronous receive and
// negotiates features once per connection. Negotiation failures are not
// fatal; the defaults stay in effect.
func (s *GXSession) Open() error {
	for _, link := range s.links {
		if err := link.Open(); err != nil {
			return err
		}
		s.releases = append(s.releases, link.GetSynchronous())
	}
	for core := range s.links {
		s.negotiate(core)
	}
	return nil
}

// Close releases the synchronous receives and closes every link. The first
// failure is returned.
func (s *GXSession) Close() error {
	for _, release := range s.releases {
		release()
	}
	s.releases = nil
	var first error
	for _, link := range s.links {
		if err := link.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Localize messages of every link for the specified language.
func (s *GXSession) Localize(tag language.Tag) {
	for _, link := range s.links {
		link.Localize(tag)
	}
}

// receiveWait returns the bounded reply wait.
func (s *GXSession) receiveWait() time.Duration {
	if s.settings.ReceiveTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.settings.ReceiveTimeout) * time.Millisecond
}

// MaxPacketLength returns the transfer chunk bound of the given connection:
// the configured value when set, otherwise the negotiated packet size.
func (s *GXSession) MaxPacketLength(core int) int {
	if s.settings.MaxPacketLength > 0 {
		return s.settings.MaxPacketLength
	}
	return s.features[core].packetSize()
}

// checksum is the RSP packet checksum: the payload byte sum modulo 256.
func checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return sum
}

// frame builds the $payload#cc wire form.
func frame(payload string) string {
	return fmt.Sprintf("$%s#%02x", payload, checksum(payload))
}

// Send frames and writes one command on the given core's connection and,
// unless no-ack mode is active there, consumes the ack byte. A nak causes a
// resend; exhausting the attempt bound is a transport error.
func (s *GXSession) Send(core int, command string) error {
	if core < 0 || core >= len(s.links) {
		return fmt.Errorf("%w: core %d out of range", ErrInvalidUsage, core)
	}
	link := s.links[core]
	pkt := frame(command)
	for attempt := 0; attempt < maxPacketAttempts; attempt++ {
		if err := link.Send(pkt, ""); err != nil {
			return err
		}
		if s.features[core].noAckActive {
			return nil
		}
		idx := link.received.Search(nil, 1, s.receiveWait())
		if idx < 0 {
			return fmt.Errorf("%w: no ack for %q on %s", ErrTransport, command, link.GetName())
		}
		switch link.received.Get(1)[0] {
		case '+':
			return nil
		case '-':
			// resend
		default:
			// Neither ack nor nak; the connection is out of step.
			return fmt.Errorf("%w: unexpected ack byte on %s", ErrTransport, link.GetName())
		}
	}
	return fmt.Errorf("%w: %q refused %d times on %s", ErrTransport, command, maxPacketAttempts, link.GetName())
}

// SendToAll sends the command on every connection in order.
func (s *GXSession) SendToAll(command string) error {
	for core := range s.links {
		if err := s.Send(core, command); err != nil {
			return err
		}
	}
	return nil
}

// Receive reads one packet. With pollingMode set (used after a run or step
// was sent to every core) the connections are cycled until the first one
// yields a valid packet; the losers' pending replies are then drained so
// their channel state stays consistent for the next command. The winning
// core index is returned alongside the payload.
func (s *GXSession) Receive(core int, waitForever, pollingMode, reset bool) (string, int, error) {
	if reset {
		if pollingMode {
			for _, link := range s.links {
				link.ResetSynchronousBuffer()
			}
		} else {
			s.links[core].ResetSynchronousBuffer()
		}
	}
	if !pollingMode {
		if core < 0 || core >= len(s.links) {
			return "", 0, fmt.Errorf("%w: core %d out of range", ErrInvalidUsage, core)
		}
		wait := s.receiveWait()
		if waitForever {
			wait = 0
		}
		reply, found, err := s.readPacket(core, wait)
		if err != nil {
			return "", core, err
		}
		if !found {
			return "", core, fmt.Errorf("%w: no reply on %s", ErrTransport, s.links[core].GetName())
		}
		return reply, core, nil
	}

	deadline := time.Now().Add(s.receiveWait())
	for {
		for core := range s.links {
			reply, found, err := s.readPacket(core, pollSlice)
			if err != nil {
				return "", core, err
			}
			if found {
				s.drain(core)
				return reply, core, nil
			}
		}
		if !waitForever && time.Now().After(deadline) {
			return "", 0, fmt.Errorf("%w: no reply from any core", ErrTransport)
		}
	}
}

// readPacket reads one framed packet from the given connection within wait
// (zero waits forever). A malformed packet is nak'd and reread up to the
// attempt bound; a timeout reports found=false with no error so polling can
// move to the next connection.
func (s *GXSession) readPacket(core int, wait time.Duration) (string, bool, error) {
	link := s.links[core]
	noAck := s.features[core].noAckActive
	for attempt := 0; attempt < maxPacketAttempts; attempt++ {
		end := link.received.Search([]byte{'#'}, 0, wait)
		if end < 0 {
			return "", false, nil
		}
		total := link.received.Search(nil, end+2, s.receiveWait())
		if total < 0 {
			return "", false, fmt.Errorf("%w: truncated packet on %s", ErrTransport, link.GetName())
		}
		raw := link.received.Get(end + 2)
		payload, ok := parsePacket(raw)
		if !ok {
			if !noAck {
				if err := link.Send("-", ""); err != nil {
					return "", false, err
				}
			}
			// The resent packet arrives within the normal reply wait.
			wait = s.receiveWait()
			continue
		}
		if !noAck {
			if err := link.Send("+", ""); err != nil {
				return "", false, err
			}
		}
		return decodePayload(payload), true, nil
	}
	return "", false, fmt.Errorf("%w: bad reply %d times on %s", ErrTransport, maxPacketAttempts, link.GetName())
}

// parsePacket validates the framing and checksum of one raw packet,
// tolerating stray ack bytes before the start marker. It returns the raw
// payload between '$' and '#'.
func parsePacket(raw []byte) (string, bool) {
	start := -1
	for i, b := range raw {
		if b == '$' {
			start = i
			break
		}
	}
	if start < 0 || len(raw) < start+4 {
		return "", false
	}
	hash := len(raw) - 3
	if raw[hash] != '#' || hash < start+1 {
		return "", false
	}
	payload := string(raw[start+1 : hash])
	want, err := strconv.ParseUint(string(raw[hash+1:]), 16, 8)
	if err != nil {
		return "", false
	}
	if checksum(payload) != byte(want) {
		return "", false
	}
	return payload, true
}

// decodePayload resolves the RSP escape ('}' flips bit 5 of the next byte)
// and run-length ('*' repeats the previous byte) encodings.
func decodePayload(payload string) string {
	if !strings.ContainsAny(payload, "}*") {
		return payload
	}
	var b strings.Builder
	for i := 0; i < len(payload); i++ {
		switch payload[i] {
		case '}':
			if i+1 < len(payload) {
				b.WriteByte(payload[i+1] ^ 0x20)
				i++
			}
		case '*':
			if i+1 < len(payload) && b.Len() > 0 {
				count := int(payload[i+1]) - 29
				last := b.String()[b.Len()-1]
				for j := 0; j < count; j++ {
					b.WriteByte(last)
				}
				i++
			}
		default:
			b.WriteByte(payload[i])
		}
	}
	return b.String()
}

// drain consumes and discards the pending replies of every connection except
// the winner, then clears their buffers. Stale replies left queued would
// desynchronize the next command round.
func (s *GXSession) drain(winner int) {
	for core, link := range s.links {
		if core == winner {
			continue
		}
		for {
			_, found, err := s.readPacket(core, drainWait)
			if err != nil || !found {
				break
			}
		}
		link.ResetSynchronousBuffer()
	}
}

// negotiate runs the once-per-connection feature handshake: the optional
// agent-name packet, qSupported and the no-ack switch. Failures leave the
// default feature values in effect.
func (s *GXSession) negotiate(core int) {
	f := newFeatureSet()
	s.features[core] = f
	if s.settings.AgentName != "" {
		if err := s.Send(core, s.settings.AgentName); err != nil {
			return
		}
		// Stubs that do not know the agent packet may stay silent.
		_, _, _ = s.Receive(core, false, false, false)
	}
	if err := s.Send(core, "qSupported"); err != nil {
		return
	}
	reply, _, err := s.Receive(core, false, false, false)
	if err != nil || reply == "" {
		return
	}
	f.parse(reply)
	if f.NoAckMode.Enabled {
		if err := s.Send(core, "QStartNoAckMode"); err != nil {
			return
		}
		reply, _, err := s.Receive(core, false, false, false)
		if err == nil && reply == "OK" {
			f.noAckActive = true
		}
	}
}
