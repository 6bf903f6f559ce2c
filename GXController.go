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
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/Gurux/gxcommon-go"
	"golang.org/x/text/language"
)

// GXController is the synchronous command layer of the RSP client. All of
// its operations block on the caller's goroutine and must not overlap with
// a live asynchronous command; that rule is enforced by an explicit
// in-progress check, and violating it is a usage error.
type GXController struct {
	settings *GXSettings
	session  *GXSession

	// Immutable after construction.
	table  []RegisterDescriptor
	byName map[string]RegisterDescriptor
	pc     RegisterDescriptor

	// currentCore is the core bound by the last thread-select.
	currentCore int
	// lastActiveCpu is the core named by the most recent stop reply.
	lastActiveCpu int
	// processorCount caches discovery for the controller's lifetime.
	processorCount int

	// asyncMu guards the single in-flight asynchronous command.
	asyncMu sync.Mutex
	async   *asynchronousCommand

	codeBreakpoints []codeBreakpointSlot
	dataBreakpoints []dataBreakpointSlot
}

// NewGXController creates a controller from the given settings. The
// register table is resolved once here; the links are created but not yet
// connected.
func NewGXController(settings *GXSettings) (*GXController, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: settings must be set", ErrInvalidUsage)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	table, err := registerTable(settings.Architecture)
	if err != nil {
		return nil, err
	}
	pc, err := pcDescriptor(settings.Architecture)
	if err != nil {
		return nil, err
	}
	session, err := newGXSession(settings)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]RegisterDescriptor, len(table))
	for _, d := range table {
		byName[d.Name] = d
	}
	return &GXController{
		settings: settings,
		session:  session,
		table:    table,
		byName:   byName,
		pc:       pc,
	}, nil
}

// Open connects every core link and negotiates features per connection.
func (c *GXController) Open() error {
	return c.session.Open()
}

// Close tears every link down. A live asynchronous worker is woken by the
// closing links and its result discarded.
func (c *GXController) Close() error {
	err := c.session.Close()
	c.asyncMu.Lock()
	c.async = nil
	c.asyncMu.Unlock()
	return err
}

// Localize messages for the specified language.
// No errors is returned if language is not supported.
func (c *GXController) Localize(tag language.Tag) {
	c.session.Localize(tag)
}

// SetTrace sets the trace level of every link.
func (c *GXController) SetTrace(traceLevel gxcommon.TraceLevel) error {
	for _, link := range c.session.links {
		if err := link.SetTrace(traceLevel); err != nil {
			return err
		}
	}
	return nil
}

// SetOnTrace registers the trace handler on every link.
func (c *GXController) SetOnTrace(value gxcommon.TraceEventHandler) {
	for _, link := range c.session.links {
		link.SetOnTrace(value)
	}
}

// SetOnError registers the error handler on every link.
func (c *GXController) SetOnError(value gxcommon.ErrorEventHandler) {
	for _, link := range c.session.links {
		link.SetOnError(value)
	}
}

// SetOnMediaStateChange registers the state handler on every link.
func (c *GXController) SetOnMediaStateChange(value gxcommon.MediaStateHandler) {
	for _, link := range c.session.links {
		link.SetOnMediaStateChange(value)
	}
}

// GetLastKnownActiveCpu returns the core named by the most recent stop
// reply that carried a thread id.
func (c *GXController) GetLastKnownActiveCpu() int {
	return c.lastActiveCpu
}

// Features returns the negotiated capabilities of the given connection.
func (c *GXController) Features(core int) (*FeatureSet, error) {
	if core < 0 || core >= c.session.ConnectionCount() {
		return nil, fmt.Errorf("%w: core %d out of range", ErrInvalidUsage, core)
	}
	return c.session.Features(core), nil
}

// linkFor maps a core index to its connection: the core's own link with one
// connection per core, the single shared link otherwise.
func (c *GXController) linkFor(core int) int {
	if c.session.ConnectionCount() > 1 {
		return core
	}
	return 0
}

// checkCore validates a core index against the connection list or, for a
// shared connection, the discovered processor count when known.
func (c *GXController) checkCore(core int) error {
	if core < 0 {
		return fmt.Errorf("%w: core %d out of range", ErrInvalidUsage, core)
	}
	if n := c.session.ConnectionCount(); n > 1 {
		if core >= n {
			return fmt.Errorf("%w: core %d out of range", ErrInvalidUsage, core)
		}
		return nil
	}
	if c.processorCount > 0 && core >= c.processorCount {
		return fmt.Errorf("%w: core %d out of range", ErrInvalidUsage, core)
	}
	return nil
}

// checkIdle rejects synchronous work while the background worker lives.
func (c *GXController) checkIdle() error {
	if c.IsAsynchronousCommandInProgress() {
		return fmt.Errorf("%w: asynchronous command in progress", ErrInvalidUsage)
	}
	return nil
}

// executeOn sends one command on the given connection and reads its reply
// when one is expected. It bypasses the idle check; public entry points
// enforce it.
func (c *GXController) executeOn(link int, command string, needsReply bool) (string, error) {
	if err := c.session.Send(link, command); err != nil {
		return "", err
	}
	if !needsReply {
		return "", nil
	}
	reply, _, err := c.session.Receive(link, false, false, false)
	return reply, err
}

// executeRun sends the command on every connection and races their replies;
// the winner's reply is returned and the losers are drained. The winning
// connection becomes the last known active cpu.
func (c *GXController) executeRun(command string, needsReply, waitForever bool) (string, error) {
	if err := c.session.SendToAll(command); err != nil {
		return "", err
	}
	if !needsReply {
		return "", nil
	}
	reply, winner, err := c.session.Receive(0, waitForever, true, false)
	if err != nil {
		return "", err
	}
	c.lastActiveCpu = winner
	return reply, nil
}

// ExecuteCommandOnProcessor sends one raw command on the core's connection
// and returns the raw reply. Core selection is implicit: the command either
// encodes the core or was preceded by SetThreadCommand.
func (c *GXController) ExecuteCommandOnProcessor(command string, needsReply bool, core int) (string, error) {
	if err := c.checkIdle(); err != nil {
		return "", err
	}
	if err := c.checkCore(core); err != nil {
		return "", err
	}
	return c.executeOn(c.linkFor(core), command, needsReply)
}

// ExecuteCommandOnMultiProcessors sends one raw command on every connection
// and returns the first reply; pending replies of the other connections are
// drained before the method returns.
func (c *GXController) ExecuteCommandOnMultiProcessors(command string, needsReply bool) (string, error) {
	if err := c.checkIdle(); err != nil {
		return "", err
	}
	return c.executeRun(command, needsReply, false)
}

// SetThreadCommand binds subsequent register and memory commands to a core
// with H{op}{hex core}. With one connection per core the selection is
// implicit in which connection is used, so only local state changes.
func (c *GXController) SetThreadCommand(core int, op string) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if err := c.checkCore(core); err != nil {
		return err
	}
	if c.session.ConnectionCount() > 1 {
		c.currentCore = core
		return nil
	}
	reply, err := c.executeOn(0, fmt.Sprintf("H%s%x", op, core), true)
	if err != nil {
		return err
	}
	if isErrorReply(reply) {
		return newProtocolError("H"+op, reply)
	}
	c.currentCore = core
	return nil
}

// QueryAllRegisters reads the whole register file of the core with a g
// packet. The reply carries every register in protocol order as hex-doubled
// bytes in target order; each register is byte-swapped within its own width
// before exposure. A truncated reply yields the registers that did arrive.
func (c *GXController) QueryAllRegisters(core int) (map[string]string, error) {
	if err := c.checkIdle(); err != nil {
		return nil, err
	}
	if err := c.SetThreadCommand(core, "g"); err != nil {
		return nil, err
	}
	reply, err := c.executeOn(c.linkFor(core), "g", true)
	if err != nil {
		return nil, err
	}
	if isErrorReply(reply) {
		return nil, newProtocolError("g", reply)
	}
	values := make(map[string]string, len(c.table))
	offset := 0
	for _, d := range c.table {
		end := offset + 2*d.Size
		if end > len(reply) {
			break
		}
		swapped, err := swapRegisterBytes(reply[offset:end], d.Size)
		if err != nil {
			return nil, err
		}
		values[d.Name] = swapped
		offset = end
	}
	return values, nil
}

// QueryRegisters reads the named registers with p packets and returns
// name to value-order hex.
func (c *GXController) QueryRegisters(core int, names []string) (map[string]string, error) {
	if err := c.checkIdle(); err != nil {
		return nil, err
	}
	if err := c.SetThreadCommand(core, "g"); err != nil {
		return nil, err
	}
	link := c.linkFor(core)
	values := make(map[string]string, len(names))
	for _, name := range names {
		d, ok := c.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown register %q", ErrInvalidUsage, name)
		}
		reply, err := c.executeOn(link, fmt.Sprintf("p%x", d.Order), true)
		if err != nil {
			return nil, err
		}
		if isErrorReply(reply) {
			return nil, newProtocolError("p", reply)
		}
		swapped, err := swapRegisterBytes(reply, d.Size)
		if err != nil {
			return nil, err
		}
		values[name] = swapped
	}
	return values, nil
}

// QueryRegisterValues reads the named registers and returns name to
// integer values.
func (c *GXController) QueryRegisterValues(core int, names []string) (map[string]uint64, error) {
	raw, err := c.QueryRegisters(core, names)
	if err != nil {
		return nil, err
	}
	values := make(map[string]uint64, len(raw))
	for name, v := range raw {
		// QueryRegisters already swapped to value order; parse as-is.
		data, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: register value %q", ErrUnparsedReply, v)
		}
		var value uint64
		for _, b := range data {
			value = value<<8 | uint64(b)
		}
		values[name] = value
	}
	return values, nil
}

// SetRegisters writes the named registers with P packets. Values are
// value-order hex of exactly the register's width and are swapped back to
// wire order before sending.
func (c *GXController) SetRegisters(core int, values map[string]string) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if err := c.SetThreadCommand(core, "g"); err != nil {
		return err
	}
	link := c.linkFor(core)
	for name, value := range values {
		d, ok := c.byName[name]
		if !ok {
			return fmt.Errorf("%w: unknown register %q", ErrInvalidUsage, name)
		}
		wire, err := swapRegisterBytes(value, d.Size)
		if err != nil {
			return err
		}
		reply, err := c.executeOn(link, fmt.Sprintf("P%x=%s", d.Order, wire), true)
		if err != nil {
			return err
		}
		if isErrorReply(reply) {
			return newProtocolError("P", reply)
		}
		if reply != "OK" {
			return fmt.Errorf("%w: register write replied %q", ErrUnparsedReply, reply)
		}
	}
	return nil
}

// SetRegisterValues writes the named registers from integer values.
func (c *GXController) SetRegisterValues(core int, values map[string]uint64) error {
	hexValues := make(map[string]string, len(values))
	for name, value := range values {
		d, ok := c.byName[name]
		if !ok {
			return fmt.Errorf("%w: unknown register %q", ErrInvalidUsage, name)
		}
		data := make([]byte, d.Size)
		for i := range data {
			data[i] = byte(value >> (8 * (d.Size - 1 - i)))
		}
		hexValues[name] = hex.EncodeToString(data)
	}
	return c.SetRegisters(core, hexValues)
}

// memoryReadCommand builds the read command of one chunk for the address
// space.
func (c *GXController) memoryReadCommand(link int, address uint64, count int, memType MemoryType) (string, error) {
	if memType == MemoryTypeData {
		return fmt.Sprintf("m%x,%x", address, count), nil
	}
	if !c.session.Features(link).VendorMemoryRead.Enabled {
		return "", fmt.Errorf("%w: stub has no qtrace32.memory", ErrNotSupported)
	}
	return fmt.Sprintf("qtrace32.memory:%s,%x,%x", memType.qualifier(), address, count), nil
}

// ReadMemory reads size bytes starting at address, splitting the transfer
// into chunks no larger than the configured or negotiated packet length.
// An error reply on the first chunk is fatal; later chunks return the bytes
// accumulated so far, unless ThrowOnMemoryError is configured. A short
// reply ends the transfer the same way.
func (c *GXController) ReadMemory(address uint64, size int, memType MemoryType) ([]byte, error) {
	if err := c.checkIdle(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrInvalidUsage)
	}
	link := c.linkFor(c.currentCore)
	chunk := c.session.MaxPacketLength(link)
	out := make([]byte, 0, size)
	for len(out) < size {
		count := min(chunk, size-len(out))
		cmd, err := c.memoryReadCommand(link, address+uint64(len(out)), count, memType)
		if err != nil {
			return nil, err
		}
		reply, err := c.executeOn(link, cmd, true)
		if err != nil {
			return nil, err
		}
		if isErrorReply(reply) {
			if len(out) == 0 || c.settings.ThrowOnMemoryError {
				return nil, newProtocolError(cmd, reply)
			}
			return out, nil
		}
		data, err := hex.DecodeString(reply)
		if err != nil {
			return nil, fmt.Errorf("%w: memory reply %q", ErrUnparsedReply, reply)
		}
		out = append(out, data...)
		if len(data) < count {
			if c.settings.ThrowOnMemoryError {
				return nil, fmt.Errorf("%w: short read at %#x", ErrTransport, address+uint64(len(out)))
			}
			return out, nil
		}
	}
	return out, nil
}

// memoryWriteCommand builds the write command of one chunk for the address
// space.
func (c *GXController) memoryWriteCommand(link int, address uint64, data []byte, memType MemoryType) (string, error) {
	if memType == MemoryTypeData {
		return fmt.Sprintf("M%x,%x:%s", address, len(data), hex.EncodeToString(data)), nil
	}
	if !c.session.Features(link).VendorMemoryWrite.Enabled {
		return "", fmt.Errorf("%w: stub has no Qtrace32.memory", ErrNotSupported)
	}
	return fmt.Sprintf("Qtrace32.memory:%s,%x,%x,%s", memType.qualifier(), address, len(data), hex.EncodeToString(data)), nil
}

// WriteMemory writes the buffer starting at address in packet-length
// chunks. Success requires every chunk to reply OK.
func (c *GXController) WriteMemory(address uint64, buffer []byte, memType MemoryType) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	link := c.linkFor(c.currentCore)
	chunk := c.session.MaxPacketLength(link)
	for written := 0; written < len(buffer); {
		count := min(chunk, len(buffer)-written)
		cmd, err := c.memoryWriteCommand(link, address+uint64(written), buffer[written:written+count], memType)
		if err != nil {
			return err
		}
		reply, err := c.executeOn(link, cmd, true)
		if err != nil {
			return err
		}
		if isErrorReply(reply) {
			return newProtocolError(cmd, reply)
		}
		if reply != "OK" {
			return fmt.Errorf("%w: memory write replied %q", ErrUnparsedReply, reply)
		}
		written += count
	}
	return nil
}

// ReportReasonTargetHalted queries every connected core with ? and picks
// the authoritative stop reason: among cores that are not running, a reply
// carrying both a thread id and a program counter wins, otherwise the
// last-known-active core's reply is retained. A reply naming a thread
// updates the last known active cpu.
func (c *GXController) ReportReasonTargetHalted() (StopReplyEvent, error) {
	if err := c.checkIdle(); err != nil {
		return StopReplyEvent{}, err
	}
	var chosen, lastActive, lastSeen StopReplyEvent
	var haveChosen, haveLastActive, haveAny bool
	for core := range c.session.links {
		reply, err := c.executeOn(core, "?", true)
		if err != nil {
			return StopReplyEvent{}, err
		}
		e := parseStopReply(reply, c.pc)
		lastSeen = e
		haveAny = true
		if e.IsCoreRunning {
			continue
		}
		if !haveChosen && e.IsThreadFound && e.IsPcRegFound {
			chosen = e
			haveChosen = true
		}
		if core == c.linkFor(c.lastActiveCpu) {
			lastActive = e
			haveLastActive = true
		}
	}
	if !haveAny {
		return StopReplyEvent{}, fmt.Errorf("%w: no cores connected", ErrInvalidUsage)
	}
	if !haveChosen {
		if haveLastActive {
			chosen = lastActive
		} else {
			chosen = lastSeen
		}
	}
	if chosen.IsThreadFound {
		c.lastActiveCpu = chosen.ProcessorNumber
	}
	return chosen, nil
}

// GetProcessorCount discovers how many cores the target has: the connection
// count with one connection per core, otherwise the thread list of the
// shared stub, paged with qfThreadInfo and qsThreadInfo until the l
// terminator. The result is cached for the controller's lifetime.
func (c *GXController) GetProcessorCount() (int, error) {
	if c.processorCount > 0 {
		return c.processorCount, nil
	}
	if err := c.checkIdle(); err != nil {
		return 0, err
	}
	if n := c.session.ConnectionCount(); n > 1 {
		c.processorCount = n
		return n, nil
	}
	count := 0
	reply, err := c.executeOn(0, "qfThreadInfo", true)
	if err != nil {
		return 0, err
	}
	for {
		if strings.HasPrefix(reply, "m") {
			for _, id := range strings.Split(reply[1:], ",") {
				if id != "" {
					count++
				}
			}
		} else {
			// The l terminator carries no ids; anything else ends the
			// discovery with what was counted.
			break
		}
		reply, err = c.executeOn(0, "qsThreadInfo", true)
		if err != nil {
			return 0, err
		}
	}
	if count == 0 {
		count = 1
	}
	c.processorCount = count
	return count, nil
}

// executionLevel extracts the execution level from the status register.
func executionLevel(architecture Architecture, status uint64) int {
	switch architecture {
	case ArchitectureArm64:
		return int(status>>2) & 3
	case ArchitectureArm32:
		// Mode field: hyp mode is EL2, everything else privileged is EL1.
		if status&0x1f == 0x1a {
			return 2
		}
		return 1
	}
	return 0
}

// msrMemoryType maps an execution level to the special-memory window the
// register access must travel through.
func msrMemoryType(level int) MemoryType {
	if level >= 2 {
		return MemoryTypeHypervisor
	}
	return MemoryTypeSupervisor
}

// ReadMsrRegister reads a system register through the special-memory path:
// the architecture's status register resolves the execution level, which
// selects the access window, and the register is read at register-pointer
// width. Architectures without a status register are not supported.
func (c *GXController) ReadMsrRegister(core int, address uint64) (uint64, error) {
	sr := c.settings.Architecture.statusRegister()
	if sr == "" {
		return 0, fmt.Errorf("%w: no MSR access for %v", ErrNotSupported, c.settings.Architecture)
	}
	status, err := c.QueryRegisterValues(core, []string{sr})
	if err != nil {
		return 0, err
	}
	memType := msrMemoryType(executionLevel(c.settings.Architecture, status[sr]))
	data, err := c.ReadMemory(address, c.settings.Architecture.pointerSize(), memType)
	if err != nil {
		return 0, err
	}
	if len(data) < c.settings.Architecture.pointerSize() {
		return 0, fmt.Errorf("%w: short MSR read at %#x", ErrTransport, address)
	}
	var value uint64
	for i := len(data) - 1; i >= 0; i-- {
		value = value<<8 | uint64(data[i])
	}
	return value, nil
}

// WriteMsrRegister writes a system register through the special-memory
// path, symmetric to ReadMsrRegister.
func (c *GXController) WriteMsrRegister(core int, address, value uint64) error {
	sr := c.settings.Architecture.statusRegister()
	if sr == "" {
		return fmt.Errorf("%w: no MSR access for %v", ErrNotSupported, c.settings.Architecture)
	}
	status, err := c.QueryRegisterValues(core, []string{sr})
	if err != nil {
		return err
	}
	memType := msrMemoryType(executionLevel(c.settings.Architecture, status[sr]))
	size := c.settings.Architecture.pointerSize()
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(value >> (8 * i))
	}
	return c.WriteMemory(address, data, memType)
}

// MonitorCommand forwards a text command to the stub with qRcmd. Console
// output packets are collected; the final reply is OK or a hex-encoded
// result.
func (c *GXController) MonitorCommand(text string) (string, error) {
	if err := c.checkIdle(); err != nil {
		return "", err
	}
	link := c.linkFor(c.currentCore)
	reply, err := c.executeOn(link, "qRcmd,"+hex.EncodeToString([]byte(text)), true)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for strings.HasPrefix(reply, "O") && reply != "OK" {
		if data, err := hex.DecodeString(reply[1:]); err == nil {
			out.Write(data)
		}
		reply, _, err = c.session.Receive(link, false, false, false)
		if err != nil {
			return out.String(), err
		}
	}
	if isErrorReply(reply) {
		return out.String(), newProtocolError("qRcmd", reply)
	}
	if reply != "OK" && reply != "" {
		if data, err := hex.DecodeString(reply); err == nil {
			out.Write(data)
		}
	}
	return out.String(), nil
}

// RestartTarget asks the stub to restart the program with R. The packet
// has no reply.
func (c *GXController) RestartTarget() error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	return c.session.Send(c.linkFor(c.currentCore), "R00")
}
