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
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gurux/gxcommon-go"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// interruptByte is the out-of-band break request a stub answers with a stop
// reply once the target halts.
const interruptByte = 0x03

// connectRetryDelay is the fixed delay between connection attempts.
const connectRetryDelay = 500 * time.Millisecond

// GXLink is one raw TCP byte stream to a debug stub, serving a single core.
// It has no protocol knowledge; framing, acks and retries live in GXSession.
type GXLink struct {
	HostName string
	Port     int

	// UseIPv6 defines if IPv6 is used. Default is False (IPv4).
	UseIPv6 bool

	// Core is the channel index the link serves.
	Core int

	// Connection timeout in milliseconds.
	timeout time.Duration
	// Bounded connect retry.
	connectAttempts int
	eop             any

	// The trace level specifies which types of trace messages are emitted.
	traceLevel gxcommon.TraceLevel

	mu   sync.RWMutex
	conn net.Conn
	wg   sync.WaitGroup

	stop        chan struct{}
	synchronous bool

	// Written by the reader goroutine, read from the caller's; atomic.
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	//Called when the Media state is changed.
	onState gxcommon.MediaStateHandler

	//Called when the new data is received.
	onReceive gxcommon.ReceivedEventHandler

	//Called when the Media is sending or receiving data.
	onTrace gxcommon.TraceEventHandler

	//Called when the Media is sending or receiving data.
	onErr gxcommon.ErrorEventHandler

	//Sync settings.
	received *synchronousMediaBase

	// Printer for localized messages.
	p *message.Printer
}

// NewGXLink creates a link to the given host and port serving the given
// core index. It also initializes the internal stop channel used to signal
// shutdown.
func NewGXLink(hostName string, port int, core int) *GXLink {
	g := &GXLink{HostName: hostName, Port: port, Core: core,
		stop: make(chan struct{}), timeout: time.Duration(10000) * time.Millisecond,
		connectAttempts: 1}
	g.Localize(language.AmericanEnglish)
	g.received = newGXSynchronousMediaBase()
	return g
}

// newGXLinkFromConnection creates a link from a "host:port" connection
// string and the controller settings.
func newGXLinkFromConnection(connection string, core int, settings *GXSettings) (*GXLink, error) {
	host, portStr, err := net.SplitHostPort(connection)
	if err != nil {
		return nil, fmt.Errorf("%w: connection %q: %v", ErrInvalidUsage, connection, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("%w: connection %q: invalid port", ErrInvalidUsage, connection)
	}
	g := NewGXLink(host, port, core)
	g.connectAttempts = settings.MaxConnectAttempts
	if settings.SendTimeout > 0 {
		g.timeout = time.Duration(settings.SendTimeout) * time.Millisecond
	}
	return g, nil
}

// String implements IGXMedia
func (g *GXLink) String() string {
	return fmt.Sprintf("%s:%d", g.HostName, g.Port)
}

// GetName implements IGXMedia
func (g *GXLink) GetName() string {
	return fmt.Sprintf("%s:%d", g.HostName, g.Port)
}

// IsOpen implements IGXMedia
func (g *GXLink) IsOpen() bool {
	return g.conn != nil
}

// Copy implements IGXMedia
func (g *GXLink) Copy(target gxcommon.IGXMedia) error {
	switch dst := target.(type) {
	case *GXLink:
		dst.timeout = g.timeout
		dst.connectAttempts = g.connectAttempts
		dst.HostName = g.HostName
		dst.Port = g.Port
		dst.Core = g.Core
		dst.traceLevel = g.traceLevel
		dst.eop = g.eop
	default:
		return fmt.Errorf("copy: target is %T; want *GXLink", target)
	}
	return nil
}

// GetMediaType implements IGXMedia
func (g *GXLink) GetMediaType() string {
	return "RSP"
}

// GetSettings implements IGXMedia
func (g *GXLink) GetSettings() string {
	var b strings.Builder
	if g.HostName != "" {
		fmt.Fprintf(&b, "<IP>%s</IP>\n", xmlEscape(g.HostName))
	}
	if g.Port != 0 {
		fmt.Fprintf(&b, "<Port>%d</Port>\n", g.Port)
	}
	if g.UseIPv6 {
		b.WriteString("<IPv6>1</IPv6>\n")
	}
	return b.String()
}

// SetSettings implements IGXMedia
func (g *GXLink) SetSettings(value string) error {

	if strings.TrimSpace(value) == "" {
		return nil
	}
	dec := xml.NewDecoder(strings.NewReader("<root>" + value + "</root>"))
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
		case "Port":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				g.Port = n
			}
		case "IP":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			g.HostName = v
		case "IPv6":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return err
			}
			g.UseIPv6 = strings.TrimSpace(v) == "1"
		}
	}
	return nil
}

// GetSynchronous implements IGXMedia
func (g *GXLink) GetSynchronous() func() {
	g.mu.Lock()
	g.synchronous = true
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		g.synchronous = false
		g.mu.Unlock()
	}
}

// IsSynchronous implements IGXMedia
func (g *GXLink) IsSynchronous() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.synchronous
}

// ResetSynchronousBuffer implements IGXMedia
func (g *GXLink) ResetSynchronousBuffer() {
	g.received.Reset()
}

// GetBytesSent implements IGXMedia
func (g *GXLink) GetBytesSent() uint64 {
	return g.bytesSent.Load()
}

// GetBytesReceived implements IGXMedia
func (g *GXLink) GetBytesReceived() uint64 {
	return g.bytesReceived.Load()
}

// ResetByteCounters implements IGXMedia
func (g *GXLink) ResetByteCounters() {
	g.bytesSent.Store(0)
	g.bytesReceived.Store(0)
}

// Validate implements IGXMedia
func (g *GXLink) Validate() error {
	if g.HostName == "" || g.Port == 0 {
		return fmt.Errorf("%w: host and port must be set", ErrInvalidUsage)
	}
	return nil
}

// SetEop implements IGXMedia
func (g *GXLink) SetEop(eop any) {
	g.eop = eop
}

// GetEop implements IGXMedia
func (g *GXLink) GetEop() any {
	return g.eop
}

// GetTimeout returns the connection timeout in milliseconds.
func (g *GXLink) GetTimeout() uint32 {
	return uint32(g.timeout / time.Millisecond)
}

// SetTimeout sets the connection timeout in milliseconds.
func (g *GXLink) SetTimeout(value uint32) error {
	g.timeout = time.Duration(value) * time.Millisecond
	return nil
}

// GetTrace implements IGXMedia
func (g *GXLink) GetTrace() gxcommon.TraceLevel {
	return g.traceLevel
}

// SetTrace implements IGXMedia
func (g *GXLink) SetTrace(traceLevel gxcommon.TraceLevel) error {
	g.traceLevel = traceLevel
	return nil
}

// SetOnReceived implements IGXMedia
func (g *GXLink) SetOnReceived(value gxcommon.ReceivedEventHandler) {
	g.mu.Lock()
	g.onReceive = value
	g.mu.Unlock()
}

// SetOnError implements IGXMedia
func (g *GXLink) SetOnError(value gxcommon.ErrorEventHandler) {
	g.mu.Lock()
	g.onErr = value
	g.mu.Unlock()
}

// SetOnMediaStateChange implements IGXMedia
func (g *GXLink) SetOnMediaStateChange(value gxcommon.MediaStateHandler) {
	g.mu.Lock()
	g.onState = value
	g.mu.Unlock()
}

// SetOnTrace implements IGXMedia
func (g *GXLink) SetOnTrace(value gxcommon.TraceEventHandler) {
	g.mu.Lock()
	g.onTrace = value
	g.mu.Unlock()
}

// Open implements IGXMedia. The connection is attempted up to the configured
// attempt count with a fixed delay in between; exhausting the attempts is a
// transport error.
func (g *GXLink) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		return nil
	}
	g.statef(false, gxcommon.MediaStateOpening)
	p := "tcp4"
	if g.UseIPv6 {
		p = "tcp6"
	}
	addr := g.HostName + ":" + strconv.Itoa(g.Port)
	var c net.Conn
	var err error
	for attempt := 1; ; attempt++ {
		g.trace(false, gxcommon.TraceTypesInfo, g.p.Sprintf("msg.connecting_to", g.HostName, g.Port, g.timeout.Milliseconds()))
		c, err = net.DialTimeout(p, addr, g.timeout)
		if err == nil {
			break
		}
		g.trace(false, gxcommon.TraceTypesError, g.p.Sprintf("msg.connect_failed", g.HostName, g.Port, err))
		if attempt >= g.connectAttempts {
			g.errorf(false, err)
			return fmt.Errorf("%w: connect to %s failed after %d attempts: %v", ErrTransport, addr, attempt, err)
		}
		time.Sleep(connectRetryDelay)
	}
	g.conn = c
	g.received = newGXSynchronousMediaBase()
	g.wg.Add(1)
	go g.reader(c)

	g.trace(false, gxcommon.TraceTypesInfo, g.p.Sprintf("msg.connected_to", g.HostName, g.Port))
	g.statef(false, gxcommon.MediaStateOpen)
	return nil
}

// Send implements IGXMedia
func (g *GXLink) Send(data any, receiver string) error {
	tmp, err := gxcommon.ToBytes(data, binary.BigEndian)
	if err != nil {
		return err
	}
	g.mu.RLock()
	c := g.conn
	g.mu.RUnlock()
	if c == nil {
		return gxcommon.ErrConnectionClosed
	}
	g.bytesSent.Add(uint64(len(tmp)))
	//Trace data.
	str, err := gxcommon.ToString(data)
	if err != nil {
		return err
	}
	g.tracef(true, gxcommon.TraceTypesSent, "TX: %s", str)

	if g.timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(g.timeout))
	}
	if _, err = c.Write(tmp); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// SendInterrupt writes the out-of-band interrupt byte. The stub answers with
// a stop reply on the normal receive path once the target halts.
func (g *GXLink) SendInterrupt() error {
	g.mu.RLock()
	c := g.conn
	g.mu.RUnlock()
	if c == nil {
		return gxcommon.ErrConnectionClosed
	}
	g.bytesSent.Add(1)
	g.tracef(true, gxcommon.TraceTypesSent, "TX: <break>")
	if g.timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(g.timeout))
	}
	if _, err := c.Write([]byte{interruptByte}); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Receive implements IGXMedia
func (g *GXLink) Receive(args *gxcommon.ReceiveParameters) (bool, error) {
	if args.EOP == nil && args.Count == 0 && !args.AllData {
		return false, errors.New(g.p.Sprintf("msg.count_or_eop"))
	}
	terminator, err := gxcommon.ToBytes(args.EOP, binary.BigEndian)
	if err != nil {
		return false, err
	}

	var waitTime time.Duration
	if args.WaitTime <= 0 {
		waitTime = 0
	} else {
		waitTime = time.Duration(args.WaitTime) * time.Millisecond
	}
	index := g.received.Search(terminator, args.Count, waitTime)
	if index == -1 {
		return false, nil
	}

	if args.AllData {
		//Read all data.
		index = -1
	}
	args.Reply, err = gxcommon.BytesToAny2(g.received.Get(index), args.ReplyType, binary.ByteOrder(binary.BigEndian))
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *GXLink) handleData(data []byte) {
	g.tracef(true, gxcommon.TraceTypesReceived, "RX: %s", printable(data))
	if g.synchronous {
		g.received.Append(data)
	} else {
		g.receivef(true, data)
	}
}

func (g *GXLink) reader(conn net.Conn) {
	defer g.wg.Done()
	// RSP packets are bounded by the negotiated packet size; 4 KiB covers
	// every stub default.
	buf := make([]byte, 4096)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			// timeout
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-g.stop:
					return
				default:
					continue
				}
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-g.stop:
				// Closing; the failure is expected.
			default:
				g.trace(true, gxcommon.TraceTypesError, g.p.Sprintf("msg.connection_failed", err))
				g.errorf(true, err)
			}
			return
		}

		if n > 0 {
			g.bytesReceived.Add(uint64(n))
			g.handleData(buf[:n])
		}
		select {
		case <-g.stop:
			return
		default:
		}
	}
}

func (g *GXLink) receivef(lock bool, data []byte) {
	var cb gxcommon.ReceivedEventHandler
	if lock {
		g.mu.RLock()
		cb = g.onReceive
		g.mu.RUnlock()
	} else {
		cb = g.onReceive
	}
	if cb != nil {
		cb(g, *gxcommon.NewReceiveEventArgs(data, g.HostName+":"+strconv.Itoa(g.Port)))
	}
}

func (g *GXLink) errorf(lock bool, err error) {
	var cb gxcommon.ErrorEventHandler
	if lock {
		g.mu.RLock()
		cb = g.onErr
		g.mu.RUnlock()
	} else {
		cb = g.onErr
	}
	if cb != nil {
		cb(g, err)
	}
}

func (g *GXLink) tracef(lock bool, traceType gxcommon.TraceTypes, fmtStr string, a ...any) {
	var cb gxcommon.TraceEventHandler
	trace := false
	if lock {
		g.mu.RLock()
		trace = !(int(g.traceLevel) < int(traceType))
		cb = g.onTrace
		g.mu.RUnlock()
	} else {
		trace = !(int(g.traceLevel) < int(traceType))
		cb = g.onTrace
	}
	if cb != nil && trace {
		p := gxcommon.NewTraceEventArgs(traceType, fmt.Sprintf(fmtStr, a...), "")
		var m gxcommon.IGXMedia = g
		cb(m, *p)
	}
}

func (g *GXLink) trace(lock bool, traceType gxcommon.TraceTypes, message string) {
	var cb gxcommon.TraceEventHandler
	trace := false
	if lock {
		g.mu.RLock()
		trace = !(int(g.traceLevel) < int(traceType))
		cb = g.onTrace
		g.mu.RUnlock()
	} else {
		trace = !(int(g.traceLevel) < int(traceType))
		cb = g.onTrace
	}
	if cb != nil && trace {
		p := gxcommon.NewTraceEventArgs(traceType, message, "")
		var m gxcommon.IGXMedia = g
		cb(m, *p)
	}
}

func (g *GXLink) statef(lock bool, state gxcommon.MediaState) {
	var cb gxcommon.MediaStateHandler
	if lock {
		g.mu.RLock()
		cb = g.onState
		g.mu.RUnlock()
	} else {
		cb = g.onState
	}
	if cb != nil {
		cb(g, *gxcommon.NewMediaStateEventArgs(state))
	}
}

// Close implements IGXMedia
func (g *GXLink) Close() error {
	g.mu.Lock()
	select {
	case <-g.stop:
		// already closed
	default:
		if g.conn != nil {
			g.trace(false, gxcommon.TraceTypesInfo, g.p.Sprintf("msg.closing_connection", g.HostName, g.Port))
			g.statef(false, gxcommon.MediaStateClosing)
		}
		close(g.stop)
	}
	var err error
	wasOpen := g.conn != nil
	if wasOpen {
		// Make sure reader goroutine is not blocked on read.
		_ = g.conn.SetReadDeadline(time.Now())
		err = g.conn.Close()
		g.conn = nil
	}
	g.mu.Unlock()
	// Wake consumers blocked in a synchronous receive and wait for the
	// reader without holding the lock: the reader's delivery path takes
	// the read lock for traces and events.
	g.received.Close()
	g.wg.Wait()
	if wasOpen {
		g.trace(true, gxcommon.TraceTypesInfo, g.p.Sprintf("msg.connection_closed", g.HostName, g.Port))
		g.statef(true, gxcommon.MediaStateClosed)
	}
	return err
}

// printable renders received bytes for tracing, keeping ack bytes and
// packets readable and escaping the rest.
func printable(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "\\x%02x", c)
		}
	}
	return b.String()
}

//nolint:errcheck
func init() {
	// --- English (default) ---
	message.SetString(language.AmericanEnglish, "msg.closing_connection", "Closing connection to %s:%d")
	message.SetString(language.AmericanEnglish, "msg.connection_closed", "Connection closed to %s:%d")
	message.SetString(language.AmericanEnglish, "msg.connection_failed", "Connection failed: %v")
	message.SetString(language.AmericanEnglish, "msg.count_or_eop", "Either Count or EOP must be set")
	message.SetString(language.AmericanEnglish, "msg.connected_to", "Connected to %s:%d")
	message.SetString(language.AmericanEnglish, "msg.connect_failed", "connect to %s:%d failed: %v")
	message.SetString(language.AmericanEnglish, "msg.connecting_to", "Connecting to %s:%d timeout %d ms")

	// --- German (de) ---
	message.SetString(language.German, "msg.closing_connection", "Verbindung zu %s:%d wird geschlossen")
	message.SetString(language.German, "msg.connection_closed", "Verbindung zu %s:%d wurde geschlossen")
	message.SetString(language.German, "msg.connection_failed", "Verbindung fehlgeschlagen: %v")
	message.SetString(language.German, "msg.count_or_eop", "Entweder Count oder EOP muss gesetzt sein")
	message.SetString(language.German, "msg.connected_to", "Verbunden mit %s:%d")
	message.SetString(language.German, "msg.connect_failed", "Verbindung zu %s:%d fehlgeschlagen: %v")
	message.SetString(language.German, "msg.connecting_to", "Verbindet sich mit %s:%d timeout %d ms")

	// --- Finnish (fi) ---
	message.SetString(language.Finnish, "msg.closing_connection", "Suljetaan yhteys kohteeseen %s:%d")
	message.SetString(language.Finnish, "msg.connection_closed", "Yhteys suljettu kohteeseen %s:%d")
	message.SetString(language.Finnish, "msg.connection_failed", "Yhteyden muodostus epäonnistui: %v")
	message.SetString(language.Finnish, "msg.count_or_eop", "Joko Count tai EOP on asetettava")
	message.SetString(language.Finnish, "msg.connected_to", "Yhdistetty kohteeseen %s:%d")
	message.SetString(language.Finnish, "msg.connect_failed", "Yhteyden muodostus kohteeseen %s:%d epäonnistui: %v")
	message.SetString(language.Finnish, "msg.connecting_to", "Yhdistetään kohteeseen %s:%d timeout %d ms")

	// --- Swedish (sv) ---
	message.SetString(language.Swedish, "msg.closing_connection", "Stänger anslutning till %s:%d")
	message.SetString(language.Swedish, "msg.connection_closed", "Anslutning stängd till %s:%d")
	message.SetString(language.Swedish, "msg.connection_failed", "Anslutningen misslyckades: %v")
	message.SetString(language.Swedish, "msg.count_or_eop", "Antingen Count eller EOP måste anges")
	message.SetString(language.Swedish, "msg.connected_to", "Ansluten till %s:%d")
	message.SetString(language.Swedish, "msg.connect_failed", "Anslutning till %s:%d misslyckades: %v")
	message.SetString(language.Swedish, "msg.connecting_to", "Ansluter till %s:%d timeout %d ms")

	// --- Spanish (es) ---
	message.SetString(language.Spanish, "msg.closing_connection", "Cerrando conexión con %s:%d")
	message.SetString(language.Spanish, "msg.connection_closed", "Conexión cerrada con %s:%d")
	message.SetString(language.Spanish, "msg.connection_failed", "Error de conexión: %v")
	message.SetString(language.Spanish, "msg.count_or_eop", "Se debe establecer Count o EOP")
	message.SetString(language.Spanish, "msg.connected_to", "Conectado a %s:%d")
	message.SetString(language.Spanish, "msg.connect_failed", "Error al conectar con %s:%d: %v")
	message.SetString(language.Spanish, "msg.connecting_to", "Conectando a %s:%d timeout %d ms")

	// --- Estonian (et) ---
	message.SetString(language.Estonian, "msg.closing_connection", "Suletakse ühendus sihtkohta %s:%d")
	message.SetString(language.Estonian, "msg.connection_closed", "Ühendus suleti sihtkohta %s:%d")
	message.SetString(language.Estonian, "msg.connection_failed", "Ühendus ebaõnnestus: %v")
	message.SetString(language.Estonian, "msg.count_or_eop", "Count või EOP peab olema määratud")
	message.SetString(language.Estonian, "msg.connected_to", "Ühendatud sihtkohta %s:%d")
	message.SetString(language.Estonian, "msg.connect_failed", "Ühendamine sihtkohta %s:%d ebaõnnestus: %v")
	message.SetString(language.Estonian, "msg.connecting_to", "Ühendatakse sihtkohta %s:%d timeout %d ms")
}

// Localize messages for the specified language.
// No errors is returned if language is not supported.
func (g *GXLink) Localize(language language.Tag) {
	g.p = message.NewPrinter(language)
}
