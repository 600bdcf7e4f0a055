package dbus

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/mds/queue"
	"github.com/creachadair/taskgroup"
	"github.com/yasashii-syndicate/dbus/transport"
	"github.com/yasashii-syndicate/dbus/wire"
)

// The bus daemon's own endpoint.
const (
	busName  = "org.freedesktop.DBus"
	busPath  = "/org/freedesktop/DBus"
	ifaceBus = "org.freedesktop.DBus"
)

// Open opens a private connection to the bus at the given server
// address.
//
// The address uses the DBus server address syntax, e.g.
// "unix:path=/run/dbus/system_bus_socket", possibly with several
// semicolon-separated entries to try in order. The connection is
// private: it owns a fresh socket that is never shared or cached, and
// closing it affects no other connection.
//
// Opening performs the transport handshake only. To participate in
// bus traffic beyond that, callers must complete registration with
// [Conn.BusRegister].
func Open(ctx context.Context, address string) (*Conn, error) {
	busErr := newError()
	t, err := transport.Dial(ctx, address)
	if err != nil {
		busErr.setFailure(errNameNoServer, err.Error())
		busErr.assertConsistent()
		return nil, busErr
	}
	return newConn(t), nil
}

func newConn(t transport.Transport) *Conn {
	c := &Conn{
		t:           t,
		calls:       map[uint32]*pendingCall{},
		inbound:     queue.New[*inboundMsg](),
		frameReady:  make(chan struct{}, 1),
		readDone:    make(chan struct{}),
		callTimeout: DefaultTimeout(),
	}
	c.tasks = taskgroup.New(nil)
	c.tasks.Go(c.readLoop)
	return c
}

// Conn is a private connection to a bus daemon.
//
// A Conn is owned by one logical caller at a time: its operations are
// internally consistent, but the connection is not designed for
// concurrent use without external serialization. Call sites that need
// independent access to the bus should open independent connections.
type Conn struct {
	t transport.Transport

	writeMu sync.Mutex

	mu          sync.Mutex
	closed      bool
	localName   string
	lastSerial  uint32
	calls       map[uint32]*pendingCall
	inbound     *queue.Queue[*inboundMsg]
	filters     []FilterFunc
	names       mapset.Set[string]
	callTimeout Timeout
	readErr     error

	frameReady chan struct{}
	readDone   chan struct{}
	tasks      *taskgroup.Group
}

// inboundMsg is one message read off the transport, along with the
// byte order its body is encoded in.
type inboundMsg struct {
	msg   *wire.Message
	order wire.ByteOrder
}

// view returns the read-only filter view of the message.
func (im *inboundMsg) view() *Message {
	return &Message{
		Type:        im.msg.Type,
		Sender:      im.msg.Sender,
		Path:        im.msg.Path,
		Interface:   im.msg.Interface,
		Member:      im.msg.Member,
		ErrName:     im.msg.ErrName,
		Serial:      im.msg.Serial,
		ReplySerial: im.msg.ReplySerial,
		Signature:   im.msg.Signature,
		Body:        im.msg.Body,
	}
}

type pendingCall struct {
	notify chan struct{}
	reply  *inboundMsg
}

// Message is a read-only view of one incoming message, as handed to
// filters registered with [Conn.AddFilter].
type Message struct {
	Type        wire.Type
	Sender      string
	Path        string
	Interface   string
	Member      string
	ErrName     string
	Serial      uint32
	ReplySerial uint32
	Signature   string
	Body        []byte
}

// FilterFunc inspects one incoming message before any other routing.
// Returning [Handled] consumes the message; any other result passes
// it to the next filter, and finally to the connection's own routing.
type FilterFunc func(*Message) HandlerResult

// AddFilter registers f to run against every dispatched incoming
// message, after any previously added filters.
func (c *Conn) AddFilter(f FilterFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, f)
}

// SetCallTimeout sets how long blocking calls wait for their reply.
// The default is [DefaultTimeout].
func (c *Conn) SetCallTimeout(t Timeout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callTimeout = t
}

// ServerID returns the bus server's globally unique identifier, as
// reported during the connection handshake. It is useful for
// diagnostics only.
func (c *Conn) ServerID() string {
	return c.t.ServerGUID()
}

// LocalName returns the connection's unique bus name. It is empty
// until [Conn.BusRegister] has completed.
func (c *Conn) LocalName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localName
}

// RequestedNames returns the well-known names this connection has
// successfully requested and not released, in sorted order.
func (c *Conn) RequestedNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.names))
}

// Close tears the connection down: first the protocol-level
// disconnect, which fails any call still waiting for a reply and
// stops new operations, then the release of the underlying transport
// and reader. The two steps happen in that order, exactly once; later
// Close calls are no-ops.
func (c *Conn) Close() error {
	pend, already := func() (map[uint32]*pendingCall, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return nil, true
		}
		c.closed = true
		pend := c.calls
		c.calls = nil
		c.inbound.Clear()
		return pend, false
	}()
	if already {
		return nil
	}

	// Disconnect: anyone blocked on a reply learns about the shutdown
	// before the socket goes away.
	for p := range maps.Values(pend) {
		close(p.notify)
	}

	// Release: close the transport, which also unblocks and joins the
	// reader.
	err := c.t.Close()
	c.tasks.Wait()
	return err
}

// readLoop reads complete messages off the transport into the inbound
// buffer until the transport fails or is closed. It never blocks on
// callers: draining the buffer is the dispatch step's job.
func (c *Conn) readLoop() error {
	defer close(c.readDone)
	for {
		m, ord, err := wire.ReadMessage(c.t)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.readErr = err
			c.mu.Unlock()
			if !closed {
				log.Printf("dbus: read error: %v", err)
			}
			return nil
		}
		if err := m.Valid(); err != nil {
			log.Printf("dbus: dropping invalid message: %v", err)
			continue
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.inbound.Add(&inboundMsg{msg: m, order: ord})
		c.mu.Unlock()
		select {
		case c.frameReady <- struct{}{}:
		default:
		}
	}
}

// Dispatch performs one step of incoming message processing: it
// delivers at most one message that the reader has already buffered,
// and reports whether more buffered messages remain. It never blocks
// on the network.
func (c *Conn) Dispatch() DispatchStatus {
	im, remains := func() (*inboundMsg, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		im, ok := c.inbound.Pop()
		if !ok {
			return nil, false
		}
		return im, c.inbound.Len() > 0
	}()
	if im == nil {
		return DispatchComplete
	}
	c.route(im)
	if remains {
		return DispatchDataRemains
	}
	return DispatchComplete
}

func (c *Conn) route(im *inboundMsg) {
	c.mu.Lock()
	filters := slices.Clone(c.filters)
	c.mu.Unlock()
	for _, f := range filters {
		if f(im.view()) == Handled {
			return
		}
	}

	switch im.msg.Type {
	case wire.TypeReturn, wire.TypeError:
		c.routeReply(im)
	case wire.TypeCall:
		c.routeCall(im)
	default:
		// Signal subscription lives above this layer; unclaimed
		// signals are dropped.
	}
}

func (c *Conn) routeReply(im *inboundMsg) {
	c.mu.Lock()
	p := c.calls[im.msg.ReplySerial]
	delete(c.calls, im.msg.ReplySerial)
	c.mu.Unlock()
	if p == nil {
		// Reply to a canceled call.
		return
	}
	p.reply = im
	close(p.notify)
}

// routeCall answers method calls nobody claimed. Method handler
// registration lives above this layer, so the honest answer is
// UnknownMethod.
func (c *Conn) routeCall(im *inboundMsg) {
	if !im.msg.WantReply() {
		return
	}
	var e wire.Encoder
	e.Order = wire.NativeEndian
	e.String(fmt.Sprintf("no handler for method %s.%s", im.msg.Interface, im.msg.Member))
	reply := &wire.Message{
		Type:        wire.TypeError,
		Serial:      c.nextSerial(),
		Destination: im.msg.Sender,
		ReplySerial: im.msg.Serial,
		ErrName:     errNameUnknownMethod,
		Signature:   "s",
		Body:        e.Out,
	}
	if err := c.writeMsg(reply); err != nil {
		log.Printf("dbus: failed to send error reply: %v", err)
	}
}

func (c *Conn) nextSerial() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSerial++
	return c.lastSerial
}

func (c *Conn) writeMsg(m *wire.Message) error {
	bs, err := wire.Marshal(m, wire.NativeEndian)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.t.Write(bs)
	return err
}

// blockingCall sends m as a method call and drives dispatch until its
// reply arrives, the call timeout or ctx expires, or the connection
// goes away. Failures of any kind are recorded on busErr; the reply
// is returned only when busErr remains not set.
func (c *Conn) blockingCall(ctx context.Context, m *wire.Message, busErr *Error) *inboundMsg {
	serial, p := func() (uint32, *pendingCall) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return 0, nil
		}
		c.lastSerial++
		p := &pendingCall{notify: make(chan struct{})}
		c.calls[c.lastSerial] = p
		return c.lastSerial, p
	}()
	if p == nil {
		busErr.setFailure(errNameDisconnected, "connection is closed")
		return nil
	}
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.calls[serial] == p {
			delete(c.calls, serial)
		}
	}()

	m.Serial = serial
	if err := c.writeMsg(m); err != nil {
		busErr.setFailure(errNameIOError, err.Error())
		return nil
	}

	var timeout <-chan time.Time
	if d, ok := c.waitDuration(); ok {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		// Drain whatever the reader has already buffered; the reply
		// may be sitting in there.
		for c.Dispatch() == DispatchDataRemains {
		}
		select {
		case <-p.notify:
			return c.consumeReply(p.reply, busErr)
		default:
		}

		select {
		case <-p.notify:
			return c.consumeReply(p.reply, busErr)
		case <-c.frameReady:
		case <-c.readDone:
			c.mu.Lock()
			readErr := c.readErr
			c.mu.Unlock()
			detail := "connection closed while waiting for a reply"
			if readErr != nil {
				detail += ": " + readErr.Error()
			}
			busErr.setFailure(errNameDisconnected, detail)
			return nil
		case <-timeout:
			busErr.setFailure(errNameNoReply, fmt.Sprintf("no reply to %s.%s within the %s call timeout", m.Interface, m.Member, c.timeoutString()))
			return nil
		case <-ctx.Done():
			busErr.setFailure(errNameNoReply, ctx.Err().Error())
			return nil
		}
	}
}

func (c *Conn) waitDuration() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callTimeout.duration()
}

func (c *Conn) timeoutString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callTimeout.String()
}

// consumeReply translates a resolved pending call into either a
// success reply or a failure on busErr.
func (c *Conn) consumeReply(im *inboundMsg, busErr *Error) *inboundMsg {
	if im == nil {
		// The pending call was failed by Close rather than answered.
		busErr.setFailure(errNameDisconnected, "connection closed while waiting for a reply")
		return nil
	}
	if im.msg.Type == wire.TypeError {
		busErr.setFailure(im.msg.ErrName, errDetail(im))
		return nil
	}
	return im
}

// errDetail extracts the conventional detail string from an error
// reply body, if one is present.
func errDetail(im *inboundMsg) string {
	if !strings.HasPrefix(im.msg.Signature, "s") {
		return ""
	}
	d := wire.Decoder{Order: im.order, In: bytes.NewReader(im.msg.Body)}
	s, err := d.String()
	if err != nil {
		return fmt.Sprintf("got error while decoding error detail: %v", err)
	}
	return s
}

// BusRegister performs the registration handshake with the bus
// daemon, which assigns this connection its unique name. It must
// complete before the connection can request well-known names; how
// repeated registration behaves is governed by the daemon, not
// checked here.
func (c *Conn) BusRegister(ctx context.Context) error {
	busErr := newError()
	reply := c.blockingCall(ctx, &wire.Message{
		Type:        wire.TypeCall,
		Destination: busName,
		Path:        busPath,
		Interface:   ifaceBus,
		Member:      "Hello",
	}, busErr)
	if busErr.IsSet() {
		busErr.assertConsistent()
		return busErr
	}
	name, err := replyString(reply)
	if err != nil {
		busErr.setFailure(errNameInvalidSignature, err.Error())
		busErr.assertConsistent()
		return busErr
	}
	c.mu.Lock()
	c.localName = name
	c.mu.Unlock()
	return nil
}

// RequestName asks the bus for ownership of a well-known name.
//
// The returned reply code describes the arbitration outcome; its raw
// value is preserved for codes this binding does not know. A success
// reply with a non-positive code violates the bus protocol contract
// and panics.
func (c *Conn) RequestName(ctx context.Context, name string, flags NameRequestFlags) (NameReply, error) {
	var e wire.Encoder
	e.Order = wire.NativeEndian
	e.String(name)
	e.Uint32(uint32(flags))

	busErr := newError()
	reply := c.blockingCall(ctx, &wire.Message{
		Type:        wire.TypeCall,
		Destination: busName,
		Path:        busPath,
		Interface:   ifaceBus,
		Member:      "RequestName",
		Signature:   "su",
		Body:        e.Out,
	}, busErr)
	if busErr.IsSet() {
		busErr.assertConsistent()
		return 0, busErr
	}
	code, err := replyUint32(reply)
	if err != nil {
		busErr.setFailure(errNameInvalidSignature, err.Error())
		busErr.assertConsistent()
		return 0, busErr
	}
	if code == 0 || int32(code) < 0 {
		panic(fmt.Sprintf("bus reported RequestName success with non-positive reply code %d", int32(code)))
	}

	c.mu.Lock()
	c.names.Add(name)
	c.mu.Unlock()
	return NameReply(code), nil
}

// ReleaseName gives up a name previously requested with
// [Conn.RequestName].
func (c *Conn) ReleaseName(ctx context.Context, name string) error {
	var e wire.Encoder
	e.Order = wire.NativeEndian
	e.String(name)

	busErr := newError()
	reply := c.blockingCall(ctx, &wire.Message{
		Type:        wire.TypeCall,
		Destination: busName,
		Path:        busPath,
		Interface:   ifaceBus,
		Member:      "ReleaseName",
		Signature:   "s",
		Body:        e.Out,
	}, busErr)
	if busErr.IsSet() {
		busErr.assertConsistent()
		return busErr
	}
	if _, err := replyUint32(reply); err != nil {
		busErr.setFailure(errNameInvalidSignature, err.Error())
		busErr.assertConsistent()
		return busErr
	}
	c.mu.Lock()
	c.names.Remove(name)
	c.mu.Unlock()
	return nil
}

// GetBusID queries the bus daemon for its own identifier via the
// GetId method. Unlike [Conn.ServerID], this reflects the daemon's
// view of itself rather than the handshake's, and requires a
// round-trip.
func (c *Conn) GetBusID(ctx context.Context) (string, error) {
	busErr := newError()
	reply := c.blockingCall(ctx, &wire.Message{
		Type:        wire.TypeCall,
		Destination: busName,
		Path:        busPath,
		Interface:   ifaceBus,
		Member:      "GetId",
	}, busErr)
	if busErr.IsSet() {
		busErr.assertConsistent()
		return "", busErr
	}
	id, err := replyString(reply)
	if err != nil {
		busErr.setFailure(errNameInvalidSignature, err.Error())
		busErr.assertConsistent()
		return "", busErr
	}
	return id, nil
}

func replyString(im *inboundMsg) (string, error) {
	if im.msg.Signature != "s" {
		return "", fmt.Errorf("reply has signature %q, want \"s\"", im.msg.Signature)
	}
	d := wire.Decoder{Order: im.order, In: bytes.NewReader(im.msg.Body)}
	return d.String()
}

func replyUint32(im *inboundMsg) (uint32, error) {
	if im.msg.Signature != "u" {
		return 0, fmt.Errorf("reply has signature %q, want \"u\"", im.msg.Signature)
	}
	d := wire.Decoder{Order: im.order, In: bytes.NewReader(im.msg.Body)}
	return d.Uint32()
}
