package dbus

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/yasashii-syndicate/dbus/wire"
)

// pipeTransport adapts one end of a net.Pipe into a
// transport.Transport, recording how many times it was closed.
type pipeTransport struct {
	net.Conn

	mu     sync.Mutex
	closes int
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return p.Conn.Close()
}

func (p *pipeTransport) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func (p *pipeTransport) ServerGUID() string { return "cafef00d" }

func (p *pipeTransport) GetFiles(n int) ([]*os.File, error) {
	return nil, errors.New("no files on test transport")
}

func (p *pipeTransport) WriteWithFiles(bs []byte, _ []*os.File) (int, error) {
	return p.Write(bs)
}

func newTestConn(t *testing.T) (*Conn, net.Conn, *pipeTransport) {
	t.Helper()
	cli, srv := net.Pipe()
	pt := &pipeTransport{Conn: cli}
	c := newConn(pt)
	t.Cleanup(func() {
		c.Close()
		srv.Close()
	})
	return c, srv, pt
}

func writeMsgTo(t *testing.T, w io.Writer, m *wire.Message) {
	t.Helper()
	bs, err := wire.Marshal(m, wire.LittleEndian)
	if err != nil {
		t.Errorf("marshaling test message: %v", err)
		return
	}
	if _, err := w.Write(bs); err != nil {
		t.Errorf("writing test message: %v", err)
	}
}

func signalMsg(serial uint32, member string) *wire.Message {
	return &wire.Message{
		Type:      wire.TypeSignal,
		Serial:    serial,
		Path:      "/org/example/Test",
		Interface: "org.example.Test",
		Member:    member,
	}
}

func (c *Conn) waitBuffered(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.mu.Lock()
		got := c.inbound.Len()
		c.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d buffered messages, have %d", n, got)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatchDrainsBuffered(t *testing.T) {
	c, srv, _ := newTestConn(t)

	go func() {
		writeMsgTo(t, srv, signalMsg(1, "First"))
		writeMsgTo(t, srv, signalMsg(2, "Second"))
	}()
	c.waitBuffered(t, 2)

	if got := c.Dispatch(); got != DispatchDataRemains {
		t.Errorf("first Dispatch = %v, want %v", got, DispatchDataRemains)
	}
	if got := c.Dispatch(); got != DispatchComplete {
		t.Errorf("second Dispatch = %v, want %v", got, DispatchComplete)
	}
	if got := c.Dispatch(); got != DispatchComplete {
		t.Errorf("idle Dispatch = %v, want %v", got, DispatchComplete)
	}
}

func TestFilters(t *testing.T) {
	c, srv, _ := newTestConn(t)

	var seen []string
	c.AddFilter(func(m *Message) HandlerResult {
		seen = append(seen, "observer:"+m.Member)
		return NotYetHandled
	})
	c.AddFilter(func(m *Message) HandlerResult {
		if m.Member == "Stop" {
			seen = append(seen, "consumer:"+m.Member)
			return Handled
		}
		return NotYetHandled
	})

	go func() {
		writeMsgTo(t, srv, signalMsg(1, "Tick"))
		writeMsgTo(t, srv, signalMsg(2, "Stop"))
	}()
	c.waitBuffered(t, 2)
	for c.Dispatch() == DispatchDataRemains {
	}

	want := []string{"observer:Tick", "observer:Stop", "consumer:Stop"}
	if len(seen) != len(want) {
		t.Fatalf("filters saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("filters saw %v, want %v", seen, want)
		}
	}
}

// serveOneCall reads one method call off srv and passes it to reply,
// writing whatever message reply produces back to the client.
func serveOneCall(t *testing.T, srv net.Conn, reply func(call *wire.Message) *wire.Message) {
	t.Helper()
	go func() {
		call, _, err := wire.ReadMessage(srv)
		if err != nil {
			return
		}
		if resp := reply(call); resp != nil {
			bs, err := wire.Marshal(resp, wire.LittleEndian)
			if err != nil {
				panic(err)
			}
			srv.Write(bs)
		}
	}()
}

func stringReply(call *wire.Message, s string) *wire.Message {
	var e wire.Encoder
	e.Order = wire.LittleEndian
	e.String(s)
	return &wire.Message{
		Type:        wire.TypeReturn,
		Serial:      1000,
		ReplySerial: call.Serial,
		Destination: call.Sender,
		Signature:   "s",
		Body:        e.Out,
	}
}

func uint32Reply(call *wire.Message, v uint32) *wire.Message {
	var e wire.Encoder
	e.Order = wire.LittleEndian
	e.Uint32(v)
	return &wire.Message{
		Type:        wire.TypeReturn,
		Serial:      1000,
		ReplySerial: call.Serial,
		Signature:   "u",
		Body:        e.Out,
	}
}

func TestBusRegister(t *testing.T) {
	c, srv, _ := newTestConn(t)
	serveOneCall(t, srv, func(call *wire.Message) *wire.Message {
		if call.Member != "Hello" || call.Destination != "org.freedesktop.DBus" {
			t.Errorf("unexpected call %s to %s", call.Member, call.Destination)
		}
		return stringReply(call, ":1.42")
	})

	if err := c.BusRegister(context.Background()); err != nil {
		t.Fatalf("BusRegister: %v", err)
	}
	if got := c.LocalName(); got != ":1.42" {
		t.Errorf("LocalName() = %q, want %q", got, ":1.42")
	}
}

func TestRequestName(t *testing.T) {
	c, srv, _ := newTestConn(t)
	serveOneCall(t, srv, func(call *wire.Message) *wire.Message {
		if call.Member != "RequestName" || call.Signature != "su" {
			t.Errorf("unexpected call %s with signature %q", call.Member, call.Signature)
		}
		return uint32Reply(call, 1)
	})

	reply, err := c.RequestName(context.Background(), "org.example.Foo", 0)
	if err != nil {
		t.Fatalf("RequestName: %v", err)
	}
	if reply != NameReplyPrimaryOwner {
		t.Errorf("RequestName reply = %v, want %v", reply, NameReplyPrimaryOwner)
	}
	names := c.RequestedNames()
	if len(names) != 1 || names[0] != "org.example.Foo" {
		t.Errorf("RequestedNames() = %v", names)
	}
}

func TestRequestNameContractViolation(t *testing.T) {
	c, srv, _ := newTestConn(t)
	serveOneCall(t, srv, func(call *wire.Message) *wire.Message {
		return uint32Reply(call, 0)
	})

	defer func() {
		if recover() == nil {
			t.Error("RequestName with a zero success code did not panic")
		}
	}()
	c.RequestName(context.Background(), "org.example.Foo", 0)
}

func TestCallErrorReply(t *testing.T) {
	c, srv, _ := newTestConn(t)
	serveOneCall(t, srv, func(call *wire.Message) *wire.Message {
		var e wire.Encoder
		e.Order = wire.LittleEndian
		e.String("name is reserved")
		return &wire.Message{
			Type:        wire.TypeError,
			Serial:      1000,
			ReplySerial: call.Serial,
			ErrName:     "org.freedesktop.DBus.Error.AccessDenied",
			Signature:   "s",
			Body:        e.Out,
		}
	})

	_, err := c.RequestName(context.Background(), "org.freedesktop.DBus", 0)
	var busErr *Error
	if !errors.As(err, &busErr) {
		t.Fatalf("RequestName error = %v (%T), want *Error", err, err)
	}
	if !busErr.IsSet() {
		t.Error("surfaced error is not set")
	}
	if got := busErr.Name(); got != "org.freedesktop.DBus.Error.AccessDenied" {
		t.Errorf("error Name() = %q", got)
	}
	if got := busErr.Message(); got != "name is reserved" {
		t.Errorf("error Message() = %q", got)
	}
}

func TestCallTimeout(t *testing.T) {
	c, srv, _ := newTestConn(t)
	go io.Copy(io.Discard, srv) // swallow the call, never answer
	c.SetCallTimeout(Millis(50))

	start := time.Now()
	_, err := c.GetBusID(context.Background())
	var busErr *Error
	if !errors.As(err, &busErr) {
		t.Fatalf("GetBusID error = %v (%T), want *Error", err, err)
	}
	if got := busErr.Name(); got != errNameNoReply {
		t.Errorf("error Name() = %q, want %q", got, errNameNoReply)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, want about 50ms", elapsed)
	}
}

func TestCloseOrdering(t *testing.T) {
	c, srv, pt := newTestConn(t)
	go io.Copy(io.Discard, srv)
	c.SetCallTimeout(InfiniteTimeout())

	callErr := make(chan error, 1)
	go func() {
		_, err := c.GetBusID(context.Background())
		callErr <- err
	}()

	// Let the call get as far as waiting for its reply.
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.mu.Lock()
		waiting := len(c.calls) > 0
		c.mu.Unlock()
		if waiting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("call never registered as pending")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	err := <-callErr
	var busErr *Error
	if !errors.As(err, &busErr) {
		t.Fatalf("in-flight call error = %v (%T), want *Error", err, err)
	}
	if got := busErr.Name(); got != errNameDisconnected {
		t.Errorf("in-flight call error Name() = %q, want %q", got, errNameDisconnected)
	}

	if got := pt.closeCount(); got != 1 {
		t.Errorf("transport closed %d times, want 1", got)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if got := pt.closeCount(); got != 1 {
		t.Errorf("transport closed %d times after second Close, want 1", got)
	}
}

func TestClosedConnRefusesCalls(t *testing.T) {
	c, srv, _ := newTestConn(t)
	go io.Copy(io.Discard, srv)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := c.BusRegister(context.Background())
	var busErr *Error
	if !errors.As(err, &busErr) {
		t.Fatalf("BusRegister on closed conn = %v (%T), want *Error", err, err)
	}
	if got := busErr.Name(); got != errNameDisconnected {
		t.Errorf("error Name() = %q, want %q", got, errNameDisconnected)
	}
}

func TestUnknownMethodReply(t *testing.T) {
	c, srv, _ := newTestConn(t)

	go writeMsgTo(t, srv, &wire.Message{
		Type:        wire.TypeCall,
		Serial:      7,
		Path:        "/org/example/Obj",
		Interface:   "org.example.Missing",
		Member:      "Nope",
		Destination: ":1.99",
		Sender:      ":1.5",
	})
	c.waitBuffered(t, 1)

	got := make(chan *wire.Message, 1)
	go func() {
		m, _, err := wire.ReadMessage(srv)
		if err == nil {
			got <- m
		}
	}()
	c.Dispatch()

	select {
	case m := <-got:
		if m.Type != wire.TypeError {
			t.Errorf("reply type = %v, want %v", m.Type, wire.TypeError)
		}
		if m.ErrName != errNameUnknownMethod {
			t.Errorf("reply ErrName = %q, want %q", m.ErrName, errNameUnknownMethod)
		}
		if m.ReplySerial != 7 {
			t.Errorf("reply ReplySerial = %d, want 7", m.ReplySerial)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error reply to unclaimed method call")
	}
}

func TestServerID(t *testing.T) {
	c, _, _ := newTestConn(t)
	if got := c.ServerID(); got != "cafef00d" {
		t.Errorf("ServerID() = %q, want %q", got, "cafef00d")
	}
}
