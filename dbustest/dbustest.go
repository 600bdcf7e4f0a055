// Package dbustest provides a helper to run an isolated bus daemon
// for tests.
package dbustest

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/yasashii-syndicate/dbus"
)

//go:embed dbus.config
var dbusConfig string

// Available reports whether the bus daemon binary is available for
// testing against a real bus.
func Available() bool {
	_, err := exec.LookPath("dbus-daemon")
	return err == nil
}

// Bus is an isolated bus daemon dedicated to one test.
type Bus struct {
	bus  *exec.Cmd
	sock string

	stop       chan struct{}
	busStopped chan struct{}
}

// New launches a bus daemon dedicated to the calling test, and
// arranges for it to stop when the test ends.
//
// If [Available] is false, New calls t.Skip to skip the calling test.
func New(t *testing.T) *Bus {
	if !Available() {
		t.Skip("dbus-daemon not available, cannot run test bus")
	}
	tmp := t.TempDir()

	cfgPath := filepath.Join(tmp, "bus.config")
	if err := os.WriteFile(cfgPath, []byte(dbusConfig), 0600); err != nil {
		t.Fatal(err)
	}

	ret := &Bus{
		sock:       filepath.Join(tmp, "bus.sock"),
		stop:       make(chan struct{}),
		busStopped: make(chan struct{}),
	}

	ret.bus = exec.Command("dbus-daemon", "--config-file="+cfgPath, "--nofork", "--nopidfile", "--nosyslog", "--address=unix:path="+ret.sock)
	ret.bus.Stdout = os.Stdout
	ret.bus.Stderr = os.Stderr
	if err := ret.bus.Start(); err != nil {
		t.Fatalf("starting bus: %v", err)
	}
	t.Cleanup(ret.close)

	go func() {
		defer close(ret.busStopped)
		err := ret.bus.Wait()
		select {
		case <-ret.stop:
		default:
			panic(fmt.Errorf("bus stopped prematurely: %w", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		if _, err := os.Stat(ret.sock); err == nil {
			break
		} else if errors.Is(err, fs.ErrNotExist) {
			time.Sleep(10 * time.Millisecond)
			continue
		} else {
			t.Fatalf("waiting for bus socket: %v", err)
		}
	}
	if err := ctx.Err(); err != nil {
		t.Fatalf("bus failed to start: %v", err)
	}

	return ret
}

func (b *Bus) close() {
	close(b.stop)
	b.bus.Process.Kill()
	select {
	case <-b.busStopped:
	case <-time.After(10 * time.Second):
		fmt.Fprintln(os.Stderr, "timed out waiting for bus to stop")
	}
}

// Socket returns the path to the bus's unix socket.
func (b *Bus) Socket() string {
	return b.sock
}

// Address returns the bus's server address.
func (b *Bus) Address() string {
	return "unix:path=" + b.sock
}

// MustConn returns a registered connection to the bus. It causes an
// immediate test failure with t.Fatal if it is unable to connect.
func (b *Bus) MustConn(t *testing.T) *dbus.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ret, err := dbus.Open(ctx, b.Address())
	if err != nil {
		t.Fatalf("connecting to test bus: %v", err)
	}
	if err := ret.BusRegister(ctx); err != nil {
		ret.Close()
		t.Fatalf("registering with test bus: %v", err)
	}
	return ret
}
