// Command dbus-hello opens a private bus connection, registers with
// the bus daemon, optionally claims a well-known name, and reports
// the connection's identity. It exists to exercise and demonstrate
// the connection lifecycle end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/creachadair/flax"
	"github.com/kr/pretty"
	"github.com/yasashii-syndicate/dbus"
)

var args struct {
	Address string        `flag:"address,Bus address to connect to (default: the session bus)"`
	Name    string        `flag:"name,Well-known name to request"`
	Timeout time.Duration `flag:"timeout,default=10s,Overall timeout for bus operations"`
	Watch   time.Duration `flag:"watch,Keep dispatching and dumping incoming messages for this long"`
}

func main() {
	flax.MustBind(flag.CommandLine, &args)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), args.Timeout)
	defer cancel()

	var (
		conn *dbus.Conn
		err  error
	)
	if args.Address != "" {
		conn, err = dbus.Open(ctx, args.Address)
	} else {
		conn, err = dbus.SessionBus(ctx)
	}
	if err != nil {
		fatalf("connecting: %v", err)
	}
	defer conn.Close()

	if err := conn.BusRegister(ctx); err != nil {
		fatalf("registering: %v", err)
	}
	fmt.Printf("connected to server %s as %s\n", conn.ServerID(), conn.LocalName())

	if args.Name != "" {
		reply, err := conn.RequestName(ctx, args.Name, 0)
		if err != nil {
			fatalf("requesting %s: %v", args.Name, err)
		}
		fmt.Printf("requested %s: %s\n", args.Name, reply)
	}

	if args.Watch > 0 {
		conn.AddFilter(func(m *dbus.Message) dbus.HandlerResult {
			pretty.Println(m)
			return dbus.NotYetHandled
		})
		deadline := time.Now().Add(args.Watch)
		for time.Now().Before(deadline) {
			if conn.Dispatch() == dbus.DispatchComplete {
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
