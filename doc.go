// Package dbus implements the lifecycle of a private client
// connection to a DBus message bus: opening and authenticating the
// transport, registering with the bus daemon, claiming well-known
// names, and driving the incoming message dispatch loop.
//
// The package deliberately stops at the lifecycle layer. Bodies of
// messages beyond the handful of bus-management calls it makes
// itself, signal subscription, and introspection serialization are
// the business of layers built on top of [Conn], [Error] and
// [Interface].
//
// A typical client does:
//
//	conn, err := dbus.SessionBus(ctx)
//	if err != nil { ... }
//	defer conn.Close()
//	if err := conn.BusRegister(ctx); err != nil { ... }
//	reply, err := conn.RequestName(ctx, "org.example.Foo", 0)
//
// Failures reported by the daemon surface as [*Error] values carrying
// the daemon's error name and message. A Conn is not safe for
// concurrent use; independent call sites should open independent
// connections.
package dbus
