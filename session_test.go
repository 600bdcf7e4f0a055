package dbus

import "testing"

func TestSessionBusAddress(t *testing.T) {
	env := map[string]string{
		"DBUS_SESSION_BUS_ADDRESS": "unix:path=/run/user/1000/bus",
		"UNRELATED":                "junk",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	addr, ok := SessionBusAddress(lookup)
	if !ok {
		t.Fatal("SessionBusAddress reported no address")
	}
	if want := "unix:path=/run/user/1000/bus"; addr != want {
		t.Errorf("SessionBusAddress = %q, want %q", addr, want)
	}
}

func TestSessionBusAddressMissing(t *testing.T) {
	empty := func(string) (string, bool) { return "", false }
	if addr, ok := SessionBusAddress(empty); ok {
		t.Errorf("SessionBusAddress on empty environment = %q, want none", addr)
	}

	blank := func(string) (string, bool) { return "", true }
	if addr, ok := SessionBusAddress(blank); ok {
		t.Errorf("SessionBusAddress on blank value = %q, want none", addr)
	}

	if addr, ok := SessionBusAddress(nil); ok {
		t.Errorf("SessionBusAddress(nil) = %q, want none", addr)
	}
}
