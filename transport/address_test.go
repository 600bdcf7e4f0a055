package transport

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr    string
		want    []addressEntry
		wantErr bool
	}{
		{
			addr: "unix:path=/run/dbus/system_bus_socket",
			want: []addressEntry{{
				transport: "unix",
				params:    map[string]string{"path": "/run/dbus/system_bus_socket"},
			}},
		},
		{
			addr: "unix:abstract=/tmp/dbus-x,guid=00000000000000000000000000000000",
			want: []addressEntry{{
				transport: "unix",
				params: map[string]string{
					"abstract": "/tmp/dbus-x",
					"guid":     "00000000000000000000000000000000",
				},
			}},
		},
		{
			addr: "unix:path=/tmp/a;tcp:host=localhost,port=4000",
			want: []addressEntry{
				{transport: "unix", params: map[string]string{"path": "/tmp/a"}},
				{transport: "tcp", params: map[string]string{"host": "localhost", "port": "4000"}},
			},
		},
		{
			// Escaped bytes in a value.
			addr: "unix:path=%2Ftmp%2Fbus%20dir%2Fsock",
			want: []addressEntry{{
				transport: "unix",
				params:    map[string]string{"path": "/tmp/bus dir/sock"},
			}},
		},
		{
			// Trailing semicolons produce no empty entries.
			addr: "unix:path=/tmp/a;",
			want: []addressEntry{{
				transport: "unix",
				params:    map[string]string{"path": "/tmp/a"},
			}},
		},
		{addr: "", wantErr: true},
		{addr: ";", wantErr: true},
		{addr: "nocolon", wantErr: true},
		{addr: "unix:pathonly", wantErr: true},
		{addr: "unix:path=%zz", wantErr: true},
		{addr: "unix:path=%2", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseAddress(tc.addr)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseAddress(%q) error = %v, wantErr %v", tc.addr, err, tc.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if diff := cmp.Diff(got, tc.want, cmp.AllowUnexported(addressEntry{})); diff != "" {
			t.Errorf("parseAddress(%q) diff (-got+want):\n%s", tc.addr, diff)
		}
	}
}
