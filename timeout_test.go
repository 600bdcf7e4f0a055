package dbus

import (
	"testing"
	"time"
)

func TestMillisRange(t *testing.T) {
	tests := []struct {
		ms   int32
		want time.Duration
	}{
		{0, 0},
		{1, time.Millisecond},
		{500, 500 * time.Millisecond},
		{60_000, time.Minute},
		{0x7FFFFFFE, 0x7FFFFFFE * time.Millisecond},
	}
	for _, tc := range tests {
		to := Millis(tc.ms)
		d, timed := to.duration()
		if !timed {
			t.Errorf("Millis(%d).duration() reported no timer", tc.ms)
		}
		if d != tc.want {
			t.Errorf("Millis(%d).duration() = %v, want %v", tc.ms, d, tc.want)
		}
	}
}

func TestMillisOutOfRange(t *testing.T) {
	for _, ms := range []int32{-1, -1000, 0x7FFFFFFF} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Millis(%d) did not panic", ms)
				}
			}()
			Millis(ms)
		}()
	}
}

func TestTimeoutVariants(t *testing.T) {
	if d, timed := DefaultTimeout().duration(); !timed || d != defaultCallTimeout {
		t.Errorf("DefaultTimeout().duration() = %v, %v, want %v, true", d, timed, defaultCallTimeout)
	}
	if _, timed := InfiniteTimeout().duration(); timed {
		t.Error("InfiniteTimeout().duration() reported a timer")
	}
	var zero Timeout
	if d, timed := zero.duration(); !timed || d != defaultCallTimeout {
		t.Errorf("zero Timeout duration() = %v, %v, want %v, true", d, timed, defaultCallTimeout)
	}

	if got := DefaultTimeout().String(); got != "default" {
		t.Errorf("DefaultTimeout().String() = %q", got)
	}
	if got := InfiniteTimeout().String(); got != "infinite" {
		t.Errorf("InfiniteTimeout().String() = %q", got)
	}
	if got := Millis(250).String(); got != "250ms" {
		t.Errorf("Millis(250).String() = %q", got)
	}
}
