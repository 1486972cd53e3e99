package esplink

import (
	"testing"
	"time"
)

func TestBackoff_DefaultSchedule(t *testing.T) {
	b := DefaultLinkConfig().Backoff()

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for attempt, w := range want {
		if got := b.Delay(attempt); got != w {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, w)
		}
	}
}

func TestBackoff_NonDecreasingAndCapped(t *testing.T) {
	cases := []Backoff{
		{Base: 100 * time.Millisecond, Max: time.Second, Multiplier: 1.5},
		{Base: time.Second, Max: time.Second, Multiplier: 3},
		{Base: time.Second, Max: 10 * time.Second, Multiplier: 0.5},
		{Base: time.Millisecond, Max: time.Hour, Multiplier: 10},
	}

	for _, b := range cases {
		prev := time.Duration(0)
		for attempt := 0; attempt < 200; attempt++ {
			d := b.Delay(attempt)
			if d < prev {
				t.Fatalf("%+v: attempt %d decreased %s -> %s", b, attempt, prev, d)
			}
			if d > b.Max {
				t.Fatalf("%+v: attempt %d exceeded max: %s", b, attempt, d)
			}
			prev = d
		}
	}
}

func TestBackoff_NegativeAttemptUsesBase(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute, Multiplier: 2}
	if got := b.Delay(-3); got != time.Second {
		t.Fatalf("got %s", got)
	}
}
