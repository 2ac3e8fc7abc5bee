package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	if got := tc.Elapsed(); got != 42*time.Second {
		t.Fatalf("Elapsed() = %v, want 42s", got)
	}
}

func TestTimeControllerRunAdvancesFrames(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	var frameTimes, listened []time.Time
	tc.AddListener(func(simTime time.Time) { listened = append(listened, simTime) })

	err := tc.Run(context.Background(), 15*time.Millisecond, func(_ context.Context, simTime time.Time) error {
		frameTimes = append(frameTimes, simTime)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if tc.Frames() != 3 || len(frameTimes) != 3 || len(listened) != 3 {
		t.Fatalf("frames=%d frame calls=%d listener calls=%d, want 3 each", tc.Frames(), len(frameTimes), len(listened))
	}
	if !frameTimes[0].Equal(start.Add(5 * time.Millisecond)) {
		t.Fatalf("first frame at %v, want one tick after start", frameTimes[0])
	}
}

func TestTimeControllerRunsAtLeastOneFrame(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Second, Accelerated)
	if err := tc.Run(context.Background(), 0, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tc.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", tc.Frames())
	}
}

func TestTimeControllerFrameErrorStops(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Millisecond, Accelerated)
	boom := errors.New("boom")
	notified := 0
	tc.AddListener(func(time.Time) { notified++ })

	err := tc.Run(context.Background(), 10*time.Millisecond, func(context.Context, time.Time) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want boom", err)
	}
	if tc.Frames() != 1 || notified != 0 {
		t.Fatalf("frames=%d notified=%d, want 1 and 0", tc.Frames(), notified)
	}
}

func TestTimeControllerCancel(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Millisecond, RealTime)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- tc.Run(ctx, time.Hour, nil) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop")
	}
	if tc.Elapsed() != 0 {
		t.Fatalf("cancelled run advanced the clock by %v", tc.Elapsed())
	}
}

func TestTimeControllerRejectsZeroTick(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), 0, Accelerated)
	if err := tc.Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("expected an error for a zero tick")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": Accelerated, "Accelerated": Accelerated, "realtime": RealTime, "REAL-TIME": RealTime}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("warp"); err == nil {
		t.Fatalf("expected an error for an unknown mode")
	}
	if RealTime.String() != "realtime" || Accelerated.String() != "accelerated" {
		t.Fatalf("unexpected mode strings")
	}
}
