package clock

import (
	"testing"
	"time"
)

func TestElapse(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(3*time.Second + 250*time.Microsecond)

	remaining := Elapse(10*time.Second, start, now)
	want := 10*time.Second - (3*time.Second + 250*time.Microsecond)
	if remaining != want {
		t.Errorf("remaining = %v, want %v", remaining, want)
	}
}

func TestIsExpired(t *testing.T) {
	if !IsExpired(0) {
		t.Error("0 should be expired")
	}
	if !IsExpired(-time.Second) {
		t.Error("negative should be expired")
	}
	if IsExpired(time.Millisecond) {
		t.Error("positive should not be expired")
	}
}

func TestTimeIsUpETA(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eta := TimeIsUpETA(now, 5*time.Minute)
	if !eta.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("eta = %v, want %v", eta, now.Add(5*time.Minute))
	}
}
