package clock

import (
	"testing"
	"time"
)

func TestReal_UTC(t *testing.T) {
	now := Real{}.Now()
	if now.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", now.Location())
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if !f.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", f.Now(), start)
	}

	f.Advance(90 * time.Minute)
	if !f.Now().Equal(start.Add(90 * time.Minute)) {
		t.Errorf("Now after advance = %v", f.Now())
	}

	later := start.AddDate(0, 1, 0)
	f.Set(later)
	if !f.Now().Equal(later) {
		t.Errorf("Now after set = %v, want %v", f.Now(), later)
	}
}
