package logic

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"08:00", 480, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{" 7:05 ", 425, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"12", 0, true},
		{"ab:cd", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q): err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(425); got != "07:05" {
		t.Errorf("got %q", got)
	}
}

func at(h, m, s int) time.Time {
	return time.Date(2026, 1, 1, h, m, s, 0, time.UTC)
}

func TestScheduleNext(t *testing.T) {
	entries := []ScheduleEntry{{Minute: 8 * 60, Enabled: true}, {Minute: 18 * 60, Enabled: true}}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before first", at(7, 30, 0), at(8, 0, 0)},
		{"between", at(12, 0, 0), at(18, 0, 0)},
		{"after last wraps", at(19, 0, 0), at(8, 0, 0).AddDate(0, 0, 1)},
		{"same minute is tomorrow", at(18, 0, 30), at(8, 0, 0).AddDate(0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSchedule(nil)
			s.Set(entries, tt.now)
			got, ok := s.Next(tt.now)
			if !ok || !got.Equal(tt.want) {
				t.Errorf("got %v (%v), want %v", got, ok, tt.want)
			}
		})
	}
}

func TestScheduleDisabledIgnored(t *testing.T) {
	s := NewSchedule(nil)
	s.Set([]ScheduleEntry{{Minute: 9 * 60, Enabled: false}, {Minute: 20 * 60, Enabled: true}}, at(8, 0, 0))

	got, _ := s.Next(at(8, 0, 0))
	if !got.Equal(at(20, 0, 0)) {
		t.Errorf("got %v, want 20:00", got)
	}
}

func TestScheduleNoneActive(t *testing.T) {
	s := NewSchedule(nil)
	s.Set([]ScheduleEntry{{Minute: 9 * 60, Enabled: false}}, at(8, 0, 0))

	if _, ok := s.Next(at(8, 0, 0)); ok {
		t.Error("expected no next feeding")
	}
	if s.HasActive() {
		t.Error("HasActive should be false")
	}
	if s.Due(at(9, 0, 0)) {
		t.Error("nothing should be due")
	}
}

func TestScheduleDueOnce(t *testing.T) {
	s := NewSchedule(nil)
	s.Set([]ScheduleEntry{{Minute: 8 * 60, Enabled: true}}, at(7, 59, 0))

	if s.Due(at(7, 59, 59)) {
		t.Error("due too early")
	}
	if !s.Due(at(8, 0, 0)) {
		t.Fatal("expected due at 08:00")
	}
	if s.Due(at(8, 0, 1)) {
		t.Error("fired twice within the same minute")
	}
	next, _ := s.Next(at(8, 0, 1))
	if !next.Equal(at(8, 0, 0).AddDate(0, 0, 1)) {
		t.Errorf("next: got %v", next)
	}
}

func TestScheduleSetReplaces(t *testing.T) {
	s := NewSchedule(nil)
	s.Set([]ScheduleEntry{{Minute: 8 * 60, Enabled: true}}, at(7, 0, 0))
	s.Set([]ScheduleEntry{{Minute: 10 * 60, Enabled: true}}, at(7, 0, 0))

	if got := s.Entries(); len(got) != 1 || got[0].Minute != 600 {
		t.Errorf("entries: %+v", got)
	}
	if s.Due(at(8, 0, 0)) {
		t.Error("replaced entry still fired")
	}
}

func TestScheduleLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	s := NewSchedule(loc)
	// 00:30 UTC is 07:30 local
	now := at(0, 30, 0)
	s.Set([]ScheduleEntry{{Minute: 8 * 60, Enabled: true}}, now)

	got, _ := s.Next(now)
	if !got.Equal(at(1, 0, 0)) {
		t.Errorf("got %v, want 01:00 UTC", got.UTC())
	}
}
