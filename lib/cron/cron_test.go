// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expression string) Schedule {
	t.Helper()
	schedule, err := Parse(expression)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expression, err)
	}
	return schedule
}

func TestParseRejections(t *testing.T) {
	tests := []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"5-2 * * * *",
		"a * * * *",
		"1-x * * * *",
	}
	for _, expression := range tests {
		if _, err := Parse(expression); err == nil {
			t.Errorf("Parse(%q) = nil error, want error", expression)
		}
	}
}

func TestNextDailyBackupWindow(t *testing.T) {
	// The default backup schedule.
	schedule := mustParse(t, "30 3 * * *")

	from := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	next, err := schedule.Next(from)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 8, 24, 3, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestNextIsStrictlyAfter(t *testing.T) {
	schedule := mustParse(t, "30 3 * * *")

	// Exactly at the scheduled minute: next run is tomorrow.
	at := time.Date(2026, 8, 23, 3, 30, 0, 0, time.UTC)
	next, err := schedule.Next(at)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 8, 24, 3, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestNextFields(t *testing.T) {
	from := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC) // a Sunday

	tests := []struct {
		expression string
		want       time.Time
	}{
		{"*/15 * * * *", time.Date(2026, 8, 23, 12, 15, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 1", time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)},
		{"5 4 * 12 *", time.Date(2026, 12, 1, 4, 5, 0, 0, time.UTC)},
		{"0 9-17 * * *", time.Date(2026, 8, 23, 13, 0, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, test := range tests {
		next, err := mustParse(t, test.expression).Next(from)
		if err != nil {
			t.Errorf("Next(%q): %v", test.expression, err)
			continue
		}
		if !next.Equal(test.want) {
			t.Errorf("Next(%q) = %v, want %v", test.expression, next, test.want)
		}
	}
}

func TestNextImpossibleSchedule(t *testing.T) {
	schedule := mustParse(t, "0 0 31 2 *")
	if _, err := schedule.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("Next(Feb 31) = nil error, want error")
	}
}

func TestNextPreservesLocation(t *testing.T) {
	location := time.FixedZone("UTC+5", 5*3600)
	schedule := mustParse(t, "30 3 * * *")

	next, err := schedule.Next(time.Date(2026, 8, 23, 12, 0, 0, 0, location))
	if err != nil {
		t.Fatal(err)
	}
	if next.Location() != location {
		t.Errorf("Next location = %v, want %v", next.Location(), location)
	}
	if next.Hour() != 3 || next.Minute() != 30 {
		t.Errorf("Next local time = %02d:%02d, want 03:30", next.Hour(), next.Minute())
	}
}

func TestUpcoming(t *testing.T) {
	schedule := mustParse(t, "30 3 * * *")
	from := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	times, err := schedule.Upcoming(from, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(times) != 3 {
		t.Fatalf("Upcoming returned %d times, want 3", len(times))
	}
	for i, got := range times {
		want := time.Date(2026, 8, 24+i, 3, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Upcoming[%d] = %v, want %v", i, got, want)
		}
	}
}
