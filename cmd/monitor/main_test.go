package main

import (
	"strings"
	"testing"
	"time"

	"grain_sim/internal/domain"
)

func TestRenderSummary(t *testing.T) {
	if got := renderSummary(nil, nil); got != "No run selected" {
		t.Fatalf("unexpected empty summary: %q", got)
	}

	started := time.Now().Add(-time.Minute).UTC()
	finished := started.Add(3 * time.Second)
	run := &domain.Run{
		ID:          "0123456789",
		Status:      domain.RunStatusFailed,
		StartYear:   2019,
		HorizonYear: 2020,
		LastError:   "record timepoint 3: disk full",
		StartedAt:   started,
		FinishedAt:  &finished,
	}
	rows := []domain.Observation{
		{Timepoint: 1, Year: 2019, Month: 1, CropHeight: 2, PestCount: 1500},
		{Timepoint: 2, Year: 2019, Month: 2, CropHeight: 1, PestCount: 750},
	}
	got := renderSummary(run, rows)
	for _, want := range []string{"status=failed", "Finished after 3s", "disk full", "2 rows, last 2019/02", "peak height=5.08cm", "peak pests=1,500"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestRenderEvents(t *testing.T) {
	if got := renderEvents(nil); got != "No events" {
		t.Fatalf("unexpected empty events: %q", got)
	}
	got := renderEvents([]domain.RunEvent{{
		Actor:     "simulator",
		Action:    "run_finished",
		Reason:    "simulation reached horizon",
		Payload:   []byte(`{"rounds":12,"b":"x"}`),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	if !strings.Contains(got, "[03:04:05] simulator run_finished") {
		t.Fatalf("unexpected header line:\n%s", got)
	}
	if !strings.Contains(got, "payload: b=x, rounds=12") {
		t.Fatalf("payload keys should be sorted:\n%s", got)
	}
}

func TestShortIDAndTrimLine(t *testing.T) {
	if shortID("abc") != "abc" || shortID("0123456789") != "01234567" {
		t.Fatalf("shortID mismatch")
	}
	if trimLine("abcdefgh", 6) != "abc..." {
		t.Fatalf("trimLine mismatch: %q", trimLine("abcdefgh", 6))
	}
}
