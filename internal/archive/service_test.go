package archive

import (
	"reflect"
	"testing"

	"roivault/api/internal/store"
)

func textSections(text string) []store.Section {
	return []store.Section{
		{
			SectionID: "sec-1",
			Title:     "Executive Summary",
			Order:     1,
			Content:   store.SectionContent{Type: store.ContentText, Text: text},
		},
	}
}

func TestRecordSnapshotInitializesRepoAndCommits(t *testing.T) {
	svc := New(t.TempDir())

	hash, err := svc.RecordSnapshot("rpt-1", textSections("Payback in 2.8 years."), "Avery", "Create version Board Draft")
	if err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}
	if hash == "" {
		t.Fatalf("expected commit hash")
	}

	entries, err := svc.History("rpt-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Hash != hash {
		t.Fatalf("expected entry hash %s, got %s", hash, entries[0].Hash)
	}
	if entries[0].Message != "Create version Board Draft" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}
	if entries[0].Author != "Avery" {
		t.Fatalf("unexpected author %q", entries[0].Author)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	svc := New(t.TempDir())

	messages := []string{"Import report baseline", "Create version v1", "Restore version v1"}
	for _, message := range messages {
		if _, err := svc.RecordSnapshot("rpt-1", textSections(message), "Avery", message); err != nil {
			t.Fatalf("RecordSnapshot(%q) error = %v", message, err)
		}
	}

	entries, err := svc.History("rpt-1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "Restore version v1" {
		t.Fatalf("expected newest entry first, got %q", entries[0].Message)
	}
	if entries[1].Message != "Create version v1" {
		t.Fatalf("expected second-newest entry, got %q", entries[1].Message)
	}
}

func TestHistoryForUnknownReportIsEmpty(t *testing.T) {
	svc := New(t.TempDir())

	entries, err := svc.History("rpt-nope", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestSnapshotByHashRoundTrip(t *testing.T) {
	svc := New(t.TempDir())

	sections := []store.Section{
		{
			SectionID: "sec-1",
			Title:     "Labor Savings",
			Order:     1,
			Content: store.SectionContent{
				Type: store.ContentChart,
				Chart: &store.ChartData{
					Type:     "bar",
					Labels:   []string{"Year 1", "Year 2"},
					Datasets: []store.ChartSet{{Label: "Savings ($k)", Values: []float64{310, 480}}},
				},
			},
		},
	}

	hash, err := svc.RecordSnapshot("rpt-1", sections, "Avery", "Create version Board Draft")
	if err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	got, err := svc.SnapshotByHash("rpt-1", hash)
	if err != nil {
		t.Fatalf("SnapshotByHash() error = %v", err)
	}
	if !reflect.DeepEqual(got, sections) {
		t.Fatalf("snapshot round trip mismatch:\ngot:  %+v\nwant: %+v", got, sections)
	}
}

func TestSnapshotByHashReadsHistoricalCommit(t *testing.T) {
	svc := New(t.TempDir())

	first, err := svc.RecordSnapshot("rpt-1", textSections("original"), "Avery", "Create version v1")
	if err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}
	if _, err := svc.RecordSnapshot("rpt-1", textSections("revised"), "Avery", "Create version v2"); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	got, err := svc.SnapshotByHash("rpt-1", first)
	if err != nil {
		t.Fatalf("SnapshotByHash() error = %v", err)
	}
	if got[0].Content.Text != "original" {
		t.Fatalf("expected historical snapshot text, got %q", got[0].Content.Text)
	}
}

func TestSanitizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Avery", "avery"},
		{"Avery Chen", "avery.chen"},
		{"!!!", "user"},
		{"A-B_c.9", "a.b.c.9"},
	}
	for _, tt := range tests {
		if got := sanitizeEmail(tt.in); got != tt.want {
			t.Errorf("sanitizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
