package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"roivault/api/internal/store"
)

func textSection(id, title string, order int, text string) store.Section {
	return store.Section{
		SectionID: id,
		Title:     title,
		Order:     order,
		Content:   store.SectionContent{Type: store.ContentText, Text: text},
	}
}

func TestCompareSectionsIdenticalInputs(t *testing.T) {
	sections := []store.Section{
		textSection("sec-1", "Summary", 1, "text"),
		textSection("sec-2", "Costs", 2, "more"),
	}

	result := compareSections(sections, sections)

	if result.Summary.TotalSections != 2 || result.Summary.Unchanged != 2 {
		t.Fatalf("expected all unchanged, got %+v", result.Summary)
	}
	for _, diff := range result.Sections {
		if diff.Status != DiffUnchanged {
			t.Fatalf("expected unchanged, got %+v", diff)
		}
		if len(diff.Fields) != 0 {
			t.Fatalf("unchanged sections carry no field diffs, got %+v", diff.Fields)
		}
	}
}

func TestCompareSectionsAddedRemovedModified(t *testing.T) {
	source := []store.Section{
		textSection("sec-1", "Summary", 1, "original"),
		textSection("sec-2", "Costs", 2, "capex"),
	}
	target := []store.Section{
		textSection("sec-1", "Summary", 1, "revised"),
		textSection("sec-3", "Risks", 2, "new"),
	}

	result := compareSections(source, target)

	if result.Summary.Modified != 1 || result.Summary.Removed != 1 || result.Summary.Added != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}

	byID := make(map[string]SectionDiff, len(result.Sections))
	for _, diff := range result.Sections {
		byID[diff.SectionID] = diff
	}
	if byID["sec-1"].Status != DiffModified {
		t.Fatalf("sec-1 should be modified, got %q", byID["sec-1"].Status)
	}
	if len(byID["sec-1"].Fields) != 1 || byID["sec-1"].Fields[0].Field != "content.text" {
		t.Fatalf("expected a single content.text diff, got %+v", byID["sec-1"].Fields)
	}
	if byID["sec-2"].Status != DiffRemoved {
		t.Fatalf("sec-2 should be removed, got %q", byID["sec-2"].Status)
	}
	if byID["sec-3"].Status != DiffAdded {
		t.Fatalf("sec-3 should be added, got %q", byID["sec-3"].Status)
	}
}

func TestCompareSectionsDeterministic(t *testing.T) {
	source := []store.Section{
		textSection("sec-2", "Costs", 2, "capex"),
		textSection("sec-1", "Summary", 1, "original"),
	}
	target := []store.Section{
		textSection("sec-1", "Summary", 1, "revised"),
		textSection("sec-3", "Risks", 3, "new"),
	}

	first := compareSections(source, target)
	second := compareSections(source, target)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("compareSections must be deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestCompareSectionsDoesNotMutateInputs(t *testing.T) {
	source := []store.Section{textSection("sec-1", "Summary", 1, "original")}
	target := []store.Section{textSection("sec-1", "Summary", 1, "revised")}
	sourceCopy := store.CloneSections(source)
	targetCopy := store.CloneSections(target)

	compareSections(source, target)

	if !reflect.DeepEqual(source, sourceCopy) || !reflect.DeepEqual(target, targetCopy) {
		t.Fatalf("compareSections must not mutate its inputs")
	}
}

func TestCompareSectionsOrderPrefersSource(t *testing.T) {
	source := []store.Section{
		textSection("sec-a", "A", 2, "a"),
		textSection("sec-b", "B", 1, "b"),
	}
	target := []store.Section{
		// Target disagrees on sec-a's order; the source side wins.
		textSection("sec-a", "A", 9, "a"),
		textSection("sec-c", "C", 3, "c"),
	}

	result := compareSections(source, target)

	got := make([]string, 0, len(result.Sections))
	for _, diff := range result.Sections {
		got = append(got, diff.SectionID)
	}
	want := []string{"sec-b", "sec-a", "sec-c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestCompareSectionsChartDeepEquality(t *testing.T) {
	chart := func(values []float64) store.Section {
		return store.Section{
			SectionID: "sec-chart",
			Title:     "Savings",
			Order:     1,
			Content: store.SectionContent{
				Type: store.ContentChart,
				Chart: &store.ChartData{
					Type:     "bar",
					Labels:   []string{"Y1", "Y2"},
					Datasets: []store.ChartSet{{Label: "Labor", Values: values}},
				},
			},
		}
	}

	same := compareSections([]store.Section{chart([]float64{1, 2})}, []store.Section{chart([]float64{1, 2})})
	if same.Summary.Unchanged != 1 {
		t.Fatalf("identical charts must compare equal, got %+v", same.Summary)
	}

	diff := compareSections([]store.Section{chart([]float64{1, 2})}, []store.Section{chart([]float64{1, 3})})
	if diff.Summary.Modified != 1 {
		t.Fatalf("changed dataset values must flag modified, got %+v", diff.Summary)
	}
	if diff.Sections[0].Fields[0].Field != "content.chartData" {
		t.Fatalf("expected content.chartData field diff, got %+v", diff.Sections[0].Fields)
	}
}

func TestCompareSectionsTableDeepEquality(t *testing.T) {
	table := func(rows [][]string) store.Section {
		return store.Section{
			SectionID: "sec-table",
			Title:     "Costs",
			Order:     1,
			Content: store.SectionContent{
				Type:  store.ContentTable,
				Table: &store.TableData{Headers: []string{"Item", "Capex"}, Rows: rows},
			},
		}
	}

	same := compareSections(
		[]store.Section{table([][]string{{"Conveyor", "$1.2M"}})},
		[]store.Section{table([][]string{{"Conveyor", "$1.2M"}})},
	)
	if same.Summary.Unchanged != 1 {
		t.Fatalf("identical tables must compare equal, got %+v", same.Summary)
	}

	diff := compareSections(
		[]store.Section{table([][]string{{"Conveyor", "$1.2M"}})},
		[]store.Section{table([][]string{{"Conveyor", "$1.4M"}})},
	)
	if diff.Summary.Modified != 1 {
		t.Fatalf("changed cell must flag modified, got %+v", diff.Summary)
	}
}

func TestCompareSectionsChartPresenceMismatch(t *testing.T) {
	withChart := store.Section{
		SectionID: "sec-1",
		Title:     "Savings",
		Order:     1,
		Content: store.SectionContent{
			Type:  store.ContentChart,
			Chart: &store.ChartData{Type: "bar"},
		},
	}
	withoutChart := withChart
	withoutChart.Content.Chart = nil

	result := compareSections([]store.Section{withChart}, []store.Section{withoutChart})
	if result.Summary.Modified != 1 {
		t.Fatalf("chart on one side only must flag modified, got %+v", result.Summary)
	}
}

func TestCompareReportsRequiresTargetAccess(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(_ context.Context, reportID string) (store.Report, error) {
			report := testReport()
			report.ID = reportID
			if reportID == "rpt-2" {
				report.OwnerID = "user-9"
			}
			return report, nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	_, err := svc.CompareSections(context.Background(), ownerSession(), CompareInput{
		Type:           CompareReports,
		SourceReportID: "rpt-1",
		TargetReportID: "rpt-2",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", domainErr.Code)
	}
}

func TestCompareCurrentToVersion(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		getVersionFn: func(_ context.Context, _, versionID string) (store.Version, error) {
			return store.Version{
				ID:       versionID,
				ReportID: "rpt-1",
				Name:     "v1",
				Sections: []store.Section{textSection("sec-1", "Executive Summary", 1, "Older text.")},
			}, nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	payload, err := svc.CompareSections(context.Background(), ownerSession(), CompareInput{
		Type:            CompareCurrentToVersion,
		SourceReportID:  "rpt-1",
		TargetVersionID: "ver-1",
	})
	if err != nil {
		t.Fatalf("CompareSections() error = %v", err)
	}
	summary, ok := payload["summary"].(CompareSummary)
	if !ok {
		t.Fatalf("expected CompareSummary, got %T", payload["summary"])
	}
	if summary.Modified != 1 {
		t.Fatalf("expected one modified section, got %+v", summary)
	}
}

func TestCompareRejectsUnknownType(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	_, err := svc.CompareSections(context.Background(), ownerSession(), CompareInput{
		Type:           "branches",
		SourceReportID: "rpt-1",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", domainErr.Code)
	}
}
