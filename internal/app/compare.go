package app

import (
	"context"
	"net/http"
	"sort"

	"roivault/api/internal/store"
)

// Section diff statuses.
const (
	DiffUnchanged = "unchanged"
	DiffModified  = "modified"
	DiffAdded     = "added"
	DiffRemoved   = "removed"
)

type FieldDiff struct {
	Field  string `json:"field"`
	Source any    `json:"source"`
	Target any    `json:"target"`
}

type SectionDiff struct {
	SectionID string      `json:"sectionId"`
	Title     string      `json:"title"`
	Status    string      `json:"status"`
	Fields    []FieldDiff `json:"fields,omitempty"`
}

type CompareSummary struct {
	TotalSections int `json:"totalSections"`
	Unchanged     int `json:"unchanged"`
	Modified      int `json:"modified"`
	Added         int `json:"added"`
	Removed       int `json:"removed"`
}

type ComparisonResult struct {
	Summary  CompareSummary `json:"summary"`
	Sections []SectionDiff  `json:"sections"`
}

// compareSections computes a structural diff between two ordered section
// collections keyed by sectionId. It is a pure function: identical inputs
// produce an identical result, including field order, and neither input is
// mutated. The same function serves report-vs-report, version-vs-version,
// and current-vs-version comparison.
func compareSections(sourceSections, targetSections []store.Section) ComparisonResult {
	sourceByID := make(map[string]store.Section, len(sourceSections))
	for _, section := range sourceSections {
		sourceByID[section.SectionID] = section
	}
	targetByID := make(map[string]store.Section, len(targetSections))
	for _, section := range targetSections {
		targetByID[section.SectionID] = section
	}

	ids := make([]string, 0, len(sourceByID)+len(targetByID))
	seen := make(map[string]struct{}, len(sourceByID)+len(targetByID))
	for _, section := range sourceSections {
		if _, ok := seen[section.SectionID]; !ok {
			seen[section.SectionID] = struct{}{}
			ids = append(ids, section.SectionID)
		}
	}
	for _, section := range targetSections {
		if _, ok := seen[section.SectionID]; !ok {
			seen[section.SectionID] = struct{}{}
			ids = append(ids, section.SectionID)
		}
	}

	diffs := make([]SectionDiff, 0, len(ids))
	for _, id := range ids {
		source, inSource := sourceByID[id]
		target, inTarget := targetByID[id]
		switch {
		case inSource && !inTarget:
			diffs = append(diffs, SectionDiff{SectionID: id, Title: source.Title, Status: DiffRemoved})
		case !inSource && inTarget:
			diffs = append(diffs, SectionDiff{SectionID: id, Title: target.Title, Status: DiffAdded})
		default:
			fields := diffSectionFields(source, target)
			status := DiffUnchanged
			if len(fields) > 0 {
				status = DiffModified
			}
			diffs = append(diffs, SectionDiff{SectionID: id, Title: target.Title, Status: status, Fields: fields})
		}
	}

	sort.SliceStable(diffs, func(i, j int) bool {
		left := sortOrderFor(diffs[i].SectionID, sourceByID, targetByID)
		right := sortOrderFor(diffs[j].SectionID, sourceByID, targetByID)
		if left != right {
			return left < right
		}
		return diffs[i].SectionID < diffs[j].SectionID
	})

	summary := CompareSummary{TotalSections: len(diffs)}
	for _, diff := range diffs {
		switch diff.Status {
		case DiffUnchanged:
			summary.Unchanged++
		case DiffModified:
			summary.Modified++
		case DiffAdded:
			summary.Added++
		case DiffRemoved:
			summary.Removed++
		}
	}

	return ComparisonResult{Summary: summary, Sections: diffs}
}

// Field order is fixed so the diff output is deterministic.
func diffSectionFields(source, target store.Section) []FieldDiff {
	fields := make([]FieldDiff, 0, 4)
	if source.Title != target.Title {
		fields = append(fields, FieldDiff{Field: "title", Source: source.Title, Target: target.Title})
	}
	if source.Order != target.Order {
		fields = append(fields, FieldDiff{Field: "order", Source: source.Order, Target: target.Order})
	}
	if source.Content.Type != target.Content.Type {
		fields = append(fields, FieldDiff{Field: "content.type", Source: source.Content.Type, Target: target.Content.Type})
	}
	if source.Content.Text != target.Content.Text {
		fields = append(fields, FieldDiff{Field: "content.text", Source: source.Content.Text, Target: target.Content.Text})
	}
	if !chartEqual(source.Content.Chart, target.Content.Chart) {
		fields = append(fields, FieldDiff{Field: "content.chartData", Source: source.Content.Chart, Target: target.Content.Chart})
	}
	if !tableEqual(source.Content.Table, target.Content.Table) {
		fields = append(fields, FieldDiff{Field: "content.tableData", Source: source.Content.Table, Target: target.Content.Table})
	}
	return fields
}

// chartEqual compares chart payloads structurally: type, labels, datasets.
// Presence on only one side counts as a difference.
func chartEqual(source, target *store.ChartData) bool {
	if source == nil || target == nil {
		return source == target
	}
	if source.Type != target.Type {
		return false
	}
	if !stringSlicesEqual(source.Labels, target.Labels) {
		return false
	}
	if len(source.Datasets) != len(target.Datasets) {
		return false
	}
	for i := range source.Datasets {
		if source.Datasets[i].Label != target.Datasets[i].Label {
			return false
		}
		if len(source.Datasets[i].Values) != len(target.Datasets[i].Values) {
			return false
		}
		for j := range source.Datasets[i].Values {
			if source.Datasets[i].Values[j] != target.Datasets[i].Values[j] {
				return false
			}
		}
	}
	return true
}

// tableEqual compares table payloads structurally: headers, rows.
func tableEqual(source, target *store.TableData) bool {
	if source == nil || target == nil {
		return source == target
	}
	if !stringSlicesEqual(source.Headers, target.Headers) {
		return false
	}
	if len(source.Rows) != len(target.Rows) {
		return false
	}
	for i := range source.Rows {
		if !stringSlicesEqual(source.Rows[i], target.Rows[i]) {
			return false
		}
	}
	return true
}

func stringSlicesEqual(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

// sortOrderFor prefers the source side's order when both define the
// section; sections present only in the target sort by the target's order.
func sortOrderFor(sectionID string, sourceByID, targetByID map[string]store.Section) int {
	if section, ok := sourceByID[sectionID]; ok {
		return section.Order
	}
	return targetByID[sectionID].Order
}

// Comparison call patterns.
const (
	CompareReports          = "reports"
	CompareVersions         = "versions"
	CompareCurrentToVersion = "current-vs-version"
)

type CompareInput struct {
	Type            string
	SourceReportID  string
	TargetReportID  string
	SourceVersionID string
	TargetVersionID string
}

// CompareSections resolves the two section collections named by the input
// and hands them to the comparator. The comparator itself is unaware of
// which call pattern it is serving.
func (s *Service) CompareSections(ctx context.Context, session Session, input CompareInput) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, input.SourceReportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}

	var sourceSections, targetSections []store.Section
	switch input.Type {
	case CompareReports:
		if input.TargetReportID == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "targetReportId is required for report comparison", nil)
		}
		targetReport, err := s.store.GetReport(ctx, input.TargetReportID)
		if err != nil {
			return nil, err
		}
		if !reportAccess(targetReport, session).CanView {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to the target report", nil)
		}
		sourceSections = report.Sections
		targetSections = targetReport.Sections
	case CompareVersions:
		if input.SourceVersionID == "" || input.TargetVersionID == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sourceVersionId and targetVersionId are required for version comparison", nil)
		}
		sourceVersion, err := s.store.GetVersion(ctx, report.ID, input.SourceVersionID)
		if err != nil {
			return nil, err
		}
		targetVersion, err := s.store.GetVersion(ctx, report.ID, input.TargetVersionID)
		if err != nil {
			return nil, err
		}
		sourceSections = sourceVersion.Sections
		targetSections = targetVersion.Sections
	case CompareCurrentToVersion:
		if input.TargetVersionID == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "targetVersionId is required for current-vs-version comparison", nil)
		}
		version, err := s.store.GetVersion(ctx, report.ID, input.TargetVersionID)
		if err != nil {
			return nil, err
		}
		sourceSections = report.Sections
		targetSections = version.Sections
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comparison type must be reports, versions, or current-vs-version", nil)
	}

	result := compareSections(sourceSections, targetSections)
	return map[string]any{
		"comparisonType": input.Type,
		"sourceReportId": input.SourceReportID,
		"summary":        result.Summary,
		"sections":       result.Sections,
	}, nil
}
