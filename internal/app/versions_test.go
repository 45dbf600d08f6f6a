package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"roivault/api/internal/store"
)

func TestCreateVersionRequiresName(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeArchive{})
	_, err := svc.CreateVersion(context.Background(), ownerSession(), "rpt-1", CreateVersionInput{Name: "  "})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", domainErr.Code)
	}
}

func TestCreateVersionSnapshotsSectionsWithoutTouchingReport(t *testing.T) {
	var inserted store.Version
	var archiveMessage string
	updateCalls := 0
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		insertVersionFn: func(_ context.Context, version store.Version) error {
			inserted = version
			return nil
		},
		updateReportFn: func(context.Context, store.Report) error {
			updateCalls++
			return nil
		},
	}
	fa := &fakeArchive{
		recordSnapshotFn: func(_ string, _ []store.Section, _ string, message string) (string, error) {
			archiveMessage = message
			return "abc1234", nil
		},
	}
	svc := newTestService(fs, fa)

	payload, err := svc.CreateVersion(context.Background(), ownerSession(), "rpt-1", CreateVersionInput{
		Name:  "Board Draft",
		Notes: "Numbers as presented to the board",
	})
	if err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if inserted.Name != "Board Draft" {
		t.Fatalf("expected version name Board Draft, got %q", inserted.Name)
	}
	if len(inserted.Sections) != 1 {
		t.Fatalf("expected snapshot of current sections, got %d", len(inserted.Sections))
	}
	if inserted.CreatedBy != "user-1" {
		t.Fatalf("expected createdBy user-1, got %q", inserted.CreatedBy)
	}
	// Naming a snapshot is not an edit: the report row stays untouched.
	if updateCalls != 0 {
		t.Fatalf("CreateVersion must not write the report row, got %d updates", updateCalls)
	}
	if archiveMessage != "Create version Board Draft" {
		t.Fatalf("unexpected archive message %q", archiveMessage)
	}
	if payload["name"] != "Board Draft" {
		t.Fatalf("expected version payload, got %v", payload)
	}
}

func TestCreateVersionSnapshotIsIndependentOfLiveSections(t *testing.T) {
	report := testReport()
	var inserted store.Version
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return report, nil
		},
		insertVersionFn: func(_ context.Context, version store.Version) error {
			inserted = version
			return nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	if _, err := svc.CreateVersion(context.Background(), ownerSession(), "rpt-1", CreateVersionInput{Name: "v1"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	report.Sections[0].Content.Text = "mutated after snapshot"
	if inserted.Sections[0].Content.Text != "Payback in 2.8 years." {
		t.Fatalf("snapshot must deep-copy sections, got %q", inserted.Sections[0].Content.Text)
	}
}

func TestCreateVersionRejectsDuplicateName(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		versionNameExistsFn: func(_ context.Context, _, name string) (bool, error) {
			return name == "Board Draft", nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	_, err := svc.CreateVersion(context.Background(), ownerSession(), "rpt-1", CreateVersionInput{Name: "Board Draft"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "DUPLICATE_VERSION_NAME" {
		t.Fatalf("expected DUPLICATE_VERSION_NAME, got %s", domainErr.Code)
	}
}

func TestCreateVersionMapsRacedDuplicateInsert(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		insertVersionFn: func(context.Context, store.Version) error {
			return store.ErrDuplicateVersionName
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	_, err := svc.CreateVersion(context.Background(), ownerSession(), "rpt-1", CreateVersionInput{Name: "Board Draft"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "DUPLICATE_VERSION_NAME" {
		t.Fatalf("expected DUPLICATE_VERSION_NAME, got %s", domainErr.Code)
	}
}

func TestCreateVersionRejectsViewer(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			report := testReport()
			report.Viewers = []string{"user-5"}
			return report, nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	_, err := svc.CreateVersion(context.Background(), Session{UserID: "user-5", Role: "viewer"}, "rpt-1", CreateVersionInput{Name: "v1"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", domainErr.Code)
	}
}

func TestRestoreVersionReplacesSectionsAndRecordsBackup(t *testing.T) {
	snapshot := []store.Section{
		{SectionID: "sec-old", Title: "Old Summary", Order: 1, Content: store.SectionContent{Type: store.ContentText, Text: "Original text."}},
	}
	var restoredReport store.Report
	var backup *store.Version
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		getVersionFn: func(_ context.Context, _, versionID string) (store.Version, error) {
			return store.Version{ID: versionID, ReportID: "rpt-1", Name: "Board Draft", Sections: snapshot}, nil
		},
		restoreVersionFn: func(_ context.Context, report store.Report, b *store.Version) error {
			restoredReport = report
			backup = b
			return nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	payload, err := svc.RestoreVersion(context.Background(), ownerSession(), "rpt-1", "ver-1", RestoreVersionInput{
		CreateBackup: true,
		BackupName:   "before-board-restore",
	})
	if err != nil {
		t.Fatalf("RestoreVersion() error = %v", err)
	}
	if restoredReport.Sections[0].SectionID != "sec-old" {
		t.Fatalf("expected restored sections from snapshot, got %+v", restoredReport.Sections)
	}
	if restoredReport.LastModifiedBy != "user-1" {
		t.Fatalf("restore must stamp lastModifiedBy")
	}
	if backup == nil {
		t.Fatalf("expected a backup version to be passed to the store")
	}
	if backup.Name != "before-board-restore" {
		t.Fatalf("expected requested backup name, got %q", backup.Name)
	}
	if backup.Sections[0].SectionID != "sec-1" {
		t.Fatalf("backup must capture the pre-restore sections, got %+v", backup.Sections)
	}
	if backup.Notes != "Backup before restoring Board Draft" {
		t.Fatalf("unexpected backup notes %q", backup.Notes)
	}
	restoredFrom, ok := payload["restoredFrom"].(map[string]any)
	if !ok || restoredFrom["name"] != "Board Draft" {
		t.Fatalf("expected restoredFrom in payload, got %v", payload["restoredFrom"])
	}
	if _, ok := payload["backup"].(map[string]any); !ok {
		t.Fatalf("expected backup in payload, got %v", payload["backup"])
	}
}

func TestRestoreVersionDefaultsBackupName(t *testing.T) {
	var backup *store.Version
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		getVersionFn: func(_ context.Context, _, versionID string) (store.Version, error) {
			return store.Version{ID: versionID, ReportID: "rpt-1", Name: "v1"}, nil
		},
		restoreVersionFn: func(_ context.Context, _ store.Report, b *store.Version) error {
			backup = b
			return nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	if _, err := svc.RestoreVersion(context.Background(), ownerSession(), "rpt-1", "ver-1", RestoreVersionInput{CreateBackup: true}); err != nil {
		t.Fatalf("RestoreVersion() error = %v", err)
	}
	if backup == nil || backup.Name != "Backup before restoring v1" {
		t.Fatalf("expected generated backup name, got %+v", backup)
	}
}

func TestRestoreVersionDisambiguatesRepeatedBackup(t *testing.T) {
	var backup *store.Version
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		getVersionFn: func(_ context.Context, _, versionID string) (store.Version, error) {
			return store.Version{ID: versionID, ReportID: "rpt-1", Name: "v1"}, nil
		},
		versionNameExistsFn: func(_ context.Context, _, name string) (bool, error) {
			return name == "Backup before restoring v1", nil
		},
		restoreVersionFn: func(_ context.Context, _ store.Report, b *store.Version) error {
			backup = b
			return nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	if _, err := svc.RestoreVersion(context.Background(), ownerSession(), "rpt-1", "ver-1", RestoreVersionInput{CreateBackup: true}); err != nil {
		t.Fatalf("RestoreVersion() error = %v", err)
	}
	if backup == nil || !strings.HasPrefix(backup.Name, "Backup before restoring v1 (") {
		t.Fatalf("expected suffixed backup name on a repeat restore, got %+v", backup)
	}
}

func TestRestoreVersionBlockedWhenFinalized(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			report := testReport()
			report.Finalization = &store.Lock{Kind: store.LockKindFinalization, LockedBy: "user-1", LockedAt: time.Now(), Reason: "Report approved"}
			return report, nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	_, err := svc.RestoreVersion(context.Background(), ownerSession(), "rpt-1", "ver-1", RestoreVersionInput{})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "REPORT_LOCKED" {
		t.Fatalf("expected REPORT_LOCKED, got %s", domainErr.Code)
	}
}

func TestRestoreVersionRejectsDuplicateBackupName(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		getVersionFn: func(_ context.Context, _, versionID string) (store.Version, error) {
			return store.Version{ID: versionID, ReportID: "rpt-1", Name: "v1"}, nil
		},
		versionNameExistsFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	_, err := svc.RestoreVersion(context.Background(), ownerSession(), "rpt-1", "ver-1", RestoreVersionInput{
		CreateBackup: true,
		BackupName:   "taken",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "DUPLICATE_VERSION_NAME" {
		t.Fatalf("expected DUPLICATE_VERSION_NAME, got %s", domainErr.Code)
	}
}

func TestDeleteVersionRejectsEditor(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			report := testReport()
			report.Editors = []string{"user-4"}
			return report, nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	err := svc.DeleteVersion(context.Background(), Session{UserID: "user-4", Role: "editor"}, "rpt-1", "ver-1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", domainErr.Code)
	}
}

func TestDeleteVersionNotFound(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(context.Context, string) (store.Report, error) {
			return testReport(), nil
		},
		deleteVersionFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs, &fakeArchive{})

	err := svc.DeleteVersion(context.Background(), ownerSession(), "rpt-1", "ver-missing")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", domainErr.Code)
	}
}
