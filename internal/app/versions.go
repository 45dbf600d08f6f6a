package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"roivault/api/internal/store"
	"roivault/api/internal/util"
)

type CreateVersionInput struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// CreateVersion snapshots the report's current sections under a unique
// name. The report row itself is not touched, so lastModified stays as it
// was: naming a snapshot is not an edit.
func (s *Service) CreateVersion(ctx context.Context, session Session, reportID string, input CreateVersionInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version name is required", nil)
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	access := reportAccess(report, session)
	if !access.CanEdit {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner, an editor, or an admin can create versions", nil)
	}

	exists, err := s.store.VersionNameExists(ctx, reportID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, duplicateVersionName(reportID, name)
	}

	version := store.Version{
		ID:        util.NewID("ver"),
		ReportID:  reportID,
		Name:      name,
		Notes:     strings.TrimSpace(input.Notes),
		CreatedBy: session.UserID,
		CreatedAt: time.Now(),
		Sections:  store.CloneSections(report.Sections),
	}
	if err := s.store.InsertVersion(ctx, version); err != nil {
		if err == store.ErrDuplicateVersionName {
			return nil, duplicateVersionName(reportID, name)
		}
		return nil, err
	}
	if _, err := s.archive.RecordSnapshot(reportID, version.Sections, session.UserName, fmt.Sprintf("Create version %s", name)); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexVersion(versionSearchRecord(version))
	}

	return versionDetail(version), nil
}

func (s *Service) ListVersions(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}
	versions, err := s.store.ListVersions(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"reportId": reportID, "versions": versionItems(versions)}, nil
}

func (s *Service) GetVersion(ctx context.Context, session Session, reportID, versionID string) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}
	version, err := s.store.GetVersion(ctx, reportID, versionID)
	if err != nil {
		return nil, err
	}
	return versionDetail(version), nil
}

type RestoreVersionInput struct {
	CreateBackup bool   `json:"createBackup"`
	BackupName   string `json:"backupName"`
}

// RestoreVersion replaces the report's sections with a snapshot's. When a
// backup is requested, the backup version and the restore commit in the
// same transaction, so a failure leaves neither behind.
func (s *Service) RestoreVersion(ctx context.Context, session Session, reportID, versionID string, input RestoreVersionInput) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	access := reportAccess(report, session)
	if !access.CanEdit {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner, an editor, or an admin can restore versions", nil)
	}
	if err := editBlocked(report, session); err != nil {
		return nil, err
	}

	version, err := s.store.GetVersion(ctx, reportID, versionID)
	if err != nil {
		return nil, err
	}

	var backup *store.Version
	if input.CreateBackup {
		requested := strings.TrimSpace(input.BackupName)
		backupName := firstNonBlank(requested, fmt.Sprintf("Backup before restoring %s", version.Name))
		exists, err := s.store.VersionNameExists(ctx, reportID, backupName)
		if err != nil {
			return nil, err
		}
		if exists {
			if requested != "" {
				return nil, duplicateVersionName(reportID, backupName)
			}
			// repeated restores of the same version get distinct backups
			backupName = fmt.Sprintf("%s (%s)", backupName, time.Now().Format("20060102-150405"))
		}
		backup = &store.Version{
			ID:        util.NewID("ver"),
			ReportID:  reportID,
			Name:      backupName,
			Notes:     fmt.Sprintf("Backup before restoring %s", version.Name),
			CreatedBy: session.UserID,
			CreatedAt: time.Now(),
			Sections:  store.CloneSections(report.Sections),
		}
	}

	report.Sections = store.CloneSections(version.Sections)
	report.LastModified = time.Now()
	report.LastModifiedBy = session.UserID

	if err := s.store.RestoreVersion(ctx, report, backup); err != nil {
		if err == store.ErrDuplicateVersionName && backup != nil {
			return nil, duplicateVersionName(reportID, backup.Name)
		}
		return nil, err
	}
	report.Revision++
	s.indexReport(report)

	if _, err := s.archive.RecordSnapshot(reportID, report.Sections, session.UserName, fmt.Sprintf("Restore version %s", version.Name)); err != nil {
		return nil, err
	}
	if backup != nil && s.search != nil {
		s.search.IndexVersion(versionSearchRecord(*backup))
	}

	payload, err := s.reportPayload(ctx, report)
	if err != nil {
		return nil, err
	}
	payload["restoredFrom"] = map[string]any{"versionId": version.ID, "name": version.Name}
	if backup != nil {
		payload["backup"] = map[string]any{"versionId": backup.ID, "name": backup.Name}
	}
	return payload, nil
}

func (s *Service) DeleteVersion(ctx context.Context, session Session, reportID, versionID string) error {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	access := reportAccess(report, session)
	if !access.IsOwner && !access.IsAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner or an admin can delete versions", nil)
	}
	deleted, err := s.store.DeleteVersion(ctx, reportID, versionID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
	}
	return nil
}

func versionDetail(version store.Version) map[string]any {
	return map[string]any{
		"id":        version.ID,
		"reportId":  version.ReportID,
		"name":      version.Name,
		"notes":     nilIfEmpty(version.Notes),
		"createdBy": version.CreatedBy,
		"createdAt": version.CreatedAt.Format(time.RFC3339),
		"sections":  sectionItems(version.Sections),
	}
}

func duplicateVersionName(reportID, name string) error {
	return domainError(http.StatusConflict, "DUPLICATE_VERSION_NAME", "A version with this name already exists", map[string]any{
		"reportId": reportID,
		"name":     name,
	})
}
