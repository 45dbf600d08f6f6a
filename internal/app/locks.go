package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"roivault/api/internal/store"
)

// AcquireEditLock takes the single edit lock on a report. Re-acquiring a
// lock you already hold refreshes its timestamp.
func (s *Service) AcquireEditLock(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.CanEdit {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner, an editor, or an admin can lock a report", nil)
		}
		if report.Finalization != nil && !access.IsAdmin {
			return domainError(http.StatusConflict, "REPORT_LOCKED", "Report is finalized and cannot be edited", map[string]any{
				"lockedBy": report.Finalization.LockedBy,
				"reason":   report.Finalization.Reason,
			})
		}
		if report.EditLock != nil && report.EditLock.LockedBy != session.UserID {
			return domainError(http.StatusConflict, "EDIT_LOCK_HELD", "Report is being edited by another user", map[string]any{
				"lockedBy": report.EditLock.LockedBy,
				"lockedAt": report.EditLock.LockedAt.Format(time.RFC3339),
			})
		}
		report.EditLock = &store.Lock{
			Kind:     store.LockKindEdit,
			LockedBy: session.UserID,
			LockedAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"reportId": report.ID, "editLock": lockItem(report.EditLock)}, nil
}

// ReleaseEditLock drops the edit lock. Releasing an unlocked report
// succeeds without a write. Admins may release another user's lock. The
// holder check runs inside the mutation, against the same read the write
// is derived from.
func (s *Service) ReleaseEditLock(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.CanEdit {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner, an editor, or an admin can unlock a report", nil)
		}
		if report.EditLock == nil {
			return errUnchanged
		}
		if report.EditLock.LockedBy != session.UserID && !access.IsAdmin {
			return domainError(http.StatusConflict, "EDIT_LOCK_HELD", "Edit lock is held by another user", map[string]any{
				"lockedBy": report.EditLock.LockedBy,
				"lockedAt": report.EditLock.LockedAt.Format(time.RFC3339),
			})
		}
		report.EditLock = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"reportId": report.ID, "editLock": nil}, nil
}

type FinalizeInput struct {
	Locked bool   `json:"locked"`
	Reason string `json:"reason"`
}

// SetFinalizationLock sets or clears the finalization lock. Setting the
// lock to the state it is already in is a no-op.
func (s *Service) SetFinalizationLock(ctx context.Context, session Session, reportID string, input FinalizeInput) (map[string]any, error) {
	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.IsOwner && !access.IsAdmin {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner or an admin can finalize a report", nil)
		}
		if input.Locked == (report.Finalization != nil) {
			return errUnchanged
		}
		if input.Locked {
			report.Finalization = &store.Lock{
				Kind:     store.LockKindFinalization,
				LockedBy: session.UserID,
				LockedAt: time.Now(),
				Reason:   firstNonBlank(strings.TrimSpace(input.Reason), "Finalized by owner"),
			}
		} else {
			report.Finalization = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"reportId": report.ID, "finalization": lockItem(report.Finalization)}, nil
}
