package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"roivault/api/internal/store"
)

// Approval history actions.
const (
	actionSubmit          = "submit"
	actionApproved        = "approved"
	actionRejected        = "rejected"
	actionCancel          = "cancel"
	actionUpdateApprovers = "update_approvers"
)

type ApproverInput struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	Required *bool  `json:"required"`
	Order    int    `json:"order"`
}

type SubmitApprovalInput struct {
	Approvers []ApproverInput `json:"approvers"`
	Comments  string          `json:"comments"`
}

// SubmitForApproval starts the workflow. Any non-pending report can be
// resubmitted; a finalized one must be unlocked first.
func (s *Service) SubmitForApproval(ctx context.Context, session Session, reportID string, input SubmitApprovalInput) (map[string]any, error) {
	approvers, err := normalizeApprovers(input.Approvers)
	if err != nil {
		return nil, err
	}
	if len(approvers) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one approver is required", nil)
	}

	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.CanEdit {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner, an editor, or an admin can submit for approval", nil)
		}
		if report.ApprovalStatus == store.ApprovalPending {
			return domainError(http.StatusConflict, "APPROVAL_IN_PROGRESS", "Report is already pending approval", nil)
		}
		if err := editBlocked(*report, session); err != nil {
			return err
		}
		if len(report.Sections) == 0 {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot submit a report with no sections", nil)
		}
		report.Approvers = approvers
		report.ApprovalStatus = store.ApprovalPending
		report.Status = store.StatusPendingApproval
		report.History = append(report.History, store.ApprovalEvent{
			UserID:    session.UserID,
			Action:    actionSubmit,
			Timestamp: time.Now(),
			Comments:  strings.TrimSpace(input.Comments),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyApprovers(ctx, report)
	return s.reportPayload(ctx, report)
}

type DecisionInput struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

// Decide records one approver's verdict and recomputes the aggregate
// status. A single rejection, required or optional, rejects the report.
// Approval requires every required approver to have approved.
func (s *Service) Decide(ctx context.Context, session Session, reportID string, input DecisionInput) (map[string]any, error) {
	decision := strings.TrimSpace(input.Decision)
	if decision != store.ApproverApproved && decision != store.ApproverRejected {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "decision must be approved or rejected", nil)
	}

	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if report.ApprovalStatus != store.ApprovalPending {
			return domainError(http.StatusConflict, "NOT_PENDING", "Report is not pending approval", map[string]any{
				"approvalStatus": report.ApprovalStatus,
			})
		}

		idx := -1
		for i, approver := range report.Approvers {
			if approver.UserID == session.UserID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domainError(http.StatusForbidden, "NOT_AN_APPROVER", "You are not an approver on this report", nil)
		}
		if report.Approvers[idx].Status != store.ApproverPending {
			return domainError(http.StatusConflict, "ALREADY_DECIDED", "You have already recorded a decision", map[string]any{
				"status": report.Approvers[idx].Status,
			})
		}

		now := time.Now()
		report.Approvers[idx].Status = decision
		report.Approvers[idx].Comments = strings.TrimSpace(input.Comments)
		report.Approvers[idx].DecidedAt = &now
		report.History = append(report.History, store.ApprovalEvent{
			UserID:    session.UserID,
			Action:    decision,
			Timestamp: now,
			Comments:  strings.TrimSpace(input.Comments),
		})

		applyAggregateStatus(report, session, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyOwnerOfDecision(ctx, report, session, decision)
	return s.reportPayload(ctx, report)
}

type CancelApprovalInput struct {
	Comments string `json:"comments"`
}

// CancelApproval withdraws a pending workflow and clears the approver
// list; recorded decisions survive only in the history events.
func (s *Service) CancelApproval(ctx context.Context, session Session, reportID string, input CancelApprovalInput) (map[string]any, error) {
	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.IsOwner && !access.IsAdmin {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner or an admin can cancel an approval", nil)
		}
		if report.ApprovalStatus != store.ApprovalPending {
			return domainError(http.StatusConflict, "NOT_PENDING", "Only a pending approval can be cancelled", map[string]any{
				"approvalStatus": report.ApprovalStatus,
			})
		}
		report.ApprovalStatus = store.ApprovalCancelled
		report.Status = store.StatusDraft
		report.Approvers = nil
		report.History = append(report.History, store.ApprovalEvent{
			UserID:    session.UserID,
			Action:    actionCancel,
			Timestamp: time.Now(),
			Comments:  strings.TrimSpace(input.Comments),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reportPayload(ctx, report)
}

type UpdateApproversInput struct {
	Approvers []ApproverInput `json:"approvers"`
}

// UpdateApprovers replaces the approver list of a pending workflow.
// Decisions already recorded by approvers who remain on the list are
// preserved.
func (s *Service) UpdateApprovers(ctx context.Context, session Session, reportID string, input UpdateApproversInput) (map[string]any, error) {
	incoming, err := normalizeApprovers(input.Approvers)
	if err != nil {
		return nil, err
	}

	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.IsOwner && !access.IsAdmin {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner or an admin can update approvers", nil)
		}
		if report.ApprovalStatus == store.ApprovalApproved {
			return domainError(http.StatusConflict, "ALREADY_APPROVED", "Approvers cannot change after approval", nil)
		}
		if report.ApprovalStatus != store.ApprovalPending {
			return domainError(http.StatusConflict, "NOT_PENDING", "Approvers can only change while approval is pending", map[string]any{
				"approvalStatus": report.ApprovalStatus,
			})
		}
		if err := editBlocked(*report, session); err != nil {
			return err
		}

		existing := make(map[string]store.Approver, len(report.Approvers))
		for _, approver := range report.Approvers {
			existing[approver.UserID] = approver
		}
		for i, approver := range incoming {
			if prior, ok := existing[approver.UserID]; ok {
				incoming[i].Status = prior.Status
				incoming[i].Comments = prior.Comments
				incoming[i].DecidedAt = prior.DecidedAt
			}
		}
		report.Approvers = incoming
		report.History = append(report.History, store.ApprovalEvent{
			UserID:    session.UserID,
			Action:    actionUpdateApprovers,
			Timestamp: time.Now(),
		})

		applyAggregateStatus(report, session, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reportPayload(ctx, report)
}

// recomputeApprovalStatus derives the aggregate from the approver entries.
// Any rejection dominates, including from optional approvers. Approval
// requires all required approvers approved; with no required approvers,
// every approver must approve.
func recomputeApprovalStatus(approvers []store.Approver) string {
	requiredTotal := 0
	requiredApproved := 0
	allApproved := len(approvers) > 0
	for _, approver := range approvers {
		if approver.Status == store.ApproverRejected {
			return store.ApprovalRejected
		}
		if approver.Required {
			requiredTotal++
			if approver.Status == store.ApproverApproved {
				requiredApproved++
			}
		}
		if approver.Status != store.ApproverApproved {
			allApproved = false
		}
	}
	if requiredTotal > 0 && requiredApproved == requiredTotal {
		return store.ApprovalApproved
	}
	if requiredTotal == 0 && allApproved {
		return store.ApprovalApproved
	}
	return store.ApprovalPending
}

// applyAggregateStatus moves the report when the recomputed aggregate
// resolves. Approval finalizes the report in the same write.
func applyAggregateStatus(report *store.Report, session Session, now time.Time) {
	switch recomputeApprovalStatus(report.Approvers) {
	case store.ApprovalApproved:
		report.ApprovalStatus = store.ApprovalApproved
		report.Status = store.StatusApproved
		report.Finalization = &store.Lock{
			Kind:     store.LockKindFinalization,
			LockedBy: session.UserID,
			LockedAt: now,
			Reason:   "Report approved",
		}
	case store.ApprovalRejected:
		report.ApprovalStatus = store.ApprovalRejected
		report.Status = store.StatusRejected
	default:
		report.ApprovalStatus = store.ApprovalPending
	}
}

func normalizeApprovers(inputs []ApproverInput) ([]store.Approver, error) {
	approvers := make([]store.Approver, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, input := range inputs {
		userID := strings.TrimSpace(input.UserID)
		if userID == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "approver userId is required", map[string]any{"index": i})
		}
		if _, ok := seen[userID]; ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "duplicate approver", map[string]any{"userId": userID})
		}
		seen[userID] = struct{}{}

		role := strings.TrimSpace(input.Role)
		if role == "" {
			role = store.ApproverRoleReviewer
		}
		required := true
		if input.Required != nil {
			required = *input.Required
		}
		order := input.Order
		if order == 0 {
			order = i + 1
		}
		approvers = append(approvers, store.Approver{
			UserID:   userID,
			Role:     role,
			Status:   store.ApproverPending,
			Required: required,
			Order:    order,
		})
	}
	return approvers, nil
}

func (s *Service) notifyApprovers(ctx context.Context, report store.Report) {
	if !s.SMTPConfigured() {
		return
	}
	for _, approver := range report.Approvers {
		user, err := s.store.GetUserByID(ctx, approver.UserID)
		if err != nil || user.Email == "" {
			continue
		}
		_ = s.mailer.SendApprovalRequest(user.Email, user.DisplayName, report.Title)
	}
}

func (s *Service) notifyOwnerOfDecision(ctx context.Context, report store.Report, session Session, decision string) {
	if !s.SMTPConfigured() {
		return
	}
	owner, err := s.store.GetUserByID(ctx, report.OwnerID)
	if err != nil || owner.Email == "" {
		return
	}
	_ = s.mailer.SendDecisionNotice(owner.Email, owner.DisplayName, report.Title, session.UserName, decision)
}
