package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"roivault/api/internal/archive"
	"roivault/api/internal/auth"
	"roivault/api/internal/authpw"
	"roivault/api/internal/blob"
	"roivault/api/internal/config"
	"roivault/api/internal/email"
	"roivault/api/internal/export"
	"roivault/api/internal/rbac"
	"roivault/api/internal/search"
	"roivault/api/internal/store"
	"roivault/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) IsAdmin() bool {
	return rbac.Normalize(s.Role) == rbac.RoleAdmin
}

type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	GetReport(context.Context, string) (store.Report, error)
	ListReports(context.Context) ([]store.Report, error)
	InsertReport(context.Context, store.Report) error
	UpdateReport(context.Context, store.Report) error
	DeleteReport(context.Context, string) (bool, error)

	InsertVersion(context.Context, store.Version) error
	GetVersion(context.Context, string, string) (store.Version, error)
	ListVersions(context.Context, string) ([]store.Version, error)
	VersionNameExists(context.Context, string, string) (bool, error)
	DeleteVersion(context.Context, string, string) (bool, error)
	RestoreVersion(context.Context, store.Report, *store.Version) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens; Redis in production, the Postgres
// store as fallback.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type archiveService interface {
	RecordSnapshot(reportID string, sections []store.Section, author, message string) (string, error)
	History(reportID string, limit int) ([]archive.Entry, error)
	SnapshotByHash(reportID, hash string) ([]store.Section, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	archive  archiveService
	search   *search.Service
	exporter *export.Service
	mailer   *email.Service
	blobs    *blob.Store
	authPW   *authpw.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, archiveService *archive.Service, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		archive:  archiveService,
		search:   searchService,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, archiveService *archive.Service, searchService *search.Service) *Service {
	service := New(cfg, dataStore, archiveService, searchService)
	service.sessions = sessions
	return service
}

func (s *Service) SetExporter(exporter *export.Service) { s.exporter = exporter }
func (s *Service) SetMailer(mailer *email.Service)      { s.mailer = mailer }
func (s *Service) SetBlobStore(blobs *blob.Store)       { s.blobs = blobs }
func (s *Service) SetAuthPassword(svc *authpw.Service)  { s.authPW = svc }

func (s *Service) AuthPasswordService() *authpw.Service { return s.authPW }

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Bootstrap seeds a demo report on first start so the UI has something to
// show. A non-empty store is left untouched.
func (s *Service) Bootstrap(ctx context.Context) error {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return err
	}
	if len(reports) > 0 {
		return nil
	}

	owner, err := s.store.EnsureUserByName(ctx, "Avery")
	if err != nil {
		return err
	}

	report := store.Report{
		ID:          "rpt-" + util.NewID("")[:10],
		Title:       "North DC Automation ROI Assessment",
		Description: "Return-on-investment analysis for the proposed conveyor and AS/RS automation at the North distribution center.",
		Status:      store.StatusDraft,
		OwnerID:     owner.ID,
		CompanyID:   "co-demo",
		WarehouseID: "wh-north-dc",
		Sections: []store.Section{
			{
				SectionID: "sec-exec-summary",
				Title:     "Executive Summary",
				Order:     1,
				Content: store.SectionContent{
					Type: store.ContentText,
					Text: "Automating inbound putaway is projected to pay back in 2.8 years at current volume.",
				},
			},
			{
				SectionID: "sec-savings",
				Title:     "Projected Annual Savings",
				Order:     2,
				Content: store.SectionContent{
					Type: store.ContentChart,
					Chart: &store.ChartData{
						Type:   "bar",
						Labels: []string{"Year 1", "Year 2", "Year 3"},
						Datasets: []store.ChartSet{
							{Label: "Labor savings ($k)", Values: []float64{310, 640, 660}},
						},
					},
				},
			},
			{
				SectionID: "sec-cost-breakdown",
				Title:     "Cost Breakdown",
				Order:     3,
				Content: store.SectionContent{
					Type: store.ContentTable,
					Table: &store.TableData{
						Headers: []string{"Item", "Capex", "Opex / yr"},
						Rows: [][]string{
							{"Conveyor loop", "$1.2M", "$40k"},
							{"AS/RS cranes", "$2.1M", "$95k"},
						},
					},
				},
			},
		},
		ApprovalStatus: store.ApprovalNone,
		LastModifiedBy: owner.ID,
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		return err
	}
	if _, err := s.archive.RecordSnapshot(report.ID, report.Sections, owner.DisplayName, "Import report baseline"); err != nil {
		return err
	}
	s.indexReport(report)
	return nil
}

// ── Sessions ──

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ── Report access ──

// Access is the pre-computed per-report predicate consumed by operations.
type Access struct {
	IsOwner bool
	IsAdmin bool
	CanEdit bool
	CanView bool
}

func reportAccess(report store.Report, session Session) Access {
	access := Access{
		IsAdmin: session.IsAdmin(),
		IsOwner: report.OwnerID == session.UserID,
	}
	access.CanEdit = access.IsOwner || access.IsAdmin || containsString(report.Editors, session.UserID)
	access.CanView = access.CanEdit ||
		report.IsPublic ||
		containsString(report.Viewers, session.UserID) ||
		containsString(report.SharedWith, session.UserID)
	return access
}

// editBlocked enforces the two lock kinds against conflicting writes:
// section edits, version restores, and approver updates all go through it.
func editBlocked(report store.Report, session Session) error {
	if report.Finalization != nil && !session.IsAdmin() {
		return domainError(http.StatusConflict, "REPORT_LOCKED", "Report is finalized and cannot be modified", map[string]any{
			"reportId": report.ID,
			"lockedBy": report.Finalization.LockedBy,
			"lockedAt": report.Finalization.LockedAt.Format(time.RFC3339),
			"reason":   report.Finalization.Reason,
		})
	}
	if report.EditLock != nil && report.EditLock.LockedBy != session.UserID && !session.IsAdmin() {
		return domainError(http.StatusConflict, "EDIT_LOCK_HELD", "Report is being edited by another user", map[string]any{
			"reportId": report.ID,
			"lockedBy": report.EditLock.LockedBy,
			"lockedAt": report.EditLock.LockedAt.Format(time.RFC3339),
		})
	}
	return nil
}

// errUnchanged is returned by a mutateReport closure to report success
// without writing. The aggregate is returned as read.
var errUnchanged = errors.New("report unchanged")

// mutateReport runs a read-modify-write cycle against the aggregate. All
// state checks belong inside the closure: they run against the same read
// the write is derived from. The store rejects the write if another
// writer got there first; that surfaces as a retryable Conflict and is
// never retried here, so a caller cannot double-apply a non-idempotent
// mutation.
func (s *Service) mutateReport(ctx context.Context, reportID string, session Session, fn func(*store.Report, Access) error) (store.Report, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return store.Report{}, err
	}
	access := reportAccess(report, session)
	if err := fn(&report, access); err != nil {
		if errors.Is(err, errUnchanged) {
			return report, nil
		}
		return store.Report{}, err
	}
	if err := s.store.UpdateReport(ctx, report); err != nil {
		return store.Report{}, err
	}
	report.Revision++
	s.indexReport(report)
	return report, nil
}

// ── Reports ──

type CreateReportInput struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	CompanyID    string          `json:"companyId"`
	WarehouseID  string          `json:"warehouseId"`
	AssessmentID string          `json:"assessmentId"`
	TemplateID   string          `json:"templateId"`
	IsPublic     bool            `json:"isPublic"`
	Sections     []store.Section `json:"sections"`
}

func (s *Service) CreateReport(ctx context.Context, session Session, input CreateReportInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	sections, err := normalizeSections(input.Sections)
	if err != nil {
		return nil, err
	}

	report := store.Report{
		ID:             "rpt-" + util.NewID("")[:10],
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Status:         store.StatusDraft,
		OwnerID:        session.UserID,
		CompanyID:      strings.TrimSpace(input.CompanyID),
		WarehouseID:    strings.TrimSpace(input.WarehouseID),
		AssessmentID:   strings.TrimSpace(input.AssessmentID),
		TemplateID:     strings.TrimSpace(input.TemplateID),
		IsPublic:       input.IsPublic,
		Sections:       sections,
		ApprovalStatus: store.ApprovalNone,
		LastModifiedBy: session.UserID,
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		return nil, err
	}
	if _, err := s.archive.RecordSnapshot(report.ID, report.Sections, session.UserName, "Import report baseline"); err != nil {
		return nil, err
	}
	s.indexReport(report)

	stored, err := s.store.GetReport(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	return s.reportPayload(ctx, stored)
}

func (s *Service) ListReports(ctx context.Context, session Session) ([]map[string]any, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(reports))
	for _, report := range reports {
		if !reportAccess(report, session).CanView {
			continue
		}
		items = append(items, reportSummary(report))
	}
	return items, nil
}

func (s *Service) GetReport(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}
	return s.reportPayload(ctx, report)
}

type UpdateSectionsInput struct {
	Sections []store.Section `json:"sections"`
}

func (s *Service) UpdateSections(ctx context.Context, session Session, reportID string, input UpdateSectionsInput) (map[string]any, error) {
	sections, err := normalizeSections(input.Sections)
	if err != nil {
		return nil, err
	}
	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.CanEdit {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner, an editor, or an admin can edit sections", nil)
		}
		if err := editBlocked(*report, session); err != nil {
			return err
		}
		report.Sections = sections
		report.LastModified = time.Now()
		report.LastModifiedBy = session.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reportPayload(ctx, report)
}

func (s *Service) DeleteReport(ctx context.Context, session Session, reportID string) error {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	access := reportAccess(report, session)
	if !access.IsOwner && !access.IsAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner or an admin can delete a report", nil)
	}
	if report.Finalization != nil && !access.IsAdmin {
		return domainError(http.StatusConflict, "REPORT_LOCKED", "Report is finalized and cannot be deleted", nil)
	}
	deleted, err := s.store.DeleteReport(ctx, reportID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
	}
	if s.search != nil {
		s.search.DeleteReport(reportID)
	}
	return nil
}

type CommentInput struct {
	Body string `json:"body"`
}

func (s *Service) AddComment(ctx context.Context, session Session, reportID string, input CommentInput) (map[string]any, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	comment := store.Comment{
		ID:        util.NewID("cmt"),
		Author:    session.UserName,
		Body:      body,
		CreatedAt: time.Now(),
	}
	report, err := s.mutateReport(ctx, reportID, session, func(report *store.Report, access Access) error {
		if !access.CanView {
			return domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
		}
		report.Comments = append(report.Comments, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:       comment.ID,
			ReportID: report.ID,
			Author:   comment.Author,
			Body:     comment.Body,
		})
	}
	return map[string]any{"reportId": report.ID, "comments": commentItems(report.Comments)}, nil
}

func (s *Service) ListComments(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}
	return map[string]any{"reportId": report.ID, "comments": commentItems(report.Comments)}, nil
}

// History lists snapshot archive commits for the report, newest first.
func (s *Service) History(ctx context.Context, session Session, reportID string, limit int) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.archive.History(reportID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"hash":      entry.Hash,
			"message":   strings.TrimSpace(entry.Message),
			"author":    entry.Author,
			"createdAt": entry.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"reportId": reportID, "entries": items}, nil
}

// HistorySnapshot reads the sections recorded by one archive commit.
func (s *Service) HistorySnapshot(ctx context.Context, session Session, reportID, hash string) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}
	sections, err := s.archive.SnapshotByHash(reportID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found", map[string]any{
			"reportId": reportID,
			"hash":     hash,
		})
	}
	return map[string]any{"reportId": reportID, "hash": hash, "sections": sectionItems(sections)}, nil
}

func (s *Service) Search(ctx context.Context, q, filterType string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return map[string]any{"results": []any{}, "total": 0, "query": q}, nil
	}
	response := s.search.Search(search.Query{
		Text:       q,
		FilterType: filterType,
		Limit:      limit,
		Offset:     offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}, nil
}

func (s *Service) ExportReport(ctx context.Context, session Session, reportID string, req export.Request) (*export.Result, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !reportAccess(report, session).CanView {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this report", nil)
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	req.ReportID = reportID
	result, err := s.exporter.Export(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.blobs != nil {
		objectName := fmt.Sprintf("%s/%d-%s", reportID, time.Now().Unix(), result.Filename)
		if location, err := s.blobs.PutExport(ctx, objectName, result.Data, result.MimeType); err == nil {
			result.StoredAt = location
		}
	}
	return result, nil
}

// ExportDataStore adapts the aggregate store to what the export renderer
// needs. Wired up in main when the exporter is configured.
func (s *Service) ExportDataStore() export.DataStore {
	return &exportStoreAdapter{service: s}
}

type exportStoreAdapter struct {
	service *Service
}

func (a *exportStoreAdapter) GetReport(ctx context.Context, id string) (export.ReportInfo, error) {
	report, err := a.service.store.GetReport(ctx, id)
	if err != nil {
		return export.ReportInfo{}, err
	}
	ownerName := report.OwnerID
	if owner, err := a.service.store.GetUserByID(ctx, report.OwnerID); err == nil {
		ownerName = owner.DisplayName
	}
	return export.ReportInfo{
		ID:          report.ID,
		Title:       report.Title,
		Description: report.Description,
		Status:      report.Status,
		WarehouseID: report.WarehouseID,
		OwnerName:   ownerName,
		UpdatedAt:   report.LastModified,
	}, nil
}

func (a *exportStoreAdapter) GetSections(ctx context.Context, reportID, versionID string) ([]store.Section, error) {
	if versionID == "" {
		report, err := a.service.store.GetReport(ctx, reportID)
		if err != nil {
			return nil, err
		}
		return report.Sections, nil
	}
	version, err := a.service.store.GetVersion(ctx, reportID, versionID)
	if err != nil {
		return nil, err
	}
	return version.Sections, nil
}

func (a *exportStoreAdapter) ListComments(ctx context.Context, reportID string) ([]export.CommentInfo, error) {
	report, err := a.service.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	comments := make([]export.CommentInfo, 0, len(report.Comments))
	for _, comment := range report.Comments {
		comments = append(comments, export.CommentInfo{
			Author:    comment.Author,
			Body:      comment.Body,
			CreatedAt: comment.CreatedAt,
		})
	}
	return comments, nil
}

func (s *Service) indexReport(report store.Report) {
	if s.search == nil {
		return
	}
	var text strings.Builder
	for _, section := range report.Sections {
		if section.Content.Type == store.ContentText {
			text.WriteString(section.Content.Text)
			text.WriteString(" ")
		}
	}
	s.search.IndexReport(search.ReportRecord{
		ID:          report.ID,
		Title:       report.Title,
		Description: report.Description,
		Status:      report.Status,
		WarehouseID: report.WarehouseID,
		SectionText: strings.TrimSpace(text.String()),
	})
}

func versionSearchRecord(version store.Version) search.VersionRecord {
	var text strings.Builder
	for _, section := range version.Sections {
		if section.Content.Type == store.ContentText {
			text.WriteString(section.Content.Text)
			text.WriteString(" ")
		}
	}
	return search.VersionRecord{
		ID:          version.ID,
		ReportID:    version.ReportID,
		Name:        version.Name,
		Notes:       version.Notes,
		SectionText: strings.TrimSpace(text.String()),
	}
}

// ── Payload builders ──

func (s *Service) reportPayload(ctx context.Context, report store.Report) (map[string]any, error) {
	versions, err := s.store.ListVersions(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})

	payload := reportSummary(report)
	payload["description"] = report.Description
	payload["sections"] = sectionItems(report.Sections)
	payload["approvers"] = approverItems(report.Approvers)
	payload["approvalHistory"] = historyItems(report.History)
	payload["versions"] = versionItems(versions)
	payload["comments"] = commentItems(report.Comments)
	payload["sharedWith"] = emptyIfNil(report.SharedWith)
	payload["editors"] = emptyIfNil(report.Editors)
	payload["viewers"] = emptyIfNil(report.Viewers)
	return payload, nil
}

func reportSummary(report store.Report) map[string]any {
	return map[string]any{
		"id":             report.ID,
		"title":          report.Title,
		"status":         report.Status,
		"ownerId":        report.OwnerID,
		"companyId":      nilIfEmpty(report.CompanyID),
		"warehouseId":    nilIfEmpty(report.WarehouseID),
		"assessmentId":   nilIfEmpty(report.AssessmentID),
		"templateId":     nilIfEmpty(report.TemplateID),
		"isPublic":       report.IsPublic,
		"approvalStatus": report.ApprovalStatus,
		"locked":         report.Locked(),
		"editLock":       lockItem(report.EditLock),
		"finalization":   lockItem(report.Finalization),
		"revision":       report.Revision,
		"sectionCount":   len(report.Sections),
		"lastModified":   report.LastModified.Format(time.RFC3339),
		"lastModifiedBy": report.LastModifiedBy,
	}
}

func lockItem(lock *store.Lock) any {
	if lock == nil {
		return nil
	}
	return map[string]any{
		"kind":     lock.Kind,
		"lockedBy": lock.LockedBy,
		"lockedAt": lock.LockedAt.Format(time.RFC3339),
		"reason":   nilIfEmpty(lock.Reason),
	}
}

func sectionItems(sections []store.Section) []map[string]any {
	items := make([]map[string]any, 0, len(sections))
	for _, section := range sections {
		content := map[string]any{"type": section.Content.Type}
		if section.Content.Type == store.ContentText {
			content["text"] = section.Content.Text
		}
		if section.Content.Chart != nil {
			content["chartData"] = section.Content.Chart
		}
		if section.Content.Table != nil {
			content["tableData"] = section.Content.Table
		}
		items = append(items, map[string]any{
			"sectionId": section.SectionID,
			"title":     section.Title,
			"order":     section.Order,
			"content":   content,
		})
	}
	return items
}

func approverItems(approvers []store.Approver) []map[string]any {
	items := make([]map[string]any, 0, len(approvers))
	for _, approver := range approvers {
		item := map[string]any{
			"userId":   approver.UserID,
			"role":     approver.Role,
			"status":   approver.Status,
			"required": approver.Required,
			"order":    approver.Order,
			"comments": nilIfEmpty(approver.Comments),
		}
		if approver.DecidedAt != nil {
			item["decidedAt"] = approver.DecidedAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items
}

func historyItems(events []store.ApprovalEvent) []map[string]any {
	items := make([]map[string]any, 0, len(events))
	for _, event := range events {
		items = append(items, map[string]any{
			"userId":    event.UserID,
			"action":    event.Action,
			"timestamp": event.Timestamp.Format(time.RFC3339),
			"comments":  nilIfEmpty(event.Comments),
		})
	}
	return items
}

func versionItems(versions []store.Version) []map[string]any {
	items := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		items = append(items, map[string]any{
			"id":           version.ID,
			"name":         version.Name,
			"notes":        nilIfEmpty(version.Notes),
			"createdBy":    version.CreatedBy,
			"createdAt":    version.CreatedAt.Format(time.RFC3339),
			"sectionCount": len(version.Sections),
		})
	}
	return items
}

func commentItems(comments []store.Comment) []map[string]any {
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, map[string]any{
			"id":        comment.ID,
			"author":    comment.Author,
			"body":      comment.Body,
			"createdAt": comment.CreatedAt.Format(time.RFC3339),
		})
	}
	return items
}

// ── Helpers ──

// normalizeSections validates the sectionId uniqueness invariant and
// assigns ids and defaults for new sections.
func normalizeSections(sections []store.Section) ([]store.Section, error) {
	out := make([]store.Section, 0, len(sections))
	seen := make(map[string]struct{}, len(sections))
	for i, section := range sections {
		section.Title = strings.TrimSpace(section.Title)
		if section.Title == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "section title is required", map[string]any{"index": i})
		}
		if strings.TrimSpace(section.SectionID) == "" {
			section.SectionID = util.NewID("sec")
		}
		if _, ok := seen[section.SectionID]; ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "duplicate sectionId", map[string]any{"sectionId": section.SectionID})
		}
		seen[section.SectionID] = struct{}{}
		switch section.Content.Type {
		case store.ContentText, store.ContentChart, store.ContentTable:
		case "":
			section.Content.Type = store.ContentText
		default:
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content type must be text, chart, or table", map[string]any{"sectionId": section.SectionID})
		}
		if section.Order == 0 {
			section.Order = i + 1
		}
		out = append(out, section)
	}
	return out, nil
}

func containsString(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
