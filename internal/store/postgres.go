package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrRevisionConflict means the aggregate changed between read and write.
	// Callers surface it as a retryable Conflict, never retry internally.
	ErrRevisionConflict = errors.New("report revision conflict")
	// ErrDuplicateVersionName means a version with that name already exists
	// on the report.
	ErrDuplicateVersionName = errors.New("duplicate version name")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, display_name, role FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	insertUser := `
		INSERT INTO users (display_name, email, role)
		VALUES ($1, CONCAT(LOWER(REPLACE($1, ' ', '.')), '@local.roivault.dev'), 'editor')
		RETURNING id, display_name, role
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name).Scan(&user.ID, &user.DisplayName, &user.Role); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), role, is_email_verified
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), role, is_email_verified
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ── Refresh sessions (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	if user.Role == "" {
		user.Role = "viewer"
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ── Reports ──

const reportColumns = `
	id, title, description, status, owner_id,
	company_id, warehouse_id, assessment_id, template_id, is_public,
	shared_with, editors, viewers, sections,
	approval_status, approvers, approval_history,
	edit_lock, finalization, comments,
	revision, created_at, last_modified, last_modified_by
`

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=$1`, reportID)
	return scanReport(row)
}

func (s *PostgresStore) ListReports(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY last_modified DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]Report, 0)
	for rows.Next() {
		item, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, report Report) error {
	args, err := reportWriteArgs(report)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (
			id, title, description, status, owner_id,
			company_id, warehouse_id, assessment_id, template_id, is_public,
			shared_with, editors, viewers, sections,
			approval_status, approvers, approval_history,
			edit_lock, finalization, comments,
			revision, last_modified, last_modified_by
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,1,NOW(),$21)
	`, args...)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// UpdateReport writes the whole aggregate back, guarded by the revision the
// caller read. A concurrent writer wins the race; the loser gets
// ErrRevisionConflict and must re-read.
func (s *PostgresStore) UpdateReport(ctx context.Context, report Report) error {
	return updateReportTx(ctx, s.db, report)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateReportTx(ctx context.Context, db execer, report Report) error {
	args, err := reportWriteArgs(report)
	if err != nil {
		return err
	}
	args = append(args, report.LastModified, report.Revision)
	result, err := db.ExecContext(ctx, `
		UPDATE reports SET
			title=$2, description=$3, status=$4, owner_id=$5,
			company_id=$6, warehouse_id=$7, assessment_id=$8, template_id=$9, is_public=$10,
			shared_with=$11, editors=$12, viewers=$13, sections=$14,
			approval_status=$15, approvers=$16, approval_history=$17,
			edit_lock=$18, finalization=$19, comments=$20,
			last_modified_by=$21, last_modified=$22,
			revision=revision+1
		WHERE id=$1 AND revision=$23
	`, args...)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report rows: %w", err)
	}
	if affected == 0 {
		return ErrRevisionConflict
	}
	return nil
}

func (s *PostgresStore) DeleteReport(ctx context.Context, reportID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id=$1`, reportID)
	if err != nil {
		return false, fmt.Errorf("delete report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete report rows: %w", err)
	}
	return affected > 0, nil
}

// ── Versions ──

func (s *PostgresStore) InsertVersion(ctx context.Context, version Version) error {
	return insertVersionTx(ctx, s.db, version)
}

func insertVersionTx(ctx context.Context, db execer, version Version) error {
	sections, err := json.Marshal(version.Sections)
	if err != nil {
		return fmt.Errorf("marshal version sections: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO report_versions (id, report_id, name, notes, created_by, created_at, sections)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, version.ID, version.ReportID, version.Name, version.Notes, version.CreatedBy, version.CreatedAt, sections)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateVersionName
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, reportID, versionID string) (Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, report_id, name, notes, created_by, created_at, sections
		FROM report_versions WHERE report_id=$1 AND id=$2
	`, reportID, versionID)
	return scanVersion(row)
}

func (s *PostgresStore) ListVersions(ctx context.Context, reportID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, name, notes, created_by, created_at, sections
		FROM report_versions WHERE report_id=$1
		ORDER BY created_at DESC, id
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		item, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) VersionNameExists(ctx context.Context, reportID, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM report_versions WHERE report_id=$1 AND name=$2)
	`, reportID, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check version name: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, reportID, versionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM report_versions WHERE report_id=$1 AND id=$2`, reportID, versionID)
	if err != nil {
		return false, fmt.Errorf("delete version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete version rows: %w", err)
	}
	return affected > 0, nil
}

// RestoreVersion applies a snapshot back onto the aggregate. When backup is
// non-nil the backup insert and the aggregate write happen in one
// transaction, so a crash can never leave a restore without its backup.
func (s *PostgresStore) RestoreVersion(ctx context.Context, report Report, backup *Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if backup != nil {
		if err := insertVersionTx(ctx, tx, *backup); err != nil {
			return err
		}
	}
	if err := updateReportTx(ctx, tx, report); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore tx: %w", err)
	}
	return nil
}

// ── Scanning helpers ──

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (Report, error) {
	var (
		item                                                        Report
		sharedWith, editors, viewers, sections                      []byte
		approvers, history, editLock, finalization, comments        []byte
	)
	err := row.Scan(
		&item.ID, &item.Title, &item.Description, &item.Status, &item.OwnerID,
		&item.CompanyID, &item.WarehouseID, &item.AssessmentID, &item.TemplateID, &item.IsPublic,
		&sharedWith, &editors, &viewers, &sections,
		&item.ApprovalStatus, &approvers, &history,
		&editLock, &finalization, &comments,
		&item.Revision, &item.CreatedAt, &item.LastModified, &item.LastModifiedBy,
	)
	if err != nil {
		return Report{}, err
	}
	for _, field := range []struct {
		raw    []byte
		target any
	}{
		{sharedWith, &item.SharedWith},
		{editors, &item.Editors},
		{viewers, &item.Viewers},
		{sections, &item.Sections},
		{approvers, &item.Approvers},
		{history, &item.History},
		{comments, &item.Comments},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.target); err != nil {
			return Report{}, fmt.Errorf("decode report field: %w", err)
		}
	}
	if len(editLock) > 0 && string(editLock) != "null" {
		item.EditLock = &Lock{}
		if err := json.Unmarshal(editLock, item.EditLock); err != nil {
			return Report{}, fmt.Errorf("decode edit lock: %w", err)
		}
	}
	if len(finalization) > 0 && string(finalization) != "null" {
		item.Finalization = &Lock{}
		if err := json.Unmarshal(finalization, item.Finalization); err != nil {
			return Report{}, fmt.Errorf("decode finalization lock: %w", err)
		}
	}
	return item, nil
}

func scanVersion(row rowScanner) (Version, error) {
	var item Version
	var sections []byte
	err := row.Scan(&item.ID, &item.ReportID, &item.Name, &item.Notes, &item.CreatedBy, &item.CreatedAt, &sections)
	if err != nil {
		return Version{}, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &item.Sections); err != nil {
			return Version{}, fmt.Errorf("decode version sections: %w", err)
		}
	}
	return item, nil
}

func reportWriteArgs(report Report) ([]any, error) {
	encoded := make([][]byte, 0, 9)
	for _, value := range []any{
		emptyIfNilStrings(report.SharedWith),
		emptyIfNilStrings(report.Editors),
		emptyIfNilStrings(report.Viewers),
		report.Sections,
		report.Approvers,
		report.History,
		report.EditLock,
		report.Finalization,
		report.Comments,
	} {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal report field: %w", err)
		}
		encoded = append(encoded, raw)
	}
	return []any{
		report.ID, report.Title, report.Description, report.Status, report.OwnerID,
		report.CompanyID, report.WarehouseID, report.AssessmentID, report.TemplateID, report.IsPublic,
		encoded[0], encoded[1], encoded[2], encoded[3],
		report.ApprovalStatus, encoded[4], encoded[5],
		encoded[6], encoded[7], encoded[8],
		report.LastModifiedBy,
	}, nil
}

func emptyIfNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
