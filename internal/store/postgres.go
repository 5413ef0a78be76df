package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
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

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified, verification_token
		FROM users WHERE email = $1 AND deactivated_at IS NULL
	`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified, verification_token
		FROM users WHERE id = $1 AND deactivated_at IS NULL
	`, userID))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.VerificationToken)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token = $2, verification_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified = TRUE, verification_token = '', verification_expires_at = NULL, updated_at = NOW()
		WHERE verification_token = $1 AND verification_token <> ''
		  AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token = $1 AND used = FALSE AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used = TRUE WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---- refresh sessions (Postgres fallback when Redis is not configured) ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id = $2, expires_at = $3
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return User{}, err
	}
	return s.GetUserByID(ctx, userID)
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti = $1 AND expires_at > NOW())
	`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// ---- annotations ----

const annotationColumns = `id, user_id, group_id, uri, body, tags, refs, permissions, created_at, updated_at`

func (s *PostgresStore) InsertAnnotation(ctx context.Context, a Annotation) error {
	tags, refs, perms, err := encodeAnnotationJSON(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO annotations (id, user_id, group_id, uri, body, tags, refs, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.UserID, a.GroupID, a.URI, a.Text, tags, refs, perms, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnnotation(ctx context.Context, id string) (Annotation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id = $1`, id)
	return scanAnnotationRow(row)
}

// ListAnnotationsByURI returns every annotation anchored to uri, including
// replies and vote-reply carriers, oldest first. An empty groupID matches all
// groups.
func (s *PostgresStore) ListAnnotationsByURI(ctx context.Context, uri, groupID string) ([]Annotation, error) {
	query := `SELECT ` + annotationColumns + ` FROM annotations WHERE uri = $1`
	args := []any{uri}
	if groupID != "" {
		query += ` AND group_id = $2`
		args = append(args, groupID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()
	return scanAnnotationRows(rows)
}

// ListReplies returns the annotations whose last reference is parentID.
func (s *PostgresStore) ListReplies(ctx context.Context, parentID string) ([]Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+annotationColumns+` FROM annotations
		WHERE refs ->> -1 = $1
		ORDER BY created_at ASC, id ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()
	return scanAnnotationRows(rows)
}

// ReplaceTags swaps the full tag list of an annotation in one statement.
// Vote mutations rely on this being a single replacement, never an
// incremental edit.
func (s *PostgresStore) ReplaceTags(ctx context.Context, id string, tags []string) error {
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE annotations SET tags = $2, updated_at = NOW() WHERE id = $1
	`, id, encoded)
	if err != nil {
		return fmt.Errorf("replace tags: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace tags affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateAnnotationText(ctx context.Context, id, body string, tags []string) error {
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE annotations SET body = $2, tags = $3, updated_at = NOW() WHERE id = $1
	`, id, body, encoded)
	if err != nil {
		return fmt.Errorf("update annotation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update annotation affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAnnotation removes an annotation and every descendant reply
// referencing it anywhere in its chain.
func (s *PostgresStore) DeleteAnnotation(ctx context.Context, id string) error {
	encoded, err := json.Marshal([]string{id})
	if err != nil {
		return fmt.Errorf("encode ref filter: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM annotations WHERE id = $1 OR refs @> $2
	`, id, encoded)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return nil
}

// ---- flags ----

func (s *PostgresStore) InsertFlag(ctx context.Context, flag FlagRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (id, annotation_id, user_id, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (annotation_id, user_id) DO NOTHING
	`, flag.ID, flag.AnnotationID, flag.UserID, flag.Reason)
	if err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountFlags(ctx context.Context, annotationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM flags WHERE annotation_id = $1`, annotationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count flags: %w", err)
	}
	return count, nil
}

// ---- row helpers ----

func encodeAnnotationJSON(a Annotation) (tags, refs, perms []byte, err error) {
	if tags, err = json.Marshal(emptyIfNil(a.Tags)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode tags: %w", err)
	}
	if refs, err = json.Marshal(emptyIfNil(a.Refs)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode refs: %w", err)
	}
	if perms, err = json.Marshal(a.Permissions); err != nil {
		return nil, nil, nil, fmt.Errorf("encode permissions: %w", err)
	}
	return tags, refs, perms, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnotationRow(row rowScanner) (Annotation, error) {
	var a Annotation
	var tags, refs, perms []byte
	err := row.Scan(&a.ID, &a.UserID, &a.GroupID, &a.URI, &a.Text, &tags, &refs, &perms, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Annotation{}, err
	}
	if err := json.Unmarshal(tags, &a.Tags); err != nil {
		return Annotation{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(refs, &a.Refs); err != nil {
		return Annotation{}, fmt.Errorf("decode refs: %w", err)
	}
	if err := json.Unmarshal(perms, &a.Permissions); err != nil {
		return Annotation{}, fmt.Errorf("decode permissions: %w", err)
	}
	return a, nil
}

func scanAnnotationRows(rows *sql.Rows) ([]Annotation, error) {
	annotations := make([]Annotation, 0)
	for rows.Next() {
		a, err := scanAnnotationRow(rows)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}
