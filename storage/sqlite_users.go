package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"brokeradmin/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// userSortColumns whitelists sortable properties.
var userSortColumns = map[string]string{
	"createdTime": "created_at",
	"email":       "email",
	"firstName":   "first_name",
	"lastName":    "last_name",
}

// SQLiteUserStorage stores administrator accounts and their credentials.
type SQLiteUserStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteUserStorage creates a new SQLite-based user storage
func NewSQLiteUserStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteUserStorage {
	return &SQLiteUserStorage{
		sqlite: sqlite,
		logger: logger,
	}
}

// CreateUser inserts the user and its bcrypt-hashed credentials in one transaction.
// A zero ID is replaced with a new UUID. The hash is also recorded in the user's
// password history.
func (s *SQLiteUserStorage) CreateUser(ctx context.Context, user *core.User, password string) (*core.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	created := user.Clone()
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	if created.CreatedTime.IsZero() {
		created.CreatedTime = time.Now().UTC()
	}
	history := map[string]interface{}{strconv.FormatInt(created.CreatedTime.UnixMilli(), 10): string(hashed)}
	created.AdditionalInfo = core.SettingsPayload(created.AdditionalInfo).With(core.UserPasswordHistoryField, history)

	var additionalInfo interface{}
	if len(created.AdditionalInfo) > 0 {
		raw, err := json.Marshal(created.AdditionalInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal additional info: %w", err)
		}
		additionalInfo = string(raw)
	}

	err = s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, first_name, last_name, authority, additional_info, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			created.ID.String(), created.Email, created.FirstName, created.LastName,
			string(created.Authority), additionalInfo, formatTime(created.CreatedTime))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_credentials (id, user_id, enabled, password, failed_login_attempts)
			VALUES (?, ?, 1, ?, 0)`,
			uuid.New().String(), created.ID.String(), string(hashed))
		if err != nil {
			return fmt.Errorf("failed to insert credentials: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Created user", "user_id", created.ID, "email", created.Email)
	return created, nil
}

const userColumns = `id, email, first_name, last_name, authority, additional_info, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*core.User, error) {
	var (
		id, authority, createdAt string
		additionalInfo           sql.NullString
		user                     core.User
	)
	if err := row.Scan(&id, &user.Email, &user.FirstName, &user.LastName, &authority, &additionalInfo, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", id, err)
	}
	user.ID = parsed
	user.Authority = core.Authority(authority)
	user.CreatedTime = parseTime(createdAt)
	if additionalInfo.Valid && additionalInfo.String != "" {
		if err := json.Unmarshal([]byte(additionalInfo.String), &user.AdditionalInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal additional info: %w", err)
		}
	}
	return &user, nil
}

// GetUserByID returns ErrUserNotFound if no such user exists.
func (s *SQLiteUserStorage) GetUserByID(ctx context.Context, id uuid.UUID) (*core.User, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return user, nil
}

// GetUserByEmail looks a user up case-insensitively.
func (s *SQLiteUserStorage) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// FindUsers returns one page of users. TextSearch matches an email prefix.
func (s *SQLiteUserStorage) FindUsers(ctx context.Context, link core.PageLink) (core.PageData[*core.User], error) {
	where := ""
	var args []interface{}
	if link.TextSearch != "" {
		where = ` WHERE email LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(link.TextSearch)+"%")
	}

	var total int64
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return core.PageData[*core.User]{}, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY ` + orderClause(link.SortOrder, userSortColumns) + ` LIMIT ? OFFSET ?`
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, append(args, link.PageSize, link.Offset())...)
	if err != nil {
		return core.PageData[*core.User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*core.User, 0, link.PageSize)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return core.PageData[*core.User]{}, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return core.PageData[*core.User]{}, fmt.Errorf("failed to iterate users: %w", err)
	}

	return core.NewPageData(users, total, link), nil
}

// CountUsers returns the number of stored users.
func (s *SQLiteUserStorage) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// DeleteUser removes the user. Credentials and connection descriptors cascade.
func (s *SQLiteUserStorage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	s.logger.Infow("Deleted user", "user_id", id)
	return nil
}

// GetUserCredentials returns the stored credentials of a user.
func (s *SQLiteUserStorage) GetUserCredentials(ctx context.Context, userID uuid.UUID) (*core.UserCredentials, error) {
	var (
		id      string
		enabled int
		creds   core.UserCredentials
	)
	err := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT id, enabled, password, failed_login_attempts
		FROM user_credentials WHERE user_id = ?`, userID.String()).
		Scan(&id, &enabled, &creds.Password, &creds.FailedLoginAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	creds.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt credentials id %q: %w", id, err)
	}
	creds.UserID = userID
	creds.Enabled = enabled == 1
	return &creds, nil
}

// RecordLoginFailure increments the failure counter and disables the credentials once
// it reaches maxAttempts. maxAttempts <= 0 never disables. It reports the new count and
// whether this call disabled the account.
func (s *SQLiteUserStorage) RecordLoginFailure(ctx context.Context, userID uuid.UUID, maxAttempts int) (int, bool, error) {
	var (
		attempts int
		locked   bool
	)
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		var enabled int
		err := tx.QueryRowContext(ctx, `
			UPDATE user_credentials SET failed_login_attempts = failed_login_attempts + 1
			WHERE user_id = ? RETURNING failed_login_attempts, enabled`, userID.String()).Scan(&attempts, &enabled)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCredentialsNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to record login failure: %w", err)
		}
		if maxAttempts > 0 && attempts >= maxAttempts && enabled == 1 {
			if _, err := tx.ExecContext(ctx, `UPDATE user_credentials SET enabled = 0 WHERE user_id = ?`, userID.String()); err != nil {
				return fmt.Errorf("failed to disable credentials: %w", err)
			}
			locked = true
		}
		return nil
	})
	return attempts, locked, err
}

// ResetLoginFailures clears the failure counter after a successful login.
func (s *SQLiteUserStorage) ResetLoginFailures(ctx context.Context, userID uuid.UUID) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE user_credentials SET failed_login_attempts = 0 WHERE user_id = ?`, userID.String())
	if err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}

// SetCredentialsEnabled enables or disables a user's credentials.
func (s *SQLiteUserStorage) SetCredentialsEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	result, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE user_credentials SET enabled = ?, failed_login_attempts = 0 WHERE user_id = ?`, value, userID.String())
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrCredentialsNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// orderClause builds an ORDER BY clause from whitelisted columns. The id tiebreaker
// keeps paging stable when sort values repeat.
func orderClause(order *core.SortOrder, columns map[string]string) string {
	column, direction := "created_at", "DESC"
	if order != nil {
		if c, ok := columns[order.Property]; ok {
			column = c
		}
		if order.Direction == core.SortASC {
			direction = "ASC"
		}
	}
	return column + " " + direction + ", id " + direction
}
