package storage

import (
	"context"
	"fmt"
	"time"

	"brokeradmin/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SQLiteWebSocketConnectionStorage stores the connection descriptors owned by users.
type SQLiteWebSocketConnectionStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteWebSocketConnectionStorage creates a new SQLite-based connection storage
func NewSQLiteWebSocketConnectionStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteWebSocketConnectionStorage {
	return &SQLiteWebSocketConnectionStorage{sqlite: sqlite, logger: logger}
}

// SaveConnection inserts a descriptor. Zero id and creation time are filled in.
// Client ids are unique across all owners; a reused one yields ErrDuplicateClientID.
func (s *SQLiteWebSocketConnectionStorage) SaveConnection(ctx context.Context, conn *core.WebSocketConnection) (*core.WebSocketConnection, error) {
	saved := *conn
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	if saved.CreatedTime.IsZero() {
		saved.CreatedTime = time.Now().UTC()
	}

	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO ws_connection (id, name, user_id, client_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		saved.ID.String(), saved.Name, saved.UserID.String(), saved.ClientID, formatTime(saved.CreatedTime))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateClientID
		}
		return nil, fmt.Errorf("failed to save websocket connection: %w", err)
	}
	return &saved, nil
}

// GetConnection returns ErrConnectionNotFound for unknown ids.
func (s *SQLiteWebSocketConnectionStorage) GetConnection(ctx context.Context, id uuid.UUID) (*core.WebSocketConnection, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, name, user_id, client_id, created_at FROM ws_connection WHERE id = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get websocket connection: %w", err)
	}
	defer rows.Close()

	conns, err := scanConnections(rows)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, ErrConnectionNotFound
	}
	return conns[0], nil
}

// FindConnectionsByUserID pages over a user's descriptors in creation order.
func (s *SQLiteWebSocketConnectionStorage) FindConnectionsByUserID(ctx context.Context, userID uuid.UUID, link core.PageLink) (core.PageData[*core.WebSocketConnection], error) {
	var total int64
	if err := s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ws_connection WHERE user_id = ?`, userID.String()).Scan(&total); err != nil {
		return core.PageData[*core.WebSocketConnection]{}, fmt.Errorf("failed to count websocket connections: %w", err)
	}

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, name, user_id, client_id, created_at FROM ws_connection
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`, userID.String(), link.PageSize, link.Offset())
	if err != nil {
		return core.PageData[*core.WebSocketConnection]{}, fmt.Errorf("failed to list websocket connections: %w", err)
	}
	defer rows.Close()

	conns, err := scanConnections(rows)
	if err != nil {
		return core.PageData[*core.WebSocketConnection]{}, err
	}
	return core.NewPageData(conns, total, link), nil
}

// DeleteConnection removes a descriptor.
func (s *SQLiteWebSocketConnectionStorage) DeleteConnection(ctx context.Context, id uuid.UUID) error {
	result, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM ws_connection WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete websocket connection: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

type rowsScanner interface {
	rowScanner
	Next() bool
	Err() error
}

func scanConnections(rows rowsScanner) ([]*core.WebSocketConnection, error) {
	var out []*core.WebSocketConnection
	for rows.Next() {
		var (
			id, userID, createdAt string
			c                     core.WebSocketConnection
		)
		if err := rows.Scan(&id, &c.Name, &userID, &c.ClientID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan websocket connection: %w", err)
		}
		var err error
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt websocket connection id %q: %w", id, err)
		}
		if c.UserID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("corrupt websocket connection owner %q: %w", userID, err)
		}
		c.CreatedTime = parseTime(createdAt)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate websocket connections: %w", err)
	}
	return out, nil
}
