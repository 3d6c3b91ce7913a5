package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brokeradmin/core"
	"brokeradmin/metrics"
	"brokeradmin/session"
	"brokeradmin/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const selfDeleteMessage = "It is not allowed to delete its own user!"

// UserReader loads a single account.
type UserReader interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*core.User, error)
}

// UserStore defines the account persistence needed by AdminService.
type UserStore interface {
	UserReader
	CreateUser(ctx context.Context, user *core.User, password string) (*core.User, error)
	FindUsers(ctx context.Context, link core.PageLink) (core.PageData[*core.User], error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// ConnectionStore lists the connection descriptors owned by a user.
type ConnectionStore interface {
	FindConnectionsByUserID(ctx context.Context, userID uuid.UUID, link core.PageLink) (core.PageData[*core.WebSocketConnection], error)
}

// SessionDisconnector closes the live session of a client.
type SessionDisconnector interface {
	Disconnect(ctx context.Context, clientID string) error
}

// PasswordValidator checks a new password against the security policy.
type PasswordValidator interface {
	ValidatePassword(ctx context.Context, password string) error
}

// DeleteSummary reports the outcome of a cascading delete.
type DeleteSummary struct {
	UserID            uuid.UUID `json:"userId"`
	Sessions          int       `json:"sessions"`
	Disconnected      int       `json:"disconnected"`
	FailedDisconnects int       `json:"failedDisconnects"`
}

// AdminService manages administrator accounts. Accounts are always returned redacted.
type AdminService struct {
	users       UserStore
	connections ConnectionStore
	sessions    SessionDisconnector
	passwords   PasswordValidator
	validate    *validator.Validate
	logger      *zap.SugaredLogger
}

// NewAdminService creates the service. passwords may be nil to skip policy checks.
func NewAdminService(users UserStore, connections ConnectionStore, sessions SessionDisconnector, passwords PasswordValidator, logger *zap.SugaredLogger) *AdminService {
	return &AdminService{
		users:       users,
		connections: connections,
		sessions:    sessions,
		passwords:   passwords,
		validate:    validator.New(),
		logger:      logger,
	}
}

// CreateAdmin creates a SYS_ADMIN account from draft.
func (s *AdminService) CreateAdmin(ctx context.Context, draft core.AdminDraft) (*core.User, error) {
	draft.Email = strings.ToLower(strings.TrimSpace(draft.Email))
	if err := s.validate.Struct(draft); err != nil {
		return nil, validationError(err)
	}
	if s.passwords != nil {
		if err := s.passwords.ValidatePassword(ctx, draft.Password); err != nil {
			return nil, err
		}
	}

	created, err := s.users.CreateUser(ctx, &core.User{
		Email:     draft.Email,
		FirstName: draft.FirstName,
		LastName:  draft.LastName,
		Authority: core.AuthoritySysAdmin,
	}, draft.Password)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return nil, core.NewInvalidParameterError("User with email '%s' already present in database!", draft.Email)
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	s.logger.Infow("Admin created", "user_id", created.ID, "email", created.Email)
	return core.RedactUser(created), nil
}

// ListAdmins returns one page of accounts.
func (s *AdminService) ListAdmins(ctx context.Context, link core.PageLink) (core.PageData[*core.User], error) {
	if err := link.Validate(); err != nil {
		return core.PageData[*core.User]{}, err
	}
	page, err := s.users.FindUsers(ctx, link)
	if err != nil {
		return core.PageData[*core.User]{}, fmt.Errorf("failed to list admins: %w", err)
	}
	return core.MapPage(page, core.RedactUser), nil
}

// GetAdmin returns the account with id.
func (s *AdminService) GetAdmin(ctx context.Context, id uuid.UUID) (*core.User, error) {
	user, err := loadUser(ctx, s.users, id)
	if err != nil {
		return nil, err
	}
	return core.RedactUser(user), nil
}

// DeleteAdmin removes the account with id on behalf of requesterID.
//
// Self deletion is refused before anything else is read. The live sessions of the
// account are then drained page by page and disconnected one at a time, strictly
// before the account row is deleted. Disconnect failures are counted and logged but do
// not stop the deletion; a session that is already gone counts as disconnected.
// A session registry that is not serving sockets cannot vouch for any session, so an
// account that still has descriptors is left in place and a DelegatedFailure returned.
func (s *AdminService) DeleteAdmin(ctx context.Context, id, requesterID uuid.UUID) (*DeleteSummary, error) {
	if id == requesterID {
		return nil, core.NewPermissionDeniedError(selfDeleteMessage)
	}
	if _, err := loadUser(ctx, s.users, id); err != nil {
		return nil, err
	}

	conns, err := core.DrainAll(ctx, core.DefaultDrainPageSize,
		func(ctx context.Context, link core.PageLink) (core.PageData[*core.WebSocketConnection], error) {
			return s.connections.FindConnectionsByUserID(ctx, id, link)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of user %s: %w", id, err)
	}

	summary := &DeleteSummary{UserID: id, Sessions: len(conns)}
	for _, conn := range conns {
		err := s.sessions.Disconnect(ctx, conn.ClientID)
		switch {
		case errors.Is(err, session.ErrHubNotRunning):
			return nil, core.NewDelegatedFailureError(
				fmt.Sprintf("Sessions of user [%s] are held by the running server; delete the user through the API", id), err)
		case err == nil, errors.Is(err, session.ErrSessionNotFound):
			summary.Disconnected++
			metrics.SessionDisconnects.WithLabelValues("disconnected").Inc()
		default:
			summary.FailedDisconnects++
			metrics.SessionDisconnects.WithLabelValues("failed").Inc()
			s.logger.Warnw("Failed to disconnect session of deleted user",
				"user_id", id, "client_id", conn.ClientID, "connection_id", conn.ID, "error", err)
		}
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, core.NewNotFoundError("User with id [%s] is not found", id)
		}
		return nil, fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	metrics.AdminsDeleted.Inc()

	s.logger.Infow("Admin deleted",
		"user_id", id,
		"deleted_by", requesterID,
		"sessions", summary.Sessions,
		"disconnected", summary.Disconnected,
		"failed_disconnects", summary.FailedDisconnects)
	return summary, nil
}

func loadUser(ctx context.Context, users UserReader, id uuid.UUID) (*core.User, error) {
	user, err := users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, core.NewNotFoundError("User with id [%s] is not found", id)
		}
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return user, nil
}
