package storage

import "errors"

// Storage error constants
var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrCredentialsNotFound is returned when a user has no stored credentials
	ErrCredentialsNotFound = errors.New("user credentials not found")

	// ErrSettingsNotFound is returned when no settings record exists for a key
	ErrSettingsNotFound = errors.New("admin settings not found")

	// ErrConnectionNotFound is returned when a websocket connection descriptor is not found
	ErrConnectionNotFound = errors.New("websocket connection not found")

	// ErrDuplicateEmail is returned when creating a user whose email is taken
	ErrDuplicateEmail = errors.New("user with this email already exists")

	// ErrDuplicateClientID is returned when a connection descriptor reuses a registered client id
	ErrDuplicateClientID = errors.New("websocket client id already registered")

	// ErrDatabaseClosed is returned when the database connection is closed
	ErrDatabaseClosed = errors.New("database connection is closed")
)
