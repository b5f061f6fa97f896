package credstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("credstore: not found")

// Credentials is an (account, secret) pair for the remote portal. The core
// treats the secret as opaque; it is handed to the driver and never logged.
type Credentials struct {
	Account   string    `json:"account"`
	Secret    string    `json:"-"`
	SavedAt   time.Time `json:"saved_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PortalState is the serialized remote session state (cookies, tokens) a
// successful run leaves behind. Its presence answers the hasState half of the
// status query.
type PortalState struct {
	Account string    `json:"account"`
	Payload []byte    `json:"-"`
	SavedAt time.Time `json:"saved_at"`
}

// Store persists credentials and saved portal session state.
type Store interface {
	SaveCredentials(ctx context.Context, creds Credentials) error
	GetCredentials(ctx context.Context, account string) (Credentials, error)
	SavePortalState(ctx context.Context, state PortalState) error
	GetPortalState(ctx context.Context, account string) (PortalState, error)
	HasPortalState(ctx context.Context, account string) (bool, error)
	Close() error
}
