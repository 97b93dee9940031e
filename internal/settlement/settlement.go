// Package settlement defines the contracts between the client core and
// the settlement backend. The session orchestrator talks to a Submitter;
// the bus handler on the engine side delegates to a Backend.
package settlement

import (
	"context"

	"wealthledger/internal/model"
)

// Submitter is the client core's only path to the settlement backend.
// Submit blocks until a terminal confirmation, a transport failure, or
// the context deadline — whichever comes first.
type Submitter interface {
	Submit(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error)
	QueryBalance(ctx context.Context, owner string) (int64, error)
}

// Backend executes descriptors against the authoritative store.
// A rejected confirmation is a normal outcome and is returned with a nil
// error; a non-nil error means the engine itself failed (storage down,
// codec fault) and maps to a connection-class rejection on the wire.
type Backend interface {
	Settle(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error)
	Balance(ctx context.Context, owner string) (int64, error)
}
