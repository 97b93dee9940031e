package infrastructure

import "context"

// Server is anything the App supervises: HTTP server, bus handler,
// worker. Start blocks until failure or shutdown; Stop is the graceful
// counterpart.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
