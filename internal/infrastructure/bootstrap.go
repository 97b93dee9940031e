package infrastructure

import (
	"context"

	"wealthledger/internal/config"
	"wealthledger/internal/identity"
	"wealthledger/internal/ledger"
	"wealthledger/internal/repository"
	"wealthledger/internal/session"
	transportHTTP "wealthledger/internal/transport/http"
	transportNATS "wealthledger/internal/transport/nats"
	"wealthledger/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application: the settlement engine (bus handler + history worker) and
// the client core (orchestrator behind the HTTP API).
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	// ── Settlement engine ─────────────────────────────────────────────────────
	repo := repository.NewLedgerRepo(rdb, db, transportNATS.NewBus(nc))

	var servers []Server
	servers = append(servers, transportNATS.NewHandler(repo, nc))
	servers = append(servers, worker.NewTransactionWorker(repo, nc))

	// ── Client core ───────────────────────────────────────────────────────────
	submitter := transportNATS.NewClient(nc)
	orch := session.New(submitter, ledger.New(), cfg.OperationTimeout)

	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		ids := identity.NewVerifier(cfg.JWTSecret)
		servers = append(servers, transportHTTP.NewServer(addr, orch, ids))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
