package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"wealthledger/internal/model"
	"wealthledger/internal/settlement"
)

// Handler is the backend side of the settlement bus: it queue-subscribes
// to the submit and balance subjects and delegates to the engine.
type Handler struct {
	backend settlement.Backend
	nc      *nats.Conn
	subs    []*nats.Subscription
}

func NewHandler(backend settlement.Backend, nc *nats.Conn) *Handler {
	return &Handler{backend: backend, nc: nc}
}

// Start subscribes to the settlement subjects and blocks until ctx is
// cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	s1, err := h.nc.QueueSubscribe(subjectSubmit, "settlement_group", func(m *nats.Msg) {
		var desc model.OperationDescriptor
		if err := json.Unmarshal(m.Data, &desc); err != nil {
			slog.Error("nats: failed to unmarshal operation descriptor", "error", err)
			h.respond(m, &model.Confirmation{
				Status:  model.ConfirmationRejected,
				Code:    model.CodeConnection,
				Message: "malformed descriptor",
			})
			return
		}

		conf, err := h.backend.Settle(ctx, desc)
		if err != nil {
			slog.Error("nats: settle failed",
				"error", err, "owner", desc.Owner, "kind", desc.Kind, "operation_id", desc.ID)
			conf = &model.Confirmation{
				OperationID: desc.ID,
				Status:      model.ConfirmationRejected,
				Code:        model.CodeConnection,
				Message:     "settlement engine failure",
			}
		}
		h.respond(m, conf)
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s1)

	s2, err := h.nc.QueueSubscribe(subjectBalance, "settlement_group", func(m *nats.Msg) {
		var query model.BalanceQuery
		if err := json.Unmarshal(m.Data, &query); err != nil {
			slog.Error("nats: failed to unmarshal balance query", "error", err)
			h.respond(m, &model.BalanceReply{Code: model.CodeConnection, Message: "malformed query"})
			return
		}

		bal, err := h.backend.Balance(ctx, query.Owner)
		if err != nil {
			slog.Error("nats: balance query failed", "error", err, "owner", query.Owner)
			h.respond(m, &model.BalanceReply{
				Owner:   query.Owner,
				Code:    model.CodeConnection,
				Message: "settlement engine failure",
			})
			return
		}
		h.respond(m, &model.BalanceReply{Owner: query.Owner, Balance: bal})
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s2)

	slog.Info("settlement bus handler is running")

	// Block until context is cancelled.
	<-ctx.Done()
	slog.Info("settlement bus handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

func (h *Handler) respond(m *nats.Msg, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("nats: failed to marshal reply", "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		slog.Error("nats: failed to respond", "error", err)
	}
}
