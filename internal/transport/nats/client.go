package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"wealthledger/internal/model"
	"wealthledger/internal/settlement"
)

const (
	subjectSubmit  = "settlement.submit"
	subjectBalance = "settlement.balance"
)

// Client submits operations to the settlement backend over NATS
// request/reply. The caller's context deadline is the bounded wait for a
// confirmation.
type Client struct {
	nc *nats.Conn
}

var _ settlement.Submitter = (*Client)(nil)

func NewClient(nc *nats.Conn) *Client {
	return &Client{nc: nc}
}

func (c *Client) Submit(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}

	msg, err := c.nc.RequestWithContext(ctx, subjectSubmit, data)
	if err != nil {
		return nil, mapTransportErr(err)
	}

	var conf model.Confirmation
	if err := json.Unmarshal(msg.Data, &conf); err != nil {
		return nil, fmt.Errorf("%w: malformed confirmation: %v", model.ErrConnection, err)
	}
	return &conf, nil
}

func (c *Client) QueryBalance(ctx context.Context, owner string) (int64, error) {
	data, err := json.Marshal(model.BalanceQuery{Owner: owner})
	if err != nil {
		return 0, fmt.Errorf("marshal balance query: %w", err)
	}

	msg, err := c.nc.RequestWithContext(ctx, subjectBalance, data)
	if err != nil {
		return 0, mapTransportErr(err)
	}

	var reply model.BalanceReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return 0, fmt.Errorf("%w: malformed balance reply: %v", model.ErrConnection, err)
	}
	if reply.Code != "" {
		return 0, model.ErrFromCode(reply.Code, "", reply.Message)
	}
	return reply.Balance, nil
}

// mapTransportErr folds NATS failures into the domain taxonomy: deadline
// expiry is the ambiguous timeout, everything else is a connection error.
func mapTransportErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return model.ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", model.ErrConnection, err)
	}
}
