// Package session serializes ledger operations per owner and exposes one
// uniform request interface to the presentation layer.
//
// Per owner the lifecycle is Idle → InFlight → {Completed, Failed} → Idle.
// At most one mutating operation is in flight per owner at a time; a
// second submission fails with ErrOperationInProgress and must be retried
// after the current one settles. Reads never take the slot. Once a
// descriptor is on the bus it cannot be cancelled: the caller only waits
// for the terminal outcome, bounded by the configured operation timeout.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wealthledger/internal/authgate"
	"wealthledger/internal/ledger"
	"wealthledger/internal/loan"
	"wealthledger/internal/model"
	"wealthledger/internal/settlement"
)

// Service is what transport layers depend on, not the concrete
// orchestrator.
type Service interface {
	Balance(ctx context.Context, owner string) (int64, error)
	RefreshBalance(ctx context.Context, owner string) (int64, error)
	Deposit(ctx context.Context, owner string, amount int64) (int64, error)
	Withdraw(ctx context.Context, owner string, amount int64) (int64, error)
	ChangeCredential(ctx context.Context, owner, attemptedCurrent, newSecret string) error
	RequestLoan(ctx context.Context, owner string, amount int64, durationMonths int) (loan.Status, error)
}

type pendingOperation struct {
	ID      string
	Kind    model.OperationKind
	State   model.OperationState
	Started time.Time
}

type Orchestrator struct {
	submitter settlement.Submitter
	cache     *ledger.Ledger
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingOperation
}

var _ Service = (*Orchestrator)(nil)

// New builds an orchestrator over the given settlement submitter.
// timeout bounds the wait for each confirmation; zero means no local
// bound beyond the caller's context.
func New(sub settlement.Submitter, cache *ledger.Ledger, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		submitter: sub,
		cache:     cache,
		timeout:   timeout,
		pending:   make(map[string]*pendingOperation),
	}
}

// Session returns a handle bound to one owner. The handle is a plain
// value owned by the caller; all shared state stays inside the
// orchestrator, guarded by its own lock.
func (o *Orchestrator) Session(owner string) *Session {
	return &Session{owner: owner, orch: o}
}

// begin performs the atomic check-and-set on the owner's pending slot.
func (o *Orchestrator) begin(owner string, kind model.OperationKind) (*pendingOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pending[owner]; ok && p.State == model.StateInFlight {
		return nil, model.ErrOperationInProgress
	}
	p := &pendingOperation{
		ID:      uuid.NewString(),
		Kind:    kind,
		State:   model.StateInFlight,
		Started: time.Now(),
	}
	o.pending[owner] = p
	return p, nil
}

// finish records the terminal state and frees the slot so the next
// operation can be accepted.
func (o *Orchestrator) finish(owner string, p *pendingOperation, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		p.State = model.StateFailed
	} else {
		p.State = model.StateCompleted
	}
	if o.pending[owner] == p {
		delete(o.pending, owner)
	}
}

// submit sends one descriptor and waits for its terminal outcome.
func (o *Orchestrator) submit(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	conf, err := o.submitter.Submit(ctx, desc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, model.ErrTimeout) {
			// Ambiguous: the backend may still apply the operation.
			// The caller must re-query the balance before resubmitting.
			slog.Warn("settlement confirmation timed out",
				"owner", desc.Owner, "kind", desc.Kind, "operation_id", desc.ID)
			return nil, model.ErrTimeout
		}
		return nil, err
	}
	if !conf.Settled() {
		return nil, model.ErrFromCode(conf.Code, conf.Field, conf.Message)
	}
	return conf, nil
}

func (o *Orchestrator) descriptor(owner string, p *pendingOperation) model.OperationDescriptor {
	return model.OperationDescriptor{
		ID:          p.ID,
		Kind:        p.Kind,
		Owner:       owner,
		SubmittedAt: p.Started,
	}
}

// Balance returns the last confirmed balance without suspending on the
// backend; the first read for an owner has nothing cached and performs
// the initial query, which also creates the account implicitly.
func (o *Orchestrator) Balance(ctx context.Context, owner string) (int64, error) {
	if bal, ok := o.cache.Balance(owner); ok {
		return bal, nil
	}
	return o.RefreshBalance(ctx, owner)
}

// RefreshBalance queries the authoritative balance and installs it in the
// cache. It is idempotent and safe to call on any cadence.
func (o *Orchestrator) RefreshBalance(ctx context.Context, owner string) (int64, error) {
	bal, err := o.submitter.QueryBalance(ctx, owner)
	if err != nil {
		return 0, err
	}
	if err := o.cache.Apply(owner, bal); err != nil {
		return 0, err
	}
	return bal, nil
}

func (o *Orchestrator) Deposit(ctx context.Context, owner string, amount int64) (int64, error) {
	if err := o.cache.CheckDeposit(owner, amount); err != nil {
		return 0, err
	}
	p, err := o.begin(owner, model.OpDeposit)
	if err != nil {
		return 0, err
	}
	desc := o.descriptor(owner, p)
	desc.Amount = amount

	conf, err := o.submit(ctx, desc)
	o.finish(owner, p, err)
	if err != nil {
		return 0, err
	}
	if err := o.cache.Apply(owner, conf.Balance); err != nil {
		return 0, err
	}
	return conf.Balance, nil
}

func (o *Orchestrator) Withdraw(ctx context.Context, owner string, amount int64) (int64, error) {
	if err := o.cache.CheckWithdraw(owner, amount); err != nil {
		return 0, err
	}
	p, err := o.begin(owner, model.OpWithdraw)
	if err != nil {
		return 0, err
	}
	desc := o.descriptor(owner, p)
	desc.Amount = amount

	conf, err := o.submit(ctx, desc)
	o.finish(owner, p, err)
	if err != nil {
		return 0, err
	}
	if err := o.cache.Apply(owner, conf.Balance); err != nil {
		return 0, err
	}
	return conf.Balance, nil
}

func (o *Orchestrator) ChangeCredential(ctx context.Context, owner, attemptedCurrent, newSecret string) error {
	if err := authgate.ValidateNewSecret(newSecret); err != nil {
		return err
	}
	p, err := o.begin(owner, model.OpChangeCredential)
	if err != nil {
		return err
	}
	desc := o.descriptor(owner, p)
	desc.CurrentSecret = attemptedCurrent
	desc.NewSecret = newSecret

	_, err = o.submit(ctx, desc)
	o.finish(owner, p, err)
	return err
}

func (o *Orchestrator) RequestLoan(ctx context.Context, owner string, amount int64, durationMonths int) (loan.Status, error) {
	if err := loan.Validate(amount, durationMonths); err != nil {
		return loan.StatusRejected, err
	}
	p, err := o.begin(owner, model.OpRequestLoan)
	if err != nil {
		return loan.StatusRequested, err
	}
	desc := o.descriptor(owner, p)
	desc.Amount = amount
	desc.DurationMonths = durationMonths

	conf, err := o.submit(ctx, desc)
	o.finish(owner, p, err)
	if err != nil {
		return loan.StatusRequested, err
	}
	if conf.LoanStatus != "" {
		return loan.Status(conf.LoanStatus), nil
	}
	return loan.StatusSubmitted, nil
}

// Session is a per-owner handle over the orchestrator.
type Session struct {
	owner string
	orch  *Orchestrator
}

func (s *Session) Owner() string { return s.owner }

func (s *Session) Balance(ctx context.Context) (int64, error) {
	return s.orch.Balance(ctx, s.owner)
}

func (s *Session) RefreshBalance(ctx context.Context) (int64, error) {
	return s.orch.RefreshBalance(ctx, s.owner)
}

func (s *Session) Deposit(ctx context.Context, amount int64) (int64, error) {
	return s.orch.Deposit(ctx, s.owner, amount)
}

func (s *Session) Withdraw(ctx context.Context, amount int64) (int64, error) {
	return s.orch.Withdraw(ctx, s.owner, amount)
}

func (s *Session) ChangeCredential(ctx context.Context, attemptedCurrent, newSecret string) error {
	return s.orch.ChangeCredential(ctx, s.owner, attemptedCurrent, newSecret)
}

func (s *Session) RequestLoan(ctx context.Context, amount int64, durationMonths int) (loan.Status, error) {
	return s.orch.RequestLoan(ctx, s.owner, amount, durationMonths)
}
