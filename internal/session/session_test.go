package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wealthledger/internal/ledger"
	"wealthledger/internal/loan"
	"wealthledger/internal/model"
)

// stubSubmitter plays the settlement backend: it keeps one balance per
// owner and applies deposits/withdrawals like the real engine would.
type stubSubmitter struct {
	mu       sync.Mutex
	balances map[string]int64
	submits  []model.OperationDescriptor
	queries  int

	// entered receives one value when Submit is called; release blocks
	// Submit until closed. Both optional.
	entered chan struct{}
	release chan struct{}

	// reject, when set, overrides settlement with this confirmation.
	reject *model.Confirmation
	// err, when set, is returned as a transport failure.
	err error
}

func newStub() *stubSubmitter {
	return &stubSubmitter{balances: make(map[string]int64)}
}

func (s *stubSubmitter) Submit(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, desc)

	if s.err != nil {
		return nil, s.err
	}
	if s.reject != nil {
		return s.reject, nil
	}

	conf := &model.Confirmation{OperationID: desc.ID, Status: model.ConfirmationSettled}
	switch desc.Kind {
	case model.OpDeposit:
		s.balances[desc.Owner] += desc.Amount
		conf.Balance = s.balances[desc.Owner]
	case model.OpWithdraw:
		if desc.Amount > s.balances[desc.Owner] {
			return &model.Confirmation{
				OperationID: desc.ID,
				Status:      model.ConfirmationRejected,
				Code:        model.CodeInsufficientFunds,
			}, nil
		}
		s.balances[desc.Owner] -= desc.Amount
		conf.Balance = s.balances[desc.Owner]
	case model.OpRequestLoan:
		conf.LoanStatus = string(loan.StatusSubmitted)
	}
	return conf, nil
}

func (s *stubSubmitter) QueryBalance(ctx context.Context, owner string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.balances[owner], nil
}

func (s *stubSubmitter) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submits)
}

func newOrchestrator(s *stubSubmitter, timeout time.Duration) *Orchestrator {
	return New(s, ledger.New(), timeout)
}

func TestDepositWithdrawScenario(t *testing.T) {
	stub := newStub()
	sess := newOrchestrator(stub, 0).Session("alice")
	ctx := context.Background()

	bal, err := sess.Balance(ctx)
	if err != nil || bal != 0 {
		t.Fatalf("expected starting balance 0, got %d (%v)", bal, err)
	}

	bal, err = sess.Deposit(ctx, 10)
	if err != nil || bal != 10 {
		t.Fatalf("expected balance 10 after deposit, got %d (%v)", bal, err)
	}

	_, err = sess.Withdraw(ctx, 15)
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	bal, err = sess.Balance(ctx)
	if err != nil || bal != 10 {
		t.Fatalf("failed withdraw must leave balance at 10, got %d (%v)", bal, err)
	}

	bal, err = sess.Withdraw(ctx, 10)
	if err != nil || bal != 0 {
		t.Fatalf("expected balance 0 after withdrawing all, got %d (%v)", bal, err)
	}
}

func TestWithdrawRejectedLocallyIsNotForwarded(t *testing.T) {
	stub := newStub()
	sess := newOrchestrator(stub, 0).Session("alice")
	ctx := context.Background()

	if _, err := sess.Deposit(ctx, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := stub.submitCount()

	if _, err := sess.Withdraw(ctx, 15); !errors.Is(err, model.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if stub.submitCount() != before {
		t.Fatal("locally rejected withdrawal must not reach the backend")
	}
}

func TestConcurrentSameOwner(t *testing.T) {
	stub := newStub()
	stub.entered = make(chan struct{}, 1)
	stub.release = make(chan struct{})
	orch := newOrchestrator(stub, 0)
	ctx := context.Background()

	// Warm the cache so the deposit path doesn't query the balance.
	_, _ = orch.Balance(ctx, "alice")

	errCh := make(chan error, 1)
	go func() {
		_, err := orch.Deposit(ctx, "alice", 5)
		errCh <- err
	}()

	<-stub.entered // first deposit is now InFlight

	if _, err := orch.Deposit(ctx, "alice", 7); !errors.Is(err, model.ErrOperationInProgress) {
		t.Fatalf("expected operation in progress, got %v", err)
	}

	close(stub.release)
	if err := <-errCh; err != nil {
		t.Fatalf("in-flight deposit must settle, got %v", err)
	}

	// Slot cleared: a new operation is accepted.
	if _, err := orch.Deposit(ctx, "alice", 7); err != nil {
		t.Fatalf("expected slot to be free after completion, got %v", err)
	}
}

func TestConcurrentDifferentOwners(t *testing.T) {
	stub := newStub()
	stub.entered = make(chan struct{}, 2)
	stub.release = make(chan struct{})
	orch := newOrchestrator(stub, 0)
	ctx := context.Background()

	_, _ = orch.Balance(ctx, "alice")
	_, _ = orch.Balance(ctx, "bob")

	errCh := make(chan error, 2)
	go func() {
		_, err := orch.Deposit(ctx, "alice", 5)
		errCh <- err
	}()
	go func() {
		_, err := orch.Deposit(ctx, "bob", 5)
		errCh <- err
	}()

	// Both must enter the backend: operations for different owners are
	// independent.
	<-stub.entered
	<-stub.entered
	close(stub.release)

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("expected both owners to proceed, got %v", err)
		}
	}
}

func TestOperationTimeout(t *testing.T) {
	stub := newStub()
	stub.release = make(chan struct{}) // never closed: backend hangs
	orch := newOrchestrator(stub, 20*time.Millisecond)
	ctx := context.Background()

	_, _ = orch.Balance(ctx, "alice")

	_, err := orch.Deposit(ctx, "alice", 5)
	if !errors.Is(err, model.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	// The slot must be freed so the caller can re-query and resubmit.
	if _, err := orch.RefreshBalance(ctx, "alice"); err != nil {
		t.Fatalf("balance re-query after timeout failed: %v", err)
	}
	close(stub.release)
	if _, err := orch.Deposit(ctx, "alice", 5); err != nil {
		t.Fatalf("resubmission after timeout failed: %v", err)
	}
}

func TestBackendRejectionMapsToDomainError(t *testing.T) {
	stub := newStub()
	stub.reject = &model.Confirmation{
		Status: model.ConfirmationRejected,
		Code:   model.CodeArithmeticOverflow,
	}
	orch := newOrchestrator(stub, 0)
	ctx := context.Background()

	_, err := orch.Deposit(ctx, "alice", 5)
	if !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow from backend rejection, got %v", err)
	}

	// Failed transitions back to Idle.
	stub.reject = nil
	if _, err := orch.Deposit(ctx, "alice", 5); err != nil {
		t.Fatalf("expected slot free after failure, got %v", err)
	}
}

func TestRequestLoanValidation(t *testing.T) {
	stub := newStub()
	orch := newOrchestrator(stub, 0)
	ctx := context.Background()

	status, err := orch.RequestLoan(ctx, "alice", 0, 12)
	if status != loan.StatusRejected {
		t.Fatalf("expected rejected status, got %q", status)
	}
	var verr *model.ValidationError
	if !errors.As(err, &verr) || verr.Field != "amount" {
		t.Fatalf("expected validation error citing amount, got %v", err)
	}
	if stub.submitCount() != 0 {
		t.Fatal("rejected loan request must never reach the backend")
	}

	status, err = orch.RequestLoan(ctx, "alice", 1000, 12)
	if err != nil || status != loan.StatusSubmitted {
		t.Fatalf("expected submitted status, got %q (%v)", status, err)
	}
	if stub.submitCount() != 1 {
		t.Fatalf("expected exactly one submission, got %d", stub.submitCount())
	}
}

func TestChangeCredentialValidatesNewSecretFirst(t *testing.T) {
	stub := newStub()
	orch := newOrchestrator(stub, 0)

	err := orch.ChangeCredential(context.Background(), "alice", "1234", "")
	if !errors.Is(err, model.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if stub.submitCount() != 0 {
		t.Fatal("malformed new secret must be rejected before any backend call")
	}
}

func TestBalanceReadDoesNotTakeSlot(t *testing.T) {
	stub := newStub()
	stub.entered = make(chan struct{}, 1)
	stub.release = make(chan struct{})
	orch := newOrchestrator(stub, 0)
	ctx := context.Background()

	_, _ = orch.Balance(ctx, "alice")

	errCh := make(chan error, 1)
	go func() {
		_, err := orch.Deposit(ctx, "alice", 5)
		errCh <- err
	}()
	<-stub.entered

	// A read while a mutation is InFlight returns the last-confirmed
	// balance without suspending.
	bal, err := orch.Balance(ctx, "alice")
	if err != nil || bal != 0 {
		t.Fatalf("expected last-confirmed balance 0 during in-flight op, got %d (%v)", bal, err)
	}

	close(stub.release)
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBalanceUsesCacheAfterMutation(t *testing.T) {
	stub := newStub()
	orch := newOrchestrator(stub, 0)
	ctx := context.Background()

	if _, err := orch.Deposit(ctx, "alice", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	queriesBefore := stub.queries

	bal, err := orch.Balance(ctx, "alice")
	if err != nil || bal != 10 {
		t.Fatalf("expected cached balance 10, got %d (%v)", bal, err)
	}
	if stub.queries != queriesBefore {
		t.Fatal("read after a settled mutation must come from the cache")
	}
}

func TestDescriptorCarriesIdempotencyKey(t *testing.T) {
	stub := newStub()
	orch := newOrchestrator(stub, 0)
	ctx := context.Background()

	_, _ = orch.Deposit(ctx, "alice", 5)
	_, _ = orch.Deposit(ctx, "alice", 5)

	if stub.submitCount() != 2 {
		t.Fatalf("expected two submissions, got %d", stub.submitCount())
	}
	if stub.submits[0].ID == "" || stub.submits[0].ID == stub.submits[1].ID {
		t.Fatal("each operation must carry a unique idempotency key")
	}
}
