// Package ledger holds the locally cached view of account balances.
//
// The settlement backend is authoritative; this cache only ever contains
// values the backend confirmed, refreshed after each settled mutation or
// an explicit balance query. Precondition checks here reject obviously
// bad operations before they reach the bus — the backend re-checks both
// sufficiency and overflow atomically before applying anything.
package ledger

import (
	"fmt"
	"math"
	"sync"

	"wealthledger/internal/model"
)

type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func New() *Ledger {
	return &Ledger{balances: make(map[string]int64)}
}

// Balance returns the last confirmed balance for the owner. The second
// return reports whether any confirmation has been seen yet.
func (l *Ledger) Balance(owner string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[owner]
	return bal, ok
}

// Apply installs a balance reported by a settlement confirmation.
// A negative value would break the ledger invariant and is refused.
func (l *Ledger) Apply(owner string, balance int64) error {
	if balance < 0 {
		return fmt.Errorf("refusing negative confirmed balance %d for %s", balance, owner)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] = balance
	return nil
}

// CheckDeposit validates a deposit before submission: the amount must be
// positive, and if a confirmed balance is cached the addition must not
// overflow int64. With no cached balance the overflow decision is left
// entirely to the backend.
func (l *Ledger) CheckDeposit(owner string, amount int64) error {
	if amount <= 0 {
		return &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[owner]; ok && bal > math.MaxInt64-amount {
		return model.ErrArithmeticOverflow
	}
	return nil
}

// CheckWithdraw validates a withdrawal before submission: the amount must
// be positive and, when a confirmed balance is cached, not exceed it.
func (l *Ledger) CheckWithdraw(owner string, amount int64) error {
	if amount <= 0 {
		return &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[owner]; ok && amount > bal {
		return model.ErrInsufficientFunds
	}
	return nil
}
