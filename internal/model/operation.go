package model

import "time"

type OperationKind string

const (
	OpDeposit          OperationKind = "deposit"
	OpWithdraw         OperationKind = "withdraw"
	OpChangeCredential OperationKind = "change_credential"
	OpRequestLoan      OperationKind = "request_loan"
)

type OperationState string

const (
	StateInFlight  OperationState = "in_flight"
	StateCompleted OperationState = "completed"
	StateFailed    OperationState = "failed"
)

// OperationDescriptor is the unit of work submitted to the settlement
// backend. ID doubles as the idempotency key: resubmitting the same
// descriptor never applies the mutation twice.
type OperationDescriptor struct {
	ID             string        `json:"id"`
	Kind           OperationKind `json:"kind"`
	Owner          string        `json:"owner"`
	Amount         int64         `json:"amount,omitempty"`
	DurationMonths int           `json:"duration_months,omitempty"`
	CurrentSecret  string        `json:"current_secret,omitempty"`
	NewSecret      string        `json:"new_secret,omitempty"`
	SubmittedAt    time.Time     `json:"submitted_at"`
}

const (
	ConfirmationSettled  = "settled"
	ConfirmationRejected = "rejected"
)

// Confirmation is the settlement backend's terminal answer for one
// descriptor. Balance carries the confirmed balance after deposit and
// withdraw operations; LoanStatus is set for loan requests only.
type Confirmation struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
	Code        string `json:"code,omitempty"`
	Field       string `json:"field,omitempty"`
	Message     string `json:"message,omitempty"`
	Balance     int64  `json:"balance,omitempty"`
	LoanStatus  string `json:"loan_status,omitempty"`
}

func (c *Confirmation) Settled() bool {
	return c.Status == ConfirmationSettled
}

type BalanceQuery struct {
	Owner string `json:"owner"`
}

type BalanceReply struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// TransactionEvent is published on the bus after a balance mutation
// settles, and consumed by the history worker.
type TransactionEvent struct {
	Owner        string        `json:"owner"`
	Kind         OperationKind `json:"kind"`
	Amount       int64         `json:"amount"`
	OperationID  string        `json:"operation_id"`
	BalanceAfter int64         `json:"balance_after"`
	CreatedAt    time.Time     `json:"created_at"`
}
