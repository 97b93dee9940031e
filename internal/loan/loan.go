// Package loan validates and records loan requests. Submission is the
// whole contract: a Submitted status means the request reached the
// settlement backend, not that any loan was approved.
package loan

import (
	"wealthledger/internal/model"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusRejected  Status = "rejected"
	StatusSubmitted Status = "submitted"
)

type Request struct {
	Owner          string `json:"owner"`
	Amount         int64  `json:"amount"`
	DurationMonths int    `json:"duration_months"`
	Status         Status `json:"status"`
}

// Validate rejects malformed loan fields before anything is forwarded.
// The returned error names the offending field.
func Validate(amount int64, durationMonths int) error {
	if amount <= 0 {
		return &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if durationMonths <= 0 {
		return &model.ValidationError{Field: "duration_months", Reason: "must be positive"}
	}
	return nil
}
