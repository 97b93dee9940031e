package loan

import (
	"errors"
	"testing"

	"wealthledger/internal/model"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		amount    int64
		months    int
		wantField string
	}{
		{"valid", 1000, 12, ""},
		{"zero amount", 0, 12, "amount"},
		{"negative amount", -5, 12, "amount"},
		{"zero duration", 1000, 0, "duration_months"},
		{"negative duration", 1000, -1, "duration_months"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.amount, tc.months)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.wantField {
				t.Fatalf("expected field %q cited, got %q", tc.wantField, verr.Field)
			}
		})
	}
}
