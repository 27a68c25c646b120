package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/brokerage-engine/engine"
)

func TestClassify(t *testing.T) {
	underfunded := &engine.UnderfundedPolicyError{
		PolicyID:  "pol-1",
		Premium:   decimal.NewFromInt(1200),
		Remaining: decimal.NewFromInt(1000),
		Shortfall: decimal.NewFromInt(200),
	}

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"policy not found", engine.ErrPolicyNotFound, http.StatusNotFound, CodeNotFound},
		{"commission not found", fmt.Errorf("mark paid: %w", engine.ErrCommissionNotFound), http.StatusNotFound, CodeNotFound},
		{"no rate", engine.ErrNoApplicableRate, http.StatusNotFound, CodeNoApplicableRate},
		{"no tenant", engine.ErrNoTenant, http.StatusUnauthorized, CodeUnauthorized},
		{"underfunded", fmt.Errorf("void: %w", underfunded), http.StatusBadRequest, CodeUnderfundedPolicy},
		{"invalid state", engine.ErrInvalidState, http.StatusBadRequest, CodeInvalidState},
		{"duplicate number", engine.ErrDuplicatePolicyNumber, http.StatusBadRequest, CodeDuplicate},
		{"invalid input", fmt.Errorf("%w: bad cadence", engine.ErrInvalidInput), http.StatusBadRequest, CodeInvalidInput},
		{"concurrent", engine.ErrConcurrentModification, http.StatusConflict, CodeConflict},
		{"other", errors.New("disk full"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, status == http.StatusBadRequest, engine.IsClientError(tc.err))
		})
	}
}
