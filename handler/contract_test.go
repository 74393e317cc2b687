package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/contract"
)

func TestContractHandlerStatusReturnsLastReport(t *testing.T) {
	sentinel := contract.New(zerolog.Nop(), fakeAdapter{}, contract.DefaultDocument(), 0, false, nil)
	sentinel.Check(httptest.NewRequest(http.MethodGet, "/", nil).Context())

	h := NewContractHandler(zerolog.Nop(), sentinel)

	req := httptest.NewRequest(http.MethodGet, "/v1/contract/status", nil)
	rw := httptest.NewRecorder()
	h.Status(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
}

func TestContractHandlerRecheckReturns422WhenBlocked(t *testing.T) {
	// fakeAdapter's Exec always returns an empty Result, so every DESCRIBE
	// lookup comes back with zero columns — the sentinel sees every table
	// contract as violated, same as sentinel_test.go's describeOK=false case.
	sentinel := contract.New(zerolog.Nop(), fakeAdapter{}, contract.DefaultDocument(), 0, true, nil)

	h := NewContractHandler(zerolog.Nop(), sentinel)

	req := httptest.NewRequest(http.MethodPost, "/v1/contract/recheck", nil)
	rw := httptest.NewRecorder()
	h.Recheck(rw, req)

	require.Equal(t, http.StatusUnprocessableEntity, rw.Code)
}
