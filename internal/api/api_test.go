package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrybarczyk/braiins/internal/hashchain"
	"github.com/rrybarczyk/braiins/internal/monitor"
)

type fakeSource struct{}

func (fakeSource) Status() monitor.Status                        { return monitor.Status{Chains: map[int]monitor.ChainSnapshot{}} }
func (fakeSource) Counters() map[int]hashchain.Counters { return map[int]hashchain.Counters{} }

func TestHealthzReturnsOK(t *testing.T) {
	s := New(fakeSource{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStatusReturnsChainsAndCounters(t *testing.T) {
	s := New(fakeSource{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chains")
	assert.Contains(t, rec.Body.String(), "counters")
}
