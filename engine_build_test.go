package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/config"
)

func TestGCConfigFrom_ParsesAllFields(t *testing.T) {
	cfg := gcConfigFrom(config.SyncConfig{
		GCMaxOpAge:             "48h",
		GCMinInterval:          "10m",
		GCMaxOperationsPerFile: 500,
		QuotaBytes:             "1GB",
		AggressiveGCThreshold:  0.9,
	})

	assert.Equal(t, 48*time.Hour, cfg.MaxOpAge)
	assert.Equal(t, 10*time.Minute, cfg.MinGCInterval)
	assert.Equal(t, 500, cfg.MaxOperationsPerFile)
	assert.Equal(t, int64(1_000_000_000), cfg.QuotaBytes)
	assert.InDelta(t, 0.9, cfg.AggressiveThreshold, 0.0001)
}

func TestGCConfigFrom_FallsBackOnUnparseableDurations(t *testing.T) {
	cfg := gcConfigFrom(config.SyncConfig{GCMaxOpAge: "not-a-duration", QuotaBytes: "garbage"})

	assert.Zero(t, cfg.MaxOpAge)
	assert.Zero(t, cfg.QuotaBytes)
}

func TestHTTPProber_ReachableServerReportsTrue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := httpProber{client: defaultHTTPClient(), baseURL: srv.URL}
	assert.True(t, p.Probe(context.Background()))
}

func TestHTTPProber_UnreachableServerReportsFalse(t *testing.T) {
	p := httpProber{client: defaultHTTPClient(), baseURL: "http://127.0.0.1:1"}
	assert.False(t, p.Probe(context.Background()))
}

func TestHTTPProber_ServerErrorReportsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := httpProber{client: defaultHTTPClient(), baseURL: srv.URL}
	assert.False(t, p.Probe(context.Background()))

	require.NotNil(t, p.client)
}
