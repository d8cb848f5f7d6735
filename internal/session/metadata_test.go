package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/config"
)

func TestEnrichUsesLookupResults(t *testing.T) {
	locSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"city":"Lisbon","region":"Lisboa","country_name":"Portugal","timezone":"Europe/Lisbon"}`))
	}))
	defer locSrv.Close()
	ipSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"203.0.113.7"}`))
	}))
	defer ipSrv.Close()

	e := NewEnricher(config.MetadataConfig{
		LookupTimeout: time.Second,
		LocationURLs:  []string{locSrv.URL},
		IPURLs:        []string{ipSrv.URL},
	}, zap.NewNop())

	meta := e.Enrich(context.Background())
	assert.Equal(t, "Lisbon", meta.City)
	assert.Equal(t, "Portugal", meta.Country)
	assert.Equal(t, "Europe/Lisbon", meta.Timezone)
	assert.Equal(t, "203.0.113.7", meta.IPAddress)
	assert.NotEmpty(t, meta.OS)
	assert.NotEmpty(t, meta.UserAgent)
}

func TestEnrichFallsBackOnFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer failing.Close()

	e := NewEnricher(config.MetadataConfig{
		LookupTimeout: 100 * time.Millisecond,
		LocationURLs:  []string{failing.URL},
		IPURLs:        []string{failing.URL},
	}, zap.NewNop())

	meta := e.Enrich(context.Background())
	assert.Empty(t, meta.City)
	assert.Empty(t, meta.IPAddress)
	// Timezone always has a local fallback.
	assert.NotEmpty(t, meta.Timezone)
}

func TestEnrichBoundedBySlowLookup(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer slow.Close()

	e := NewEnricher(config.MetadataConfig{
		LookupTimeout: 50 * time.Millisecond,
		LocationURLs:  []string{slow.URL},
		IPURLs:        []string{slow.URL},
	}, zap.NewNop())

	start := time.Now()
	meta := e.Enrich(context.Background())
	assert.Less(t, time.Since(start), time.Second, "enrichment must not hang on slow lookups")
	assert.Empty(t, meta.City)
	assert.NotEmpty(t, meta.Timezone)
}

func TestEnrichTriesFallbackProvider(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	ipSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("198.51.100.4"))
	}))
	defer ipSrv.Close()

	e := NewEnricher(config.MetadataConfig{
		LookupTimeout: time.Second,
		IPURLs:        []string{failing.URL, ipSrv.URL},
	}, zap.NewNop())

	meta := e.Enrich(context.Background())
	assert.Equal(t, "198.51.100.4", meta.IPAddress)
}
