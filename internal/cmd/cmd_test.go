package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/stats"
	"github.com/docgate/docgate/internal/core/submitter"
	apperrors "github.com/docgate/docgate/internal/errors"
)

const testDocument = `{
  "description": {"participantInn": "7700000000"},
  "doc_id": "%s",
  "doc_type": "LP_INTRODUCE_GOODS",
  "owner_inn": "7700000000",
  "products": [{"tnved_code": "6401100000", "uit_code": "uit-1"}]
}`

func writeDocument(t *testing.T, dir, name, docID string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testDocument, docID)), 0o600))
	return path
}

func testConfig(url string) *config.Config {
	return &config.Config{
		Registry: config.RegistryConfig{
			URL:             url,
			Timeout:         5 * time.Second,
			SignatureMode:   "header",
			SignatureHeader: "Signature",
		},
		RateLimit: config.RateLimitConfig{Policy: "fixed_window", Capacity: 10, Interval: time.Second},
		Stats:     config.StatsConfig{Backend: "memory"},
		Workers:   2,
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"nil", nil, foundry.ExitCode(0)},
		{"config envelope", apperrors.NewConfigInvalidError("bad"), foundry.ExitConfigInvalid},
		{"limiter config", fmt.Errorf("load: %w", ratelimit.ErrInvalidConfiguration), foundry.ExitConfigInvalid},
		{"missing file", fmt.Errorf("open: %w", fs.ErrNotExist), foundry.ExitFileNotFound},
		{"transport", &submitter.TransportFailureError{Cause: errors.New("refused")}, foundry.ExitExternalServiceUnavailable},
		{"rejected", &submitter.RemoteRejectedError{StatusCode: 400}, foundry.ExitFailure},
		{"other", errors.New("boom"), foundry.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestResolveSignature(t *testing.T) {
	t.Run("flag value is trimmed", func(t *testing.T) {
		c := &cobra.Command{Use: "test"}
		addSignatureFlags(c)
		require.NoError(t, c.Flags().Set("signature", "  abc \n"))

		sig, err := resolveSignature(c)
		require.NoError(t, err)
		assert.Equal(t, "abc", sig)
	})

	t.Run("file contents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.sig")
		require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

		c := &cobra.Command{Use: "test"}
		addSignatureFlags(c)
		require.NoError(t, c.Flags().Set("signature-file", path))

		sig, err := resolveSignature(c)
		require.NoError(t, err)
		assert.Equal(t, "from-file", sig)
	})

	t.Run("missing file", func(t *testing.T) {
		c := &cobra.Command{Use: "test"}
		addSignatureFlags(c)
		require.NoError(t, c.Flags().Set("signature-file", filepath.Join(t.TempDir(), "absent")))

		_, err := resolveSignature(c)
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestSignatureForPrefersSidecar(t *testing.T) {
	dir := t.TempDir()
	withSidecar := writeDocument(t, dir, "a.json", "a")
	require.NoError(t, os.WriteFile(withSidecar+signatureSuffix, []byte("sidecar\n"), 0o600))
	without := writeDocument(t, dir, "b.json", "b")

	sig, err := signatureFor(withSidecar, "shared")
	require.NoError(t, err)
	assert.Equal(t, "sidecar", sig)

	sig, err = signatureFor(without, "shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", sig)
}

func TestRegistryOverrides(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	addRegistryFlags(c)
	assert.Empty(t, registryOverrides(c))

	require.NoError(t, c.Flags().Set("registry-url", "http://localhost:9999/create"))
	require.NoError(t, c.Flags().Set("signature-mode", "envelope"))
	assert.Equal(t, map[string]any{
		"registry.url":            "http://localhost:9999/create",
		"registry.signature_mode": "envelope",
	}, registryOverrides(c))
}

func TestWriteOutcomesJSON(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	addOutputFlags(c)
	require.NoError(t, c.Flags().Set("output", "json"))
	var buf bytes.Buffer
	c.SetOut(&buf)

	err := writeOutcomes(c, []core.Outcome{
		{Source: "a.json", Status: core.OutcomeAccepted, StatusCode: 200},
		{Source: "b.json", Status: core.OutcomeRejected, StatusCode: 400, Message: "bad inn"},
	})
	require.NoError(t, err)

	var payload struct {
		Outcomes []core.Outcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	require.Len(t, payload.Outcomes, 2)
	assert.Equal(t, core.OutcomeRejected, payload.Outcomes[1].Status)
}

func TestWriteOutcomesToFile(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	addOutputFlags(c)
	path := filepath.Join(t.TempDir(), "nested", "outcomes.md")
	require.NoError(t, c.Flags().Set("output", "markdown"))
	require.NoError(t, c.Flags().Set("out", path))

	require.NoError(t, writeOutcomes(c, []core.Outcome{{Source: "a.json", Status: core.OutcomeAccepted}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Submissions")
}

func TestRunBatchSubmissions(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc core.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		seen[doc.DocID] = r.Header.Get("Signature")
		mu.Unlock()
		if doc.DocID == "doc-rejected" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"duplicate"}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer registry.Close()

	dir := t.TempDir()
	first := writeDocument(t, dir, "first.json", "doc-1")
	require.NoError(t, os.WriteFile(first+signatureSuffix, []byte("first-sig"), 0o600))
	second := writeDocument(t, dir, "second.json", "doc-2")
	rejected := writeDocument(t, dir, "rejected.json", "doc-rejected")
	missing := filepath.Join(dir, "missing.json")

	ctx := context.Background()
	r, err := newRelay(ctx, testConfig(registry.URL))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	sources := []string{first, second, rejected, missing}
	outcomes := runBatchSubmissions(ctx, r, sources, "shared-sig", 2)
	require.Len(t, outcomes, len(sources))

	for i, outcome := range outcomes {
		assert.Equal(t, sources[i], outcome.Source)
	}
	assert.Equal(t, core.OutcomeAccepted, outcomes[0].Status)
	assert.Equal(t, core.OutcomeAccepted, outcomes[1].Status)
	assert.Equal(t, core.OutcomeRejected, outcomes[2].Status)
	assert.Equal(t, http.StatusUnprocessableEntity, outcomes[2].StatusCode)
	assert.Equal(t, core.OutcomeInvalid, outcomes[3].Status)
	assert.ErrorIs(t, outcomes[3].Err, fs.ErrNotExist)

	mu.Lock()
	assert.Equal(t, "first-sig", seen["doc-1"])
	assert.Equal(t, "shared-sig", seen["doc-2"])
	mu.Unlock()

	summary, err := r.stats.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Total)

	err = batchError(outcomes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 4 submissions failed")
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(err))
}

func TestBatchErrorAllAccepted(t *testing.T) {
	assert.NoError(t, batchError([]core.Outcome{{Status: core.OutcomeAccepted}}))
}

func TestBatchErrorKeepsFirstFailureExitCode(t *testing.T) {
	transportErr := &submitter.TransportFailureError{Cause: errors.New("connection refused")}
	missingErr := fmt.Errorf("open missing.json: %w", fs.ErrNotExist)

	tests := []struct {
		name     string
		outcomes []core.Outcome
		want     foundry.ExitCode
	}{
		{
			name: "transport failure",
			outcomes: []core.Outcome{
				{Source: "a.json", Status: core.OutcomeAccepted},
				{Source: "b.json", Status: core.OutcomeTransportError, Message: transportErr.Error(), Err: transportErr},
				{Source: "c.json", Status: core.OutcomeInvalid, Message: missingErr.Error(), Err: missingErr},
			},
			want: foundry.ExitExternalServiceUnavailable,
		},
		{
			name: "missing document",
			outcomes: []core.Outcome{
				{Source: "c.json", Status: core.OutcomeInvalid, Message: missingErr.Error(), Err: missingErr},
			},
			want: foundry.ExitFileNotFound,
		},
		{
			name: "message only",
			outcomes: []core.Outcome{
				{Source: "d.json", Status: core.OutcomeRejected, Message: "remote rejected submission: status 400"},
			},
			want: foundry.ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := batchError(tt.outcomes)
			require.Error(t, err)
			assert.Equal(t, tt.want, ExitCodeFor(err))
		})
	}
}

func TestRunBatchSubmissionsTransportFailureExitCode(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := registry.URL
	registry.Close()

	path := writeDocument(t, t.TempDir(), "doc.json", "doc-1")

	ctx := context.Background()
	r, err := newRelay(ctx, testConfig(url))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	outcomes := runBatchSubmissions(ctx, r, []string{path}, "sig", 1)
	require.Len(t, outcomes, 1)
	require.Equal(t, core.OutcomeTransportError, outcomes[0].Status)
	require.ErrorIs(t, outcomes[0].Err, submitter.ErrTransportFailure)

	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(batchError(outcomes)))
}

func TestRelayCloseFailsQueuedSubmissions(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer registry.Close()

	cfg := testConfig(registry.URL)
	cfg.RateLimit.Capacity = 1
	cfg.RateLimit.Interval = time.Hour

	r, err := newRelay(context.Background(), cfg)
	require.NoError(t, err)

	path := writeDocument(t, t.TempDir(), "doc.json", "doc-1")
	outcome, err := r.submitFile(context.Background(), path, "sig")
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())

	done := make(chan core.Outcome, 1)
	go func() {
		outcome, _ := r.submitFile(context.Background(), path, "sig")
		done <- outcome
	}()

	require.Eventually(t, func() bool { return r.limiter.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case outcome := <-done:
		assert.Equal(t, core.OutcomeLimiterClosed, outcome.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("queued submission did not fail after Close")
	}
}

func TestOpenStatsStore(t *testing.T) {
	store, closeFn := openStatsStore(context.Background(), config.StatsConfig{Backend: "none"})
	assert.Nil(t, store)
	assert.Nil(t, closeFn)

	store, _ = openStatsStore(context.Background(), config.StatsConfig{Backend: "memory"})
	assert.IsType(t, &stats.MemoryStore{}, store)

	// Nothing listens on port 1; the store falls back to memory.
	store, closeFn = openStatsStore(context.Background(), config.StatsConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Addr: "127.0.0.1:1"},
	})
	assert.IsType(t, &stats.MemoryStore{}, store)
	assert.Nil(t, closeFn)
}

func TestFetchLimiterStats(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/limiter", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ratelimit.Stats{
			Policy:    ratelimit.PolicyFixedWindow,
			Capacity:  5,
			Interval:  time.Second,
			Available: 3,
			Waiting:   1,
			Admitted:  12,
		})
	}))
	defer relay.Close()

	snapshot, err := fetchLimiterStats(context.Background(), relay.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, 5, snapshot.Capacity)
	assert.Equal(t, time.Second, snapshot.Interval)
	assert.Equal(t, uint64(12), snapshot.Admitted)

	lines := limitLines(snapshot, true)
	assert.Contains(t, lines, "rate:      5.00/s")
	assert.Contains(t, lines, "waiting:   1")
}

func TestFetchLimiterStatsUnavailable(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not configured", http.StatusServiceUnavailable)
	}))
	defer relay.Close()

	_, err := fetchLimiterStats(context.Background(), relay.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSummaryLines(t *testing.T) {
	assert.Contains(t, summaryLines(stats.Summary{}), "(no submissions recorded)")

	lines := summaryLines(stats.Summary{
		Total:     3,
		ByOutcome: map[string]int64{"rejected": 1, "accepted": 2},
		ByStatus:  map[string]int64{"200": 2, "400": 1},
	})
	outcomes := lines[4:6]
	assert.True(t, sort.StringsAreSorted(outcomes))
	assert.Equal(t, []string{"accepted: 2", "rejected: 1"}, outcomes)
	assert.Contains(t, lines, "400: 1")
}
