//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Finch gateway.
//
// These tests verify the COMPLETE pipeline in a single process:
//
//	HTTP API → transport (cache, retries) → normalize → enrichment engine
//	         → repository, with the async path flowing through the event
//	         bus and worker
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. QUERY: One REST call against an upstream database (KEGG, Reactome...),
//    normalized into a canonical shape (structured, tabular, graph, text).
//    Identical queries are answered from the result cache.
//
// 2. ENRICHMENT: Over-representation analysis. Each pathway gets a Fisher
//    exact p-value from the 2x2 table of (in gene set, in pathway) counts
//    against the organism background, then a Benjamini-Hochberg FDR across
//    the database's pathways.
//
// 3. RUN: A persisted enrichment outcome. Async runs move
//    pending → completed (or empty/failed) via the worker.
//
// No live upstream is contacted: a stub KEGG server provides a fixed
// two-pathway world, and a registry overlay points the gateway at it.
//
// | Pathway  | Name               | Members (of bg 100)          | Enriched? |
// |----------|--------------------|------------------------------|-----------|
// | hsa04110 | Cell cycle         | 7157, 672, 990, 991          | yes (2/3) |
// | hsa04115 | p53 signaling      | 7157, 990, 991, 992          | no  (1/3) |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openbioscience/finch/internal/api"
	"github.com/openbioscience/finch/internal/bus"
	"github.com/openbioscience/finch/internal/cache"
	"github.com/openbioscience/finch/internal/dispatch"
	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/enrich"
	"github.com/openbioscience/finch/internal/metrics"
	"github.com/openbioscience/finch/internal/registry"
	"github.com/openbioscience/finch/internal/repository"
	"github.com/openbioscience/finch/internal/resolver"
	"github.com/openbioscience/finch/internal/transport"
	"github.com/openbioscience/finch/internal/worker"
)

// ============================================================================
// API Response Mirrors (matching Finch's wire contract)
// ============================================================================

type queryResult struct {
	Database string `json:"database"`
	Shape    string `json:"shape"`
	Table    *struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
	} `json:"table,omitempty"`
	Text string `json:"text,omitempty"`
}

type enrichRow struct {
	PathwayID   string   `json:"pathwayId"`
	PathwayName string   `json:"pathwayName"`
	Matched     []string `json:"matched"`
	PValue      float64  `json:"pValue"`
	FDR         float64  `json:"fdr"`
	Database    string   `json:"database"`
}

type enrichReport struct {
	Columns []string    `json:"columns"`
	Rows    []enrichRow `json:"rows"`
	Meta    struct {
		RunID     string `json:"runId"`
		Organism  string `json:"organism"`
		GeneCount int    `json:"geneCount"`
	} `json:"meta"`
}

type runView struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Organism  string      `json:"organism"`
	GeneCount int         `json:"geneCount"`
	Rows      []enrichRow `json:"rows"`
}

type asyncAccepted struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// ============================================================================
// Stub KEGG Upstream
// ============================================================================

// keggStub simulates the KEGG REST API: headerless TSV for catalog, link
// and list paths, plus the conv identifier service. It counts hits per
// path so tests can observe caching and retries.
type keggStub struct {
	server *httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newKEGGStub() *keggStub {
	s := &keggStub{hits: make(map[string]int)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *keggStub) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *keggStub) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	switch {
	case r.URL.Path == "/list/pathway/hsa":
		fmt.Fprint(w, "path:hsa04110\tCell cycle - Homo sapiens (human)\n")
		fmt.Fprint(w, "path:hsa04115\tp53 signaling pathway - Homo sapiens (human)\n")

	case r.URL.Path == "/link/hsa/hsa04110":
		for _, g := range []string{"hsa:7157", "hsa:672", "hsa:990", "hsa:991"} {
			fmt.Fprintf(w, "path:hsa04110\t%s\n", g)
		}

	case r.URL.Path == "/link/hsa/hsa04115":
		for _, g := range []string{"hsa:7157", "hsa:990", "hsa:991", "hsa:992"} {
			fmt.Fprintf(w, "path:hsa04115\t%s\n", g)
		}

	case r.URL.Path == "/list/hsa":
		// 100 background genes
		for i := 1; i <= 100; i++ {
			fmt.Fprintf(w, "hsa:%d\tgene%d; test gene %d\n", i, i, i)
		}

	case strings.HasPrefix(r.URL.Path, "/conv/hsa/"):
		known := map[string]string{
			"ncbi-geneid:7157": "hsa:7157",
			"uniprot:TP53":     "hsa:7157",
			"uniprot:BRCA1":    "hsa:672",
			"uniprot:EGFR":     "hsa:1956",
		}
		entries := strings.Split(strings.TrimPrefix(r.URL.Path, "/conv/hsa/"), "+")
		for _, entry := range entries {
			if dst, ok := known[entry]; ok {
				fmt.Fprintf(w, "%s\t%s\n", entry, dst)
			}
		}

	case r.URL.Path == "/boom":
		// Fails on every attempt so retries exhaust
		http.Error(w, "internal error", http.StatusInternalServerError)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// ============================================================================
// In-Process Gateway
// ============================================================================

type finchStack struct {
	api      *httptest.Server
	upstream *keggStub
}

// startFinch wires a complete gateway against the stub upstream: overlay
// registry, SQLite repository, in-memory cache, channel bus and a running
// async worker. Cleanup tears it down in reverse order.
func startFinch(t *testing.T) *finchStack {
	t.Helper()

	stub := newKEGGStub()
	t.Cleanup(stub.server.Close)

	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "registry.yaml")
	overlay := fmt.Sprintf("endpoints:\n  kegg: %s\n", stub.server.URL)
	if err := os.WriteFile(overlayPath, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write registry overlay: %v", err)
	}

	reg, err := registry.Load(overlayPath)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "finch.db"),
	})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cacheImpl, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 1000})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { cacheImpl.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	m := metrics.New()
	client := transport.NewClient(reg, cacheImpl, nil, m, domain.TransportConfig{
		Timeout:     5 * time.Second,
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	})
	dispatcher := dispatch.New(client, m, domain.DispatchConfig{MaxWorkers: 4})
	res := resolver.New(client)
	engine := enrich.New(reg, client, res, m)

	w := worker.NewWorker(eventBus, repo, engine)
	if err := w.Start(); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	srv := api.NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0},
		reg, client, dispatcher, res, engine, repo, cacheImpl, eventBus, m, "integration-test")

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &finchStack{api: ts, upstream: stub}
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func postJSON(t *testing.T, baseURL, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	data := readAll(t, resp)
	return resp, data
}

func getPath(t *testing.T, baseURL, path string) (*http.Response, []byte) {
	t.Helper()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + path)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	data := readAll(t, resp)
	return resp, data
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return buf.Bytes()
}

// waitForRun polls a run until it leaves pending or the timeout expires.
func waitForRun(t *testing.T, baseURL, runID string, timeout time.Duration) runView {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, body := getPath(t, baseURL, "/v1/runs/"+runID)
		if resp.StatusCode == http.StatusOK {
			var run runView
			if err := json.Unmarshal(body, &run); err != nil {
				t.Fatalf("Failed to unmarshal run: %v (body: %s)", err, string(body))
			}
			if run.Status != domain.RunStatusPending {
				return run
			}
		}
		time.Sleep(25 * time.Millisecond)
	}

	t.Fatalf("run %s did not leave pending within %v", runID, timeout)
	return runView{}
}

// ============================================================================
// SCENARIO 1: Query Pipeline with Result Caching
// ============================================================================

func TestQueryPipeline_CachesUpstreamResults(t *testing.T) {
	/*
	   SCENARIO: The same KEGG catalog query issued twice

	   EXPECTED BEHAVIOR:
	   - First call reaches the stub upstream and normalizes headerless
	     TSV into a two-row table with synthesized column names
	   - Second call is answered from the result cache: the upstream
	     hit count for the path stays at 1
	*/
	stack := startFinch(t)

	query := map[string]any{
		"database": "kegg",
		"endpoint": "list/pathway/hsa",
		"shape":    "tabular",
	}

	for call := 1; call <= 2; call++ {
		resp, body := postJSON(t, stack.api.URL, "/v1/query", query)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d: %s", call, resp.StatusCode, string(body))
		}

		var result queryResult
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("call %d: unmarshal: %v", call, err)
		}
		if result.Shape != "tabular" || result.Table == nil {
			t.Fatalf("call %d: expected tabular result, got shape %q", call, result.Shape)
		}
		if len(result.Table.Rows) != 2 {
			t.Errorf("call %d: expected 2 pathway rows, got %d", call, len(result.Table.Rows))
		}
	}

	if hits := stack.upstream.hitCount("/list/pathway/hsa"); hits != 1 {
		t.Errorf("expected 1 upstream hit after 2 identical queries, got %d", hits)
	}

	t.Logf("✓ Second query served from cache")
}

// ============================================================================
// SCENARIO 2: Synchronous Enrichment End to End
// ============================================================================

func TestEnrichment_KnownPathwayScoresHighest(t *testing.T) {
	/*
	   SCENARIO: Enrich {TP53, BRCA1, EGFR} for human against KEGG

	   EXPECTED BEHAVIOR:
	   - Unprefixed gene symbols are converted via the conv service
	     (TP53→hsa:7157, BRCA1→hsa:672, EGFR→hsa:1956)
	   - Cell cycle holds 2 of 3 query genes out of 4 members against a
	     background of 100: Fisher p ≈ 0.0036, BH FDR ≈ 0.0072
	   - p53 signaling holds only 1 of 3: p ≈ 0.116, not significant
	   - Rows come back ascending by p-value
	   - The run persists with every row and is listable
	*/
	stack := startFinch(t)

	resp, body := postJSON(t, stack.api.URL, "/v1/enrich", map[string]any{
		"genes":     []string{"TP53", "BRCA1", "EGFR"},
		"organism":  "human",
		"databases": []string{"kegg"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var report enrichReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}

	if report.Meta.GeneCount != 3 {
		t.Errorf("expected geneCount 3, got %d", report.Meta.GeneCount)
	}
	if report.Meta.Organism != "human" {
		t.Errorf("expected organism human, got %q", report.Meta.Organism)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(report.Rows))
	}

	first := report.Rows[0]
	if first.PathwayID != "hsa04110" {
		t.Errorf("expected hsa04110 ranked first, got %s", first.PathwayID)
	}
	if first.PathwayName != "Cell cycle" {
		t.Errorf("expected organism suffix stripped from name, got %q", first.PathwayName)
	}
	if len(first.Matched) != 2 || first.Matched[0] != "BRCA1" || first.Matched[1] != "TP53" {
		t.Errorf("expected matched [BRCA1 TP53], got %v", first.Matched)
	}
	if first.PValue >= 0.01 {
		t.Errorf("expected p-value below 0.01, got %g", first.PValue)
	}
	if first.FDR >= 0.01 {
		t.Errorf("expected FDR below 0.01, got %g", first.FDR)
	}

	second := report.Rows[1]
	if second.PathwayID != "hsa04115" {
		t.Errorf("expected hsa04115 ranked second, got %s", second.PathwayID)
	}
	if second.PValue <= 0.05 {
		t.Errorf("expected p53 signaling not significant, got p=%g", second.PValue)
	}

	// The run must be fetchable with all rows
	resp, body = getPath(t, stack.api.URL, "/v1/runs/"+report.Meta.RunID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get run: expected 200, got %d", resp.StatusCode)
	}
	var run runView
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Errorf("expected run status completed, got %q", run.Status)
	}
	if len(run.Rows) != 2 {
		t.Errorf("expected persisted run to keep 2 rows, got %d", len(run.Rows))
	}

	// And it must show up in the listing
	resp, body = getPath(t, stack.api.URL, "/v1/runs?limit=10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list runs: expected 200, got %d", resp.StatusCode)
	}
	var listing struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if listing.Count < 1 {
		t.Errorf("expected at least 1 run in listing, got %d", listing.Count)
	}

	t.Logf("✓ Enrichment complete: %s p=%.4g fdr=%.4g", first.PathwayID, first.PValue, first.FDR)
}

// ============================================================================
// SCENARIO 3: Asynchronous Enrichment via the Worker
// ============================================================================

func TestEnrichmentAsync_WorkerPersistsRun(t *testing.T) {
	/*
	   SCENARIO: The same gene set queued through POST /v1/enrich/async

	   EXPECTED BEHAVIOR:
	   - The API answers 202 with a pending run ID before any upstream
	     call happens
	   - The worker picks the request off the event bus, runs the engine
	     and persists the outcome under the submitted ID
	   - Polling GET /v1/runs/{id} converges on status completed with
	     the same two rows the synchronous path produces
	*/
	stack := startFinch(t)

	resp, body := postJSON(t, stack.api.URL, "/v1/enrich/async", map[string]any{
		"genes":     []string{"TP53", "BRCA1", "EGFR"},
		"organism":  "human",
		"databases": []string{"kegg"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, string(body))
	}

	var accepted asyncAccepted
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("unmarshal 202 body: %v", err)
	}
	if accepted.RunID == "" {
		t.Fatal("expected a run ID in the 202 response")
	}
	if accepted.Status != domain.RunStatusPending {
		t.Errorf("expected status pending, got %q", accepted.Status)
	}

	run := waitForRun(t, stack.api.URL, accepted.RunID, 5*time.Second)

	if run.ID != accepted.RunID {
		t.Errorf("expected run stored under submitted ID %s, got %s", accepted.RunID, run.ID)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Errorf("expected status completed, got %q", run.Status)
	}
	if run.GeneCount != 3 {
		t.Errorf("expected geneCount 3, got %d", run.GeneCount)
	}
	if len(run.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(run.Rows))
	}

	t.Logf("✓ Async run %s completed with %d rows", run.ID, len(run.Rows))
}

// ============================================================================
// SCENARIO 4: Upstream Failure Mapping
// ============================================================================

func TestUpstreamFailureMapping(t *testing.T) {
	/*
	   SCENARIO: Upstream misbehavior must map onto distinct HTTP statuses

	   EXPECTED BEHAVIOR:
	   - A 404 from the upstream is the caller's problem: 502 with the
	     upstream status carried in the body, no retry
	   - A persistent 500 exhausts both attempts and maps to 504
	   - An unregistered database never touches the network: 400
	*/
	stack := startFinch(t)

	t.Run("UpstreamRejection", func(t *testing.T) {
		resp, body := postJSON(t, stack.api.URL, "/v1/query", map[string]any{
			"database": "kegg",
			"endpoint": "get/missing",
			"shape":    "text",
		})
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d: %s", resp.StatusCode, string(body))
		}

		var errBody map[string]any
		if err := json.Unmarshal(body, &errBody); err != nil {
			t.Fatalf("unmarshal error body: %v", err)
		}
		if status, _ := errBody["upstreamStatus"].(float64); int(status) != 404 {
			t.Errorf("expected upstreamStatus 404, got %v", errBody["upstreamStatus"])
		}
		if hits := stack.upstream.hitCount("/get/missing"); hits != 1 {
			t.Errorf("4xx must not be retried, got %d hits", hits)
		}
	})

	t.Run("UpstreamTimeout", func(t *testing.T) {
		resp, body := postJSON(t, stack.api.URL, "/v1/query", map[string]any{
			"database": "kegg",
			"endpoint": "boom",
			"shape":    "text",
		})
		if resp.StatusCode != http.StatusGatewayTimeout {
			t.Fatalf("expected 504, got %d: %s", resp.StatusCode, string(body))
		}
		if hits := stack.upstream.hitCount("/boom"); hits != 2 {
			t.Errorf("expected 2 attempts against a failing upstream, got %d", hits)
		}
	})

	t.Run("UnknownDatabase", func(t *testing.T) {
		resp, _ := postJSON(t, stack.api.URL, "/v1/query", map[string]any{
			"database": "plasmodb",
			"endpoint": "list/pathway",
			"shape":    "tabular",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Logf("✓ Failure mapping verified: 4xx→502, exhausted 5xx→504, config→400")
}

// ============================================================================
// SCENARIO 5: Identifier Resolution Through the Gateway
// ============================================================================

func TestResolve_ConvertsThroughUpstream(t *testing.T) {
	/*
	   SCENARIO: Resolve a mixed-format identifier list for human

	   EXPECTED BEHAVIOR:
	   - "7157" is all digits → detected as ncbi-geneid
	   - "TP53" is short uppercase alphanumeric → detected as uniprot
	   - Each format group converts through its own conv call, and both
	     identifiers land on the same KEGG gene hsa:7157
	*/
	stack := startFinch(t)

	resp, body := postJSON(t, stack.api.URL, "/v1/resolve", map[string]any{
		"identifiers": []string{"7157", "TP53"},
		"organism":    "human",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Formats map[string]string `json:"formats"`
		Mapped  map[string]string `json:"mapped"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if result.Formats["7157"] != "ncbi-geneid" {
		t.Errorf("expected 7157 detected as ncbi-geneid, got %q", result.Formats["7157"])
	}
	if result.Formats["TP53"] != "uniprot" {
		t.Errorf("expected TP53 detected as uniprot, got %q", result.Formats["TP53"])
	}
	if result.Mapped["7157"] != "hsa:7157" {
		t.Errorf("expected 7157 mapped to hsa:7157, got %q", result.Mapped["7157"])
	}
	if result.Mapped["TP53"] != "hsa:7157" {
		t.Errorf("expected TP53 mapped to hsa:7157, got %q", result.Mapped["TP53"])
	}

	t.Logf("✓ Both identifiers converged on hsa:7157")
}

// ============================================================================
// SCENARIO 6: Health and Stats with Live Components
// ============================================================================

func TestHealthAndStats_AllComponentsLive(t *testing.T) {
	/*
	   SCENARIO: Every backing component is real and reachable

	   EXPECTED BEHAVIOR:
	   - /health reports healthy (SQLite, LRU cache and channel bus all
	     answer their pings)
	   - /v1/stats reports each component ok
	   - Responses carry request and trace IDs from the middleware chain
	*/
	stack := startFinch(t)

	resp, body := getPath(t, stack.api.URL, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("expected X-Trace-ID response header")
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %q", health.Status)
	}

	resp, body = getPath(t, stack.api.URL, "/v1/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", resp.StatusCode)
	}
	var stats struct {
		Version    string            `json:"version"`
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Version != "integration-test" {
		t.Errorf("expected version integration-test, got %q", stats.Version)
	}
	for _, component := range []string{"repository", "cache", "eventBus"} {
		if stats.Components[component] != "ok" {
			t.Errorf("expected component %s ok, got %q", component, stats.Components[component])
		}
	}

	t.Logf("✓ Gateway healthy with all components live")
}
