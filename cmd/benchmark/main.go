// Benchmark tool for load-testing a running Finch gateway.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080
//   go run cmd/benchmark/main.go -csv /path/to/queries.csv -repeat 3
//
// This tool:
//   1. Reads a query set from a CSV file (database,endpoint,shape,params),
//      or falls back to a built-in set spanning four databases
//   2. Fires the set at POST /v1/query with concurrent workers
//   3. Runs the set -repeat times; the first pass is cold, later passes
//      measure the cache-warm path
//   4. Reports latency percentiles, throughput and the cold/warm speedup
//
// The CSV drives GET-style lookups; params is a semicolon-separated list
// of key=value pairs.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// QuerySpec is one row of the benchmark query set
type QuerySpec struct {
	Database string
	Endpoint string
	Shape    string
	Params   map[string]string
}

// QueryRequest is the Finch API request format
type QueryRequest struct {
	Database string            `json:"database"`
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params,omitempty"`
	Shape    string            `json:"shape"`
}

// QueryResponse is the Finch API response format, reduced to what the
// benchmark needs for row counting
type QueryResponse struct {
	Database string `json:"database"`
	Shape    string `json:"shape"`
	Table    *struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
	} `json:"table,omitempty"`
	Text string `json:"text,omitempty"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TotalProcessed int64
	TotalRows      int64
	TotalErrors    int64

	ErrBadRequest int64 // 400: the query set itself is broken
	ErrUpstream   int64 // 502: upstream database rejected the call
	ErrTimeout    int64 // 504: upstream retries exhausted
	ErrOther      int64

	mu   sync.Mutex
	cold []float64 // per-request latency in ms, first pass
	warm []float64 // later passes
}

func (m *Metrics) record(pass int, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pass == 0 {
		m.cold = append(m.cold, ms)
	} else {
		m.warm = append(m.warm, ms)
	}
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to query set CSV (empty = built-in set)")
	baseURL := flag.String("url", "http://localhost:8080", "Finch base URL")
	limit := flag.Int("limit", 0, "Maximum queries to load from the CSV (0 = all)")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	repeat := flag.Int("repeat", 2, "Passes over the query set (pass 1 is cache-cold)")
	verbose := flag.Bool("verbose", false, "Print each query result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           FINCH BENCHMARK - Gateway Query Throughput          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	if *csvPath != "" {
		fmt.Printf("\nCSV File:   %s\n", *csvPath)
	} else {
		fmt.Println("\nCSV File:   (built-in query set)")
	}
	fmt.Printf("Finch URL:  %s\n", *baseURL)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Passes:     %d\n", *repeat)
	fmt.Println()

	// Check Finch is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Finch not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Finch is running:")
		fmt.Println("  go run cmd/finch/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Finch is healthy")

	// Load the query set
	var queries []QuerySpec
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading query set from %s...\n", *csvPath)
		queries, err = readQueriesCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		queries = builtinQueries()
	}
	fmt.Printf("✓ Loaded %d queries\n", len(queries))

	// Per-database split
	perDB := make(map[string]int)
	for _, q := range queries {
		perDB[q.Database]++
	}
	for db, n := range perDB {
		fmt.Printf("  - %-10s %d\n", db+":", n)
	}

	// Run benchmark passes
	metrics := &Metrics{}
	var coldDur, warmDur time.Duration
	for pass := 0; pass < *repeat; pass++ {
		label := "warm"
		if pass == 0 {
			label = "cold"
		}
		fmt.Printf("\nPass %d/%d (%s) with %d workers...\n", pass+1, *repeat, label, *workers)
		start := time.Now()
		runPass(queries, *baseURL, *workers, pass, *verbose, metrics)
		elapsed := time.Since(start)
		if pass == 0 {
			coldDur = elapsed
		} else {
			warmDur += elapsed
		}
	}

	// Print results
	printResults(metrics, *repeat, coldDur, warmDur)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// builtinQueries returns a small set spanning four databases so the tool
// works without a CSV.
func builtinQueries() []QuerySpec {
	return []QuerySpec{
		{Database: "kegg", Endpoint: "list/pathway/hsa", Shape: "tabular"},
		{Database: "kegg", Endpoint: "list/organism", Shape: "tabular"},
		{Database: "kegg", Endpoint: "get/hsa:7157", Shape: "text"},
		{Database: "reactome", Endpoint: "data/pathways/top/9606", Shape: "structured"},
		{Database: "uniprot", Endpoint: "uniprotkb/P04637", Shape: "structured"},
		{Database: "string", Endpoint: "json/interaction_partners", Shape: "structured",
			Params: map[string]string{"identifiers": "TP53", "species": "9606", "limit": "10"}},
	}
}

func readQueriesCSV(path string, limit int) ([]QuerySpec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"database", "endpoint"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var queries []QuerySpec
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		q := QuerySpec{
			Database: strings.TrimSpace(record[colIndex["database"]]),
			Endpoint: strings.TrimSpace(record[colIndex["endpoint"]]),
			Shape:    "structured",
		}
		if i, ok := colIndex["shape"]; ok && strings.TrimSpace(record[i]) != "" {
			q.Shape = strings.TrimSpace(record[i])
		}
		if i, ok := colIndex["params"]; ok && record[i] != "" {
			q.Params = make(map[string]string)
			for _, pair := range strings.Split(record[i], ";") {
				kv := strings.SplitN(pair, "=", 2)
				if len(kv) == 2 {
					q.Params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
				}
			}
		}
		if q.Database == "" || q.Endpoint == "" {
			continue
		}

		queries = append(queries, q)

		if limit > 0 && len(queries) >= limit {
			break
		}
	}

	return queries, nil
}

func runPass(queries []QuerySpec, baseURL string, numWorkers, pass int, verbose bool, metrics *Metrics) {
	// Create work channel
	work := make(chan QuerySpec, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for q := range work {
				start := time.Now()
				rows, status, err := executeQuery(client, baseURL, q)
				elapsed := float64(time.Since(start).Microseconds()) / 1000.0

				metrics.record(pass, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					switch status {
					case http.StatusBadRequest:
						atomic.AddInt64(&metrics.ErrBadRequest, 1)
					case http.StatusBadGateway:
						atomic.AddInt64(&metrics.ErrUpstream, 1)
					case http.StatusGatewayTimeout:
						atomic.AddInt64(&metrics.ErrTimeout, 1)
					default:
						atomic.AddInt64(&metrics.ErrOther, 1)
					}
					if verbose {
						fmt.Printf("✗ %-10s | %-40s | %v\n", q.Database, q.Endpoint, err)
					}
					continue
				}

				atomic.AddInt64(&metrics.TotalRows, int64(rows))

				if verbose {
					endpoint := q.Endpoint
					if len(endpoint) > 40 {
						endpoint = endpoint[:40]
					}
					fmt.Printf("✓ %-10s | %-40s | %8.2f ms | rows: %d\n",
						q.Database,
						endpoint,
						elapsed,
						rows,
					)
				}
			}
		}()
	}

	// Send work
	for _, q := range queries {
		work <- q
	}
	close(work)

	// Wait for completion
	wg.Wait()
}

func executeQuery(client *http.Client, baseURL string, q QuerySpec) (rows, status int, err error) {
	req := QueryRequest{
		Database: q.Database,
		Endpoint: q.Endpoint,
		Params:   q.Params,
		Shape:    q.Shape,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, resp.StatusCode, err
	}

	if result.Table != nil {
		return len(result.Table.Rows), resp.StatusCode, nil
	}
	return 0, resp.StatusCode, nil
}

// percentile returns the q-th percentile of samples; samples is sorted in
// place.
func percentile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sort.Float64s(samples)
	idx := int(float64(len(samples)-1) * q)
	return samples[idx]
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func printResults(m *Metrics, passes int, coldDur, warmDur time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 QUERY STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Rows:       %d\n", m.TotalRows)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	if m.TotalErrors > 0 {
		fmt.Printf("     - 400 bad request:      %d\n", m.ErrBadRequest)
		fmt.Printf("     - 502 upstream reject:  %d\n", m.ErrUpstream)
		fmt.Printf("     - 504 upstream timeout: %d\n", m.ErrTimeout)
		fmt.Printf("     - other:                %d\n", m.ErrOther)
	}

	m.mu.Lock()
	cold, warm := m.cold, m.warm
	m.mu.Unlock()

	fmt.Printf("\n📈 LATENCY (cold pass)\n")
	fmt.Printf("   p50:  %8.2f ms\n", percentile(cold, 0.50))
	fmt.Printf("   p90:  %8.2f ms\n", percentile(cold, 0.90))
	fmt.Printf("   p99:  %8.2f ms\n", percentile(cold, 0.99))
	fmt.Printf("   avg:  %8.2f ms\n", mean(cold))

	if len(warm) > 0 {
		fmt.Printf("\n📈 LATENCY (warm passes)\n")
		fmt.Printf("   p50:  %8.2f ms\n", percentile(warm, 0.50))
		fmt.Printf("   p90:  %8.2f ms\n", percentile(warm, 0.90))
		fmt.Printf("   p99:  %8.2f ms\n", percentile(warm, 0.99))
		fmt.Printf("   avg:  %8.2f ms\n", mean(warm))
	}

	fmt.Printf("\n⏱️  THROUGHPUT\n")
	if coldDur > 0 && len(cold) > 0 {
		fmt.Printf("   Cold pass:  %6.2f queries/sec (%v)\n",
			float64(len(cold))/coldDur.Seconds(), coldDur.Round(time.Millisecond))
	}
	if warmDur > 0 && len(warm) > 0 {
		fmt.Printf("   Warm pass:  %6.2f queries/sec (%v)\n",
			float64(len(warm))/warmDur.Seconds(), warmDur.Round(time.Millisecond))
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if len(warm) > 0 {
		coldP50 := percentile(cold, 0.50)
		warmP50 := percentile(warm, 0.50)
		if warmP50 > 0 {
			speedup := coldP50 / warmP50
			if speedup >= 5 {
				fmt.Printf("   ✅ Cache is pulling its weight - warm p50 is %.1fx faster\n", speedup)
			} else if speedup >= 1.5 {
				fmt.Printf("   ⚠️  Modest cache effect - warm p50 only %.1fx faster\n", speedup)
			} else {
				fmt.Println("   ❌ Warm pass is not faster - check cache wiring")
			}
		}
	} else if passes == 1 {
		fmt.Println("   ℹ️  Run with -repeat 2 to measure the cache-warm path")
	}

	if m.TotalProcessed > 0 {
		errRate := float64(m.TotalErrors) / float64(m.TotalProcessed) * 100
		if m.TotalErrors == 0 {
			fmt.Println("   ✅ No failed queries")
		} else if errRate < 5 {
			fmt.Printf("   ⚠️  %.1f%% of queries failed\n", errRate)
		} else {
			fmt.Printf("   ❌ %.1f%% of queries failed - upstreams unhealthy or set broken\n", errRate)
		}
	}

	fmt.Println()
}
