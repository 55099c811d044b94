// Benchmark tool for replaying resolution scenarios against tariffd.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/scenarios.csv -url http://localhost:8080
//
// This tool:
//  1. Reads resolution scenarios (with expected basis and duty) from a CSV
//  2. Sends each scenario to tariffd for resolution
//  3. Compares the returned basis and duty with the expected values
//  4. Reports accuracy, error breakdown, latency and throughput
//
// Expected CSV columns:
//   importer,origin,hs_code,as_of,material,labour,overhead,profit,other,fob,
//   total_value,expected_basis,expected_duty
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
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Scenario is one row of the benchmark input.
type Scenario struct {
	Importer      string
	Origin        string
	HSCode        string
	AsOf          string
	Material      float64
	Labour        float64
	Overhead      float64
	Profit        float64
	Other         float64
	FOB           float64
	TotalValue    float64
	ExpectedBasis string
	ExpectedDuty  float64
}

// ResolveRequest mirrors the tariffd API request format.
type ResolveRequest struct {
	ImporterISO3 string         `json:"importerIso3"`
	OriginISO3   string         `json:"originIso3,omitempty"`
	HSCode       string         `json:"hsCode"`
	AsOf         string         `json:"asOf,omitempty"`
	Costs        *CostBreakdown `json:"costs,omitempty"`
	Shipment     Shipment       `json:"shipment"`
}

type CostBreakdown struct {
	MaterialCost     float64 `json:"materialCost"`
	LabourCost       float64 `json:"labourCost"`
	OverheadCost     float64 `json:"overheadCost"`
	Profit           float64 `json:"profit"`
	OtherCosts       float64 `json:"otherCosts"`
	FreeOnBoardValue float64 `json:"fob"`
}

type Shipment struct {
	TotalValue float64 `json:"totalValue"`
}

// ResolveResponse mirrors the tariffd API response format.
type ResolveResponse struct {
	Result struct {
		Basis                    string  `json:"basis"`
		TotalDuty                float64 `json:"totalDuty"`
		ManualAssessmentRequired bool    `json:"manualAssessmentRequired"`
	} `json:"result"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	BasisMatches   int64
	BasisMisses    int64
	DutyMatches    int64
	DutyMisses     int64
	Manual         int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to scenario CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "tariffd base URL")
	limit := flag.Int("limit", 10000, "Maximum scenarios to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each scenario result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/scenarios.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          TARIFFD BENCHMARK - Resolution Scenarios             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("tariffd URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check tariffd is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: tariffd not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure tariffd is running:")
		fmt.Println("  go run cmd/tariffd/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ tariffd is healthy")

	fmt.Printf("\nReading scenarios from %s...\n", *csvPath)
	scenarios, err := readScenarioCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d scenarios\n", len(scenarios))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(scenarios, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func readScenarioCSV(path string, limit int) ([]Scenario, error) {
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
		colIndex[strings.ToLower(col)] = i
	}

	num := func(record []string, col string) float64 {
		idx, ok := colIndex[col]
		if !ok || idx >= len(record) {
			return 0
		}
		v, _ := strconv.ParseFloat(record[idx], 64)
		return v
	}
	str := func(record []string, col string) string {
		idx, ok := colIndex[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var scenarios []Scenario
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		scenarios = append(scenarios, Scenario{
			Importer:      str(record, "importer"),
			Origin:        str(record, "origin"),
			HSCode:        str(record, "hs_code"),
			AsOf:          str(record, "as_of"),
			Material:      num(record, "material"),
			Labour:        num(record, "labour"),
			Overhead:      num(record, "overhead"),
			Profit:        num(record, "profit"),
			Other:         num(record, "other"),
			FOB:           num(record, "fob"),
			TotalValue:    num(record, "total_value"),
			ExpectedBasis: str(record, "expected_basis"),
			ExpectedDuty:  num(record, "expected_duty"),
		})

		if limit > 0 && len(scenarios) >= limit {
			break
		}
	}

	return scenarios, nil
}

func runBenchmark(scenarios []Scenario, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Scenario, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for sc := range work {
				start := time.Now()
				result, err := resolveScenario(client, baseURL, sc)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s/%s %s -> %v\n", sc.Importer, sc.Origin, sc.HSCode, err)
					}
					continue
				}

				if result.Result.ManualAssessmentRequired {
					atomic.AddInt64(&metrics.Manual, 1)
				}

				basisOK := sc.ExpectedBasis == "" || result.Result.Basis == sc.ExpectedBasis
				if basisOK {
					atomic.AddInt64(&metrics.BasisMatches, 1)
				} else {
					atomic.AddInt64(&metrics.BasisMisses, 1)
				}

				// Duty compared at cent precision, matching the engine's rounding
				dutyOK := dutyEqual(result.Result.TotalDuty, sc.ExpectedDuty)
				if dutyOK {
					atomic.AddInt64(&metrics.DutyMatches, 1)
				} else {
					atomic.AddInt64(&metrics.DutyMisses, 1)
				}

				if verbose {
					status := "✓"
					if !basisOK || !dutyOK {
						status = "✗"
					}
					fmt.Printf("%s %s <- %-3s | HS %-10s | basis %-4s (want %-4s) | duty %10.2f (want %10.2f)\n",
						status, sc.Importer, sc.Origin, sc.HSCode,
						result.Result.Basis, sc.ExpectedBasis,
						result.Result.TotalDuty, sc.ExpectedDuty,
					)
				}
			}
		}()
	}

	for _, sc := range scenarios {
		work <- sc
	}
	close(work)

	wg.Wait()

	return metrics
}

func dutyEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.005
}

func resolveScenario(client *http.Client, baseURL string, sc Scenario) (*ResolveResponse, error) {
	req := ResolveRequest{
		ImporterISO3: sc.Importer,
		OriginISO3:   sc.Origin,
		HSCode:       sc.HSCode,
		Shipment:     Shipment{TotalValue: sc.TotalValue},
	}
	if sc.AsOf != "" {
		req.AsOf = sc.AsOf + "T00:00:00Z"
	}
	if sc.FOB > 0 {
		req.Costs = &CostBreakdown{
			MaterialCost:     sc.Material,
			LabourCost:       sc.Labour,
			OverheadCost:     sc.Overhead,
			Profit:           sc.Profit,
			OtherCosts:       sc.Other,
			FreeOnBoardValue: sc.FOB,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nSCENARIOS\n")
	fmt.Printf("   Total Processed:    %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:             %d\n", m.TotalErrors)
	fmt.Printf("   Manual Assessment:  %d\n", m.Manual)

	fmt.Printf("\nACCURACY\n")
	resolved := m.TotalProcessed - m.TotalErrors
	if resolved > 0 {
		fmt.Printf("   Basis Matches:  %d / %d (%.2f%%)\n",
			m.BasisMatches, resolved, 100*float64(m.BasisMatches)/float64(resolved))
		fmt.Printf("   Duty Matches:   %d / %d (%.2f%%)\n",
			m.DutyMatches, resolved, 100*float64(m.DutyMatches)/float64(resolved))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
