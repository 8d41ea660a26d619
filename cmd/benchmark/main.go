// Benchmark tool for load-testing ratesync with a deal catalog CSV.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/deals.csv -url http://localhost:8080
//
// This tool:
//   1. Reads deal rows (vehicle, terms, optionally an expected monthly payment)
//   2. Sends each deal to POST /calculate
//   3. Compares the returned payment against the expected column when present
//   4. Reports match rate, error rate, latency and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DealRow represents one row from the deals CSV.
type DealRow struct {
	Brand         string
	Model         string
	Trim          string
	Year          int
	State         string
	Zip           string
	MSRP          float64
	SellingPrice  float64
	TermMonths    int
	AnnualMileage int
	DownPayment   float64

	// ExpectedMonthly is optional; zero means no reference value.
	ExpectedMonthly float64
}

// CalculateRequest is the ratesync API request format.
type CalculateRequest struct {
	Brand           string  `json:"brand"`
	Model           string  `json:"model"`
	Trim            string  `json:"trim,omitempty"`
	Year            int     `json:"year"`
	State           string  `json:"state"`
	Zip             string  `json:"zip,omitempty"`
	MSRP            float64 `json:"msrp"`
	SellingPrice    float64 `json:"sellingPrice"`
	TermMonths      int     `json:"termMonths"`
	AnnualMileage   int     `json:"annualMileage"`
	DownPayment     float64 `json:"downPayment"`
	ApplyIncentives bool    `json:"applyIncentives"`
}

// CalculateResponse is the ratesync API response format.
type CalculateResponse struct {
	Result struct {
		MonthlyPayment float64 `json:"monthlyPayment"`
		DriveOff       float64 `json:"driveOff"`
	} `json:"result"`
	ProgramID string `json:"programId"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	NoRateData     int64

	WithReference int64
	Matched       int64
	Mismatched    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to deals CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Ratesync base URL")
	limit := flag.Int("limit", 10000, "Maximum deals to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	tolerance := flag.Float64("tolerance", 1.0, "Allowed payment deviation in dollars")
	verbose := flag.Bool("verbose", false, "Print each deal result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/deals.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=================================================")
	fmt.Println("  RATESYNC BENCHMARK - Lease Payment Calculation")
	fmt.Println("=================================================")
	fmt.Printf("\nCSV File:      %s\n", *csvPath)
	fmt.Printf("Ratesync URL:  %s\n", *baseURL)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Printf("Tolerance:     $%.2f\n", *tolerance)
	fmt.Println()

	// Check ratesync is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: ratesync not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure ratesync is running:")
		fmt.Println("  go run cmd/ratesync/main.go")
		os.Exit(1)
	}
	fmt.Println("ratesync is healthy")

	// Read deal data
	fmt.Printf("\nReading deals from %s...\n", *csvPath)
	deals, err := readDealsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d deals\n", len(deals))

	withReference := 0
	for _, d := range deals {
		if d.ExpectedMonthly > 0 {
			withReference++
		}
	}
	fmt.Printf("  - With reference payment: %d\n", withReference)

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(deals, *baseURL, *workers, *tolerance, *verbose)
	duration := time.Since(startTime)

	// Print results
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

func readDealsCSV(path string, limit int) ([]DealRow, error) {
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

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var deals []DealRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		year, _ := strconv.Atoi(field(record, "year"))
		msrp, _ := strconv.ParseFloat(field(record, "msrp"), 64)
		selling, _ := strconv.ParseFloat(field(record, "sellingprice"), 64)
		term, _ := strconv.Atoi(field(record, "termmonths"))
		mileage, _ := strconv.Atoi(field(record, "annualmileage"))
		down, _ := strconv.ParseFloat(field(record, "downpayment"), 64)
		expected, _ := strconv.ParseFloat(field(record, "expectedmonthly"), 64)

		deal := DealRow{
			Brand:           field(record, "brand"),
			Model:           field(record, "model"),
			Trim:            field(record, "trim"),
			Year:            year,
			State:           field(record, "state"),
			Zip:             field(record, "zip"),
			MSRP:            msrp,
			SellingPrice:    selling,
			TermMonths:      term,
			AnnualMileage:   mileage,
			DownPayment:     down,
			ExpectedMonthly: expected,
		}
		if deal.Brand == "" || deal.Model == "" || deal.MSRP <= 0 || deal.TermMonths <= 0 {
			continue
		}

		deals = append(deals, deal)

		if limit > 0 && len(deals) >= limit {
			break
		}
	}

	return deals, nil
}

func runBenchmark(deals []DealRow, baseURL string, numWorkers int, tolerance float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan DealRow, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for deal := range work {
				start := time.Now()
				result, status, err := calculateDeal(client, baseURL, deal)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if status == http.StatusUnprocessableEntity {
					atomic.AddInt64(&metrics.NoRateData, 1)
					if verbose {
						fmt.Printf("SKIP %s %s: no rate data\n", deal.Brand, deal.Model)
					}
					continue
				}
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s %s -> %v\n", deal.Brand, deal.Model, err)
					}
					continue
				}

				// Compare against the reference payment when present
				if deal.ExpectedMonthly > 0 {
					atomic.AddInt64(&metrics.WithReference, 1)
					diff := math.Abs(result.Result.MonthlyPayment - deal.ExpectedMonthly)
					if diff <= tolerance {
						atomic.AddInt64(&metrics.Matched, 1)
					} else {
						atomic.AddInt64(&metrics.Mismatched, 1)
					}

					if verbose {
						mark := "ok"
						if diff > tolerance {
							mark = "MISMATCH"
						}
						fmt.Printf("%-8s %-10s %-12s | Term: %2d | Expected: $%8.2f | Got: $%8.2f | Diff: $%.2f\n",
							mark,
							deal.Brand,
							deal.Model,
							deal.TermMonths,
							deal.ExpectedMonthly,
							result.Result.MonthlyPayment,
							diff,
						)
					}
				} else if verbose {
					fmt.Printf("ok       %-10s %-12s | Term: %2d | Monthly: $%8.2f\n",
						deal.Brand,
						deal.Model,
						deal.TermMonths,
						result.Result.MonthlyPayment,
					)
				}
			}
		}()
	}

	// Send work
	for _, deal := range deals {
		work <- deal
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func calculateDeal(client *http.Client, baseURL string, deal DealRow) (*CalculateResponse, int, error) {
	req := CalculateRequest{
		Brand:           deal.Brand,
		Model:           deal.Model,
		Trim:            deal.Trim,
		Year:            deal.Year,
		State:           deal.State,
		Zip:             deal.Zip,
		MSRP:            deal.MSRP,
		SellingPrice:    deal.SellingPrice,
		TermMonths:      deal.TermMonths,
		AnnualMileage:   deal.AnnualMileage,
		DownPayment:     deal.DownPayment,
		ApplyIncentives: true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/calculate", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result CalculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}

	return &result, resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n=================================================")
	fmt.Println("               BENCHMARK RESULTS")
	fmt.Println("=================================================")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   No Rate Data:     %d\n", m.NoRateData)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	if m.WithReference > 0 {
		matchRate := float64(m.Matched) / float64(m.WithReference) * 100
		fmt.Printf("\nREFERENCE COMPARISON\n")
		fmt.Printf("   With Reference:   %d\n", m.WithReference)
		fmt.Printf("   Matched:          %d (%.2f%%)\n", m.Matched, matchRate)
		fmt.Printf("   Mismatched:       %d\n", m.Mismatched)

		if matchRate >= 99 {
			fmt.Println("   Payments agree with the reference sheet")
		} else {
			fmt.Println("   Check program, tax and rate table data for the mismatched rows")
		}
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f deals/sec\n", rps)
	}

	fmt.Println()
}
