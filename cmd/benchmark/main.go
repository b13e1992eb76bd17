// Benchmark tool for testing Kestrel against labeled phishing URL data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/phishing.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled URL data (feature columns plus a phishing label)
//   2. Sends each resource to Kestrel for evaluation
//   3. Compares Kestrel's decision (WARN/BLOCK vs ALLOW/MONITOR) with the labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
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

// LabeledResource represents a row from the labeled dataset.
type LabeledResource struct {
	URL        string
	MLScore    float64
	Features   map[string]float64
	IsPhishing bool
}

// EvaluateRequest is the Kestrel API request format
type EvaluateRequest struct {
	URL      string             `json:"url"`
	MLScore  float64            `json:"mlScore"`
	Features map[string]float64 `json:"features"`
	Profile  string             `json:"profile,omitempty"`
}

// EvaluateResponse is the Kestrel API response format
type EvaluateResponse struct {
	VerdictID  string   `json:"verdictId"`
	Decision   string   `json:"decision"` // ALLOW, MONITOR, WARN, BLOCK
	RiskLevel  string   `json:"riskLevel"`
	FinalScore float64  `json:"finalScore"`
	TrustScore float64  `json:"trustScore"`
	Tier       string   `json:"tier"`
	Reasons    []string `json:"reasons"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Phishing flagged WARN/BLOCK
	FalsePositives int64 // Legitimate flagged WARN/BLOCK
	TrueNegatives  int64 // Legitimate allowed through
	FalseNegatives int64 // Phishing allowed through (missed!)

	TotalProcessed int64
	TotalPhishing  int64
	TotalLegit     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled URL CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	profile := flag.String("profile", "", "Threshold profile to evaluate under")
	limit := flag.Int("limit", 10000, "Maximum resources to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	phishingOnly := flag.Bool("phishing-only", false, "Only test phishing rows")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for legitimate rows (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each resource result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/phishing.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         KESTREL BENCHMARK - Phishing URL Detection            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Phish Only:  %v\n", *phishingOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled data
	fmt.Printf("\nReading labeled data from %s...\n", *csvPath)
	resources, err := readLabeledCSV(*csvPath, *limit, *phishingOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d resources\n", len(resources))

	// Count phishing vs legitimate
	phishCount := 0
	for _, res := range resources {
		if res.IsPhishing {
			phishCount++
		}
	}
	fmt.Printf("  - Phishing:   %d (%.2f%%)\n", phishCount, 100*float64(phishCount)/float64(len(resources)))
	fmt.Printf("  - Legitimate: %d (%.2f%%)\n", len(resources)-phishCount, 100*float64(len(resources)-phishCount)/float64(len(resources)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(resources, *baseURL, *tenantID, *profile, *workers, *verbose)
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

// readLabeledCSV reads a dataset whose columns are feature names plus the
// special columns "url", "ml_score" and "label" (1 = phishing). Any other
// column is forwarded verbatim as a feature.
func readLabeledCSV(path string, limit int, phishingOnly bool, sampleRate float64) ([]LabeledResource, error) {
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
		colIndex[strings.TrimSpace(col)] = i
	}

	labelCol, ok := colIndex["label"]
	if !ok {
		return nil, fmt.Errorf("dataset has no label column")
	}

	var resources []LabeledResource
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isPhishing := record[labelCol] == "1"

		// Apply filters
		if phishingOnly && !isPhishing {
			continue
		}

		// Sample legitimate rows
		if !isPhishing && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		res := LabeledResource{
			IsPhishing: isPhishing,
			Features:   make(map[string]float64, len(header)),
		}

		for name, idx := range colIndex {
			switch name {
			case "label":
				continue
			case "url":
				res.URL = record[idx]
			case "ml_score":
				res.MLScore, _ = strconv.ParseFloat(record[idx], 64)
			default:
				if v, err := strconv.ParseFloat(record[idx], 64); err == nil {
					res.Features[name] = v
				}
			}
		}

		resources = append(resources, res)

		if limit > 0 && len(resources) >= limit {
			break
		}
	}

	return resources, nil
}

func runBenchmark(resources []LabeledResource, baseURL, tenantID, profile string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledResource, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for res := range work {
				start := time.Now()
				result, err := evaluateResource(client, baseURL, tenantID, profile, res)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", res.URL, err)
					}
					continue
				}

				// Track actual labels
				if res.IsPhishing {
					atomic.AddInt64(&metrics.TotalPhishing, 1)
				} else {
					atomic.AddInt64(&metrics.TotalLegit, 1)
				}

				// Calculate confusion matrix
				predicted := result.Decision == "WARN" || result.Decision == "BLOCK"
				actual := res.IsPhishing

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					url := res.URL
					if len(url) > 40 {
						url = url[:40]
					}
					fmt.Printf("%s %-40s | Phish: %-5v | Kestrel: %-7s (final %.4f, trust %.2f, %s)\n",
						status,
						url,
						res.IsPhishing,
						result.Decision,
						result.FinalScore,
						result.TrustScore,
						result.Tier,
					)
				}
			}
		}()
	}

	// Send work
	for _, res := range resources {
		work <- res
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func evaluateResource(client *http.Client, baseURL, tenantID, profile string, res LabeledResource) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		URL:      res.URL,
		MLScore:  res.MLScore,
		Features: res.Features,
		Profile:  profile,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Phishing:   %d\n", m.TotalPhishing)
	fmt.Printf("   Total Legitimate: %d\n", m.TotalLegit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  WARN/BLOCK   ALLOW/MON")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  P  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           L  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged URLs, how many were actual phishing)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of phishing, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalPhishing > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalPhishing) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalPhishing) * 100
		fmt.Printf("   Phishing Caught:   %d / %d (%.2f%%)\n", m.TruePositives, m.TotalPhishing, detectionRate)
		fmt.Printf("   Phishing Missed:   %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalPhishing, missRate)
	}
	if m.TotalLegit > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalLegit) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalLegit, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most phishing")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some phishing")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant phishing being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most phishing is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
