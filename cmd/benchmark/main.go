// Benchmark tool for driving review sessions against a running Dipper
// gateway.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -workers 10 -rounds 100
//
// This tool:
//   1. Fetches the anomaly worklist from the gateway
//   2. Runs concurrent reviewers: select -> wait for history -> remark -> submit
//   3. Measures history-load and submit latency and error rates
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Anomaly mirrors the gateway's worklist rows.
type Anomaly struct {
	Nomen  string   `json:"nomen"`
	Name   string   `json:"name"`
	Usage  int      `json:"usage"`
	Status []string `json:"status"`
}

// Snapshot mirrors the gateway's session snapshot.
type Snapshot struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	LastError string `json:"lastError"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	ReviewsCompleted int64
	TotalErrors      int64

	HistoryWaitMs int64
	SubmitMs      int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Dipper base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	workers := flag.Int("workers", 10, "Number of concurrent reviewers")
	rounds := flag.Int("rounds", 100, "Full review cycles per reviewer")
	verbose := flag.Bool("verbose", false, "Print each review result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            DIPPER BENCHMARK - Review Loop Throughput          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nDipper URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Rounds:      %d\n", *rounds)
	fmt.Println()

	// Check the gateway is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Dipper not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Dipper is running:")
		fmt.Println("  DIPPER_USE_MOCK=true go run cmd/dipper/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Dipper is healthy")

	// Fetch the worklist once; every reviewer cycles through it.
	anomalies, err := fetchAnomalies(*baseURL, *tenantID)
	if err != nil {
		fmt.Printf("ERROR: failed to fetch anomaly worklist: %v\n", err)
		os.Exit(1)
	}
	if len(anomalies) == 0 {
		fmt.Println("ERROR: anomaly worklist is empty, nothing to review")
		os.Exit(1)
	}
	fmt.Printf("✓ Worklist has %d anomalies\n", len(anomalies))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(anomalies, *baseURL, *tenantID, *workers, *rounds, *verbose)
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

func runBenchmark(anomalies []Anomaly, baseURL, tenantID string, numWorkers, rounds int, verbose bool) *Metrics {
	metrics := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			sessionID, err := createSession(client, baseURL, tenantID)
			if err != nil {
				atomic.AddInt64(&metrics.TotalErrors, 1)
				fmt.Printf("ERROR: worker %d failed to create session: %v\n", worker, err)
				return
			}

			for r := 0; r < rounds; r++ {
				anom := anomalies[(worker*rounds+r)%len(anomalies)]

				historyMs, submitMs, err := reviewOnce(client, baseURL, tenantID, sessionID, anom)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", anom.Nomen, err)
					}
					// Reset the session before the next round
					_, _ = command(client, baseURL, tenantID, sessionID, "clear", nil)
					continue
				}

				atomic.AddInt64(&metrics.ReviewsCompleted, 1)
				atomic.AddInt64(&metrics.HistoryWaitMs, historyMs)
				atomic.AddInt64(&metrics.SubmitMs, submitMs)

				if verbose {
					fmt.Printf("✓ %-10s | history: %4d ms | submit: %4d ms\n",
						anom.Nomen, historyMs, submitMs)
				}
			}
		}(i)
	}

	wg.Wait()
	return metrics
}

// reviewOnce runs one full select/wait/remark/submit cycle.
func reviewOnce(client *http.Client, baseURL, tenantID, sessionID string, anom Anomaly) (historyMs, submitMs int64, err error) {
	start := time.Now()
	if _, err := command(client, baseURL, tenantID, sessionID, "select", map[string]string{"nomen": anom.Nomen}); err != nil {
		return 0, 0, fmt.Errorf("select: %w", err)
	}

	// Poll until the history fetch settles
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := getSession(client, baseURL, tenantID, sessionID)
		if err != nil {
			return 0, 0, fmt.Errorf("poll: %w", err)
		}
		if snap.State == "reviewing" {
			break
		}
		if time.Now().After(deadline) {
			return 0, 0, fmt.Errorf("history never loaded for %s", anom.Nomen)
		}
		time.Sleep(5 * time.Millisecond)
	}
	historyMs = time.Since(start).Milliseconds()

	if _, err := command(client, baseURL, tenantID, sessionID, "remark", map[string]string{"remark": "benchmark review pass"}); err != nil {
		return historyMs, 0, fmt.Errorf("remark: %w", err)
	}

	start = time.Now()
	if _, err := command(client, baseURL, tenantID, sessionID, "submit", nil); err != nil {
		return historyMs, 0, fmt.Errorf("submit: %w", err)
	}
	submitMs = time.Since(start).Milliseconds()

	return historyMs, submitMs, nil
}

func fetchAnomalies(baseURL, tenantID string) ([]Anomaly, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/anomalies", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body struct {
		Anomalies []Anomaly `json:"anomalies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Anomalies, nil
}

func createSession(client *http.Client, baseURL, tenantID string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/sessions", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return "", err
	}
	return snap.SessionID, nil
}

func getSession(client *http.Client, baseURL, tenantID, sessionID string) (*Snapshot, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/sessions/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func command(client *http.Client, baseURL, tenantID, sessionID, cmd string, body map[string]string) (*Snapshot, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/sessions/"+sessionID+"/"+cmd, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 REVIEW STATISTICS\n")
	fmt.Printf("   Reviews Completed:  %d\n", m.ReviewsCompleted)
	fmt.Printf("   Errors:             %d\n", m.TotalErrors)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.ReviewsCompleted > 0 {
		avgHistory := float64(m.HistoryWaitMs) / float64(m.ReviewsCompleted)
		avgSubmit := float64(m.SubmitMs) / float64(m.ReviewsCompleted)
		rps := float64(m.ReviewsCompleted) / duration.Seconds()
		fmt.Printf("   Avg History Load: %.2f ms\n", avgHistory)
		fmt.Printf("   Avg Submit:       %.2f ms\n", avgSubmit)
		fmt.Printf("   Throughput:       %.2f reviews/sec\n", rps)
	}

	fmt.Println()
}
