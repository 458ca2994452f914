// Benchmark tool for exercising a running Kestrel instance.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -org bench-org
//
// This tool:
//   1. Seeds a no-show policy and a stack of discount rules via POST /rules
//   2. Fires concurrent /decide requests against both families
//   3. Reports throughput and latency percentiles
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

const (
	familyNoShow   = "ORG.CONFIG.BOOKING.NO_SHOW.POLICY"
	familyDiscount = "ORG.CONFIG.PRICING.DISCOUNT.STACK"
)

type decideRequest struct {
	Family  string         `json:"family"`
	Context map[string]any `json:"context"`
	Inputs  map[string]any `json:"inputs"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	orgID := flag.String("org", "bench-org", "Organization ID for requests")
	requests := flag.Int("n", 10000, "Total decide requests")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - decide loop        ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Org ID:      %s\n", *orgID)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Workers:     %d\n\n", *workers)

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	if err := seedRules(*baseURL, *orgID); err != nil {
		fmt.Printf("ERROR: failed to seed rules: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Seeded benchmark rules.")

	latencies := make([]time.Duration, *requests)
	var errCount int64
	var mu sync.Mutex

	jobs := make(chan int)
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			for i := range jobs {
				req := randomDecide(rng, i)
				t0 := time.Now()
				err := decide(client, *baseURL, *orgID, req)
				elapsed := time.Since(t0)

				mu.Lock()
				latencies[i] = elapsed
				if err != nil {
					errCount++
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < *requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	total := time.Since(start)

	report(latencies, errCount, total)
}

func randomDecide(rng *rand.Rand, i int) decideRequest {
	customer := fmt.Sprintf("cust-%d", rng.Intn(500))
	if i%2 == 0 {
		return decideRequest{
			Family: familyNoShow,
			Context: map[string]any{
				"branch_id":   "branch-1",
				"channel":     "app",
				"customer_id": customer,
			},
			Inputs: map[string]any{
				"appointment_value": 50 + rng.Float64()*200,
			},
		}
	}
	return decideRequest{
		Family: familyDiscount,
		Context: map[string]any{
			"branch_id":   "branch-1",
			"channel":     "web",
			"customer_id": customer,
		},
		Inputs: map[string]any{
			"original_price": 20 + rng.Float64()*300,
		},
	}
}

func seedRules(baseURL, orgID string) error {
	rules := []map[string]any{
		{
			"family_code": familyNoShow + ".DEFAULT",
			"status":      "active",
			"priority":    10,
			"payload": map[string]any{
				"fee_percentage": 20,
				"min_fee_amount": 5,
				"max_fee_amount": 60,
			},
		},
		{
			"family_code": familyDiscount + ".LOYALTY",
			"status":      "active",
			"priority":    10,
			"payload": map[string]any{
				"formula": map[string]any{"kind": "percentage", "percentage": 10},
			},
		},
		{
			"family_code": familyDiscount + ".WELCOME",
			"status":      "active",
			"priority":    5,
			"payload": map[string]any{
				"formula":             map[string]any{"kind": "fixed", "amount": 5},
				"max_discount_amount": 5,
			},
		},
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for _, rule := range rules {
		body, _ := json.Marshal(rule)
		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/rules", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", orgID)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("seed returned %d", resp.StatusCode)
		}
	}
	return nil
}

func decide(client *http.Client, baseURL, orgID string, dr decideRequest) error {
	body, _ := json.Marshal(dr)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/decide", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-ID", orgID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("decide returned %d", resp.StatusCode)
	}
	return nil
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func report(latencies []time.Duration, errCount int64, total time.Duration) {
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	pct := func(p float64) time.Duration {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}

	fmt.Println("\n═══ Results ═══")
	fmt.Printf("Total:      %d requests in %s\n", len(latencies), total.Round(time.Millisecond))
	fmt.Printf("Throughput: %.0f req/s\n", float64(len(latencies))/total.Seconds())
	fmt.Printf("Errors:     %d\n", errCount)
	fmt.Printf("p50:        %s\n", pct(0.50).Round(time.Microsecond))
	fmt.Printf("p95:        %s\n", pct(0.95).Round(time.Microsecond))
	fmt.Printf("p99:        %s\n", pct(0.99).Round(time.Microsecond))
	fmt.Printf("max:        %s\n", sorted[len(sorted)-1].Round(time.Microsecond))
}
