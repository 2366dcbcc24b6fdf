// Benchmark tool for exercising a running Magpie server with a
// synthetic customer population.
//
// Usage:
//
//	go run cmd/benchmark/main.go -url http://localhost:8080 -customers 5000
//
// This tool:
//  1. Generates a seeded synthetic customer base and event log
//  2. Uploads it in concurrent batches
//  3. Triggers a segmentation refresh and reports the persona split
//  4. Runs a scenario sweep per persona and reports throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensegment/magpie/internal/domain"
)

var (
	tiers      = []string{"bronze", "silver", "gold"}
	channels   = []string{"email", "sms", "app_push"}
	affinities = []string{"none", "none", "vegan", "organic", "cruelty-free"}
	categories = []string{"skincare", "haircare", "makeup", "fragrance", "supplements", "tools"}
	brands     = []string{"lumina", "verdant", "atelier", "basecoat", "nordlys", "cinder"}
	labels     = []string{"", "vegan", "organic", "cruelty-free"}
)

type datasetRequest struct {
	Customers []domain.Customer `json:"customers,omitempty"`
	Events    []domain.Event    `json:"events,omitempty"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Magpie base URL")
	customerCount := flag.Int("customers", 2000, "Synthetic customers to generate")
	seed := flag.Int64("seed", 42, "RNG seed for reproducible datasets")
	batchSize := flag.Int("batch", 500, "Rows per upload request")
	workers := flag.Int("workers", 8, "Concurrent upload/sweep workers")
	sweepSize := flag.Int("sweep", 24, "Scenarios per persona sweep")
	flag.Parse()

	fmt.Println("MAGPIE BENCHMARK - synthetic segmentation workload")
	fmt.Printf("\nServer:    %s\n", *baseURL)
	fmt.Printf("Customers: %d (seed %d)\n", *customerCount, *seed)
	fmt.Printf("Workers:   %d\n\n", *workers)

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Magpie not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run cmd/magpie/main.go")
		os.Exit(1)
	}
	fmt.Println("server is healthy")

	rng := rand.New(rand.NewSource(*seed))
	customers, events := generate(rng, *customerCount)
	fmt.Printf("generated %d customers, %d events\n", len(customers), len(events))

	loadStart := time.Now()
	uploaded, errors := upload(*baseURL, customers, events, *batchSize, *workers)
	loadElapsed := time.Since(loadStart)
	fmt.Printf("uploaded %d rows in %v (%.0f rows/sec, %d errors)\n",
		uploaded, loadElapsed.Round(time.Millisecond),
		float64(uploaded)/loadElapsed.Seconds(), errors)
	if errors > 0 {
		os.Exit(1)
	}

	refreshStart := time.Now()
	snap, err := refresh(*baseURL)
	if err != nil {
		fmt.Printf("ERROR: refresh failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nsegmentation refresh: %v (server-side %dms)\n",
		time.Since(refreshStart).Round(time.Millisecond), snap.ElapsedMs)
	fmt.Println("persona split:")
	for _, label := range domain.AllPersonas() {
		n := snap.PersonaCounts[label]
		fmt.Printf("  %-24s %6d  (%5.1f%%)\n", label, n,
			100*float64(n)/float64(snap.CustomerCount))
	}

	fmt.Printf("\nrunning %d-scenario sweeps per persona...\n", *sweepSize)
	sweepStart := time.Now()
	simulated := runSweeps(*baseURL, *sweepSize, *workers)
	sweepElapsed := time.Since(sweepStart)
	fmt.Printf("scored %d scenarios in %v (%.0f scenarios/sec)\n",
		simulated, sweepElapsed.Round(time.Millisecond),
		float64(simulated)/sweepElapsed.Seconds())
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

// generate produces a population with a few distinct behavioral bands
// so every classifier rule has customers to catch.
func generate(rng *rand.Rand, count int) ([]domain.Customer, []domain.Event) {
	now := time.Now().UTC().Truncate(24 * time.Hour)

	customers := make([]domain.Customer, 0, count)
	var events []domain.Event

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("cust-%05d", i)
		affinity := affinities[rng.Intn(len(affinities))]
		customers = append(customers, domain.Customer{
			ID:            id,
			JoinDate:      now.AddDate(0, 0, -(30 + rng.Intn(1000))),
			LoyaltyTier:   tiers[rng.Intn(len(tiers))],
			PrefChannel:   channels[rng.Intn(len(channels))],
			LabelAffinity: affinity,
		})

		// Behavioral band: 10% lapsed, 15% heavy, 50% regular, 25% light.
		var purchases int
		var daysBack int
		switch band := rng.Float64(); {
		case band < 0.10:
			purchases = 1 + rng.Intn(2)
			daysBack = 130 + rng.Intn(200)
		case band < 0.25:
			purchases = 6 + rng.Intn(8)
			daysBack = 1 + rng.Intn(80)
		case band < 0.75:
			purchases = 2 + rng.Intn(4)
			daysBack = 5 + rng.Intn(85)
		default:
			purchases = rng.Intn(2)
			daysBack = 10 + rng.Intn(80)
		}

		favoriteBrand := brands[rng.Intn(len(brands))]
		for p := 0; p < purchases; p++ {
			listPrice := 10 + rng.Float64()*140
			discount := 0.0
			if rng.Float64() < 0.35 {
				discount = 10 + rng.Float64()*40
			}
			brand := favoriteBrand
			if rng.Float64() > 0.6 {
				brand = brands[rng.Intn(len(brands))]
			}
			label := labels[rng.Intn(len(labels))]
			if affinity != "none" && rng.Float64() < 0.4 {
				label = affinity
			}
			orderID := fmt.Sprintf("ord-%05d-%02d", i, p)
			eventDay := daysBack + rng.Intn(30)

			events = append(events, domain.Event{
				CustomerID:  id,
				EventDT:     now.AddDate(0, 0, -eventDay),
				EventType:   domain.EventTypePurchase,
				NetPrice:    listPrice * (1 - discount/100),
				ListPrice:   listPrice,
				DiscountPct: discount,
				Category:    categories[rng.Intn(len(categories))],
				Brand:       brand,
				Label:       label,
				OrderID:     orderID,
			})

			if rng.Float64() < 0.25 {
				events = append(events, domain.Event{
					CustomerID:    id,
					EventDT:       now.AddDate(0, 0, -eventDay+2),
					EventType:     domain.EventTypeReview,
					OrderID:       orderID,
					RatingValue:   float64(2 + rng.Intn(4)),
					PolarityScore: rng.Float64()*2 - 1,
				})
			}
		}
	}

	return customers, events
}

func upload(baseURL string, customers []domain.Customer, events []domain.Event, batchSize, workers int) (int64, int64) {
	var batches []datasetRequest
	for start := 0; start < len(customers); start += batchSize {
		end := start + batchSize
		if end > len(customers) {
			end = len(customers)
		}
		batches = append(batches, datasetRequest{Customers: customers[start:end]})
	}
	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}
		batches = append(batches, datasetRequest{Events: events[start:end]})
	}

	var uploaded, errors int64
	work := make(chan datasetRequest, len(batches))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for batch := range work {
				if err := postJSON(client, baseURL+"/datasets", batch, nil); err != nil {
					atomic.AddInt64(&errors, 1)
					continue
				}
				atomic.AddInt64(&uploaded, int64(len(batch.Customers)+len(batch.Events)))
			}
		}()
	}

	for _, batch := range batches {
		work <- batch
	}
	close(work)
	wg.Wait()

	return uploaded, errors
}

func refresh(baseURL string) (*domain.SegmentationSnapshot, error) {
	client := &http.Client{Timeout: 5 * time.Minute}
	var snap domain.SegmentationSnapshot
	if err := postJSON(client, baseURL+"/segmentation/refresh", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// runSweeps posts one scenario grid per persona, concurrently.
func runSweeps(baseURL string, sweepSize, workers int) int64 {
	var simulated int64
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, label := range domain.AllPersonas() {
		wg.Add(1)
		sem <- struct{}{}

		go func(persona string) {
			defer wg.Done()
			defer func() { <-sem }()

			scenarios := make([]domain.Scenario, 0, sweepSize)
			for i := 0; i < sweepSize; i++ {
				scenarios = append(scenarios, domain.Scenario{
					CurrentChannel:       "email",
					NewChannel:           channels[i%len(channels)],
					TouchesPerWeek:       0.5 + 0.5*float64(i%8),
					IncentiveLevel:       float64(i%5) / 4,
					PersonalizationLevel: float64(i%3) / 2,
				})
			}

			client := &http.Client{Timeout: 60 * time.Second}
			var resp struct {
				Count int `json:"count"`
			}
			req := domain.SweepRequest{Persona: persona, Scenarios: scenarios}
			if err := postJSON(client, baseURL+"/simulate/sweep", req, &resp); err != nil {
				fmt.Printf("  sweep failed for %s: %v\n", persona, err)
				return
			}
			atomic.AddInt64(&simulated, int64(resp.Count))
		}(label)
	}

	wg.Wait()
	return simulated
}

func postJSON(client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
