package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/opensegment/magpie/internal/domain"
)

// datasetRequest mirrors the POST /datasets body.
type datasetRequest struct {
	Customers []domain.Customer `json:"customers,omitempty"`
	Events    []domain.Event    `json:"events,omitempty"`
}

func newLoadCmd() *cobra.Command {
	var (
		customersPath string
		eventsPath    string
		batchSize     int
		workers       int
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load customers and events from CSV files",
		Long: `Reads customer reference data and the event log from CSV files and
posts them to the server in batches.

customers.csv columns:
  customer_id, join_date, loyalty_tier, pref_channel, label_affinity

events.csv columns:
  customer_id, event_dt, event_type, net_price, list_price, discount_pct,
  category, brand, label, order_id, rating_value, polarity_score

Timestamps accept RFC 3339 or plain dates (2006-01-02).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if customersPath == "" && eventsPath == "" {
				return fmt.Errorf("at least one of --customers or --events is required")
			}

			c := newClient()

			if customersPath != "" {
				customers, err := readCustomersCSV(customersPath)
				if err != nil {
					return fmt.Errorf("read %s: %w", customersPath, err)
				}
				if err := postCustomerBatches(c, customers, batchSize, workers); err != nil {
					return err
				}
				fmt.Printf("loaded %d customers\n", len(customers))
			}

			if eventsPath != "" {
				events, err := readEventsCSV(eventsPath)
				if err != nil {
					return fmt.Errorf("read %s: %w", eventsPath, err)
				}
				if err := postEventBatches(c, events, batchSize, workers); err != nil {
					return err
				}
				fmt.Printf("loaded %d events\n", len(events))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&customersPath, "customers", "", "path to customers CSV")
	cmd.Flags().StringVar(&eventsPath, "events", "", "path to events CSV")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "rows per request")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent upload workers")

	return cmd
}

func postCustomerBatches(c *client, customers []domain.Customer, batchSize, workers int) error {
	batches := make([]datasetRequest, 0, len(customers)/batchSize+1)
	for start := 0; start < len(customers); start += batchSize {
		end := min(start+batchSize, len(customers))
		batches = append(batches, datasetRequest{Customers: customers[start:end]})
	}
	return postBatches(c, "customers", batches, workers)
}

func postEventBatches(c *client, events []domain.Event, batchSize, workers int) error {
	batches := make([]datasetRequest, 0, len(events)/batchSize+1)
	for start := 0; start < len(events); start += batchSize {
		end := min(start+batchSize, len(events))
		batches = append(batches, datasetRequest{Events: events[start:end]})
	}
	return postBatches(c, "events", batches, workers)
}

// postBatches uploads batches concurrently with a progress bar. The
// first error wins; remaining batches still drain so the bar finishes.
func postBatches(c *client, what string, batches []datasetRequest, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	bar := progressbar.NewOptions(len(batches),
		progressbar.OptionSetDescription(fmt.Sprintf("uploading %s", what)),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, workers)

	for _, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}

		go func(req datasetRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.postJSON("/datasets", req, nil); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			bar.Add(1)
		}(batch)
	}

	wg.Wait()
	bar.Finish()

	return firstErr
}

func readCustomersCSV(path string) ([]domain.Customer, error) {
	rows, idx, err := openCSV(path, "customer_id", "join_date")
	if err != nil {
		return nil, err
	}

	var customers []domain.Customer
	for i, record := range rows {
		joinDate, err := parseTime(field(record, idx, "join_date"))
		if err != nil {
			return nil, fmt.Errorf("row %d: join_date: %w", i+2, err)
		}
		customers = append(customers, domain.Customer{
			ID:            field(record, idx, "customer_id"),
			JoinDate:      joinDate,
			LoyaltyTier:   field(record, idx, "loyalty_tier"),
			PrefChannel:   field(record, idx, "pref_channel"),
			LabelAffinity: field(record, idx, "label_affinity"),
		})
	}
	return customers, nil
}

func readEventsCSV(path string) ([]domain.Event, error) {
	rows, idx, err := openCSV(path, "customer_id", "event_dt", "event_type")
	if err != nil {
		return nil, err
	}

	var events []domain.Event
	for i, record := range rows {
		eventDT, err := parseTime(field(record, idx, "event_dt"))
		if err != nil {
			return nil, fmt.Errorf("row %d: event_dt: %w", i+2, err)
		}
		events = append(events, domain.Event{
			CustomerID:    field(record, idx, "customer_id"),
			EventDT:       eventDT,
			EventType:     field(record, idx, "event_type"),
			NetPrice:      parseFloat(field(record, idx, "net_price")),
			ListPrice:     parseFloat(field(record, idx, "list_price")),
			DiscountPct:   parseFloat(field(record, idx, "discount_pct")),
			Category:      field(record, idx, "category"),
			Brand:         field(record, idx, "brand"),
			Label:         field(record, idx, "label"),
			OrderID:       field(record, idx, "order_id"),
			RatingValue:   parseFloat(field(record, idx, "rating_value")),
			PolarityScore: parseFloat(field(record, idx, "polarity_score")),
		})
	}
	return events, nil
}

// openCSV reads the whole file and returns its data rows plus a
// lowercased header index. Required columns fail fast.
func openCSV(path string, required ...string) ([][]string, map[string]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", col)
		}
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, record)
	}
	return rows, idx, nil
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
