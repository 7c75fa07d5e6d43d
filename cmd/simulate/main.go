// Contention simulator: fires concurrent booking requests at the same
// calendar interval and reports how the API arbitrated them. With the lock
// and the exclusion constraint in place exactly one request per interval
// must succeed.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinora/clinic-scheduling/internal/db"
)

type simConfig struct {
	apiBaseURL  string
	postgresDSN string
	workers     int
	rounds      int
}

type tally struct {
	success  int64
	conflict int64
	locked   int64
	failure  int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (t *tally) record(latency time.Duration, status int) {
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&t.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&t.locked, 1)
	case status == http.StatusBadRequest:
		atomic.AddInt64(&t.conflict, 1)
	default:
		atomic.AddInt64(&t.failure, 1)
	}
	t.mu.Lock()
	t.latencies = append(t.latencies, latency)
	t.mu.Unlock()
}

func (t *tally) percentile(p int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(t.latencies))
	copy(sorted, t.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	cfg := loadSimConfig()
	log.Printf("simulate: %d workers x %d rounds against %s", cfg.workers, cfg.rounds, cfg.apiBaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.postgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, patientID, err := pickActors(context.Background(), pool)
	if err != nil {
		log.Fatalf("pick actors: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	results := &tally{}

	// Each round is one contended interval far enough in the future to be
	// free of real data; every worker races for the same slot.
	base := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Hour)
	for round := 0; round < cfg.rounds; round++ {
		start := base.Add(time.Duration(round) * time.Hour)

		var wg sync.WaitGroup
		for w := 0; w < cfg.workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bookOnce(client, cfg.apiBaseURL, doctorID, patientID, start, results)
			}()
		}
		wg.Wait()
	}

	total := results.success + results.conflict + results.locked + results.failure
	log.Printf("requests: %d", total)
	log.Printf("  booked:          %d (expected %d, one per round)", results.success, cfg.rounds)
	log.Printf("  overlap refused: %d", results.conflict)
	log.Printf("  lock contention: %d", results.locked)
	log.Printf("  other failures:  %d", results.failure)
	log.Printf("latency p50=%s p95=%s", results.percentile(50), results.percentile(95))

	if results.success != int64(cfg.rounds) {
		log.Fatalf("double booking suspected: %d bookings for %d intervals", results.success, cfg.rounds)
	}
	log.Println("no interval was booked twice")
}

func loadSimConfig() simConfig {
	cfg := simConfig{
		apiBaseURL:  getenv("SIM_API_URL", "http://localhost:8080"),
		postgresDSN: os.Getenv("POSTGRES_DSN"),
		workers:     getint("SIM_WORKERS", 10),
		rounds:      getint("SIM_ROUNDS", 20),
	}
	if cfg.postgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

// pickActors grabs one doctor and one of their patients from the seeded data.
func pickActors(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, uuid.UUID, error) {
	var doctorID, patientID uuid.UUID
	err := pool.QueryRow(ctx, `
		SELECT d.id, p.id
		FROM doctors d
		JOIN patients p ON p.doctor_id = d.id
		LIMIT 1
	`).Scan(&doctorID, &patientID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("no seeded doctor/patient pair: %w", err)
	}
	return doctorID, patientID, nil
}

func bookOnce(client *http.Client, baseURL string, doctorID, patientID uuid.UUID, start time.Time, results *tally) {
	payload, _ := json.Marshal(map[string]any{
		"patient_id": patientID,
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(30 * time.Minute).Format(time.RFC3339),
		"title":      "load test booking",
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(payload))
	if err != nil {
		results.record(0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Doctor-ID", doctorID.String())

	began := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(began)
	if err != nil {
		results.record(latency, 0)
		return
	}
	defer resp.Body.Close()
	results.record(latency, resp.StatusCode)
}
