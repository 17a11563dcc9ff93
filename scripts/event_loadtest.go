//go:build ignore
// +build ignore

// Load test for the event intake path.
//
// Usage:
//   go run scripts/event_loadtest.go \
//     --target=http://localhost:8080 \
//     --duration=1m \
//     --concurrency=32 \
//     --recipients=5000 \
//     --mock-push-port=9999
//
// With --mock-push-port set, a fake push gateway is started so the server
// can be pointed at it (channels.push.gateway_url) without sending real
// notifications.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

type event struct {
	TriggerEvent string         `json:"triggerEvent"`
	RecipientID  string         `json:"recipientId"`
	Locale       string         `json:"locale,omitempty"`
	Context      map[string]any `json:"context"`
}

type result struct {
	Selected   int `json:"selected"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Metrics collects per-request outcomes.
type Metrics struct {
	mu         sync.Mutex
	latencies  []time.Duration
	byStatus   map[int]int64
	errors     int64
	selected   int64
	dispatched int64
	failed     int64
	skipped    int64
}

func (m *Metrics) Record(status int, latency time.Duration, res *result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.errors++
		return
	}
	m.byStatus[status]++
	if len(m.latencies) < 200000 {
		m.latencies = append(m.latencies, latency)
	}
	if res != nil {
		m.selected += int64(res.Selected)
		m.dispatched += int64(res.Dispatched)
		m.failed += int64(res.Failed)
		m.skipped += int64(res.Skipped)
	}
}

// percentile calculates the p-th percentile of durations
func percentile(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*float64(p)/100)]
}

func randomEvent(recipients int) event {
	rid := fmt.Sprintf("loadtest-%d", rand.Intn(recipients))
	switch rand.Intn(3) {
	case 0:
		return event{
			TriggerEvent: "streak_at_risk",
			RecipientID:  rid,
			Context:      map[string]any{"streak": map[string]any{"count": rand.Intn(10)}},
		}
	default:
		return event{
			TriggerEvent: "user_inactive",
			RecipientID:  rid,
			Locale:       []string{"en", "es", "pt"}[rand.Intn(3)],
			Context: map[string]any{
				"daysSinceActive": 1 + rand.Intn(10),
				"user":            map[string]any{"firstName": "Load", "email": rid + "@example.com"},
				"device":          map[string]any{"pushToken": "ExponentPushToken[" + rid + "]"},
			},
		}
	}
}

func startMockPush(port int, hits *int64) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		atomic.AddInt64(hits, 1)
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"status":"ok","id":"%s"}}`, uuid.NewString())
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("mock push gateway: %v", err)
		}
	}()
	return srv
}

func main() {
	target := flag.String("target", "http://localhost:8080", "server base URL")
	duration := flag.Duration("duration", time.Minute, "test duration")
	concurrency := flag.Int("concurrency", 16, "concurrent clients")
	recipients := flag.Int("recipients", 1000, "distinct recipient IDs")
	mockPushPort := flag.Int("mock-push-port", 0, "start a mock push gateway on this port")
	flag.Parse()

	var pushHits int64
	if *mockPushPort > 0 {
		srv := startMockPush(*mockPushPort, &pushHits)
		defer srv.Close()
		log.Printf("mock push gateway on :%d", *mockPushPort)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sig; cancel() }()

	client := &http.Client{Timeout: 30 * time.Second}
	m := &Metrics{byStatus: map[int]int64{}}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				body, _ := json.Marshal(randomEvent(*recipients))
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, *target+"/v1/events", bytes.NewReader(body))
				req.Header.Set("Content-Type", "application/json")

				t0 := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						m.Record(0, 0, nil, err)
					}
					continue
				}
				var res result
				if resp.StatusCode == http.StatusOK {
					json.NewDecoder(resp.Body).Decode(&res)
				}
				resp.Body.Close()
				m.Record(resp.StatusCode, time.Since(t0), &res, nil)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	var total int64
	for _, n := range m.byStatus {
		total += n
	}
	fmt.Println("=== event intake load test ===")
	fmt.Printf("duration:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("requests:     %d (%.1f/s), transport errors %d\n", total, float64(total)/elapsed.Seconds(), m.errors)
	for status, n := range m.byStatus {
		fmt.Printf("  HTTP %d:   %d\n", status, n)
	}
	fmt.Printf("latency p50:  %s\n", percentile(m.latencies, 50))
	fmt.Printf("latency p99:  %s\n", percentile(m.latencies, 99))
	fmt.Printf("plans:        selected %d, dispatched %d, failed %d, skipped %d\n", m.selected, m.dispatched, m.failed, m.skipped)
	if *mockPushPort > 0 {
		fmt.Printf("push gateway: %d hits\n", atomic.LoadInt64(&pushHits))
	}
}
