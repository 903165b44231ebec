// main.go - Load generator for the storepulse beacon endpoint
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	v1 "storepulse/api/v1"
	"storepulse/internal/events"
)

// LoadConfig holds the configuration for a load run
type LoadConfig struct {
	BaseURL       string
	Concurrency   int
	Duration      time.Duration
	EventsPerSec  int
	VerboseOutput bool
	Timeout       time.Duration
}

// LoadStats holds statistics about a load run
type LoadStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	SkippedBeacons     int64
	TotalDuration      time.Duration
	MinLatency         time.Duration
	MaxLatency         time.Duration
	TotalLatency       time.Duration
	StatusCodes        map[int]int64
	ResponseTimes      []time.Duration
	StartTime          time.Time
	EndTime            time.Time
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Skipped    bool
	Error      error
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the storepulse server")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the run")
	eventsPerSec := flag.Int("rate", 0, "Target beacons per second (0 = unlimited)")
	verbose := flag.Bool("verbose", false, "Print every failed response")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config := &LoadConfig{
		BaseURL:       strings.TrimRight(*baseURL, "/"),
		Concurrency:   max(*concurrency, 1),
		Duration:      *duration,
		EventsPerSec:  *eventsPerSec,
		VerboseOutput: *verbose,
		Timeout:       *timeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("\n=== storepulse load generator ===")
	fmt.Printf("  URL (-url):           %s/visitors/track\n", config.BaseURL)
	fmt.Printf("  Concurrency (-c):     %d\n", config.Concurrency)
	fmt.Printf("  Duration (-d):        %v\n", config.Duration)
	fmt.Printf("  Beacons/sec (-rate):  %d (0 = unlimited)\n", config.EventsPerSec)
	fmt.Printf("  Timeout (-timeout):   %v\n", config.Timeout)
	fmt.Println("=================================")

	stats := &LoadStats{
		StatusCodes: make(map[int]int64),
		StartTime:   time.Now(),
	}

	runCtx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	for result := range runLoad(runCtx, config, logger) {
		processResult(result, stats)
	}

	stats.EndTime = time.Now()
	stats.TotalDuration = stats.EndTime.Sub(stats.StartTime)

	printResults(stats)
}

// runLoad starts the workers and returns a channel of their results. The
// channel closes once every worker has observed ctx being done.
func runLoad(ctx context.Context, config *LoadConfig, logger *slog.Logger) <-chan Result {
	resultChan := make(chan Result, config.Concurrency*10)
	var wg sync.WaitGroup

	requestsPerSecPerWorker := 0.0
	if config.EventsPerSec > 0 {
		requestsPerSecPerWorker = float64(config.EventsPerSec) / float64(config.Concurrency)
		logger.Info("Rate limiting enabled",
			slog.Int("totalRequestsPerSec", config.EventsPerSec),
			slog.Float64("requestsPerSecPerWorker", requestsPerSecPerWorker))
	} else {
		logger.Info("No rate limiting, running at maximum speed")
	}

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: config.Timeout}
			visitor := newVisitor()

			var ticker *time.Ticker
			if requestsPerSecPerWorker > 0 {
				ticker = time.NewTicker(time.Duration(float64(time.Second) / requestsPerSecPerWorker))
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				// A fresh visitor every so often keeps the session counts realistic.
				if rand.IntN(20) == 0 {
					visitor = newVisitor()
				}

				result := sendRequest(ctx, client, config, visitor)
				if ctx.Err() != nil && result.Error != nil {
					return
				}
				resultChan <- result
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	return resultChan
}

type visitor struct {
	id        string
	userAgent string
	ip        string
}

func newVisitor() visitor {
	return visitor{
		id:        uuid.NewString(),
		userAgent: userAgents[rand.IntN(len(userAgents))],
		ip:        fmt.Sprintf("%d.%d.%d.%d", rand.IntN(223)+1, rand.IntN(256), rand.IntN(256), rand.IntN(254)+1),
	}
}

// sendRequest posts one beacon to the track endpoint
func sendRequest(ctx context.Context, client *http.Client, config *LoadConfig, v visitor) Result {
	jsonData, err := json.Marshal(generateBeacon(v))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal JSON: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.BaseURL+"/visitors/track", bytes.NewReader(jsonData))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", v.userAgent)
	req.Header.Set("X-Forwarded-For", v.ip)

	startTime := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return Result{Duration: duration, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		if config.VerboseOutput {
			fmt.Printf("Error response [%d]: %s\n", resp.StatusCode, string(body))
		}
		return Result{Duration: duration, StatusCode: resp.StatusCode}
	}

	var outcome struct {
		Skipped bool `json:"skipped"`
	}
	_ = json.Unmarshal(body, &outcome)

	return Result{
		Duration:   duration,
		StatusCode: resp.StatusCode,
		Skipped:    outcome.Skipped,
	}
}

var paths = []string{
	"/",
	"/collections/all",
	"/collections/mugs",
	"/products/mug-classic",
	"/products/tee-logo",
	"/products/hoodie-zip",
	"/cart",
	"/checkout",
	"/blog/gift-guide",
	"/pages/about",
}

var referrers = []string{
	"",
	"https://www.google.com/search?q=coffee+mug",
	"https://duckduckgo.com/",
	"https://www.facebook.com/",
	"https://t.co/abc123",
	"https://www.instagram.com/",
	"https://news.ycombinator.com/",
	"https://some-other-website.com/blog/post",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// generateBeacon builds a random storefront beacon. Most are page views; the
// rest carry a commerce payload.
func generateBeacon(v visitor) v1.TrackParams {
	params := v1.TrackParams{
		Path:         paths[rand.IntN(len(paths))],
		Referrer:     referrers[rand.IntN(len(referrers))],
		EventType:    string(events.EventTypePageView),
		VisitorID:    v.id,
		ScreenWidth:  1440,
		ScreenHeight: 900,
		Language:     "en-US",
		Timezone:     "Europe/Berlin",
	}

	var data any
	switch roll := rand.IntN(100); {
	case roll < 70:
	case roll < 85:
		params.EventType = string(events.EventTypeProductView)
		data = events.ProductData{ProductID: "mug-classic", ProductName: "Classic Mug", Price: 14.5}
	case roll < 93:
		params.EventType = string(events.EventTypeAddToCart)
		data = events.CartData{ProductID: "tee-logo", ProductName: "Logo Tee", Quantity: 1, Price: 29}
	case roll < 97:
		params.EventType = string(events.EventTypeCheckoutStarted)
		data = events.CheckoutData{CartValue: 43.5, ItemCount: 2}
	default:
		params.EventType = string(events.EventTypePurchase)
		data = events.PurchaseData{
			ProductID: "hoodie-zip",
			OrderID:   events.FlexString(fmt.Sprintf("order-%d", rand.IntN(1_000_000))),
			Amount:    59,
			Currency:  "USD",
		}
	}
	if data != nil {
		params.EventData, _ = json.Marshal(data)
	}
	return params
}

// processResult folds a single result into the stats
func processResult(result Result, stats *LoadStats) {
	stats.TotalRequests++

	if result.Error != nil || result.StatusCode >= 400 {
		stats.FailedRequests++
	} else {
		stats.SuccessfulRequests++
		if result.Skipped {
			stats.SkippedBeacons++
		}
	}
	if result.StatusCode != 0 {
		stats.StatusCodes[result.StatusCode]++
	}

	if result.Duration == 0 {
		return
	}
	if stats.MinLatency == 0 || result.Duration < stats.MinLatency {
		stats.MinLatency = result.Duration
	}
	if result.Duration > stats.MaxLatency {
		stats.MaxLatency = result.Duration
	}
	stats.TotalLatency += result.Duration
	stats.ResponseTimes = append(stats.ResponseTimes, result.Duration)
}

// printResults prints the run summary
func printResults(stats *LoadStats) {
	if stats.TotalRequests == 0 {
		fmt.Println("\nNo requests were sent.")
		return
	}

	var avgLatency time.Duration
	if n := len(stats.ResponseTimes); n > 0 {
		avgLatency = stats.TotalLatency / time.Duration(n)
	}
	requestsPerSecond := float64(stats.TotalRequests) / stats.TotalDuration.Seconds()

	fmt.Println("\n=== Load Test Results ===")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Duration\t%v\n", stats.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests\t%d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Requests/sec\t%.2f\n", requestsPerSecond)
	fmt.Fprintf(w, "Successful Requests\t%d (%.2f%%)\n", stats.SuccessfulRequests, 100*float64(stats.SuccessfulRequests)/float64(stats.TotalRequests))
	fmt.Fprintf(w, "Failed Requests\t%d (%.2f%%)\n", stats.FailedRequests, 100*float64(stats.FailedRequests)/float64(stats.TotalRequests))
	if stats.SkippedBeacons > 0 {
		fmt.Fprintf(w, "Skipped Beacons\t%d\n", stats.SkippedBeacons)
	}
	fmt.Fprintf(w, "Min Latency\t%v\n", stats.MinLatency)
	fmt.Fprintf(w, "Max Latency\t%v\n", stats.MaxLatency)
	fmt.Fprintf(w, "Avg Latency\t%v\n", avgLatency)
	w.Flush()

	if len(stats.ResponseTimes) > 0 {
		sort.Slice(stats.ResponseTimes, func(i, j int) bool {
			return stats.ResponseTimes[i] < stats.ResponseTimes[j]
		})
		fmt.Println("\nLatency Percentiles:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "p%.0f\t%v\n", p, percentile(stats.ResponseTimes, p))
		}
		w.Flush()
	}

	if len(stats.StatusCodes) > 0 {
		fmt.Println("\nStatus Code Distribution:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "STATUS CODE", "COUNT", "PERCENTAGE", "GRAPH")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "-----------", "-----", "----------", "-----")

		var codes []int
		var maxCount int64 = 1
		for code, count := range stats.StatusCodes {
			codes = append(codes, code)
			maxCount = max(maxCount, count)
		}
		sort.Ints(codes)

		const maxBarLength = 50
		for _, code := range codes {
			count := stats.StatusCodes[code]
			bar := strings.Repeat("█", int(float64(count)/float64(maxCount)*maxBarLength))
			fmt.Fprintf(w, "%d\t%d\t%.2f%%\t%s\n", code, count, 100*float64(count)/float64(stats.TotalRequests), bar)
		}
		w.Flush()
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
