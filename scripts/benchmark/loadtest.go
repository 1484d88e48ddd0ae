// Command loadtest opens concurrent streams through relayd and reports
// time-to-first-token and total stream latency.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokligence/tokligence-relay/internal/openai"
	"github.com/tokligence/tokligence-relay/pkg/relay"
)

type stats struct {
	streams int64
	errors  int64
	tokens  int64

	mu    sync.Mutex
	first []time.Duration
	total []time.Duration
}

func (s *stats) observe(first, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if first > 0 {
		s.first = append(s.first, first)
	}
	s.total = append(s.total, total)
}

func main() {
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	concurrency := flag.Int("c", 20, "Number of concurrent streams")
	endpoint := flag.String("relay", "http://127.0.0.1:8090", "relayd base URL")
	target := flag.String("url", "http://127.0.0.1:11434/v1/chat/completions", "Upstream chat completions URL")
	model := flag.String("model", "llama2", "Model name sent upstream")
	apiKey := flag.String("api-key", os.Getenv("RELAY_BENCH_API_KEY"), "Bearer token for the upstream")
	flag.Parse()

	client, err := relay.NewRemote(*endpoint, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	body, _ := json.Marshal(openai.ChatCompletionRequest{
		Model:    *model,
		Messages: []openai.ChatMessage{{Role: openai.RoleUser, Content: "Say hello in five words."}},
		Stream:   true,
	})
	req := relay.OutboundRequest{
		TargetURL: *target,
		Method:    "POST",
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      string(body),
	}
	if *apiKey != "" {
		req.Headers["Authorization"] = "Bearer " + *apiKey
	}

	fmt.Printf("Starting relay load test:\n")
	fmt.Printf("  relayd:      %s\n", *endpoint)
	fmt.Printf("  upstream:    %s\n", *target)
	fmt.Printf("  duration:    %s\n", *duration)
	fmt.Printf("  concurrency: %d\n\n", *concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	st := &stats{}
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				runOne(ctx, client, req, st)
			}
		}()
	}
	wg.Wait()
	report(st, time.Since(start))
}

func runOne(ctx context.Context, client *relay.Client, req relay.OutboundRequest, st *stats) {
	begin := time.Now()
	var first time.Duration
	ts, err := client.Stream(ctx, req)
	if err == nil {
		for {
			_, err = ts.Next(ctx)
			if err != nil {
				break
			}
			if first == 0 {
				first = time.Since(begin)
			}
			atomic.AddInt64(&st.tokens, 1)
		}
		_ = ts.Close()
	}
	if ctx.Err() != nil {
		return
	}
	atomic.AddInt64(&st.streams, 1)
	if !errors.Is(err, io.EOF) {
		atomic.AddInt64(&st.errors, 1)
	}
	st.observe(first, time.Since(begin))
}

func report(st *stats, elapsed time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	line := strings.Repeat("=", 60)
	fmt.Println(line)
	fmt.Println("Relay Benchmark Results")
	fmt.Println(line)
	fmt.Printf("Streams:            %d\n", st.streams)
	fmt.Printf("Failures:           %d\n", st.errors)
	fmt.Printf("Tokens:             %d\n", st.tokens)
	fmt.Printf("Streams/sec:        %.2f\n", float64(st.streams)/elapsed.Seconds())
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("P50 first token:    %s\n", percentile(st.first, 0.50))
	fmt.Printf("P95 first token:    %s\n", percentile(st.first, 0.95))
	fmt.Printf("P50 stream:         %s\n", percentile(st.total, 0.50))
	fmt.Printf("P99 stream:         %s\n", percentile(st.total, 0.99))
	fmt.Println(line)
}

func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
