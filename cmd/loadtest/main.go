// cmd/loadtest is an SLO-aware load generator for the controller's
// client-facing RPC, adapted from
// _examples/Kunal1522-GPU-Aware-Batch-Router/scripts/loadtest.go:
// concurrency/duration flags and percentile reporting carry over, but
// every request now carries a deadline and the summary reports goodput
// (fraction completed within SLO) instead of priority/worker distribution.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	v1 "github.com/clockworkgo/controller/pkg/api/v1"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "controller client address")
	concurrency := flag.Int("concurrency", 50, "number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	modelID := flag.Int("model", 0, "model id to request")
	sloMS := flag.Int("slo-ms", 100, "SLO deadline per request, milliseconds")
	payload := flag.Int("payload-bytes", 1024, "input payload size per request")
	rate := flag.Int("rate", 0, "requests/sec per client; 0 means unthrottled")
	flag.Parse()

	log.Printf("loadtest starting: addr=%s concurrency=%d duration=%v model=%d slo=%dms",
		*addr, *concurrency, *duration, *modelID, *sloMS)

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	client := v1.NewControllerServiceClient(conn)

	var (
		totalRequests  atomic.Int64
		totalSuccess   atomic.Int64
		totalDeadline  atomic.Int64
		totalErrors    atomic.Int64
		mu             sync.Mutex
		latencies      []time.Duration
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	input := make([]byte, *payload)
	sloNS := int64(*sloMS) * int64(time.Millisecond)

	var throttle <-chan time.Time
	if *rate > 0 {
		throttle = time.Tick(time.Second / time.Duration(*rate))
	}

	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if throttle != nil {
					select {
					case <-throttle:
					case <-ctx.Done():
						return
					}
				}

				reqStart := time.Now()
				resp, err := client.Infer(ctx, &v1.InferenceRequest{
					UserID:  "loadtest",
					ModelID: *modelID,
					Input:   input,
					SLONS:   sloNS,
				})
				if err != nil {
					totalErrors.Add(1)
					continue
				}

				elapsed := time.Since(reqStart)
				totalRequests.Add(1)
				switch resp.Status {
				case "success":
					totalSuccess.Add(1)
				case "deadline-exceeded":
					totalDeadline.Add(1)
				default:
					totalErrors.Add(1)
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	mu.Lock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	mu.Unlock()

	total := totalRequests.Load()
	success := totalSuccess.Load()
	deadline := totalDeadline.Load()
	errors := totalErrors.Load()
	throughput := float64(total) / elapsed.Seconds()
	var goodput float64
	if total > 0 {
		goodput = float64(success) / float64(total) * 100
	}

	fmt.Println("=======================================================")
	fmt.Println("  LOAD TEST RESULTS")
	fmt.Println("=======================================================")
	fmt.Printf("  Duration:        %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Concurrency:     %d\n", *concurrency)
	fmt.Printf("  Total Reqs:      %d\n", total)
	fmt.Printf("  Success:         %d (%.1f%% goodput)\n", success, goodput)
	fmt.Printf("  Deadline missed: %d\n", deadline)
	fmt.Printf("  Transport errs:  %d\n", errors)
	fmt.Printf("  Throughput:      %.1f req/sec\n", throughput)
	fmt.Println()

	if len(latencies) > 0 {
		fmt.Println("  Latency Percentiles:")
		fmt.Printf("    p50:  %v\n", latencies[len(latencies)*50/100])
		fmt.Printf("    p95:  %v\n", latencies[len(latencies)*95/100])
		fmt.Printf("    p99:  %v\n", latencies[len(latencies)*99/100])
		fmt.Printf("    max:  %v\n", latencies[len(latencies)-1])
	}
	fmt.Println("=======================================================")
}
