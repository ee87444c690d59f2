// Command sse_load opens many concurrent /transactions/stream subscriptions
// and reports how many ledger events and heartbeats they receive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const callerHeader = "X-Caller-Identity"

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	reconnects  atomic.Int64
	events      atomic.Int64
	heartbeats  atomic.Int64
}

func (c *counters) String() string {
	return fmt.Sprintf("connected=%d connect_errs=%d stream_errs=%d reconnects=%d events=%d heartbeats=%d",
		c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(),
		c.reconnects.Load(), c.events.Load(), c.heartbeats.Load())
}

func main() {
	var (
		targetURL    string
		connections  int
		identities   int
		callerPrefix string
		testDuration time.Duration
		rampUp       time.Duration
		reconnect    bool
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/transactions/stream", "transaction stream URL")
	flag.IntVar(&connections, "conns", 1000, "number of concurrent subscriptions")
	flag.IntVar(&identities, "identities", 100, "distinct caller identities shared by the subscriptions")
	flag.StringVar(&callerPrefix, "caller", "loadtest-", "caller identity prefix")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread subscription starts across this window")
	flag.BoolVar(&reconnect, "reconnect", true, "resume from Last-Event-ID when a stream drops")
	flag.Parse()

	if connections <= 0 || identities <= 0 {
		log.Fatalf("invalid conns=%d identities=%d", connections, identities)
	}
	if rampUp == 0 && connections > 100 {
		rampUp = max(time.Duration(connections/500)*time.Second, time.Second)
		log.Printf("using default ramp-up %s", rampUp)
	}

	log.Printf("starting stream load: url=%s conns=%d identities=%d duration=%s ramp=%s",
		targetURL, connections, identities, testDuration, rampUp)

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConns:        connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	var (
		stats counters
		wg    sync.WaitGroup
		start = time.Now()
	)

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("status: %s elapsed=%s", &stats, time.Since(start).Truncate(time.Second))
			}
		}
	}()

	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}

		caller := fmt.Sprintf("%s%d", callerPrefix, i%identities)
		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, targetURL, caller, reconnect, &stats)
		}()
	}

	wg.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	fmt.Printf("done: %s elapsed=%s events/s=%.2f\n",
		&stats, elapsed.Truncate(time.Millisecond), float64(stats.events.Load())/elapsed.Seconds())
}

// subscribe holds one stream open for caller, resuming after the last seen id when it drops.
func subscribe(ctx context.Context, client *http.Client, url, caller string, reconnect bool, stats *counters) {
	lastID := ""
	for first := true; ctx.Err() == nil; first = false {
		if !first {
			if !reconnect {
				return
			}
			stats.reconnects.Add(1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			stats.connectErrs.Add(1)
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set(callerHeader, caller)
		if lastID != "" {
			req.Header.Set("Last-Event-ID", lastID)
		}

		resp, err := client.Do(req)
		if err != nil {
			stats.connectErrs.Add(1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			stats.connectErrs.Add(1)
			_ = resp.Body.Close()
			continue
		}

		stats.connected.Add(1)
		lastID = consume(resp, lastID, stats)
		stats.connected.Add(-1)
		_ = resp.Body.Close()
		if ctx.Err() == nil {
			stats.streamErrs.Add(1)
		}
	}
}

// consume reads events until the stream ends and returns the last event id seen.
func consume(resp *http.Response, lastID string, stats *counters) string {
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return lastID
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(line, ":"):
			stats.heartbeats.Add(1)
		case strings.HasPrefix(line, "id: "):
			lastID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: transaction"):
			stats.events.Add(1)
		}
	}
}
