package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// UserResp represents the response returned by the server after user creation
type UserResp struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type postResp struct {
	ID string `json:"id"`
}

// Each goroutine owns one user and one post. The hot loop toggles a like on
// the next user's post, which drives the dedup claim path on every request,
// then reads the unread badge.
func main() {
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64

	flag.StringVar(&server, "server", "https://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.Parse()

	if concurrency < 2 {
		concurrency = 2
	}

	// --- Load client certificate for mTLS ---
	cert, err := tls.LoadX509KeyPair("../../certs/cert.pem", "../../certs/key.pem")
	if err != nil {
		panic(fmt.Sprintf("failed to load cert/key: %v", err))
	}
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		},
		Timeout: 10 * time.Second,
	}

	fmt.Printf("Creating %d users with one post each...\n", concurrency)
	users := make([]UserResp, concurrency)
	posts := make([]string, concurrency)
	for i := range users {
		payload := map[string]string{"username": fmt.Sprintf("load%d_%d", i, time.Now().UnixNano()%1_000_000)}
		if err := call(client, http.MethodPost, server+"/users", "", payload, &users[i]); err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
		var p postResp
		body := map[string]string{"body": fmt.Sprintf("load target %d", i)}
		if err := call(client, http.MethodPost, server+"/posts", users[i].Token, body, &p); err != nil {
			panic(fmt.Sprintf("failed to create post: %v", err))
		}
		posts[i] = p.ID
	}
	fmt.Println("Fixtures ready.")

	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	var requests, successes, errors4xx, errors5xx int64
	latencySlices := make([][]float64, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := users[idx]
			target := posts[(idx+1)%concurrency]
			urls := []struct{ method, url string }{
				{http.MethodPost, server + "/posts/" + target + "/like"},
				{http.MethodGet, server + "/notifications/unread-count"},
			}
			var local []float64

			for n := 0; time.Now().Before(stopTime); n++ {
				op := urls[n%len(urls)]
				req, _ := http.NewRequestWithContext(context.Background(), op.method, op.url, nil)
				req.Header.Set("Authorization", "Bearer "+user.Token)

				start := time.Now()
				resp, err := client.Do(req)
				local = append(local, time.Since(start).Seconds()*1000)
				atomic.AddInt64(&requests, 1)
				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}

				switch {
				case resp.StatusCode >= 500:
					atomic.AddInt64(&errors5xx, 1)
				case resp.StatusCode >= 400:
					atomic.AddInt64(&errors4xx, 1)
				default:
					atomic.AddInt64(&successes, 1)
				}
				if resp.StatusCode >= 400 {
					b, _ := io.ReadAll(resp.Body)
					fmt.Printf("Status %d: %s\n", resp.StatusCode, string(b))
				} else {
					_, _ = io.Copy(io.Discard, resp.Body)
				}
				resp.Body.Close()
			}
			latencySlices[idx] = local
		}(i)
	}
	wg.Wait()

	var all []float64
	for _, s := range latencySlices {
		all = append(all, s...)
	}
	sort.Float64s(all)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n",
		trimmedMean(all, trimPercent), percentile(all, 50), percentile(all, 90), percentile(all, 99))

	if err := writeCSV(csvFile, all); err != nil {
		fmt.Printf("Failed to write CSV: %v\n", err)
		return
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// call sends an optional JSON body and decodes a 2xx JSON response into out.
func call(client *http.Client, method, url, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func writeCSV(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"latency_ms"})
	for _, d := range data {
		_ = w.Write([]string{fmt.Sprintf("%.3f", d)})
	}
	w.Flush()
	return w.Error()
}

// trimmedMean averages sorted data after dropping trimPercent from each end.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	trimmed := data[trim : len(data)-trim]
	if len(trimmed) == 0 {
		return 0
	}
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile interpolates the p-th percentile of sorted data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
