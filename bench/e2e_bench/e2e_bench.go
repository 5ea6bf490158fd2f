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
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// UserResp represents the server's response when a user is created.
type UserResp struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type Post struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Created  time.Time `json:"created"`
}

type feedPage struct {
	Items []Post `json:"items"`
}

type notificationPage struct {
	Items []struct {
		Kind   string `json:"kind"`
		PostID string `json:"post_id"`
		Sender struct {
			ID string `json:"id"`
		} `json:"sender"`
	} `json:"items"`
}

type likeEvent struct {
	PostID   string
	AuthorID string
	LikerID  string
	Sent     time.Time
}

// Builds a random follow graph, publishes posts, then likes them. Two
// delivery paths are timed: a post showing up in a follower's home feed and
// a like showing up in the author's notification list.
func main() {
	var serverAddr string
	var U, F, P, L, concurrency int
	var pollTimeout int

	flag.StringVar(&serverAddr, "server", "https://localhost:8080", "server base URL")
	flag.IntVar(&U, "users", 50, "number of users to create")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&L, "likes", 200, "number of likes to send")
	flag.IntVar(&concurrency, "c", 20, "request concurrency")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for each delivery")
	flag.Parse()

	ctx := context.Background()

	cert, err := tls.LoadX509KeyPair("../../certs/cert.pem", "../../certs/key.pem")
	if err != nil {
		panic(fmt.Sprintf("failed to load cert/key: %v", err))
	}
	c := &client{
		base: serverAddr,
		http: &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}}},
			Timeout:   10 * time.Second,
		},
	}

	// --- 1) Users ---
	fmt.Printf("Creating %d users...\n", U)
	users := make([]UserResp, 0, U)
	tokens := make(map[string]string, U)
	for i := 0; i < U; i++ {
		var ur UserResp
		payload := map[string]string{"username": fmt.Sprintf("e2e%d_%d", i, time.Now().UnixNano()%1_000_000)}
		if err := c.do(ctx, http.MethodPost, "/users", "", payload, &ur); err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}
		users = append(users, ur)
		tokens[ur.UserID] = ur.Token
	}

	// --- 2) Follow graph; a repeat or self pick is skipped ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	followers := make(map[string][]string)
	for _, u := range users {
		seen := map[string]bool{u.UserID: true}
		for j := 0; j < F; j++ {
			followee := users[rand.Intn(len(users))]
			if seen[followee.UserID] {
				continue
			}
			seen[followee.UserID] = true
			if err := c.do(ctx, http.MethodPost, "/follows/"+followee.UserID, u.Token, nil, nil); err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			followers[followee.UserID] = append(followers[followee.UserID], u.UserID)
		}
	}

	// --- 3) Posts ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	var mu sync.Mutex
	var posts []Post
	runParallel(P, concurrency, func(int) {
		author := users[rand.Intn(len(users))]
		var p Post
		if err := c.do(ctx, http.MethodPost, "/posts", author.Token, map[string]string{"body": fmt.Sprintf("post %d", rand.Int())}, &p); err != nil {
			fmt.Printf("post error: %v\n", err)
			return
		}
		mu.Lock()
		posts = append(posts, p)
		mu.Unlock()
	})
	if len(posts) == 0 {
		fmt.Println("No posts published.")
		os.Exit(1)
	}

	// --- 4) Likes from random non-authors ---
	fmt.Printf("Sending %d likes...\n", L)
	var likes []likeEvent
	runParallel(L, concurrency, func(int) {
		p := posts[rand.Intn(len(posts))]
		liker := users[rand.Intn(len(users))]
		if liker.UserID == p.AuthorID {
			return
		}
		var state struct {
			Liked bool `json:"liked"`
		}
		sent := time.Now()
		if err := c.do(ctx, http.MethodPost, "/posts/"+p.ID+"/like", liker.Token, nil, &state); err != nil {
			fmt.Printf("like error: %v\n", err)
			return
		}
		if !state.Liked {
			// a second toggle by the same liker removed the like
			return
		}
		mu.Lock()
		likes = append(likes, likeEvent{PostID: p.ID, AuthorID: p.AuthorID, LikerID: liker.UserID, Sent: sent})
		mu.Unlock()
	})

	deadline := time.Duration(pollTimeout) * time.Second
	var feedLat, notifLat []float64
	var feedFails, notifFails int64
	var wg sync.WaitGroup

	// --- 5) Feed delivery ---
	fmt.Println("Checking feed delivery...")
	for _, p := range posts {
		for _, fid := range followers[p.AuthorID] {
			wg.Add(1)
			go func(p Post, token string) {
				defer wg.Done()
				ok := poll(deadline, func() bool {
					var page feedPage
					if err := c.do(ctx, http.MethodGet, "/feed?limit=100", token, nil, &page); err != nil {
						return false
					}
					for _, it := range page.Items {
						if it.ID == p.ID {
							return true
						}
					}
					return false
				})
				if !ok {
					atomic.AddInt64(&feedFails, 1)
					return
				}
				mu.Lock()
				feedLat = append(feedLat, time.Since(p.Created).Seconds()*1000)
				mu.Unlock()
			}(p, tokens[fid])
		}
	}

	// --- 6) Like notification delivery ---
	fmt.Println("Checking like notifications...")
	for _, ev := range likes {
		wg.Add(1)
		go func(ev likeEvent) {
			defer wg.Done()
			ok := poll(deadline, func() bool {
				var page notificationPage
				if err := c.do(ctx, http.MethodGet, "/notifications?kind=like&limit=100", tokens[ev.AuthorID], nil, &page); err != nil {
					return false
				}
				for _, n := range page.Items {
					if n.PostID == ev.PostID && n.Sender.ID == ev.LikerID {
						return true
					}
				}
				return false
			})
			if !ok {
				atomic.AddInt64(&notifFails, 1)
				return
			}
			mu.Lock()
			notifLat = append(notifLat, time.Since(ev.Sent).Seconds()*1000)
			mu.Unlock()
		}(ev)
	}
	wg.Wait()

	report("feed", feedLat, feedFails, "e2e_feed_latencies.csv")
	report("notification", notifLat, notifFails, "e2e_notification_latencies.csv")
}

type client struct {
	base string
	http *http.Client
}

func (c *client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// runParallel calls fn n times with at most limit calls in flight.
func runParallel(n, limit int, fn func(i int)) {
	if limit <= 0 {
		limit = 1
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, limit)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// poll retries check every 200ms until it succeeds or timeout passes.
func poll(timeout time.Duration, check func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func report(name string, latencies []float64, fails int64, csvPath string) {
	if len(latencies) == 0 {
		fmt.Printf("No successful %s deliveries recorded (fails=%d).\n", name, fails)
		return
	}
	sort.Float64s(latencies)
	const trimPercent = 1.0
	trimmed := trim(latencies, trimPercent)
	fmt.Printf("%s delivery (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d\n",
		name, len(latencies), mean(trimmed), percentile(trimmed, 50), percentile(trimmed, 90), percentile(trimmed, 99), fails)

	f, err := os.Create(csvPath)
	if err != nil {
		fmt.Printf("create %s: %v\n", csvPath, err)
		return
	}
	defer f.Close()
	w := csv.NewWriter(f)
	_ = w.Write([]string{"latency_ms"})
	for _, v := range latencies {
		_ = w.Write([]string{fmt.Sprintf("%.3f", v)})
	}
	w.Flush()
	fmt.Printf("Saved %s\n", csvPath)
}

// trim drops trimPercent of sorted data from each end.
func trim(data []float64, trimPercent float64) []float64 {
	n := int(float64(len(data)) * trimPercent / 100.0)
	if n*2 >= len(data) {
		n = len(data) / 2
	}
	return data[n : len(data)-n]
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
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
