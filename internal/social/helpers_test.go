package social

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{now: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []models.Notification
	fail      bool
}

func (p *recordingPublisher) PublishNotification(ctx context.Context, n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("publish failed")
	}
	p.published = append(p.published, n)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fixture struct {
	st     *store.MockStore
	clock  *testClock
	pub    *recordingPublisher
	engine *NotificationEngine
	rel    *Relationships
	feed   *FeedAssembler
	inter  *Interactions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newTestClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	st := store.NewMock()
	st.Clock = clock.Now
	pub := &recordingPublisher{}

	engine := NewNotificationEngine(st, st, st,
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs("notif")),
		WithPublisher(pub),
		WithPageLimits(20, 100),
	)
	return &fixture{
		st:     st,
		clock:  clock,
		pub:    pub,
		engine: engine,
		rel:    NewRelationships(st, st, engine, WithClock(clock.Now)),
		feed:   NewFeedAssembler(st, st, st, WithConcurrency(4)),
		inter:  NewInteractions(st, engine, engine, WithClock(clock.Now), WithIDGenerator(sequentialIDs("obj"))),
	}
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	id, err := f.st.CreateUser(context.Background(), name)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return id
}

func (f *fixture) post(t *testing.T, author, body string) models.Post {
	t.Helper()
	p, err := f.inter.CreatePost(context.Background(), author, body)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	f.clock.Advance(time.Minute)
	return p
}

func (f *fixture) unread(t *testing.T, user string) int {
	t.Helper()
	n, err := f.engine.UnreadCount(context.Background(), user)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	return n
}
