package social

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDedupWindow is how long a repeated action stays suppressed.
const DefaultDedupWindow = 24 * time.Hour

type settings struct {
	clock     func() time.Time
	newID     func() string
	limits    PageLimits
	window    time.Duration
	publisher NotificationPublisher
	renderer  *Renderer
	workers   int
}

type Option func(*settings)

func defaultSettings() settings {
	return settings{
		clock:    time.Now,
		newID:    newTimeOrderedID,
		limits:   PageLimits{Default: 20, Max: 100},
		window:   DefaultDedupWindow,
		renderer: NewRenderer("en"),
		workers:  8,
	}
}

func apply(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func newTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *settings) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithPageLimits(def, max int) Option {
	return func(s *settings) {
		if def > 0 {
			s.limits.Default = def
		}
		if max > 0 {
			s.limits.Max = max
		}
	}
}

func WithDedupWindow(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithPublisher makes the engine announce every created notification.
func WithPublisher(p NotificationPublisher) Option {
	return func(s *settings) { s.publisher = p }
}

func WithRenderer(r *Renderer) Option {
	return func(s *settings) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithConcurrency bounds the goroutines used to read per-author and per-post data.
func WithConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}
