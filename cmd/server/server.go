package server

import (
	"context"
	"net/http"
	"time"

	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/middleware"
	"example.com/socialgraph/internal/social"
	"example.com/socialgraph/internal/store"
)

var logg = logger.New()

// Options tune the social components behind the HTTP API.
type Options struct {
	DedupWindow     time.Duration
	DefaultPageSize int
	FeedPageSize    int
	MaxPageSize     int
	Locale          string
	Concurrency     int
}

type Server struct {
	users         store.UserStore
	relationships *social.Relationships
	notifications *social.NotificationEngine
	feed          *social.FeedAssembler
	interactions  *social.Interactions
}

// New wires the social components over st. publisher may be nil, in which
// case notifications are persisted but not announced to workers.
func New(st store.StoreInterface, dedup store.DedupWindow, publisher social.NotificationPublisher, opts Options) *Server {
	renderer := social.NewRenderer(opts.Locale)
	common := []social.Option{
		social.WithRenderer(renderer),
		social.WithConcurrency(opts.Concurrency),
	}

	engineOpts := append([]social.Option{
		social.WithDedupWindow(opts.DedupWindow),
		social.WithPageLimits(opts.DefaultPageSize, opts.MaxPageSize),
	}, common...)
	if publisher != nil {
		engineOpts = append(engineOpts, social.WithPublisher(publisher))
	}
	engine := social.NewNotificationEngine(st, st, dedup, engineOpts...)

	return &Server{
		users: st,
		relationships: social.NewRelationships(st, st, engine,
			append([]social.Option{social.WithPageLimits(opts.DefaultPageSize, opts.MaxPageSize)}, common...)...),
		notifications: engine,
		feed: social.NewFeedAssembler(st, st, st,
			append([]social.Option{social.WithPageLimits(opts.FeedPageSize, opts.MaxPageSize)}, common...)...),
		interactions: social.NewInteractions(st, engine, engine, common...),
	}
}

// Routes returns the API mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.Handler { return middleware.JWTAuth(h) }
	optional := func(h http.HandlerFunc) http.Handler { return middleware.OptionalAuth(h) }

	// Public endpoint for user registration (no JWT required)
	mux.Handle("POST /users", http.HandlerFunc(s.createUserHandler))

	// Relationships
	mux.Handle("POST /follows/{userID}", auth(s.followHandler))
	mux.Handle("DELETE /follows/{userID}", auth(s.unfollowHandler))
	mux.Handle("GET /follows/{userID}/status", auth(s.followStatusHandler))
	mux.Handle("GET /users/{userID}/followers", optional(s.followersHandler))
	mux.Handle("GET /users/{userID}/following", auth(s.followingHandler))
	mux.Handle("GET /users/{userID}/stats", auth(s.statsHandler))

	// Notifications
	mux.Handle("GET /notifications", auth(s.listNotificationsHandler))
	mux.Handle("GET /notifications/unread-count", auth(s.unreadCountHandler))
	mux.Handle("PUT /notifications/read-all", auth(s.markAllReadHandler))
	mux.Handle("PUT /notifications/{id}/read", auth(s.markReadHandler))
	mux.Handle("DELETE /notifications/{id}", auth(s.deleteNotificationHandler))

	// Feeds
	mux.Handle("GET /feed", auth(s.homeFeedHandler))
	mux.Handle("GET /feed/explore", optional(s.exploreFeedHandler))
	mux.Handle("GET /feed/suggestions", auth(s.suggestionsHandler))

	// Posts and interactions
	mux.Handle("POST /posts", auth(s.createPostHandler))
	mux.Handle("DELETE /posts/{postID}", auth(s.deletePostHandler))
	mux.Handle("POST /posts/{postID}/like", auth(s.toggleLikeHandler))
	mux.Handle("POST /posts/{postID}/comments", auth(s.addCommentHandler))

	return mux
}

// Run serves the API on addr until ctx is cancelled, then shuts down
// gracefully. TLS is used when both certFile and keyFile are set.
func Run(ctx context.Context, s *Server, addr, certFile, keyFile string) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
