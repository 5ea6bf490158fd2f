package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	config "example.com/socialgraph/internal/init"
	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/models"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var logg = logger.New()

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyExists is returned when a lightweight transaction was not applied.
	ErrAlreadyExists = errors.New("store: already exists")
)

// --- Interfaces ---

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

type UserStore interface {
	CreateUser(ctx context.Context, username string) (string, error)
	GetUserIDByUsername(ctx context.Context, username string) (string, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// FollowStore keeps directed follow edges. CreateFollow must reject an
// existing (follower, followee) pair atomically with ErrAlreadyExists.
type FollowStore interface {
	CreateFollow(ctx context.Context, f models.Follow) error
	DeleteFollow(ctx context.Context, followerID, followeeID string) error
	GetFollow(ctx context.Context, followerID, followeeID string) (models.Follow, error)
	ListFollowers(ctx context.Context, userID string, limit int) ([]models.Follow, error)
	ListFollowing(ctx context.Context, userID string, limit int) ([]models.Follow, error)
	CountFollowers(ctx context.Context, userID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	GetNotification(ctx context.Context, id string) (models.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error)
	ListNotificationsByPost(ctx context.Context, postID string) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, n models.Notification) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error)
	DeleteNotification(ctx context.Context, n models.Notification) error
}

// DedupKey identifies one notification tuple inside the dedup window.
type DedupKey struct {
	RecipientID string
	SenderID    string
	Kind        models.Kind
	PostID      string
}

// String length-prefixes every part, so ids containing ':' cannot collide.
func (k DedupKey) String() string {
	var b strings.Builder
	for _, part := range []string{k.RecipientID, k.SenderID, string(k.Kind), k.PostID} {
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// DedupWindow holds a marker per DedupKey for a fixed time from its first claim.
// Claim is atomic: of two concurrent claims for the same key exactly one wins.
type DedupWindow interface {
	Claim(ctx context.Context, key DedupKey, notificationID string, window time.Duration) (bool, error)
	Release(ctx context.Context, key DedupKey, notificationID string) error
}

type ContentStore interface {
	AddPost(ctx context.Context, post models.Post) error
	GetPost(ctx context.Context, postID string) (models.Post, error)
	DeletePost(ctx context.Context, post models.Post) error
	ListPostsByAuthor(ctx context.Context, authorID string, limit int) ([]models.Post, error)
	CountPostsByAuthor(ctx context.Context, authorID string) (int, error)
	ListAllPosts(ctx context.Context, limit int) ([]models.Post, error)
	CountAllPosts(ctx context.Context) (int, error)
	GetAuthorStats(ctx context.Context, authorID string) (models.AuthorStats, error)

	AddLike(ctx context.Context, postID, userID string, at time.Time) (bool, error)
	RemoveLike(ctx context.Context, postID, userID string) (bool, error)
	HasLiked(ctx context.Context, postID, userID string) (bool, error)
	CountLikes(ctx context.Context, postID string) (int, error)
	DeleteLikes(ctx context.Context, postID string) error

	AddComment(ctx context.Context, c models.Comment) error
	CountComments(ctx context.Context, postID string) (int, error)
	DeleteComments(ctx context.Context, postID string) error
}

type StoreInterface interface {
	UserStore
	FollowStore
	NotificationStore
	ContentStore
	DedupWindow
	Close()
}

// --- Store Implementation ---

type Store struct {
	Session SessionInterface
}

// New initializes Cassandra connection using config package.
func New() (*Store, error) {
	cfg := config.Get()

	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}

	if cfg.CassandraDC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &Store{Session: sess}, nil
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg *config.Config) error {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = "system"
	cluster.Timeout = cfg.CassandraTimeout
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runMigrations(cfg *config.Config) error {
	migrationsPath := filepath.Clean(cfg.MigrationsPath)
	sourceURL := fmt.Sprintf("file://%s", migrationsPath)
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// count runs a SELECT COUNT(*) statement bound to ctx.
func (s *Store) count(ctx context.Context, stmt string, values ...interface{}) (int, error) {
	var n int64
	if err := s.Session.Query(stmt, values...).WithContext(ctx).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close gracefully closes Cassandra session.
func (s *Store) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}
