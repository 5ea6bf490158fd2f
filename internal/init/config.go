package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode       string
	ServerAddr string
	WSAddr     string
	TLSCert    string
	TLSKey     string
	JWTSecret  string

	// Kafka
	KafkaBroker    string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaPartition int
	KafkaReadTO    time.Duration
	KafkaWriteTO   time.Duration

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string
	MigrationsPath    string

	// Notification dedup window
	DedupBackend string
	DedupWindow  time.Duration

	// Redis (used when DedupBackend is "redis")
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Paging, rendering, observability
	DefaultPageSize int
	FeedPageSize    int
	MaxPageSize     int
	Locale          string
	LogLevel        string
	OtelEndpoint    string
	WorkerCount     int
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("WS_ADDR", ":8081")
	viper.SetDefault("JWT_SECRET", "")

	viper.SetDefault("KAFKA_BROKER", "localhost:29092")
	viper.SetDefault("KAFKA_TOPIC", "notification-events")
	viper.SetDefault("KAFKA_GROUP_ID", "notify-worker-group")
	viper.SetDefault("KAFKA_PARTITION", 0)
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "socialgraph")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	viper.SetDefault("MIGRATIONS_PATH", "./migrations/cassandra")
	// Optional: Cassandra username/password/DC can be empty

	viper.SetDefault("DEDUP_BACKEND", "cassandra")
	viper.SetDefault("DEDUP_WINDOW", "24h")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("DEFAULT_PAGE_SIZE", 20)
	viper.SetDefault("FEED_PAGE_SIZE", 10)
	viper.SetDefault("MAX_PAGE_SIZE", 100)
	viper.SetDefault("LOCALE", "en")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("WORKER_COUNT", 0)

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:              viper.GetString("MODE"),
		ServerAddr:        viper.GetString("SERVER_ADDR"),
		WSAddr:            viper.GetString("WS_ADDR"),
		TLSCert:           viper.GetString("TLS_CERT"),
		TLSKey:            viper.GetString("TLS_KEY"),
		JWTSecret:         viper.GetString("JWT_SECRET"),
		KafkaBroker:       viper.GetString("KAFKA_BROKER"),
		KafkaTopic:        viper.GetString("KAFKA_TOPIC"),
		KafkaGroupID:      viper.GetString("KAFKA_GROUP_ID"),
		KafkaPartition:    viper.GetInt("KAFKA_PARTITION"),
		KafkaReadTO:       parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:      parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		CassandraHost:     viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:       viper.GetString("CASSANDRA_DC"),
		MigrationsPath:    viper.GetString("MIGRATIONS_PATH"),
		DedupBackend:      viper.GetString("DEDUP_BACKEND"),
		DedupWindow:       parseDuration(viper.GetString("DEDUP_WINDOW"), 24*time.Hour),
		RedisAddr:         viper.GetString("REDIS_ADDR"),
		RedisPassword:     viper.GetString("REDIS_PASSWORD"),
		RedisDB:           viper.GetInt("REDIS_DB"),
		DefaultPageSize:   positiveOr(viper.GetInt("DEFAULT_PAGE_SIZE"), 20),
		FeedPageSize:      positiveOr(viper.GetInt("FEED_PAGE_SIZE"), 10),
		MaxPageSize:       positiveOr(viper.GetInt("MAX_PAGE_SIZE"), 100),
		Locale:            viper.GetString("LOCALE"),
		LogLevel:          viper.GetString("LOG_LEVEL"),
		OtelEndpoint:      viper.GetString("OTEL_ENDPOINT"),
		WorkerCount:       viper.GetInt("WORKER_COUNT"),
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
