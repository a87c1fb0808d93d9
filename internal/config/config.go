package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/voice2blog/courier/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logger     logger.Config    `yaml:"logger"`
	Store      StoreConfig      `yaml:"store"`
	Queue      QueueConfig      `yaml:"queue"`
	Publishing PublishingConfig `yaml:"publishing"`
	Platforms  PlatformsConfig  `yaml:"platforms"`
	Worker     WorkerConfig     `yaml:"worker"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StoreConfig selects the record store. Backend is one of dynamodb, postgres or memory.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Postgres DatabaseConfig `yaml:"postgres"`
}

type DynamoDBConfig struct {
	Region             string `yaml:"region"`
	Endpoint           string `yaml:"endpoint"`
	ContentTable       string `yaml:"content_table"`
	JobsTable          string `yaml:"jobs_table"`
	OrchestrationTable string `yaml:"orchestration_table"`
	JobIndex           string `yaml:"job_index"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

// QueueConfig selects the job queue. Backend is one of sqs, kafka, redis or memory.
type QueueConfig struct {
	Backend string      `yaml:"backend"`
	SQS     SQSConfig   `yaml:"sqs"`
	Kafka   KafkaConfig `yaml:"kafka"`
	Redis   RedisConfig `yaml:"redis"`
}

type SQSConfig struct {
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"`
	QueueURL          string `yaml:"queue_url"`
	WaitTimeSeconds   int32  `yaml:"wait_time_seconds"`
	VisibilityTimeout int32  `yaml:"visibility_timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type PublishingConfig struct {
	MaxAttempts         int    `yaml:"max_attempts"`
	BackoffBase         string `yaml:"backoff_base"`
	PlatformConcurrency int    `yaml:"platform_concurrency"`
}

type PlatformsConfig struct {
	Medium   PlatformConfig `yaml:"medium"`
	LinkedIn PlatformConfig `yaml:"linkedin"`
}

type PlatformConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// WorkerConfig configures the publish worker. Lock is local or redis; the redis locker reuses
// the queue's redis settings.
type WorkerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Lock         string `yaml:"lock"`
	PollInterval string `yaml:"poll_interval"`
	LockTTL      string `yaml:"lock_ttl"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return cfg, nil
}

// SetDefaults fills every unset field.
func (cfg *Config) SetDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.DynamoDB.Region == "" {
		cfg.Store.DynamoDB.Region = "us-east-1"
	}
	if cfg.Store.DynamoDB.ContentTable == "" {
		cfg.Store.DynamoDB.ContentTable = "voice-to-blog-content"
	}
	if cfg.Store.DynamoDB.JobsTable == "" {
		cfg.Store.DynamoDB.JobsTable = "voice-to-blog-publishing-jobs"
	}
	if cfg.Store.DynamoDB.OrchestrationTable == "" {
		cfg.Store.DynamoDB.OrchestrationTable = "voice-to-blog-publishing-orchestration"
	}
	if cfg.Store.DynamoDB.JobIndex == "" {
		cfg.Store.DynamoDB.JobIndex = "JobIdIndex"
	}
	if cfg.Store.Postgres.Host == "" {
		cfg.Store.Postgres.Host = "localhost"
	}
	if cfg.Store.Postgres.Port == 0 {
		cfg.Store.Postgres.Port = 5432
	}
	if cfg.Store.Postgres.SSLMode == "" {
		cfg.Store.Postgres.SSLMode = "disable"
	}
	if cfg.Store.Postgres.TimeZone == "" {
		cfg.Store.Postgres.TimeZone = "UTC"
	}

	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Queue.SQS.Region == "" {
		cfg.Queue.SQS.Region = cfg.Store.DynamoDB.Region
	}
	if cfg.Queue.SQS.WaitTimeSeconds == 0 {
		cfg.Queue.SQS.WaitTimeSeconds = 20
	}
	if cfg.Queue.SQS.VisibilityTimeout == 0 {
		cfg.Queue.SQS.VisibilityTimeout = 300
	}
	if len(cfg.Queue.Kafka.Brokers) == 0 {
		cfg.Queue.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Queue.Kafka.Topic == "" {
		cfg.Queue.Kafka.Topic = "courier-publishing-jobs"
	}
	if cfg.Queue.Kafka.GroupID == "" {
		cfg.Queue.Kafka.GroupID = "courier-workers"
	}
	if cfg.Queue.Redis.Addr == "" {
		cfg.Queue.Redis.Addr = "localhost:6379"
	}
	if cfg.Queue.Redis.Key == "" {
		cfg.Queue.Redis.Key = "courier:publishing"
	}

	if cfg.Publishing.MaxAttempts == 0 {
		cfg.Publishing.MaxAttempts = 3
	}
	if cfg.Publishing.BackoffBase == "" {
		cfg.Publishing.BackoffBase = "1s"
	}
	if cfg.Publishing.PlatformConcurrency == 0 {
		cfg.Publishing.PlatformConcurrency = 1
	}

	if cfg.Platforms.Medium.BaseURL == "" {
		cfg.Platforms.Medium.BaseURL = "https://api.medium.com"
	}
	if cfg.Platforms.Medium.Timeout == "" {
		cfg.Platforms.Medium.Timeout = "30s"
	}
	if cfg.Platforms.LinkedIn.BaseURL == "" {
		cfg.Platforms.LinkedIn.BaseURL = "https://api.linkedin.com"
	}
	if cfg.Platforms.LinkedIn.Timeout == "" {
		cfg.Platforms.LinkedIn.Timeout = "30s"
	}

	if cfg.Worker.PollInterval == "" {
		cfg.Worker.PollInterval = "1s"
	}
	if cfg.Worker.Lock == "" {
		cfg.Worker.Lock = "local"
	}
	if cfg.Worker.LockTTL == "" {
		cfg.Worker.LockTTL = "5m"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Duration parses value, falling back to def when it is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
