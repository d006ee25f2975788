package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	"judgecore/internal/common/mq"
	"judgecore/internal/common/storage"
	"judgecore/internal/judge/checker"
	"judgecore/internal/judge/language"
	"judgecore/internal/judge/sandbox"
	"judgecore/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultSubmitTopic   = "judge.submit"
	defaultRejudgeTopic  = "judge.rejudge"
	defaultFinalTopic    = "judge.status.final"
	defaultConsumerGroup = "judgecore-judge"

	defaultPoolSize    = 4
	defaultJobTimeout  = 10 * time.Minute
	defaultDataDir     = "/var/lib/judgecore/data"
	defaultRunTokenTTL = 2 * time.Hour
	defaultLockWait    = 2 * time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string       `yaml:"brokers"`
	ClientID      string         `yaml:"clientID"`
	MinBytes      int            `yaml:"minBytes"`
	MaxBytes      int            `yaml:"maxBytes"`
	MaxWait       time.Duration  `yaml:"maxWait"`
	BatchSize     int            `yaml:"batchSize"`
	BatchTimeout  time.Duration  `yaml:"batchTimeout"`
	DialTimeout   time.Duration  `yaml:"dialTimeout"`
	ReadTimeout   time.Duration  `yaml:"readTimeout"`
	WriteTimeout  time.Duration  `yaml:"writeTimeout"`
	RequiredAcks  int            `yaml:"requiredAcks"`
	Compression   string         `yaml:"compression"`
	SubmitTopic   string         `yaml:"submitTopic"`
	RejudgeTopic  string         `yaml:"rejudgeTopic"`
	FinalTopic    string         `yaml:"finalTopic"`
	ConsumerGroup string         `yaml:"consumerGroup"`
	DeadLetter    string         `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration  `yaml:"messageTTL"`
	TopicWeights  map[string]int `yaml:"topicWeights"`
}

// MinIOConfig holds optional test data pack settings. Sync is disabled when Endpoint is empty.
type MinIOConfig struct {
	storage.MinIOConfig `yaml:",inline"`
	LockTTL             time.Duration `yaml:"lockTTL"`
	LockWait            time.Duration `yaml:"lockWait"`
}

// JudgeConfig holds worker pool and pipeline settings.
type JudgeConfig struct {
	PoolSize        int           `yaml:"poolSize"`
	JobTimeout      time.Duration `yaml:"jobTimeout"`
	DataDir         string        `yaml:"dataDir"`
	ProgressTTL     time.Duration `yaml:"progressTTL"`
	RunTokenTTL     time.Duration `yaml:"runTokenTTL"`
	CompileCPU      time.Duration `yaml:"compileCPU"`
	CompileMemoryMB int64         `yaml:"compileMemoryMB"`
	ProcLimit       uint64        `yaml:"procLimit"`
	OutputLimit     int64         `yaml:"outputLimit"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Logger    logger.Config        `yaml:"logger"`
	Kafka     KafkaConfig          `yaml:"kafka"`
	Database  db.MySQLConfig       `yaml:"database"`
	Redis     cache.RedisConfig    `yaml:"redis"`
	MinIO     MinIOConfig          `yaml:"minio"`
	Sandbox   sandbox.ClientConfig `yaml:"sandbox"`
	Checker   checker.Config       `yaml:"checker"`
	Judge     JudgeConfig          `yaml:"judge"`
	Languages []language.Profile   `yaml:"languages"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if cfg.Sandbox.BaseURL == "" {
		return fmt.Errorf("sandbox baseURL is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Kafka.SubmitTopic == "" {
		cfg.Kafka.SubmitTopic = defaultSubmitTopic
	}
	if cfg.Kafka.RejudgeTopic == "" {
		cfg.Kafka.RejudgeTopic = defaultRejudgeTopic
	}
	if cfg.Kafka.FinalTopic == "" {
		cfg.Kafka.FinalTopic = defaultFinalTopic
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = defaultConsumerGroup
	}
	if len(cfg.Kafka.TopicWeights) == 0 {
		cfg.Kafka.TopicWeights = defaultTopicWeights(cfg.Kafka.topics())
	}
	if cfg.Judge.PoolSize <= 0 {
		cfg.Judge.PoolSize = defaultPoolSize
	}
	if cfg.Judge.JobTimeout == 0 {
		cfg.Judge.JobTimeout = defaultJobTimeout
	}
	if cfg.Judge.DataDir == "" {
		cfg.Judge.DataDir = defaultDataDir
	}
	if cfg.Judge.RunTokenTTL == 0 {
		cfg.Judge.RunTokenTTL = defaultRunTokenTTL
	}
	if cfg.MinIO.LockWait == 0 {
		cfg.MinIO.LockWait = defaultLockWait
	}
	if cfg.MinIO.Endpoint != "" && cfg.MinIO.Bucket == "" {
		return fmt.Errorf("minio bucket is required when endpoint is set")
	}
	return nil
}

// topics returns the consumed topics, submissions first.
func (k KafkaConfig) topics() []string {
	return []string{k.SubmitTopic, k.RejudgeTopic}
}

func (k KafkaConfig) weightedTopics() ([]mq.WeightedTopic, error) {
	topics := k.topics()
	out := make([]mq.WeightedTopic, 0, len(topics))
	for _, topic := range topics {
		weight, ok := k.TopicWeights[topic]
		if !ok || weight <= 0 {
			return nil, fmt.Errorf("invalid weight %d for topic %q", weight, topic)
		}
		out = append(out, mq.WeightedTopic{Topic: topic, Weight: weight})
	}
	return out, nil
}

func defaultTopicWeights(topics []string) map[string]int {
	weights := []int{4, 1}
	out := make(map[string]int, len(topics))
	for i, topic := range topics {
		if topic == "" {
			continue
		}
		if i < len(weights) {
			out[topic] = weights[i]
			continue
		}
		out[topic] = 1
	}
	return out
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
