package internal

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestDeploymentName is the deployment name used by the test suite; it runs
// without a container runtime.
const TestDeploymentName = "classytest"

// AppConfig represents the main application configuration.
type AppConfig struct {
	// Name is the deployment (course) name.
	Name string `yaml:"name"`
	// PersistDir is the root that build artifacts are served from.
	PersistDir string `yaml:"persist_dir"`
	// Server holds server-specific configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"server"`
	GitHub  GitHubConfig  `yaml:"github"`
	Docker  DockerConfig  `yaml:"docker"`
	Portal  PortalConfig  `yaml:"portal"`
	Storage StorageConfig `yaml:"storage"`
	Dedupe  DedupeConfig  `yaml:"dedupe"`
	Engine  EngineConfig  `yaml:"engine"`
	Worker  WorkerConfig  `yaml:"worker"`
	// Watermill holds configuration for the engine transport.
	Watermill WatermillConfig `yaml:"watermill"`
}

// Config represents the application configuration including routing rules.
type Config struct {
	AppConfig   `yaml:",inline"`
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`
}

// GitHubConfig configures webhook intake and the optional API client.
type GitHubConfig struct {
	Path        string `yaml:"path"`
	Secret      string `yaml:"secret"`
	Token       string `yaml:"token"`
	BaseURL     string `yaml:"base_url"`
	DebugEvents bool   `yaml:"debug_events"`
}

// DockerConfig selects and authenticates the container runtime endpoint.
type DockerConfig struct {
	Host        string `yaml:"host"`
	CAPath      string `yaml:"ca_path"`
	SSLCertPath string `yaml:"ssl_cert_path"`
	SSLKeyPath  string `yaml:"ssl_key_path"`
	APIVersion  string `yaml:"api_version"`
}

// PortalConfig points at the class portal backend.
type PortalConfig struct {
	URL                string `yaml:"url"`
	TimeoutMS          int64  `yaml:"timeout_ms"`
	DefaultDeliverable string `yaml:"default_deliverable"`
}

// StorageConfig configures the persistent data store.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Table       string `yaml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// DedupeConfig enables the optional delivery dedupe layer.
type DedupeConfig struct {
	Driver     string `yaml:"driver"`
	Addr       string `yaml:"addr"`
	TTLSeconds int64  `yaml:"ttl_seconds"`
}

// EngineConfig names the default topics for each target kind.
type EngineConfig struct {
	PushTopic    string `yaml:"push_topic"`
	CommentTopic string `yaml:"comment_topic"`
}

// WorkerConfig configures the consuming side of the engine transport.
type WorkerConfig struct {
	ConsumerGroup  string `yaml:"consumer_group"`
	Durable        string `yaml:"durable"`
	ClientIDSuffix string `yaml:"client_id_suffix"`
	Concurrency    int    `yaml:"concurrency"`
}

// WatermillConfig holds the configuration for Watermill, which carries targets to the engine.
type WatermillConfig struct {
	Driver       string             `yaml:"driver"`
	Drivers      []string           `yaml:"drivers"`
	GoChannel    GoChannelConfig    `yaml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	NATS         NATSConfig         `yaml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	SQL          SQLConfig          `yaml:"sql"`
	HTTP         HTTPConfig         `yaml:"http"`
	RiverQueue   RiverQueueConfig   `yaml:"riverqueue"`
	PublishRetry PublishRetryConfig `yaml:"publish_retry"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	InitializeSchema     bool   `yaml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverQueueConfig holds configuration for the RiverQueue publisher.
type RiverQueueConfig struct {
	DSN         string   `yaml:"dsn"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

type PublishRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// LoadConfig loads the full application configuration, including rules, from a YAML file.
// It expands environment variables, applies defaults, and normalizes rules.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg.AppConfig)
	normalized, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = normalized

	return cfg, nil
}

// RulesConfig represents the rule-specific parts of the configuration.
type RulesConfig struct {
	Rules  []Rule `yaml:"rules"`
	Strict bool   `yaml:"rules_strict"`
	Logger *log.Logger
}

// IsTestDeployment reports whether the process runs in the no-runtime test configuration.
func (c AppConfig) IsTestDeployment() bool {
	return c.Name == TestDeploymentName
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 11333
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.PersistDir == "" {
		cfg.PersistDir = "/output"
	}
	if cfg.GitHub.Path == "" {
		cfg.GitHub.Path = "/githubWebhook"
	}
	if cfg.Docker.CAPath == "" {
		cfg.Docker.CAPath = "/etc/ssl/certs/ca-certificates.crt"
	}
	if cfg.Docker.APIVersion == "" {
		cfg.Docker.APIVersion = "1.30"
	}
	if cfg.Portal.TimeoutMS == 0 {
		cfg.Portal.TimeoutMS = 5000
	}
	if cfg.Portal.DefaultDeliverable == "" {
		cfg.Portal.DefaultDeliverable = "d0"
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "autotest_commit_targets"
	}
	if cfg.Dedupe.TTLSeconds == 0 {
		cfg.Dedupe.TTLSeconds = 24 * 60 * 60
	}
	if cfg.Engine.PushTopic == "" {
		cfg.Engine.PushTopic = "autotest.push"
	}
	if cfg.Engine.CommentTopic == "" {
		cfg.Engine.CommentTopic = "autotest.comment"
	}
	if cfg.Worker.ClientIDSuffix == "" {
		cfg.Worker.ClientIDSuffix = "-worker"
	}
	if cfg.Worker.ConsumerGroup == "" {
		cfg.Worker.ConsumerGroup = "autotest"
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Watermill.Driver == "" {
		cfg.Watermill.Driver = "gochannel"
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Watermill.HTTP.Mode == "" {
		cfg.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Watermill.RiverQueue.Queue == "" {
		cfg.Watermill.RiverQueue.Queue = "default"
	}
	if cfg.Watermill.RiverQueue.Kind == "" {
		cfg.Watermill.RiverQueue.Kind = "autotest.commit_target"
	}
	if cfg.Watermill.RiverQueue.MaxAttempts == 0 {
		cfg.Watermill.RiverQueue.MaxAttempts = 25
	}
	if cfg.Watermill.PublishRetry.Attempts == 0 {
		cfg.Watermill.PublishRetry.Attempts = 3
	}
	if cfg.Watermill.PublishRetry.DelayMS == 0 {
		cfg.Watermill.PublishRetry.DelayMS = 500
	}
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		emit := make(EmitList, 0, len(rule.Emit))
		for _, topic := range rule.Emit {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				emit = append(emit, trimmed)
			}
		}
		rule.Emit = emit
		if rule.When == "" || len(rule.Emit) == 0 {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		if len(rule.Drivers) > 0 {
			drivers := make([]string, 0, len(rule.Drivers))
			for _, driver := range rule.Drivers {
				trimmed := strings.TrimSpace(driver)
				if trimmed != "" {
					drivers = append(drivers, trimmed)
				}
			}
			rule.Drivers = drivers
		}
		out = append(out, rule)
	}
	return out, nil
}
