package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Business  BusinessConfig  `mapstructure:"business"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	WorkerID int64  `mapstructure:"worker_id"`
}

// DatabaseConfig 账本存储配置，driver 支持 mysql / postgres / sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ItemSold     string `mapstructure:"item_sold"`
	PayoutResult string `mapstructure:"payout_result"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ProcessorConfig 外部支付渠道（Stripe 兼容接口）
type ProcessorConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PublishableKey string        `mapstructure:"publishable_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryCount     int           `mapstructure:"retry_count"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type BusinessConfig struct {
	Currency                 string `mapstructure:"currency"`
	MaxRetryCount            int    `mapstructure:"max_retry_count"`
	PayoutReconcileSeconds   int    `mapstructure:"payout_reconcile_seconds"`
	PayoutStaleAfterSeconds  int    `mapstructure:"payout_stale_after_seconds"`
	PayoutMaxAttempts        int    `mapstructure:"payout_max_attempts"`
	PayoutLockTimeoutSeconds int    `mapstructure:"payout_lock_timeout_seconds"`
}

var GlobalConfig *Config

// setDefaults 配置文件缺省时使用的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("kafka.topic.item_sold", "marketplace.item_sold")
	v.SetDefault("kafka.topic.payout_result", "marketplace.payout_result")
	v.SetDefault("processor.timeout", 10*time.Second)
	v.SetDefault("processor.retry_count", 0)
	v.SetDefault("telemetry.service_name", "marketpay")
	v.SetDefault("business.currency", "usd")
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.payout_reconcile_seconds", 30)
	v.SetDefault("business.payout_stale_after_seconds", 60)
	v.SetDefault("business.payout_max_attempts", 10)
	v.SetDefault("business.payout_lock_timeout_seconds", 30)
}

// LoadConfig 加载配置文件。
// 环境变量 MARKETPAY_<SECTION>_<KEY> 覆盖文件中的值，.env 存在时先加载。
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MARKETPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "读取配置文件失败")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "解析配置文件失败")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret 不能为空")
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (b BusinessConfig) PayoutReconcileInterval() time.Duration {
	return time.Duration(b.PayoutReconcileSeconds) * time.Second
}

func (b BusinessConfig) PayoutStaleAfter() time.Duration {
	return time.Duration(b.PayoutStaleAfterSeconds) * time.Second
}

func (b BusinessConfig) PayoutLockTimeout() time.Duration {
	return time.Duration(b.PayoutLockTimeoutSeconds) * time.Second
}
