package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации сервиса мониторинга.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
}

// ServerConfig описывает настройки HTTP-сервера дашборда.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TLSCertPath  string        `mapstructure:"tls_cert_path"`
	TLSKeyPath   string        `mapstructure:"tls_key_path"`
}

// Addr адрес для ListenAndServe
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TLSEnabled: безопасный транспорт настроен
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertPath != "" && s.TLSKeyPath != ""
}

type GRPCConfig struct {
	Port int `mapstructure:"port" validate:"gte=0,lt=65536"` // 0: выключен
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // пусто: /metrics не поднимаем
}

// DatabaseConfig описывает подключение к PostgreSQL (журнал событий, опционально).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RedisConfig описывает подключение к Redis (общий KV, Pub/Sub). Addr пустой: Redis выключен.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig: долговременное KV-хранилище (badger).
type StorageConfig struct {
	DurablePath string `mapstructure:"durable_path"`
	InMemory    bool   `mapstructure:"in_memory"`
}

// AuthConfig содержит пути к RSA ключам и учетку оператора.
type AuthConfig struct {
	PublicKeyPath        string        `mapstructure:"public_key_path"`
	PrivateKeyPath       string        `mapstructure:"private_key_path"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	OperatorUsername     string        `mapstructure:"operator_username"`
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"` // bcrypt
	PublicKey            []byte
	PrivateKey           []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// MonitorConfig: каденции сборщика телеметрии и параметры зондов.
type MonitorConfig struct {
	FastInterval          time.Duration `mapstructure:"fast_interval" validate:"gt=0"`
	MediumInterval        time.Duration `mapstructure:"medium_interval" validate:"gt=0"`
	SlowInterval          time.Duration `mapstructure:"slow_interval" validate:"gt=0"`
	ProbeURL              string        `mapstructure:"probe_url"`
	ProbeTimeout          time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	ProbeMaxBytes         int64         `mapstructure:"probe_max_bytes" validate:"gt=0"`
	ProbeAttempts         uint          `mapstructure:"probe_attempts" validate:"gte=1"`
	NavigationURL         string        `mapstructure:"navigation_url"`
	SlowResourceThreshold time.Duration `mapstructure:"slow_resource_threshold" validate:"gt=0"`
	StartupTimeout        time.Duration `mapstructure:"startup_timeout" validate:"gt=0"`
}

type AuditConfig struct {
	Interval        time.Duration      `mapstructure:"interval" validate:"gt=0"`
	CheckTimeout    time.Duration      `mapstructure:"check_timeout" validate:"gt=0"`
	ExpectedRegions []string           `mapstructure:"expected_regions"`
	Weights         map[string]float64 `mapstructure:"weights"`
}

type OptimizerConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	ScoreThreshold int           `mapstructure:"score_threshold" validate:"gt=0,lte=100"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	PrefetchRadius float64       `mapstructure:"prefetch_radius" validate:"gt=0"`
	PrefetchBase   string        `mapstructure:"prefetch_base"`
}

type RecoveryConfig struct {
	MaxFailures int  `mapstructure:"max_failures" validate:"gte=1"`
	HistorySize int  `mapstructure:"history_size" validate:"gte=1"`
	HardRestart bool `mapstructure:"hard_restart"` // false: только forced exit
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := newViper()
	return decode(v)
}

// WatchConfig перечитывает файл при изменении и отдает новую конфигурацию в callback.
// Используется для горячей смены уровня логирования.
func WatchConfig(onChange func(*Config)) (*Config, error) {
	v := newViper()
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				return
			}
			next, err := decode(v)
			if err != nil {
				return // битый файл: остаемся на старой конфигурации
			}
			onChange(next)
		})
		v.WatchConfig()
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// MONITOR_PROBE_URL перекроет monitor.probe_url
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет: работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

// Validate проверяет теги validate у всей структуры.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultConfig конфигурация без файла и ENV (CLI, тесты).
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("storage.durable_path", "./data/vitals")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.operator_username", "operator")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("monitor.fast_interval", 1*time.Second)
	v.SetDefault("monitor.medium_interval", 5*time.Second)
	v.SetDefault("monitor.slow_interval", 10*time.Second)
	v.SetDefault("monitor.probe_url", "https://www.google.com/favicon.ico")
	v.SetDefault("monitor.probe_timeout", 5*time.Second)
	v.SetDefault("monitor.probe_max_bytes", 64*1024)
	v.SetDefault("monitor.probe_attempts", 2)
	v.SetDefault("monitor.navigation_url", "http://127.0.0.1:8080/healthz")
	v.SetDefault("monitor.slow_resource_threshold", 1*time.Second)
	v.SetDefault("monitor.startup_timeout", 10*time.Second)

	v.SetDefault("audit.interval", 5*time.Minute)
	v.SetDefault("audit.check_timeout", 5*time.Second)
	v.SetDefault("audit.expected_regions", []string{"header", "navigation", "main", "footer"})

	v.SetDefault("optimizer.tick_interval", 10*time.Second)
	v.SetDefault("optimizer.score_threshold", 80)
	v.SetDefault("optimizer.cooldown", 30*time.Second)
	v.SetDefault("optimizer.prefetch_radius", 100.0)

	v.SetDefault("recovery.max_failures", 5)
	v.SetDefault("recovery.history_size", 10)
	v.SetDefault("recovery.hard_restart", true)
}

// loadKeyResource: ключ из ENV (PEM) или из файла по пути
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
