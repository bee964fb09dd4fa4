package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"story-server/internal/logger"
)

// Режимы запуска иллюстрирования
const (
	IllustrationModeInProcess = "inprocess"
	IllustrationModeQueue     = "queue"
)

// Config структура для хранения всей конфигурации приложения.
type Config struct {
	AppEnv           string `env:"APP_ENV" env-default:"development"`
	Logger           logger.Config
	Server           ServerConfig
	AI               AIConfig
	Image            ImageConfig
	Poller           PollerConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	RabbitMQ         RabbitMQConfig
	Auth             AuthConfig
	PushGatewayURL   string `env:"PUSHGATEWAY_URL" env-default:""`
	IllustrationMode string `env:"ILLUSTRATION_MODE" env-default:"inprocess"` // inprocess или queue
}

// ServerConfig настройки HTTP сервера.
type ServerConfig struct {
	Port               string        `env:"SERVER_PORT" env-default:"8080"`
	ShutdownTimeout    time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
	DownloadTimeout    time.Duration `env:"DOWNLOAD_IMAGE_TIMEOUT" env-default:"30s"`
}

// AIConfig настройки генерации текста истории.
type AIConfig struct {
	ClientType  string        `env:"AI_CLIENT_TYPE" env-default:"openai"` // openai или ollama
	BaseURL     string        `env:"AI_BASE_URL" env-default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
	Model       string        `env:"AI_MODEL" env-default:"qwen-plus"`
	APIKey      string        `env:"AI_API_KEY"`
	Timeout     time.Duration `env:"AI_TIMEOUT" env-default:"120s"`
	Temperature float64       `env:"AI_TEMPERATURE" env-default:"0.7"`
	MaxTokens   int           `env:"AI_MAX_TOKENS" env-default:"800"`
}

// ImageConfig настройки асинхронного API генерации изображений.
type ImageConfig struct {
	BaseURL        string        `env:"IMAGE_BASE_URL" env-default:"https://dashscope.aliyuncs.com/api/v1"`
	Model          string        `env:"IMAGE_MODEL" env-default:"wanx2.1-t2i-turbo"`
	APIKey         string        `env:"IMAGE_API_KEY"`
	Size           string        `env:"IMAGE_SIZE" env-default:"1024*1024"`
	Count          int           `env:"IMAGE_COUNT" env-default:"1"`
	PromptTemplate string        `env:"IMAGE_PROMPT_TEMPLATE" env-default:""` // %s заменяется темой истории
	Timeout        time.Duration `env:"IMAGE_HTTP_TIMEOUT" env-default:"30s"`
}

// PollerConfig настройки опроса статуса задачи генерации.
type PollerConfig struct {
	MaxAttempts int           `env:"POLL_MAX_ATTEMPTS" env-default:"90"`
	Interval    time.Duration `env:"POLL_INTERVAL" env-default:"2s"`
	MaxSessions int           `env:"POLL_MAX_SESSIONS" env-default:"256"` // 0 - без ограничения
}

// PostgresConfig настройки удаленного хранилища историй. Пустой DSN отключает хранилище.
type PostgresConfig struct {
	DSN            string        `env:"POSTGRES_DSN" env-default:""`
	MaxConns       int32         `env:"DB_MAX_CONNECTIONS" env-default:"10"`
	IdleTimeout    time.Duration `env:"DB_MAX_IDLE_TIME" env-default:"5m"`
	MigrateOnStart bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`
}

// RedisConfig настройки локального (по клиенту) хранилища. Пустой адрес отключает хранилище.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" env-default:""`
	Password string        `env:"REDIS_PASSWORD" env-default:""`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	LocalTTL time.Duration `env:"REDIS_LOCAL_STORIES_TTL" env-default:"720h"`
}

// RabbitMQConfig конфигурация для подключения к RabbitMQ.
type RabbitMQConfig struct {
	URL                   string `env:"RABBITMQ_URL" env-default:""`
	TaskQueueName         string `env:"ILLUSTRATION_TASK_QUEUE" env-default:"illustration_tasks"`
	NotificationQueueName string `env:"ILLUSTRATION_NOTIFICATION_QUEUE" env-default:"illustration_notifications"`
	ConsumerName          string `env:"RABBITMQ_CONSUMER_NAME" env-default:"story_illustration_worker"`
}

// AuthConfig настройки проверки JWT пользователя. Пустой секрет отключает аутентификацию.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" env-default:""`
}

// GetAllowedOrigins разбивает CORSAllowedOrigins по запятой.
func (c ServerConfig) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(c.CORSAllowedOrigins, " ", ""), ",")
}

// Load загружает конфигурацию из переменных окружения и .env файла.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку, если файла нет)
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые нельзя выразить тегами cleanenv.
func (c *Config) Validate() error {
	var errs []error
	if c.Poller.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", c.Poller.MaxAttempts))
	}
	if c.Poller.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("POLL_MAX_SESSIONS must not be negative, got %d", c.Poller.MaxSessions))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poller.Interval))
	}
	switch c.IllustrationMode {
	case IllustrationModeInProcess:
	case IllustrationModeQueue:
		if c.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required when ILLUSTRATION_MODE=queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ILLUSTRATION_MODE '%s'", c.IllustrationMode))
	}
	switch strings.ToLower(c.AI.ClientType) {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown AI_CLIENT_TYPE '%s'", c.AI.ClientType))
	}
	return errors.Join(errs...)
}

// ReadWorker загружает конфигурацию воркера: очередь задач обязательна.
func ReadWorker() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, errors.New("RABBITMQ_URL is required for the illustration worker")
	}
	return cfg, nil
}
