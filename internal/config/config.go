package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"3000" validate:"min=1000,max=65535"`

	// Public address handed to room pages; derived from the request when empty.
	SignalingServer string   `env:"SIGNALING_SERVER" validate:"omitempty,url"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS"  envDefault:"*" envSeparator:","`

	WsSendQueueSize   int           `env:"WS_SEND_QUEUE_SIZE"   envDefault:"256"   validate:"min=1,max=65536"`
	WsMaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES" envDefault:"65536" validate:"min=512,max=1048576"`
	WsPongWait        time.Duration `env:"WS_PONG_WAIT"         envDefault:"60s"   validate:"min=1s"`

	RedisEnabled  bool   `env:"REDIS_ENABLED"  envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST"     envDefault:"localhost" validate:"required_if=RedisEnabled true"`
	RedisPort     uint16 `env:"REDIS_PORT"     envDefault:"6379"      validate:"min=1000,max=65535"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"         validate:"min=0,max=15"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}
	return Parse()
}

// Parse reads and validates the configuration from the process environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	// Parse config from environment variables
	if err := env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
