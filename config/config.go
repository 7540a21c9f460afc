package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"github.com/chaos-io/cutout/matting/rembg"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// HTTP 监听地址
	Address  string `env:"ADDRESS" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// 抠图后端：server 为 rembg HTTP 服务，birefnet 为 ComfyUI 工作流，none 原样返回
	Backend             string        `env:"REMBG_BACKEND" envDefault:"server"`
	RemBGURL            string        `env:"REMBG_URL" envDefault:"http://127.0.0.1:7000"`
	RemBGModel          string        `env:"REMBG_MODEL" envDefault:"u2net"`
	ComfyUIURL          string        `env:"COMFYUI_URL" envDefault:"http://127.0.0.1:8188"`
	ComfyUIPollInterval time.Duration `env:"COMFYUI_POLL_INTERVAL" envDefault:"1s"`
	RemoverTimeout      time.Duration `env:"REMOVER_TIMEOUT" envDefault:"0s"`

	MaxInputSide int  `env:"MAX_INPUT_SIDE" envDefault:"0"`
	AutoOrient   bool `env:"AUTO_ORIENT" envDefault:"false"`
	PreviewSide  int  `env:"PREVIEW_SIDE" envDefault:"480"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SessionSweep time.Duration `env:"SESSION_SWEEP" envDefault:"5m"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"64"`
}

// Load 读取 .env（如果存在）并解析环境变量，只做类型转换不做校验
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BackendName 归一化后的后端名，环境变量和命令行都允许大小写混用
func (c Config) BackendName() string {
	return strings.ToLower(strings.TrimSpace(c.Backend))
}

// Validate 在命令行参数覆盖之后调用
func (c Config) Validate() error {
	switch c.BackendName() {
	case rembg.BackendServer:
		if c.RemBGURL == "" {
			return fmt.Errorf("%w: REMBG_URL is required for backend %q", ErrInvalidConfig, c.Backend)
		}
	case rembg.BackendBiRefNet:
		if c.ComfyUIURL == "" {
			return fmt.Errorf("%w: COMFYUI_URL is required for backend %q", ErrInvalidConfig, c.Backend)
		}
	case rembg.BackendNone:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	if c.MaxInputSide < 0 || c.PreviewSide < 0 || c.MaxUploadMB <= 0 {
		return fmt.Errorf("%w: sizes must not be negative and MAX_UPLOAD_MB must be positive", ErrInvalidConfig)
	}
	if c.RemoverTimeout < 0 || c.SessionTTL < 0 || c.SessionSweep < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}
