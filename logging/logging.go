package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup 配置全局 zerolog：控制台输出到 out，级别来自 LOG_LEVEL。
// 没有请求上下文的 log.Ctx(ctx) 也会落到全局 logger 上。
func Setup(out io.Writer, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(lvl)

	cw := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = out
		w.TimeFormat = time.RFC3339
	})

	log.Logger = zerolog.New(cw).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
	return nil
}

func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level %q: %w", level, err)
	}
	return lvl, nil
}
