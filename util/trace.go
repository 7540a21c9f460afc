package util

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Trace 记录耗时，用法: defer util.Trace("batch cutout")()
func Trace(msg string) func() {
	start := time.Now()
	log.Debug().Str("op", msg).Msg("start")
	return func() {
		log.Info().Str("op", msg).Dur("elapsed", time.Since(start)).Msg("done")
	}
}
