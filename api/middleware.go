package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestLogger logs every request through zerolog. Push channels are logged
// when they close.
func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		}

		logger := log.WithLevel(level).
			Str("method", ctx.Request.Method).
			Str("path", ctx.FullPath()).
			Int("status_code", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", ctx.ClientIP())
		if len(ctx.Errors) > 0 {
			logger = logger.Str("errors", ctx.Errors.String())
		}
		logger.Msg("received an HTTP request")
	}
}
