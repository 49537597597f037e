package common

import (
	"errors"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/internal/monitoring"
)

// SetupLogger builds the console logger the binaries share. Debug mode
// lowers the level and keeps candidate-failure chatter visible.
func SetupLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// LoadEnv loads a dotenv file when present. A missing file is normal and
// only logged at debug.
func LoadEnv(path string, logger zerolog.Logger) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("no env file found")
			return
		}
		logger.Warn().Err(err).Str("path", path).Msg("could not load env file")
		return
	}
	logger.Debug().Str("path", path).Msg("environment loaded")
}

// ServeMonitoring exposes /metrics (and /status when a progress tracker is
// given) on addr in the background. An empty addr disables the endpoint.
func ServeMonitoring(addr string, progress *monitoring.Progress, logger zerolog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	if progress != nil {
		mux.Handle("/status", progress)
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("monitoring endpoint listening")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("monitoring endpoint failed")
		}
	}()
}
