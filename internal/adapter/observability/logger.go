package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
)

// SetupLogger configures a JSON slog logger on stdout tagged with service and env.
func SetupLogger(cfg config.Config) *slog.Logger {
	return NewLogger(os.Stdout, cfg)
}

// NewLogger builds the service logger on w. Dev runs log at debug level.
func NewLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
