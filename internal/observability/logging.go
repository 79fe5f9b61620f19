package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// baseWriter holds the file/stdout sink InitLogger set up, so AttachOTelWriter
// can add the OTLP log bridge alongside it rather than replacing it.
var baseWriter io.Writer = os.Stdout

// InitLogger initializes zerolog with sane defaults. If logPath is non-empty,
// logs are written only to that file (append mode), not to stdout. If opening
// the file fails, logs fall back to stdout, and an error is printed to stderr.
func InitLogger(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			// When a log file is configured, write only to the file to avoid
			// interfering with interactive UIs (e.g., TUI) that use stdout.
			w = f
		} else {
			// best-effort; continue with stdout
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	baseWriter = w
	log.Logger = log.Output(w).With().Timestamp().Logger()
	// Parse level
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
	// Redirect the standard library logger so ALL logs are captured.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// AttachOTelWriter fans zerolog output out to the OTLP log pipeline in
// addition to the file/stdout sink InitLogger configured, so every log line
// also reaches whatever backend obs.OTLP points at. Called by InitOTel once
// the global LoggerProvider is set; a no-op improvement if called again.
func AttachOTelWriter(serviceName string) {
	mw := zerolog.MultiLevelWriter(baseWriter, NewOTelWriter(serviceName))
	log.Logger = log.Output(mw).With().Timestamp().Logger()
	stdlog.SetOutput(log.Logger)
}
