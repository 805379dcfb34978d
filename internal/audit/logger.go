package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pilab-dev/exam-sso/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSink writes audit events as JSON lines through zerolog.
type LogSink struct {
	logger  zerolog.Logger
	service string
}

var _ domain.AuditSink = (*LogSink)(nil)

// NewLogSink creates a sink writing to w. A nil writer selects stdout.
func NewLogSink(w io.Writer, service string) *LogSink {
	if w == nil {
		w = os.Stdout
	}

	return &LogSink{
		logger:  zerolog.New(w).With().Timestamp().Logger(),
		service: service,
	}
}

// Record writes the event. Severity maps onto the log level so high severity
// events stand out in aggregated logs.
func (s *LogSink) Record(_ context.Context, event domain.AuditEvent) error {
	entry, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("action", event.Action).Msg("Failed to marshal audit event to JSON")

		// Fall back to unstructured fields so the event is not lost.
		s.logger.Error().
			Str("service", s.service).
			Str("category", string(event.Category)).
			Str("severity", string(event.Severity)).
			Str("action", event.Action).
			Str("actor", event.Actor).
			Bool("success", event.Success).
			Str("error", event.Error).
			Msg("audit (fallback)")

		return nil
	}

	var logEvent *zerolog.Event
	switch event.Severity {
	case domain.AuditSeverityHigh:
		logEvent = s.logger.Warn()
	default:
		logEvent = s.logger.Info()
	}

	logEvent.
		Str("service", s.service).
		RawJSON("audit_event", entry).
		Msg("audit")

	return nil
}
