package audit

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pilab-dev/exam-sso/domain"
)

// Fanout delivers every event to all sinks. A failing sink does not stop
// delivery to the others; the failures are returned together.
type Fanout []domain.AuditSink

var _ domain.AuditSink = Fanout(nil)

func (f Fanout) Record(ctx context.Context, event domain.AuditEvent) error {
	var result *multierror.Error
	for _, sink := range f {
		if err := sink.Record(ctx, event); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
