package notify

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
)

// LogPublisher writes events to the log instead of a broker. It is used when
// no AMQP URL is configured or the broker is unreachable at startup.
// Data values are not logged since they may carry reset token values.
type LogPublisher struct {
	logger logging.Logger
}

func NewLogPublisher(l logging.Logger) *LogPublisher {
	return &LogPublisher{logger: l.With("module", "notify")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	p.logger.Info(ctx, "event", "id", e.ID, "type", e.Type, "account_id", e.AccountID, "data_keys", keys)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
