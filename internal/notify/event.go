// Package notify publishes account security events for downstream
// consumers such as the mailer that delivers password reset links.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types, also used as AMQP routing keys.
const (
	EventAccountLocked          = "account.locked"
	EventPasswordChanged        = "password.changed"
	EventPasswordResetRequested = "password_reset.requested"
)

// Event is the message body published for each security-relevant change.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	AccountID  string            `json:"account_id"`
	Email      string            `json:"email,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// NewEvent stamps a fresh id on an event of type typ.
func NewEvent(typ, accountID, email string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		AccountID:  accountID,
		Email:      email,
		OccurredAt: at,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
