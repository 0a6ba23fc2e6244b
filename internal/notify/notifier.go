package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/trntxt/trntxt/internal/observe"
	"github.com/trntxt/trntxt/internal/telephony"
)

// Sessions resolves a conversation to the caller's phone number. Take
// consumes the entry so a conversation is notified at most once.
type Sessions interface {
	Take(conversationID string) (string, bool)
}

// Sender submits one SMS to the gateway.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// ErrNoSession is returned when the conversation has no cached caller
// number, either because the call-start webhook never arrived or the
// entry expired before the recording was processed.
var ErrNoSession = errors.New("notify: no session for conversation")

// Notifier delivers composed messages to the caller behind a conversation.
type Notifier struct {
	sessions Sessions
	sender   Sender
	metrics  *observe.Metrics
	log      *slog.Logger
}

// NewNotifier wires a Notifier. metrics and log may be nil, in which case
// the package defaults are used.
func NewNotifier(sessions Sessions, sender Sender, metrics *observe.Metrics, log *slog.Logger) *Notifier {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{sessions: sessions, sender: sender, metrics: metrics, log: log}
}

// Notify looks up the caller for conversationID and sends them text.
//
// A missing session returns [ErrNoSession]. A gateway rejection
// ([telephony.DeliveryError]) is logged and swallowed: the recipient is
// unreachable and a retry would not change that. Transport-level send
// failures are returned for the caller to record.
func (n *Notifier) Notify(ctx context.Context, conversationID, text string) error {
	to, ok := n.sessions.Take(conversationID)
	if !ok {
		n.metrics.RecordSessionLookup(ctx, "miss")
		n.log.WarnContext(ctx, "no session for conversation, dropping notification",
			"conversation_id", conversationID)
		return ErrNoSession
	}
	n.metrics.RecordSessionLookup(ctx, "hit")

	err := n.sender.Send(ctx, to, text)
	if err == nil {
		n.metrics.RecordSMS(ctx, "accepted")
		n.log.InfoContext(ctx, "sms sent",
			"conversation_id", conversationID, "length", len(text))
		return nil
	}

	var delivery *telephony.DeliveryError
	if errors.As(err, &delivery) {
		n.metrics.RecordSMS(ctx, "rejected")
		n.log.ErrorContext(ctx, "sms rejected by gateway",
			"conversation_id", conversationID,
			"status", delivery.Status, "reason", delivery.Reason)
		return nil
	}

	n.metrics.RecordSMS(ctx, "error")
	return err
}
