// Package notification delivers one-time codes and other user messages.
package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindOTPCode carries a registration verification code.
	KindOTPCode = "otp_code"
	// KindLoginCode carries a passwordless login code.
	KindLoginCode = "login_code"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of an email
// provider. Only the destination and kind are logged, never the body.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send records that a message would have been delivered.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification queued", "kind", message.Kind, "destination", message.Destination)
	return nil
}

// Recorder keeps sent messages in memory. Development mode and tests use it
// to read back codes that would otherwise go to an inbox.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
	return nil
}

// Last returns the most recent message sent to destination.
func (r *Recorder) Last(destination string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Destination == destination {
			return r.messages[i], true
		}
	}
	return Message{}, false
}

// Fanout sends to every notifier and returns the first error.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, message Message) error {
	var first error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}
