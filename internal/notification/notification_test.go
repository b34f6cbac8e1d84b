package notification

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gate-tracker/gate_tracker/internal/logging"
)

func TestLoggerNotifierOmitsBody(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(logging.NewWithWriter(&buf, "info"))

	if err := n.Send(context.Background(), Message{Kind: KindOTPCode, Destination: "a@example.com", Body: "123456"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "a@example.com") {
		t.Fatalf("expected destination in log, got %s", out)
	}
	if strings.Contains(out, "123456") {
		t.Fatalf("code leaked into log: %s", out)
	}
}

func TestRecorderLast(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	_ = r.Send(ctx, Message{Kind: KindOTPCode, Destination: "a@example.com", Body: "111111"})
	_ = r.Send(ctx, Message{Kind: KindOTPCode, Destination: "b@example.com", Body: "222222"})
	_ = r.Send(ctx, Message{Kind: KindOTPCode, Destination: "a@example.com", Body: "333333"})

	msg, ok := r.Last("a@example.com")
	if !ok || msg.Body != "333333" {
		t.Fatalf("expected latest code for a, got %+v", msg)
	}
	if _, ok := r.Last("c@example.com"); ok {
		t.Fatalf("expected no message for c")
	}
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, Message) error { return errors.New("smtp down") }

func TestFanoutDeliversToAll(t *testing.T) {
	r := NewRecorder()
	err := Fanout{failingNotifier{}, r}.Send(context.Background(), Message{Destination: "a@example.com"})
	if err == nil {
		t.Fatalf("expected first error to surface")
	}
	if _, ok := r.Last("a@example.com"); !ok {
		t.Fatalf("recorder should still receive the message")
	}
}
