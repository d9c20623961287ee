package history

import (
	"testing"
	"time"

	"github.com/duratask-io/duratask/api"
	"github.com/duratask-io/duratask/api/serde"
)

func TestEncodeDecode(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []api.HistoryEvent{
		&api.OrchestrationStarted{
			EventMeta:     api.EventMeta{ID: "inst-1", At: now},
			Orchestration: "greeter",
			Input:         []any{"World"},
		},
		&api.ActivityScheduled{
			EventMeta: api.EventMeta{ID: "inst-1", At: now},
			EventID:   1,
			Activity:  "sayHello",
			Input:     []any{"Tokyo"},
		},
		&api.TimerCreated{
			EventMeta: api.EventMeta{ID: "inst-1", At: now},
			EventID:   2,
			FireAt:    now.Add(time.Hour),
		},
		&api.EventRaised{
			EventMeta: api.EventMeta{ID: "inst-1", At: now},
			Name:      "ApprovalEvent",
			Payload:   true,
		},
		&api.OrchestrationTerminated{
			EventMeta: api.EventMeta{ID: "inst-1", At: now},
			Reason:    "operator request",
		},
	}

	for _, s := range []serde.BinarySerde{&serde.JsonSerde{}, &serde.MsgpackSerde{}} {
		for _, original := range events {
			msg, err := Encode(original, s)
			if err != nil {
				t.Fatalf("encode %s: %v", original.EventName(), err)
			}
			if msg.Subject != "history.inst-1" {
				t.Errorf("subject = %q, want history.inst-1", msg.Subject)
			}
			if got := msg.Header.Get(api.EventNameHeader); got != original.EventName() {
				t.Errorf("header = %q, want %q", got, original.EventName())
			}

			decoded, err := Decode(msg.Header.Get(api.EventNameHeader), msg.Data, s)
			if err != nil {
				t.Fatalf("decode %s: %v", original.EventName(), err)
			}
			if decoded.EventName() != original.EventName() {
				t.Errorf("decoded as %s, want %s", decoded.EventName(), original.EventName())
			}
			if decoded.Instance() != "inst-1" {
				t.Errorf("instance = %q, want inst-1", decoded.Instance())
			}
		}
	}
}

func TestDecodeRejectsUnknownOrMissingName(t *testing.T) {
	s := &serde.JsonSerde{}

	if _, err := Decode("", []byte("{}"), s); err == nil {
		t.Error("missing event name header should fail")
	}
	if _, err := Decode("orchestration/not-a-thing", []byte("{}"), s); err == nil {
		t.Error("unknown event name should fail")
	}
}
