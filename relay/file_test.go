package relay

import (
	"errors"
	"testing"
	"time"
)

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(`
subscriptions:
  - topic: proposal.r100
    path: /v1/trading/proposal/stream
    params:
      action: subscribe
      stream: proposal
      instrument_id: R_100
    headers:
      X-Client: relay
    reconnect_attempts: 5
    reconnect_interval: 2s
  - topic: balance
`))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(f.Subscriptions) != 2 {
		t.Fatalf("unexpected subscriptions %+v", f.Subscriptions)
	}
	s := f.Subscriptions[0]
	if s.Params["instrument_id"] != "R_100" || s.Headers["X-Client"] != "relay" || s.ReconnectAttempts != 5 {
		t.Fatalf("unexpected subscription %+v", s)
	}
	if d, _ := s.interval(); d != 2*time.Second {
		t.Fatalf("unexpected interval %s", d)
	}
}

func TestParseFileRejects(t *testing.T) {
	cases := map[string]string{
		"missing topic":  "subscriptions:\n  - path: /sse\n",
		"bad interval":   "subscriptions:\n  - topic: a\n    reconnect_interval: soon\n",
		"negative delay": "subscriptions:\n  - topic: a\n    reconnect_interval: -1s\n",
		"not yaml":       "subscriptions: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFile([]byte(doc)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	_, err := ParseFile([]byte("subscriptions:\n  - topic: a\n  - topic: a\n    path: /other\n"))
	if !errors.Is(err, ErrDuplicateTopic) {
		t.Fatalf("expected ErrDuplicateTopic, got %v", err)
	}
}

func TestFileSchema(t *testing.T) {
	s := FileSchema()
	if s.Type != "object" {
		t.Fatalf("unexpected root type %q", s.Type)
	}
	subs, ok := s.Properties.Get("subscriptions")
	if !ok || subs.Type != "array" || subs.Items == nil {
		t.Fatalf("unexpected subscriptions schema %+v", subs)
	}
	topic, ok := subs.Items.Properties.Get("topic")
	if !ok || topic.Type != "string" {
		t.Fatalf("unexpected topic schema %+v", topic)
	}
	found := false
	for _, r := range subs.Items.Required {
		if r == "topic" {
			found = true
		}
	}
	if !found {
		t.Fatalf("topic should be required, got %v", subs.Items.Required)
	}
}
