package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestFromContextInjectsKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithContext(context.Background(), CampaignIDKey, "camp-1")
	ctx = WithContext(ctx, TurnIDKey, "turn-7")
	Error(ctx, "turn failed", errors.New("boom"), "stage", "persisting_turn")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{key: "campaign_id", want: "camp-1"},
		{key: "turn_id", want: "turn-7"},
		{key: "error", want: "boom"},
		{key: "stage", want: "persisting_turn"},
		{key: "msg", want: "turn failed"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got, _ := entry[tt.key].(string); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFromContextDoesNotRepeatFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "text")

	ctx := WithContext(context.Background(), RequestIDKey, "req-9")
	FromContext(ctx).InfoContext(ctx, "bound")

	if n := bytes.Count(buf.Bytes(), []byte("request_id=req-9")); n != 1 {
		t.Fatalf("request_id appears %d times in %q", n, buf.String())
	}
}
