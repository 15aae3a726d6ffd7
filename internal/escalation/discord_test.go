package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/usher-agent/usher/internal/config"
)

func TestDiscordWebhook_Escalate_Success(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordWebhook(config.DiscordWebhookConfig{
		URL:           srv.URL,
		RoleID:        "12345",
		MessagePrefix: "[DevConf]",
	}, nil)

	result := d.Escalate(context.Background(), "Where can I charge my wheelchair?")

	if !strings.Contains(result, "sent successfully") {
		t.Errorf("result = %q, want success message", result)
	}
	if !strings.Contains(got.Content, "<@&12345>") {
		t.Errorf("content missing role mention: %q", got.Content)
	}
	if !strings.Contains(got.Content, "[DevConf]") {
		t.Errorf("content missing prefix: %q", got.Content)
	}
	if !strings.Contains(got.Content, "Where can I charge my wheelchair?") {
		t.Errorf("content missing subject: %q", got.Content)
	}
	if len(got.AllowedMentions.Roles) != 1 || got.AllowedMentions.Roles[0] != "12345" {
		t.Errorf("allowed_mentions = %+v", got.AllowedMentions)
	}
}

func TestDiscordWebhook_Escalate_NoRole(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDiscordWebhook(config.DiscordWebhookConfig{URL: srv.URL}, nil)
	result := d.Escalate(context.Background(), "question")

	if !strings.Contains(result, "sent successfully") {
		t.Errorf("result = %q", result)
	}
	if strings.Contains(got.Content, "<@&") {
		t.Errorf("content should have no role mention: %q", got.Content)
	}
	// With no role, mention parsing is disabled entirely.
	if got.AllowedMentions.Parse == nil || len(got.AllowedMentions.Parse) != 0 {
		t.Errorf("allowed_mentions.parse = %v, want empty list", got.AllowedMentions.Parse)
	}
}

func TestDiscordWebhook_Escalate_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordWebhook(config.DiscordWebhookConfig{URL: srv.URL}, nil)
	result := d.Escalate(context.Background(), "question")

	if !strings.Contains(result, "429") {
		t.Errorf("result should mention the status: %q", result)
	}
	if strings.Contains(result, "sent successfully") {
		t.Errorf("result should not claim success: %q", result)
	}
}

func TestDiscordWebhook_Escalate_ConnectionError(t *testing.T) {
	// A webhook pointing at a closed port must still yield a usable string.
	d := NewDiscordWebhook(config.DiscordWebhookConfig{URL: "http://127.0.0.1:1/webhook"}, nil)
	result := d.Escalate(context.Background(), "question")

	if result == "" {
		t.Fatal("result must never be empty")
	}
	if !strings.Contains(result, "Failed to send escalation") {
		t.Errorf("result = %q, want failure message", result)
	}
}
