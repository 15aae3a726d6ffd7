package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/usher-agent/usher/internal/config"
	"github.com/usher-agent/usher/internal/httpkit"
)

// DiscordWebhook escalates by posting a message to a Discord channel via
// webhook. When a role ID is configured, the message mentions that role so
// the right people get pinged.
type DiscordWebhook struct {
	cfg        config.DiscordWebhookConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDiscordWebhook creates a Discord webhook escalator.
func NewDiscordWebhook(cfg config.DiscordWebhookConfig, logger *slog.Logger) *DiscordWebhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordWebhook{
		cfg:        cfg,
		httpClient: httpkit.NewClient(),
		logger:     logger.With("escalation", "discord"),
	}
}

type discordPayload struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Roles []string `json:"roles,omitempty"`
	Parse []string `json:"parse"`
}

// Escalate posts the subject to the webhook and reports the outcome as a
// human-readable string, per the Escalator contract.
func (d *DiscordWebhook) Escalate(ctx context.Context, subject string) string {
	var parts []string
	if d.cfg.MessagePrefix != "" {
		parts = append(parts, d.cfg.MessagePrefix)
	}
	parts = append(parts, subject)
	content := strings.Join(parts, " ")

	payload := discordPayload{
		Content:         content,
		AllowedMentions: allowedMentions{Parse: []string{}},
	}
	if d.cfg.RoleID != "" {
		payload.Content = fmt.Sprintf("<@&%s> %s", d.cfg.RoleID, content)
		payload.AllowedMentions = allowedMentions{Roles: []string{d.cfg.RoleID}, Parse: nil}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("marshal webhook payload failed", "error", err)
		return "Failed to send escalation due to a technical error. Please try again or find an organizer directly."
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("create webhook request failed", "error", err)
		return "Failed to send escalation due to a technical error. Please try again or find an organizer directly."
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Error("webhook request failed", "error", err)
		return "Failed to send escalation due to a technical error. Please try again or find an organizer directly."
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		d.logger.Info("escalation sent", "status", resp.StatusCode)
		return "Escalation sent successfully. The organizers have been notified and will follow up shortly."
	default:
		d.logger.Warn("webhook returned unexpected status", "status", resp.StatusCode)
		return fmt.Sprintf(
			"Escalation attempt returned an unexpected status (%d). Please try again or find an organizer directly.",
			resp.StatusCode,
		)
	}
}
