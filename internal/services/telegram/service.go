// Package telegram provides Telegram notification services.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/models"
)

const maxResponseBytes = 1 << 16

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiResponse is the envelope every Bot API method answers with.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendNotification sends a run summary via Telegram. Delivery problems are
// reported in the result; the bot token never appears in them.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Str("run_id", msg.RunID).
		Bool("success", msg.Success).
		Msg("sending Telegram notification")

	req, err := s.newRequest(ctx, cfg, s.formatMessage(msg))
	if err != nil {
		result.Error = err
		return result, nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %s", redact(err.Error(), cfg.BotToken))
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		result.Error = err
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Str("run_id", msg.RunID).Msg("Telegram notification sent successfully")

	return result, nil
}

func (s *Impl) newRequest(ctx context.Context, cfg models.TelegramConfig, text string) (*http.Request, error) {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                cfg.ChatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s", redact(err.Error(), cfg.BotToken))
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// checkResponse turns a non-OK answer into an error carrying the API's description.
func checkResponse(resp *http.Response) error {
	var parsed apiResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed)

	if resp.StatusCode == http.StatusOK && decodeErr == nil && parsed.OK {
		return nil
	}
	if parsed.Description != "" {
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, parsed.Description)
	}
	return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<redacted>")
}

func (s *Impl) formatMessage(msg models.TelegramMessage) string {
	var b bytes.Buffer

	title := "Backup"
	if msg.Command == models.CommandRestore {
		title = "Restore"
	}

	if msg.Success {
		b.WriteString(fmt.Sprintf("✅ <b>%s Successful</b>\n\n", title))
	} else {
		b.WriteString(fmt.Sprintf("❌ <b>%s Failed</b>\n\n", title))
	}

	b.WriteString(fmt.Sprintf("🗄 <b>Database:</b> %s\n", escapeHTML(msg.Database)))
	b.WriteString(fmt.Sprintf("☁️ <b>Storage:</b> %s\n", escapeHTML(msg.Storage)))
	b.WriteString(fmt.Sprintf("⏰ <b>Started:</b> %s\n", msg.StartTime.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("⏱ <b>Duration:</b> %s\n", msg.Duration.Round(time.Second)))
	b.WriteString(fmt.Sprintf("🆔 <b>Run:</b> <code>%s</code>\n", escapeHTML(msg.RunID)))

	if msg.Success {
		b.WriteString("\n<b>📦 Artifact:</b>\n")
		b.WriteString(fmt.Sprintf("  • Name: <code>%s</code>\n", escapeHTML(msg.ArtifactName)))
		if msg.Location != "" {
			b.WriteString(fmt.Sprintf("  • Location: <code>%s</code>\n", escapeHTML(msg.Location)))
		}
		b.WriteString(fmt.Sprintf("  • Size: %s\n", formatBytes(msg.SizeBytes)))
		if msg.SHA256 != "" {
			b.WriteString(fmt.Sprintf("  • SHA-256: <code>%s</code>\n", msg.SHA256))
		}
	} else {
		b.WriteString("\n<b>⚠️ Error Details:</b>\n")
		b.WriteString(fmt.Sprintf("  • Failed phase: %s\n", escapeHTML(msg.FailedPhase)))
		b.WriteString(fmt.Sprintf("  • Error: <code>%s</code>\n", escapeHTML(msg.ErrorMessage)))
	}

	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeHTML escapes the characters Telegram's HTML parse mode reserves.
func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
