// Package notify posts ingestion results to a Slack webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/johndauphine/chfile/internal/secrets"
)

// SlackConfig configures the webhook.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Channel    string
	Username   string
}

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a colored message block.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

// Field is a title/value pair inside an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notifier sends messages. A notifier without a webhook is a no-op.
type Notifier struct {
	config *SlackConfig
	client *http.Client
}

// New creates a notifier. cfg may be nil.
func New(cfg *SlackConfig) *Notifier {
	return &Notifier{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewFromSecrets creates a notifier from the secrets file webhook. A
// missing file or webhook yields a disabled notifier.
func NewFromSecrets() *Notifier {
	cfg, err := secrets.Load()
	if err != nil || cfg.Notifications.Slack.WebhookURL == "" {
		return New(nil)
	}
	return New(&SlackConfig{Enabled: true, WebhookURL: cfg.Notifications.Slack.WebhookURL})
}

// IsEnabled reports whether messages are sent.
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

func (n *Notifier) getUsername() string {
	if n.config != nil && n.config.Username != "" {
		return n.config.Username
	}
	return "chfile"
}

// IngestionCompleted reports a successful transfer. location is where an
// export was saved, or the target table of an import.
func (n *Notifier) IngestionCompleted(runID, direction, source, location string, records int64, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}
	fields := []Field{
		{Title: "Run ID", Value: runID, Short: true},
		{Title: "Direction", Value: direction, Short: true},
		{Title: "Source", Value: source, Short: true},
		{Title: "Destination", Value: location, Short: true},
		{Title: "Records", Value: formatNumberWithCommas(records), Short: true},
		{Title: "Duration", Value: formatDuration(duration), Short: true},
	}
	if duration > 0 && records > 0 {
		rate := int64(float64(records) / duration.Seconds())
		fields = append(fields, Field{Title: "Throughput", Value: formatNumberWithCommas(rate) + " records/sec", Short: true})
	}
	return n.send(SlackMessage{
		IconEmoji: ":white_check_mark:",
		Attachments: []Attachment{{
			Color:  "#36a64f",
			Title:  "Ingestion Completed",
			Fields: fields,
			Footer: "chfile",
			Ts:     time.Now().Unix(),
		}},
	})
}

// IngestionFailed reports a failed transfer.
func (n *Notifier) IngestionFailed(runID, direction, message string, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}
	if message == "" {
		message = "Unknown error"
	}
	return n.send(SlackMessage{
		IconEmoji: ":x:",
		Attachments: []Attachment{{
			Color: "#dc3545",
			Title: "Ingestion Failed",
			Fields: []Field{
				{Title: "Run ID", Value: runID, Short: true},
				{Title: "Direction", Value: direction, Short: true},
				{Title: "Duration", Value: formatDuration(duration), Short: true},
				{Title: "Error", Value: message, Short: false},
			},
			Footer: "chfile",
			Ts:     time.Now().Unix(),
		}},
	})
}

func (n *Notifier) send(msg SlackMessage) error {
	msg.Channel = n.config.Channel
	msg.Username = n.getUsername()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}
	resp, err := n.client.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending slack message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func formatNumberWithCommas(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}
	var b bytes.Buffer
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > len(sign) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
