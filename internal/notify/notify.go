// Package notify sends best-effort run notifications. A failed delivery is
// logged by the caller and never changes a run's outcome.
package notify

import (
	"context"
	"fmt"
	"time"

	"disneyetl/internal/datasource/httpds"
)

// TaskContext identifies the task a notification is about.
type TaskContext struct {
	DAG           string
	Task          string
	ExecutionTime time.Time
}

// Notifier is the notification sink.
type Notifier interface {
	Info(ctx context.Context, tc TaskContext, message string) error
	Error(ctx context.Context, tc TaskContext, logURL string) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Info(context.Context, TaskContext, string) error  { return nil }
func (Nop) Error(context.Context, TaskContext, string) error { return nil }

// SlackConfig configures a Slack incoming webhook.
type SlackConfig struct {
	WebhookURL string
	Channel    string // default "#airflow-alerts"
	Username   string
	IconEmoji  string // default "airflow"
}

// Poster is the subset of *httpds.Client used by Slack.
type Poster interface {
	PostJSON(ctx context.Context, rawURL string, payload any) ([]byte, error)
}

// Slack posts messages to an incoming webhook.
type Slack struct {
	cfg  SlackConfig
	http Poster
}

var _ Notifier = (*Slack)(nil)

// NewSlack returns a Slack notifier posting through p.
func NewSlack(cfg SlackConfig, p Poster) *Slack {
	if cfg.Channel == "" {
		cfg.Channel = "#airflow-alerts"
	}
	if cfg.IconEmoji == "" {
		cfg.IconEmoji = "airflow"
	}
	return &Slack{cfg: cfg, http: p}
}

// NewSlackClient is NewSlack over a fresh httpds client.
func NewSlackClient(cfg SlackConfig, timeout time.Duration) *Slack {
	return NewSlack(cfg, httpds.NewClient(httpds.Config{Timeout: timeout}))
}

type slackPayload struct {
	Text      string `json:"text"`
	Channel   string `json:"channel"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji"`
}

const execTimeLayout = "2006-01-02 15:04:05"

// InfoMessage renders the task info message.
func InfoMessage(tc TaskContext, message string) string {
	return fmt.Sprintf(`
            :information_source:  Task Info.

            *Dag*: `+"`%s`"+`
            *Task*: `+"`%s`"+`
            *Execution Time*: %s
            *Info*: %s
        `, tc.DAG, tc.Task, tc.ExecutionTime.Format(execTimeLayout), message)
}

// ErrorMessage renders the task failure message.
func ErrorMessage(tc TaskContext, logURL string) string {
	return fmt.Sprintf(`
            :double_red_exclamation_mark: Task Failed.

            *Dag*: `+"`%s`"+`
            *Task*: `+"`%s`"+`
            *Execution Time*: %s
            *Log URL*: <%s|link to acess log task>
        `, tc.DAG, tc.Task, tc.ExecutionTime.Format(execTimeLayout), logURL)
}

func (s *Slack) Info(ctx context.Context, tc TaskContext, message string) error {
	return s.post(ctx, InfoMessage(tc, message))
}

func (s *Slack) Error(ctx context.Context, tc TaskContext, logURL string) error {
	return s.post(ctx, ErrorMessage(tc, logURL))
}

func (s *Slack) post(ctx context.Context, text string) error {
	if s.cfg.WebhookURL == "" {
		return fmt.Errorf("notify: slack webhook url is not configured")
	}
	_, err := s.http.PostJSON(ctx, s.cfg.WebhookURL, slackPayload{
		Text:      text,
		Channel:   s.cfg.Channel,
		Username:  s.cfg.Username,
		IconEmoji: s.cfg.IconEmoji,
	})
	if err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}
