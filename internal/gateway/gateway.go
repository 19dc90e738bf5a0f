package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/contentcal/internal/models"
)

// Notifier announces sessions that reached a terminal status.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, snap models.ProgressSnapshot) error
}

// StatusSource answers progress queries coming in through a chat gateway.
type StatusSource interface {
	GetProgress(sessionID string) (models.ProgressSnapshot, error)
}

// Multi fans a notification out to every configured notifier.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n.Name())
	}
	return strings.Join(names, ",")
}

func (m Multi) Notify(ctx context.Context, snap models.ProgressSnapshot) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FormatSummary renders a short Markdown report of snap. Free text is
// escaped so error messages cannot break the markup.
func FormatSummary(snap models.ProgressSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Content calendar %s*\n", escape(string(snap.Status)))
	fmt.Fprintf(&sb, "Session: `%s`\n", strings.ReplaceAll(snap.SessionID, "`", ""))
	fmt.Fprintf(&sb, "Calendar: %s, strategy %d\n", escape(snap.CalendarType), snap.StrategyID)
	fmt.Fprintf(&sb, "Progress: %.0f%% (step %d/12)\n", snap.OverallProgressPct, snap.CurrentStep)
	if snap.AggregateQuality > 0 {
		fmt.Fprintf(&sb, "Quality: %.2f\n", snap.AggregateQuality)
	}
	if snap.FailedStep > 0 {
		fmt.Fprintf(&sb, "Failed at step %d\n", snap.FailedStep)
	}
	if len(snap.Errors) > 0 {
		fmt.Fprintf(&sb, "Error: %s\n", escape(snap.Errors[len(snap.Errors)-1]))
	}
	if n := len(snap.Warnings); n > 0 {
		fmt.Fprintf(&sb, "Warnings: %d\n", n)
	}
	return sb.String()
}

func escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}
