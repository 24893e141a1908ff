// Package notify posts run summaries to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dailyread/internal/models"
)

// Color constants for run outcome.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Message is a platform neutral notification.
type Message struct {
	Title  string
	Body   string
	Color  string  // sidebar color hint
	Fields []Field // structured key/value pairs
}

// Field is a name/value pair rendered by the chat platform.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Notifier delivers a message to one destination.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatRun summarizes a finished run.
func FormatRun(run *models.RunLog) Message {
	msg := Message{
		Title: fmt.Sprintf("Daily Read %s run finished", run.Mode),
		Color: ColorSuccess,
	}
	switch {
	case run.Error != "":
		msg.Title = fmt.Sprintf("Daily Read %s run failed", run.Mode)
		msg.Body = run.Error
		msg.Color = ColorError
	case run.Failed > 0:
		msg.Body = fmt.Sprintf("%d report upload(s) failed", run.Failed)
		msg.Color = ColorWarning
	case run.Orderers == 0:
		msg.Body = "No changed projects, nothing to report"
		msg.Color = ColorInfo
	}

	msg.Fields = append(msg.Fields,
		Field{Name: "Orderers", Value: fmt.Sprint(run.Orderers), Short: true},
		Field{Name: "Reports", Value: fmt.Sprint(run.Bundles), Short: true},
	)
	if run.Mode == "upload" {
		msg.Fields = append(msg.Fields,
			Field{Name: "Uploaded", Value: fmt.Sprint(run.Uploaded), Short: true},
			Field{Name: "Hidden", Value: fmt.Sprint(run.Hidden), Short: true},
			Field{Name: "Failed", Value: fmt.Sprint(run.Failed), Short: true},
		)
	}
	if run.FinishedAt != nil {
		msg.Fields = append(msg.Fields, Field{Name: "Duration", Value: run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(), Short: true})
	}
	return msg
}

// Text renders msg as plain text, for platforms or logs without rich layout.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Body != "" {
		b.WriteString("\n")
		b.WriteString(m.Body)
	}
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}
	return b.String()
}
