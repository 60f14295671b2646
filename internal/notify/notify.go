// Package notify reports build failures to the user.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
)

// Message is one user-facing notification.
type Message struct {
	// Title names the failing stage, e.g. "sass".
	Title string
	Body  string
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use and must not block for long.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "build error", "stage", msg.Title, "message", msg.Body)
	return nil
}

// Desktop shows notifications through the operating system.
type Desktop struct {
	// AppName prefixes the notification title.
	AppName string

	// send is replaced in tests.
	send func(title, body string) error
}

func NewDesktop(appName string) *Desktop {
	return &Desktop{AppName: appName}
}

func (d *Desktop) Notify(_ context.Context, msg Message) error {
	title := msg.Title
	if d.AppName != "" {
		title = d.AppName + ": " + title
	}
	send := d.send
	if send == nil {
		send = func(title, body string) error { return beeep.Notify(title, body, "") }
	}
	return send(title, msg.Body)
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of the recorded notifications.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
