// Package notify defines the out-of-band delivery contract. The credential
// engine only produces secrets; embedding them into mail or SMS and sending
// is the surrounding flow's job.
package notify

import (
	"context"

	"github.com/polyshop/auth-service/internal/obs"
)

// Sender delivers a message to a destination (email address or phone number).
type Sender interface {
	Send(ctx context.Context, destination, subject, body string) error
}

// LogSender writes deliveries to the service log instead of sending them.
// Default in development; production wires a real mail/SMS gateway here.
// The body may embed secrets, so only destination and subject are logged.
type LogSender struct{}

func (LogSender) Send(_ context.Context, destination, subject, _ string) error {
	obs.Log(map[string]any{
		"level":       "info",
		"msg":         "notify: message suppressed (log sender)",
		"destination": destination,
		"subject":     subject,
	})
	return nil
}
