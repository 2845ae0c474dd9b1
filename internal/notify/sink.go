// Package notify fans booking events out to players. Delivery is
// fire-and-forget: the state machine never waits on it and never sees its
// failures.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notification is one message for a set of players.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Kind  string `json:"kind"`
	Link  string `json:"link,omitempty"`
}

// Sink delivers notifications. Implementations must not block on delivery
// and must swallow (but log) delivery failures.
type Sink interface {
	Notify(ctx context.Context, targets []string, n Notification)
}

// LogSink writes notifications to the log only. Used in tests and in
// deployments without VAPID keys.
type LogSink struct {
	Log *logrus.Entry
}

// NewLogSink creates a LogSink.
func NewLogSink(log *logrus.Logger) *LogSink {
	return &LogSink{Log: log.WithField("component", "notify")}
}

// Notify logs the notification.
func (s *LogSink) Notify(_ context.Context, targets []string, n Notification) {
	s.Log.WithFields(logrus.Fields{
		"targets": targets,
		"kind":    n.Kind,
		"title":   n.Title,
	}).Info("notification")
}
