package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/padelclub/padelclub/internal/booking"
	"github.com/padelclub/padelclub/internal/store"
)

// Notifier maps booking events to notifications and hands them to a Sink.
// It runs on its own goroutine off a coordinator subscription, so the state
// machine never blocks on it.
type Notifier struct {
	sink        Sink
	guestPrefix string
	log         *logrus.Entry
}

// NewNotifier creates a Notifier.
func NewNotifier(sink Sink, guestPrefix string, log *logrus.Logger) *Notifier {
	return &Notifier{
		sink:        sink,
		guestPrefix: guestPrefix,
		log:         log.WithField("component", "notifier"),
	}
}

// Run consumes coordinator events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context, events <-chan booking.Event) {
	n.log.Info("notifier started")
	for {
		select {
		case <-ctx.Done():
			n.log.Info("notifier stopped")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			n.handleEvent(ctx, event)
		}
	}
}

func (n *Notifier) handleEvent(ctx context.Context, event booking.Event) {
	switch e := event.(type) {
	case booking.MatchClosed:
		n.sink.Notify(ctx, n.rated(e.Match), Notification{
			Title: "Match confirmed",
			Body:  fmt.Sprintf("Your match on %s at %s has a full roster.", e.Match.Date, e.Match.StartTime),
			Kind:  "match_confirmed",
			Link:  matchLink(e.Match.ID),
		})
	case booking.InviteSent:
		n.sink.Notify(ctx, []string{e.PlayerID}, Notification{
			Title: "Challenge invite",
			Body:  fmt.Sprintf("You have been invited to a match on %s at %s.", e.Match.Date, e.Match.StartTime),
			Kind:  "invite",
			Link:  matchLink(e.Match.ID),
		})
	case booking.InviteRejected:
		n.sink.Notify(ctx, []string{e.Match.CreatorID}, Notification{
			Title: "Invite declined",
			Body:  fmt.Sprintf("%s declined your invite for %s at %s.", e.PlayerID, e.Match.Date, e.Match.StartTime),
			Kind:  "invite_declined",
			Link:  matchLink(e.Match.ID),
		})
	case booking.MatchCancelled:
		n.sink.Notify(ctx, n.rated(e.Match), Notification{
			Title: "Match cancelled",
			Body:  fmt.Sprintf("The match on %s at %s was cancelled.", e.Match.Date, e.Match.StartTime),
			Kind:  "match_cancelled",
		})
	case booking.ResultRecorded:
		n.sink.Notify(ctx, n.rated(e.Match), Notification{
			Title: "Result recorded",
			Body:  fmt.Sprintf("The result of your match on %s is in. Ratings updated.", e.Match.Date),
			Kind:  "result",
			Link:  matchLink(e.Match.ID),
		})
	case booking.MatchReminder:
		n.sink.Notify(ctx, n.rated(e.Match), Notification{
			Title: "Match coming up",
			Body:  fmt.Sprintf("You play today at %s.", e.Match.StartTime),
			Kind:  "reminder",
			Link:  matchLink(e.Match.ID),
		})
	}
}

// rated returns the roster occupants that can actually receive
// notifications, i.e. everyone but guests.
func (n *Notifier) rated(m *store.Match) []string {
	var out []string
	for _, id := range m.Occupants() {
		if n.guestPrefix != "" && strings.HasPrefix(id, n.guestPrefix) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func matchLink(id string) string {
	return "/matches/" + id
}
