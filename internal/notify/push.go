package notify

import (
	"context"
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"github.com/padelclub/padelclub/internal/store"
)

// VAPIDConfig holds the web push signing material.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string // mailto:your-email@example.com
}

// PushSink delivers notifications over web push to every subscription a
// player has registered.
type PushSink struct {
	store store.Store
	vapid VAPIDConfig
	log   *logrus.Entry
}

// NewPushSink creates a PushSink.
func NewPushSink(st store.Store, vapid VAPIDConfig, log *logrus.Logger) *PushSink {
	return &PushSink{
		store: st,
		vapid: vapid,
		log:   log.WithField("component", "push"),
	}
}

// PublicKey returns the VAPID public key clients subscribe with.
func (s *PushSink) PublicKey() string {
	return s.vapid.PublicKey
}

// Notify sends the notification to each target in the background.
func (s *PushSink) Notify(ctx context.Context, targets []string, n Notification) {
	for _, id := range targets {
		go func(id string) {
			if err := s.sendToPlayer(ctx, id, n); err != nil {
				s.log.WithField("player", id).Warnf("push failed: %v", err)
			}
		}(id)
	}
}

func (s *PushSink) sendToPlayer(ctx context.Context, playerID string, n Notification) error {
	subs, err := s.store.GetPushSubscriptions(ctx, playerID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	var lastErr error
	for _, sub := range subs {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      s.vapid.Subject,
			VAPIDPublicKey:  s.vapid.PublicKey,
			VAPIDPrivateKey: s.vapid.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		// Gone or invalid endpoints are pruned rather than retried.
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := s.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				s.log.Warnf("failed to prune subscription: %v", err)
			}
		}
	}
	return lastErr
}
