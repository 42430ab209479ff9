package webpush

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/givehub-api/internal/config"
	"github.com/givehub-api/internal/domain"
)

// ErrGone marks an endpoint the push service reports as permanently
// invalid (404/410). Callers must revoke the subscription.
var ErrGone = errors.New("push endpoint gone")

// Sender delivers encrypted payloads to browser push endpoints.
type Sender interface {
	// PublicKey returns the VAPID public key the browser needs to
	// subscribe, or domain.ErrNotConfigured when push is not set up.
	PublicKey() (string, error)
	// Deliver pushes the payload to one subscription. Each attempt is
	// bounded by the configured timeout; transient failures are retried
	// with backoff up to the configured cap. Returns ErrGone for
	// permanently dead endpoints.
	Deliver(ctx context.Context, sub *domain.PushSubscription, payload []byte) error
}

type sender struct {
	publicKey  string
	privateKey string
	subscriber string
	timeout    time.Duration
	maxRetries int
	client     *http.Client
}

// NewSender builds a VAPID web-push sender. Returns an error when the key
// pair is absent so callers can fall back to "push unavailable".
func NewSender(cfg *config.Config) (Sender, error) {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, fmt.Errorf("VAPID keys missing: %w", domain.ErrNotConfigured)
	}
	return &sender{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: cfg.VAPIDSubject,
		timeout:    cfg.PushTimeout,
		maxRetries: cfg.PushMaxRetries,
		client:     &http.Client{Timeout: cfg.PushTimeout},
	}, nil
}

func (s *sender) PublicKey() (string, error) {
	return s.publicKey, nil
}

func (s *sender) Deliver(ctx context.Context, sub *domain.PushSubscription, payload []byte) error {
	target := &webpushgo.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			// 500ms, 1s, 2s, ...
			backoff := 500 * time.Millisecond << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = s.send(ctx, target, payload)
		if lastErr == nil || errors.Is(lastErr, ErrGone) {
			return lastErr
		}
	}
	return fmt.Errorf("push delivery failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

func (s *sender) send(ctx context.Context, target *webpushgo.Subscription, payload []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := webpushgo.SendNotificationWithContext(attemptCtx, payload, target, &webpushgo.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             3600,
		HTTPClient:      s.client,
	})
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service responded %d", resp.StatusCode)
	}
	return nil
}
