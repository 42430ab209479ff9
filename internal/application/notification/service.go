package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/givehub-api/internal/domain"
	"github.com/givehub-api/internal/infrastructure/smtp"
	"github.com/givehub-api/internal/infrastructure/webpush"
	"github.com/givehub-api/internal/pkg/id"
	"golang.org/x/sync/errgroup"
)

// NotificationStore is the minimal interface the service requires from the
// notification repository.
type NotificationStore interface {
	PutIfAbsent(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListPage(ctx context.Context, userID string, limit int32, cursor string) ([]domain.Notification, string, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, notificationID string, at time.Time) error
	Delete(ctx context.Context, notificationID string) error
}

type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	Put(ctx context.Context, p *domain.NotificationPreference) error
}

type SubscriptionStore interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	Revoke(ctx context.Context, endpoint string, at time.Time) error
}

type Service interface {
	// Create persists the in-app row (idempotently when req.SourceEvent is
	// set) and returns once it is stored. Push and email fan-out happen in
	// the background and never fail the call.
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	List(ctx context.Context, userID string, limit int32, cursor string) ([]domain.Notification, string, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, notificationID, userID string) error
}

type ServiceDeps struct {
	NotificationRepo NotificationStore
	PreferenceRepo   PreferenceStore
	SubscriptionRepo SubscriptionStore
	PushSender       webpush.Sender // nil when push is not configured
	Mailer           smtp.Mailer    // nil when email is not configured
	PushConcurrency  int
	DispatchTimeout  time.Duration
}

type service struct {
	notificationRepo NotificationStore
	preferenceRepo   PreferenceStore
	subscriptionRepo SubscriptionStore
	pushSender       webpush.Sender
	mailer           smtp.Mailer
	pushConcurrency  int
	dispatchTimeout  time.Duration
}

func NewService(deps ServiceDeps) Service {
	concurrency := deps.PushConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	timeout := deps.DispatchTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &service{
		notificationRepo: deps.NotificationRepo,
		preferenceRepo:   deps.PreferenceRepo,
		subscriptionRepo: deps.SubscriptionRepo,
		pushSender:       deps.PushSender,
		mailer:           deps.Mailer,
		pushConcurrency:  concurrency,
		dispatchTimeout:  timeout,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	if req.UserID == "" || req.Type == "" {
		return nil, fmt.Errorf("user_id and type required: %w", domain.ErrBadRequest)
	}

	title, message := render(req.Type, req.Payload)
	n := &domain.Notification{
		NotificationID: notificationID(req),
		UserID:         req.UserID,
		Type:           req.Type,
		Title:          title,
		Message:        message,
		Payload:        req.Payload,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.notificationRepo.PutIfAbsent(ctx, n); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Same logical event already recorded and dispatched; return
			// the existing row instead of double-firing.
			return s.notificationRepo.Get(ctx, n.NotificationID)
		}
		return nil, err
	}

	prefs, err := s.loadPreferences(ctx, req.UserID)
	if err != nil {
		slog.Warn("could not load notification preferences, using defaults", "user_id", req.UserID, "err", err)
		prefs = domain.DefaultPreference(req.UserID)
	}

	// The in-app row is the authoritative record; channel delivery is
	// best-effort and must not block or fail this call.
	go s.dispatch(n, prefs)

	return n, nil
}

// notificationID derives a deterministic id when the request names its
// source event, so the same logical event can never produce two rows.
func notificationID(req domain.CreateNotificationRequest) string {
	if req.SourceEvent == "" {
		return id.New()
	}
	sum := sha256.Sum256([]byte(req.UserID + "|" + req.SourceEvent + "|" + req.Type))
	return "evt" + hex.EncodeToString(sum[:16])
}

// loadPreferences fetches the user's settings, lazily creating defaults on
// first access.
func (s *service) loadPreferences(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	prefs, err := s.preferenceRepo.Get(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	prefs = domain.DefaultPreference(userID)
	if err := s.preferenceRepo.Put(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// dispatch fans the notification out to the push and email channels. Every
// failure is absorbed here: logged, never surfaced to the creator.
func (s *service) dispatch(n *domain.Notification, prefs *domain.NotificationPreference) {
	ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
	defer cancel()

	s.dispatchEmail(n, prefs)

	if s.pushSender == nil {
		return // push not configured; in-app row already stands
	}
	if !prefs.PushAllows(n.Type) {
		return
	}
	if inQuietHours(prefs.QuietHours, prefs.Timezone, time.Now()) {
		slog.Debug("push suppressed by quiet hours", "user_id", n.UserID, "notification_id", n.NotificationID)
		return
	}

	subs, err := s.subscriptionRepo.ListActiveByUser(ctx, n.UserID)
	if err != nil {
		slog.Warn("could not list push subscriptions", "user_id", n.UserID, "err", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		slog.Warn("could not encode push payload", "notification_id", n.NotificationID, "err", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.pushConcurrency)
	for _, sub := range subs {
		sub := sub // per-iteration copy; required under the go 1.21 directive
		g.Go(func() error {
			s.deliverToSubscription(gctx, &sub, payload)
			return nil // one dead endpoint must not abort the others
		})
	}
	_ = g.Wait()
}

func (s *service) deliverToSubscription(ctx context.Context, sub *domain.PushSubscription, payload []byte) {
	err := s.pushSender.Deliver(ctx, sub, payload)
	if err == nil {
		return
	}
	if errors.Is(err, webpush.ErrGone) {
		if revokeErr := s.subscriptionRepo.Revoke(ctx, sub.Endpoint, time.Now().UTC()); revokeErr != nil {
			slog.Warn("could not revoke gone subscription", "endpoint", sub.Endpoint, "err", revokeErr)
		} else {
			slog.Info("revoked gone push subscription", "endpoint", sub.Endpoint, "user_id", sub.UserID)
		}
		return
	}
	slog.Warn("push delivery failed", "endpoint", sub.Endpoint, "err", err)
}

func (s *service) dispatchEmail(n *domain.Notification, prefs *domain.NotificationPreference) {
	if s.mailer == nil || !prefs.EmailAllows(n.Type) {
		return
	}
	to := n.Payload["email"]
	if to == "" {
		return
	}
	if err := s.mailer.SendEmail(to, n.Title, n.Message); err != nil {
		slog.Warn("email delivery failed", "user_id", n.UserID, "err", err)
	}
}

func (s *service) List(ctx context.Context, userID string, limit int32, cursor string) ([]domain.Notification, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.notificationRepo.ListPage(ctx, userID, limit, cursor)
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notificationRepo.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, notificationID, userID string) error {
	n, err := s.notificationRepo.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("not the notification owner: %w", domain.ErrForbidden)
	}
	return s.notificationRepo.MarkAsRead(ctx, notificationID, time.Now().UTC())
}

func (s *service) MarkAllRead(ctx context.Context, userID string) error {
	unread, err := s.notificationRepo.ListUnread(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, n := range unread {
		if err := s.notificationRepo.MarkAsRead(ctx, n.NotificationID, now); err != nil {
			return err
		}
	}
	return nil
}

// Delete is an idempotent removal: a missing id is a no-op success, a row
// owned by someone else is forbidden.
func (s *service) Delete(ctx context.Context, notificationID, userID string) error {
	n, err := s.notificationRepo.Get(ctx, notificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("not the notification owner: %w", domain.ErrForbidden)
	}
	return s.notificationRepo.Delete(ctx, notificationID)
}
