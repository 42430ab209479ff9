package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/givehub-api/internal/domain"
	"github.com/givehub-api/internal/infrastructure/smtp"
	"github.com/givehub-api/internal/infrastructure/sns"
	"github.com/givehub-api/internal/pkg/code"
	"github.com/givehub-api/internal/pkg/id"
)

// ChallengeStore is the minimal interface the service requires from the
// challenge repository.
type ChallengeStore interface {
	Put(ctx context.Context, c *domain.OtpChallenge) error
	Get(ctx context.Context, subjectKey string) (*domain.OtpChallenge, error)
	DecrementAttempts(ctx context.Context, subjectKey, challengeID string, from int) error
	Consume(ctx context.Context, subjectKey, challengeID string, at time.Time) error
}

type Service interface {
	// RequestChallenge issues a fresh code for (identity, purpose) and
	// queues delivery. Any prior challenge for the same pair is superseded
	// immediately. Returns once the challenge is persisted; delivery is
	// asynchronous and best-effort.
	RequestChallenge(ctx context.Context, identity, purpose string) error
	// VerifyChallenge checks a submitted code. Expiry is checked before
	// the code itself. Wrong codes burn one attempt; burning the last one
	// auto-issues a replacement and returns ExhaustedError.
	VerifyChallenge(ctx context.Context, identity, purpose, submitted string) error
	// ResendChallenge re-issues after the cooldown; before it, returns
	// RateLimitedError without touching the existing challenge.
	ResendChallenge(ctx context.Context, identity, purpose string) error
}

type ServiceDeps struct {
	ChallengeRepo ChallengeStore
	Mailer        smtp.Mailer
	SMSSender     sns.SMSSender
}

type service struct {
	challengeRepo ChallengeStore
	mailer        smtp.Mailer
	smsSender     sns.SMSSender
}

func NewService(deps ServiceDeps) Service {
	return &service{
		challengeRepo: deps.ChallengeRepo,
		mailer:        deps.Mailer,
		smsSender:     deps.SMSSender,
	}
}

func (s *service) RequestChallenge(ctx context.Context, identity, purpose string) error {
	if identity == "" || purpose == "" {
		return fmt.Errorf("identity and purpose required: %w", domain.ErrBadRequest)
	}
	_, err := s.issue(ctx, identity, purpose)
	return err
}

// issue persists a fresh challenge and queues delivery of the plain code.
// The single-row-per-subject-key table makes the Put the supersede: the
// prior code's hash is gone the moment this returns.
func (s *service) issue(ctx context.Context, identity, purpose string) (*domain.OtpChallenge, error) {
	plain, err := code.New()
	if err != nil {
		return nil, err
	}
	hash, err := code.Hash(plain)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &domain.OtpChallenge{
		SubjectKey:        domain.SubjectKey(identity, purpose),
		ChallengeID:       id.New(),
		CodeHash:          hash,
		IssuedAt:          now,
		ExpiresAt:         now.Add(domain.OTPTTL).Unix(),
		AttemptsRemaining: domain.OTPMaxAttempts,
		ResendAvailableAt: now.Add(domain.OTPResendCooldown).Unix(),
	}
	if err := s.challengeRepo.Put(ctx, c); err != nil {
		return nil, err
	}

	// The code is valid from this moment; delivery latency is not part of
	// the request contract.
	go s.sendCode(identity, purpose, plain)

	return c, nil
}

func (s *service) sendCode(identity, purpose, plain string) {
	var err error
	if strings.Contains(identity, "@") {
		if s.mailer == nil {
			err = domain.ErrNotConfigured
		} else {
			err = s.mailer.SendEmail(identity, subjectLine(purpose), "Your verification code: "+plain+"\nIt expires in 10 minutes.")
		}
	} else {
		if s.smsSender == nil {
			err = domain.ErrNotConfigured
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			err = s.smsSender.SendSMS(ctx, identity, "Your verification code: "+plain)
		}
	}
	if err != nil {
		slog.Warn("could not deliver otp code", "identity", identity, "purpose", purpose, "err", err)
	}
}

func subjectLine(purpose string) string {
	switch purpose {
	case domain.PurposeVerifyEmail:
		return "Confirm your email"
	case domain.PurposeChangePassword:
		return "Password change code"
	default:
		return "Your verification code"
	}
}

func (s *service) VerifyChallenge(ctx context.Context, identity, purpose, submitted string) error {
	subjectKey := domain.SubjectKey(identity, purpose)

	// Conflicts mean another verify or a supersede won a race; re-read and
	// re-evaluate against the fresh row a few times before giving up.
	for attempt := 0; attempt < 3; attempt++ {
		c, err := s.challengeRepo.Get(ctx, subjectKey)
		if err != nil {
			return fmt.Errorf("no challenge for subject: %w", domain.ErrNotFound)
		}
		if c.ConsumedAt != nil {
			return fmt.Errorf("challenge already consumed: %w", domain.ErrNotFound)
		}

		now := time.Now().UTC()
		// Expiry wins over correctness: an expired-but-correct code is
		// still rejected.
		if now.Unix() > c.ExpiresAt {
			return domain.ErrOTPExpired
		}

		if code.Matches(c.CodeHash, submitted) {
			if err := s.challengeRepo.Consume(ctx, subjectKey, c.ChallengeID, now); err != nil {
				if errors.Is(err, domain.ErrConflict) {
					return fmt.Errorf("challenge already consumed: %w", domain.ErrNotFound)
				}
				return err
			}
			return nil
		}

		err = s.challengeRepo.DecrementAttempts(ctx, subjectKey, c.ChallengeID, c.AttemptsRemaining)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}
		if c.AttemptsRemaining > 1 {
			return &domain.IncorrectCodeError{RemainingAttempts: c.AttemptsRemaining - 1}
		}

		// This guess burned the last attempt. The CAS above serialized it,
		// so exactly one caller reaches this branch: issue a replacement
		// before reporting exhaustion so the user already has a fresh code.
		if _, err := s.issue(ctx, identity, purpose); err != nil {
			slog.Warn("could not auto-reissue exhausted challenge", "subject_key", subjectKey, "err", err)
			return &domain.ExhaustedError{NewCodeSent: false}
		}
		return &domain.ExhaustedError{NewCodeSent: true}
	}
	return fmt.Errorf("challenge contention: %w", domain.ErrConflict)
}

func (s *service) ResendChallenge(ctx context.Context, identity, purpose string) error {
	if identity == "" || purpose == "" {
		return fmt.Errorf("identity and purpose required: %w", domain.ErrBadRequest)
	}
	subjectKey := domain.SubjectKey(identity, purpose)

	c, err := s.challengeRepo.Get(ctx, subjectKey)
	if err == nil && c.ConsumedAt == nil {
		if now := time.Now().Unix(); now < c.ResendAvailableAt {
			return &domain.RateLimitedError{
				RetryAfter: time.Duration(c.ResendAvailableAt-now) * time.Second,
			}
		}
	}

	// Cooldown passed, challenge consumed, or none outstanding: full
	// reissue with fresh timers and attempt budget.
	_, err = s.issue(ctx, identity, purpose)
	return err
}
