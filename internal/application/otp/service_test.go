package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/givehub-api/internal/domain"
	"github.com/givehub-api/internal/pkg/code"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockChallengeStore struct{ mock.Mock }

func (m *mockChallengeStore) Put(ctx context.Context, c *domain.OtpChallenge) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockChallengeStore) Get(ctx context.Context, subjectKey string) (*domain.OtpChallenge, error) {
	args := m.Called(ctx, subjectKey)
	if c, _ := args.Get(0).(*domain.OtpChallenge); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockChallengeStore) DecrementAttempts(ctx context.Context, subjectKey, challengeID string, from int) error {
	return m.Called(ctx, subjectKey, challengeID, from).Error(0)
}
func (m *mockChallengeStore) Consume(ctx context.Context, subjectKey, challengeID string, at time.Time) error {
	return m.Called(ctx, subjectKey, challengeID, at).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, phone, msg string) error {
	return m.Called(ctx, phone, msg).Error(0)
}

// --- helpers ---

func newService(cs *mockChallengeStore, ml *mockMailer, sms *mockSMSSender) Service {
	return NewService(ServiceDeps{
		ChallengeRepo: cs,
		Mailer:        ml,
		SMSSender:     sms,
	})
}

// pendingChallenge builds a live challenge whose stored hash matches plain.
func pendingChallenge(t *testing.T, subjectKey, plain string, attempts int) *domain.OtpChallenge {
	t.Helper()
	hash, err := code.Hash(plain)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &domain.OtpChallenge{
		SubjectKey:        subjectKey,
		ChallengeID:       "ch-1",
		CodeHash:          hash,
		IssuedAt:          now,
		ExpiresAt:         now.Add(domain.OTPTTL).Unix(),
		AttemptsRemaining: attempts,
		ResendAvailableAt: now.Add(domain.OTPResendCooldown).Unix(),
	}
}

const subjectKey = "a@x.com#verify_email"

// --- RequestChallenge ---

func TestRequestChallenge_MissingFields_ReturnsBadRequest(t *testing.T) {
	svc := newService(nil, nil, nil)
	err := svc.RequestChallenge(context.Background(), "", domain.PurposeVerifyEmail)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestRequestChallenge_PersistsFreshChallenge(t *testing.T) {
	cs := &mockChallengeStore{}
	ml := &mockMailer{}
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(nil).Maybe()

	var stored *domain.OtpChallenge
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.OtpChallenge")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.OtpChallenge) }).
		Return(nil)

	svc := newService(cs, ml, nil)
	err := svc.RequestChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail)

	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, subjectKey, stored.SubjectKey)
	assert.Equal(t, domain.OTPMaxAttempts, stored.AttemptsRemaining)
	assert.NotEmpty(t, stored.ChallengeID)
	assert.NotEmpty(t, stored.CodeHash)
	assert.Nil(t, stored.ConsumedAt)

	now := time.Now().Unix()
	assert.InDelta(t, now+600, stored.ExpiresAt, 5)
	assert.InDelta(t, now+60, stored.ResendAvailableAt, 5)
	cs.AssertExpectations(t)
}

// --- VerifyChallenge ---

func TestVerifyChallenge_NoChallenge_ReturnsNotFound(t *testing.T) {
	cs := &mockChallengeStore{}
	cs.On("Get", mock.Anything, subjectKey).Return(nil, domain.ErrNotFound)

	svc := newService(cs, nil, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyChallenge_AlreadyConsumed_ReturnsNotFound(t *testing.T) {
	cs := &mockChallengeStore{}
	c := pendingChallenge(t, subjectKey, "123456", 5)
	consumed := time.Now().UTC()
	c.ConsumedAt = &consumed
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)

	svc := newService(cs, nil, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyChallenge_Expired_WinsOverCorrectCode(t *testing.T) {
	cs := &mockChallengeStore{}
	c := pendingChallenge(t, subjectKey, "123456", 5)
	c.ExpiresAt = time.Now().Add(-time.Second).Unix()
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)

	svc := newService(cs, nil, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOTPExpired))
	// The correct code must never be consumed past expiry.
	cs.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyChallenge_WrongCode_BurnsOneAttempt(t *testing.T) {
	cs := &mockChallengeStore{}
	c := pendingChallenge(t, subjectKey, "123456", 5)
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)
	cs.On("DecrementAttempts", mock.Anything, subjectKey, "ch-1", 5).Return(nil)

	svc := newService(cs, nil, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "654321")

	var incorrect *domain.IncorrectCodeError
	require.ErrorAs(t, err, &incorrect)
	assert.Equal(t, 4, incorrect.RemainingAttempts)
	cs.AssertExpectations(t)
}

func TestVerifyChallenge_LastWrongAttempt_AutoReissues(t *testing.T) {
	cs := &mockChallengeStore{}
	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	c := pendingChallenge(t, subjectKey, "123456", 1)
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)
	cs.On("DecrementAttempts", mock.Anything, subjectKey, "ch-1", 1).Return(nil)

	var reissued *domain.OtpChallenge
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.OtpChallenge")).
		Run(func(args mock.Arguments) { reissued = args.Get(1).(*domain.OtpChallenge) }).
		Return(nil)

	svc := newService(cs, ml, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "654321")

	var exhausted *domain.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, exhausted.NewCodeSent)

	// Replacement challenge carries a fresh fencing id and full budget.
	require.NotNil(t, reissued)
	assert.NotEqual(t, "ch-1", reissued.ChallengeID)
	assert.Equal(t, domain.OTPMaxAttempts, reissued.AttemptsRemaining)
	cs.AssertExpectations(t)
}

func TestVerifyChallenge_CorrectCode_Consumes(t *testing.T) {
	cs := &mockChallengeStore{}
	c := pendingChallenge(t, subjectKey, "123456", 3)
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)
	cs.On("Consume", mock.Anything, subjectKey, "ch-1", mock.Anything).Return(nil)

	svc := newService(cs, nil, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "123456")

	require.NoError(t, err)
	cs.AssertNotCalled(t, "DecrementAttempts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cs.AssertExpectations(t)
}

func TestVerifyChallenge_ConsumeRace_ReportsNotFound(t *testing.T) {
	cs := &mockChallengeStore{}
	c := pendingChallenge(t, subjectKey, "123456", 3)
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)
	cs.On("Consume", mock.Anything, subjectKey, "ch-1", mock.Anything).Return(domain.ErrConflict)

	svc := newService(cs, nil, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyChallenge_DecrementRace_RereadsFreshChallenge(t *testing.T) {
	cs := &mockChallengeStore{}
	stale := pendingChallenge(t, subjectKey, "123456", 5)
	fresh := pendingChallenge(t, subjectKey, "123456", 4)
	fresh.ChallengeID = "ch-2"

	cs.On("Get", mock.Anything, subjectKey).Return(stale, nil).Once()
	cs.On("Get", mock.Anything, subjectKey).Return(fresh, nil).Once()
	cs.On("DecrementAttempts", mock.Anything, subjectKey, "ch-1", 5).Return(domain.ErrConflict).Once()
	cs.On("DecrementAttempts", mock.Anything, subjectKey, "ch-2", 4).Return(nil).Once()

	svc := newService(cs, nil, nil)
	err := svc.VerifyChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail, "654321")

	var incorrect *domain.IncorrectCodeError
	require.ErrorAs(t, err, &incorrect)
	assert.Equal(t, 3, incorrect.RemainingAttempts)
	cs.AssertExpectations(t)
}

// --- ResendChallenge ---

func TestResendChallenge_BeforeCooldown_RateLimited(t *testing.T) {
	cs := &mockChallengeStore{}
	c := pendingChallenge(t, subjectKey, "123456", 5)
	c.ResendAvailableAt = time.Now().Add(45 * time.Second).Unix()
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)

	svc := newService(cs, nil, nil)
	err := svc.ResendChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail)

	var limited *domain.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, limited.RetryAfter, 46*time.Second)
	// The outstanding challenge must be left untouched.
	cs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestResendChallenge_AfterCooldown_Reissues(t *testing.T) {
	cs := &mockChallengeStore{}
	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	c := pendingChallenge(t, subjectKey, "123456", 2)
	c.ResendAvailableAt = time.Now().Add(-time.Second).Unix()
	cs.On("Get", mock.Anything, subjectKey).Return(c, nil)

	var reissued *domain.OtpChallenge
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.OtpChallenge")).
		Run(func(args mock.Arguments) { reissued = args.Get(1).(*domain.OtpChallenge) }).
		Return(nil)

	svc := newService(cs, ml, nil)
	err := svc.ResendChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail)

	require.NoError(t, err)
	require.NotNil(t, reissued)
	assert.Equal(t, domain.OTPMaxAttempts, reissued.AttemptsRemaining)
	assert.NotEqual(t, "ch-1", reissued.ChallengeID)
	cs.AssertExpectations(t)
}

func TestResendChallenge_NoOutstandingChallenge_IssuesFresh(t *testing.T) {
	cs := &mockChallengeStore{}
	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	cs.On("Get", mock.Anything, subjectKey).Return(nil, domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.OtpChallenge")).Return(nil)

	svc := newService(cs, ml, nil)
	err := svc.ResendChallenge(context.Background(), "a@x.com", domain.PurposeVerifyEmail)
	require.NoError(t, err)
	cs.AssertExpectations(t)
}
