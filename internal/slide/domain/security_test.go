package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifiers struct {
	deviceOK    bool
	biometricOK bool
	locationOK  bool
	sessionOK   bool
	sessionErr  error
}

func (s *stubVerifiers) VerifyDevice(ctx context.Context, userID, fingerprint string) (bool, error) {
	return s.deviceOK, nil
}

func (s *stubVerifiers) VerifyBiometric(ctx context.Context, userID, token string) (bool, error) {
	return s.biometricOK, nil
}

func (s *stubVerifiers) VerifyLocation(ctx context.Context, userID string, location *Location) (bool, error) {
	return s.locationOK, nil
}

func (s *stubVerifiers) VerifySession(ctx context.Context, userID, sessionToken string) (bool, error) {
	return s.sessionOK, s.sessionErr
}

func newTestChecker(stubs *stubVerifiers) *SecurityChecker {
	return NewSecurityChecker(stubs, stubs, stubs, stubs)
}

func highSecuritySession(issuedAt time.Time) *SlideOrder {
	return &SlideOrder{
		SlideToken: "tok-1",
		UserID:     "user-1",
		Requirements: &SlideRequirements{
			SecurityLevel:        SecurityLevelHigh,
			Biometric:            true,
			DeviceVerification:   true,
			LocationVerification: true,
		},
		CreatedAt: issuedAt,
		ExpiresAt: issuedAt.Add(2 * time.Minute),
		Status:    SlideStatusPendingSlide,
	}
}

func slideDataAt(ts time.Time) *SlideData {
	return &SlideData{
		DeviceFingerprint: "fp",
		BiometricToken:    "bio",
		Location:          &Location{Latitude: 1, Longitude: 2},
		SessionToken:      "sess",
		ClientTimestamp:   ts.UnixMilli(),
	}
}

func TestSecurityCheck_AllPass(t *testing.T) {
	issued := time.Now()
	checker := newTestChecker(&stubVerifiers{deviceOK: true, biometricOK: true, locationOK: true, sessionOK: true})

	result := checker.Check(context.Background(), highSecuritySession(issued), slideDataAt(issued.Add(3*time.Second)))
	require.True(t, result.Passed, "reason: %s", result.Reason)
	assert.Equal(t, float64(100), result.Score)
	assert.True(t, result.Checks["device"])
	assert.True(t, result.Checks["biometric"])
	assert.True(t, result.Checks["location"])
	assert.True(t, result.Checks["session"])
	assert.True(t, result.Checks["timestamp"])
}

func TestSecurityCheck_FirstFailureInFixedOrder(t *testing.T) {
	issued := time.Now()
	checker := newTestChecker(&stubVerifiers{deviceOK: false, biometricOK: false, locationOK: true, sessionOK: true})

	result := checker.Check(context.Background(), highSecuritySession(issued), slideDataAt(issued))
	require.False(t, result.Passed)
	assert.Equal(t, "device verification failed", result.Reason)
	// 100 - 40 (device) - 50 (biometric)
	assert.Equal(t, float64(10), result.Score)
}

func TestSecurityCheck_ConditionalChecksSkipped(t *testing.T) {
	issued := time.Now()
	// 低安全等级：设备/生物/位置未要求，即使 stub 全 false 也不参与
	session := highSecuritySession(issued)
	session.Requirements = &SlideRequirements{SecurityLevel: SecurityLevelLow}

	checker := newTestChecker(&stubVerifiers{sessionOK: true})
	result := checker.Check(context.Background(), session, slideDataAt(issued))
	require.True(t, result.Passed)
	_, deviceChecked := result.Checks["device"]
	assert.False(t, deviceChecked)
}

func TestSecurityCheck_InvalidSession(t *testing.T) {
	issued := time.Now()
	checker := newTestChecker(&stubVerifiers{deviceOK: true, biometricOK: true, locationOK: true, sessionOK: false})

	result := checker.Check(context.Background(), highSecuritySession(issued), slideDataAt(issued))
	require.False(t, result.Passed)
	assert.Equal(t, "invalid session", result.Reason)
	assert.Equal(t, float64(40), result.Score)
}

func TestSecurityCheck_VerifierErrorFailsClosed(t *testing.T) {
	issued := time.Now()
	checker := newTestChecker(&stubVerifiers{deviceOK: true, biometricOK: true, locationOK: true,
		sessionOK: true, sessionErr: errors.New("redis down")})

	result := checker.Check(context.Background(), highSecuritySession(issued), slideDataAt(issued))
	require.False(t, result.Passed)
	assert.Equal(t, "invalid session", result.Reason)
}

func TestSecurityCheck_StaleTimestampRejected(t *testing.T) {
	issued := time.Now()
	checker := newTestChecker(&stubVerifiers{deviceOK: true, biometricOK: true, locationOK: true, sessionOK: true})

	t.Run("早于签发超出时钟偏移", func(t *testing.T) {
		result := checker.Check(context.Background(), highSecuritySession(issued), slideDataAt(issued.Add(-10*time.Second)))
		require.False(t, result.Passed)
		assert.Equal(t, "invalid slide timestamp", result.Reason)
		assert.Equal(t, float64(55), result.Score)
	})

	t.Run("超出重放窗口", func(t *testing.T) {
		result := checker.Check(context.Background(), highSecuritySession(issued), slideDataAt(issued.Add(3*time.Minute)))
		require.False(t, result.Passed)
		assert.Equal(t, "invalid slide timestamp", result.Reason)
	})

	t.Run("缺失时间戳", func(t *testing.T) {
		data := slideDataAt(issued)
		data.ClientTimestamp = 0
		result := checker.Check(context.Background(), highSecuritySession(issued), data)
		require.False(t, result.Passed)
	})
}
