package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
)

var tokenTestTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testAccount() *domain.Account {
	return &domain.Account{
		ID:       42,
		Username: "jdoe",
		Email:    "jdoe@example.com",
		IsStaff:  true,
	}
}

func TestNewIssuer_RequiresSigningKey(t *testing.T) {
	_, err := NewIssuer("", "sentinel-identity", time.Hour, nil)
	require.ErrorIs(t, err, ErrMissingSigningKey)
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	clk := clock.NewFake(tokenTestTime)
	issuer, err := NewIssuer("test-signing-key", "sentinel-identity", time.Hour, clk)
	require.NoError(t, err)

	signed, err := issuer.Issue(testAccount())
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := issuer.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, "jdoe", claims.Username)
	require.Equal(t, "jdoe@example.com", claims.Email)
	require.True(t, claims.IsStaff)
	require.Equal(t, "sentinel-identity", claims.Issuer)
	// NumericDate round-trips in the local zone; compare instants, not
	// representations.
	require.True(t, claims.ExpiresAt.Equal(tokenTestTime.Add(time.Hour)))
	require.True(t, claims.IssuedAt.Equal(tokenTestTime))
}

func TestIssuer_Verify_Expired(t *testing.T) {
	clk := clock.NewFake(tokenTestTime)
	issuer, err := NewIssuer("test-signing-key", "sentinel-identity", time.Hour, clk)
	require.NoError(t, err)

	signed, err := issuer.Issue(testAccount())
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	_, err = issuer.Verify(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Verify_WrongKey(t *testing.T) {
	clk := clock.NewFake(tokenTestTime)
	issuer, err := NewIssuer("test-signing-key", "sentinel-identity", time.Hour, clk)
	require.NoError(t, err)

	other, err := NewIssuer("other-signing-key", "sentinel-identity", time.Hour, clk)
	require.NoError(t, err)

	signed, err := issuer.Issue(testAccount())
	require.NoError(t, err)

	_, err = other.Verify(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Verify_Garbage(t *testing.T) {
	issuer, err := NewIssuer("test-signing-key", "sentinel-identity", time.Hour, clock.NewFake(tokenTestTime))
	require.NoError(t, err)

	_, err = issuer.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
