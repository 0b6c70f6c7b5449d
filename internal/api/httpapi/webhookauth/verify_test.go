package webhookauth

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	now := time.Unix(1_740_000_000, 0)
	v := NewVerifier("whsec", time.Minute)
	v.now = func() time.Time { return now }

	body := []byte(`{"id":"evt_1"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := Sign("whsec", ts, body)

	require.NoError(t, v.Verify(ts, sig, body))
	require.ErrorIs(t, v.Verify(ts, sig, []byte(`{"id":"evt_2"}`)), ErrInvalidSignature)
	require.ErrorIs(t, v.Verify(ts, Sign("other", ts, body), body), ErrInvalidSignature)
	require.ErrorIs(t, v.Verify(ts, "zz", body), ErrInvalidSignature)
	require.ErrorIs(t, v.Verify("yesterday", sig, body), ErrInvalidTimestamp)

	old := strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10)
	require.ErrorIs(t, v.Verify(old, Sign("whsec", old, body), body), ErrTimestampOutsideWindow)
}

func TestVerify_NoSecret(t *testing.T) {
	require.ErrorIs(t, NewVerifier("", 0).Verify("1", "00", nil), ErrNoSecret)
}
