package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateEnabled(t *testing.T) {
	assert.True(t, NewGate("secret-word", "signing-key", time.Hour).Enabled())
	assert.False(t, NewGate("", "signing-key", time.Hour).Enabled())
}

func TestGateCheckPassword(t *testing.T) {
	gate := NewGate("secret-word", "signing-key", time.Hour)

	assert.True(t, gate.CheckPassword("secret-word"))
	assert.False(t, gate.CheckPassword("wrong"))
	assert.False(t, gate.CheckPassword(""))
}

func TestGateIssueAndVerify(t *testing.T) {
	gate := NewGate("secret-word", "signing-key", time.Hour)

	session, err := gate.Issue(0)
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	expiry := time.Unix(session.ExpiresAt, 0)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, time.Minute)

	require.NoError(t, gate.Verify(session.Token))
}

func TestGateVerifyRejectsOtherSecret(t *testing.T) {
	gate := NewGate("secret-word", "signing-key", time.Hour)
	other := NewGate("secret-word", "different-key", time.Hour)

	session, err := gate.Issue(time.Hour)
	require.NoError(t, err)

	assert.Error(t, other.Verify(session.Token))
}

func TestGateVerifyRejectsExpiredToken(t *testing.T) {
	gate := NewGate("secret-word", "signing-key", time.Hour)

	session, err := gate.Issue(time.Millisecond)
	require.NoError(t, err)

	// jwt/v5 validates exp with zero leeway by default.
	time.Sleep(5 * time.Millisecond)
	assert.Error(t, gate.Verify(session.Token))
}

func TestGateVerifyRejectsGarbage(t *testing.T) {
	gate := NewGate("secret-word", "signing-key", time.Hour)
	assert.Error(t, gate.Verify("not-a-token"))
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"hours", `"2h"`, 2 * time.Hour, false},
		{"minutes", `"30m"`, 30 * time.Minute, false},
		{"composite", `"1h30m"`, 90 * time.Minute, false},
		{"seconds number", `3600`, time.Hour, false},
		{"zero string defaults later", `"0"`, 0, false},
		{"days rejected", `"2d"`, 0, true},
		{"plain word rejected", `"soon"`, 0, true},
		{"bool rejected", `true`, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalJSON([]byte(tc.input))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Duration)
		})
	}
}
