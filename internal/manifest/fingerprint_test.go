package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStableAndContentSensitive(t *testing.T) {
	m := &Manifest{
		Name:    ScopeName{Scope: "acme", Name: "app"},
		Version: "1.0.0",
		Target:  Target{Environment: TargetLuau},
	}

	fp1, err := m.Fingerprint()
	require.NoError(t, err)
	fp2, err := m.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "fingerprint must be stable across calls")

	m.Version = "1.0.1"
	fp3, err := m.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3, "changing manifest content must change the fingerprint")
}
