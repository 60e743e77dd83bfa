package hostdiag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeASICMissingDevice(t *testing.T) {
	present, reason := probeASIC(filepath.Join(t.TempDir(), "nope"))
	assert.False(t, present)
	assert.NotEmpty(t, reason)
}

func TestProbeASICPresentDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitmain-asic")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	present, reason := probeASIC(path)
	assert.True(t, present)
	assert.Empty(t, reason)
}

func TestReportString(t *testing.T) {
	r := Report{ASICPresent: true, ASICPath: "/dev/bitmain-asic"}
	assert.Contains(t, r.String(), "asic_present=true")
}
