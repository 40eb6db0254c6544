package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/gounet/config"
	"github.com/sugarme/gounet/shapeinference"
)

func defaultTrace(t *testing.T, h, w int64) *shapeinference.Trace {
	t.Helper()
	trace, err := shapeinference.Plan(config.Default(10), shapeinference.NCHW(1, 3, h, w))
	require.NoError(t, err)
	return trace
}

func TestRows(t *testing.T) {
	rows := Rows(defaultTrace(t, 427, 640))
	require.Len(t, rows, 5+4+1)

	assert.Equal(t, StageRow{Name: "enc4", Channels: 1024, Height: 26, Width: 40}, rows[4])
	assert.Equal(t, "dec0", rows[5].Name)
	assert.Equal(t, shapeinference.Pad{Top: 1}, rows[5].Pad)
	assert.Equal(t, StageRow{Name: "logit", Channels: 10, Height: 427, Width: 640}, rows[9])
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, defaultTrace(t, 128, 128)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2+10)
	assert.True(t, strings.HasPrefix(lines[0], "STAGE"))
	assert.Contains(t, lines[len(lines)-1], "logit")
}

func TestArchitectureChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unet.png")
	require.NoError(t, ArchitectureChart(defaultTrace(t, 64, 96), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
