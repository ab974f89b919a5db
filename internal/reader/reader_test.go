package reader

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/tyrven/vitalsd/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestSysfsRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	oldRoot := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() {
		sysfsRoot = oldRoot
	})

	return root
}

func setTestProcRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	oldRoot := procRoot
	procRoot = root
	t.Cleanup(func() {
		procRoot = oldRoot
	})

	return root
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestForCoversEveryMetric(t *testing.T) {
	for _, id := range metric.All() {
		r, ok := For(id)
		require.True(t, ok, "no reader for %s", id)
		assert.Equal(t, id, r.Metric())
	}

	_, ok := For(metric.ID("bogus"))
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, metric.StatusUnsupported, classify(fs.ErrNotExist).Status())
	assert.Equal(t, metric.StatusAccessDenied, classify(fs.ErrPermission).Status())
	assert.Equal(t, metric.StatusFailed, classify(fs.ErrClosed).Status())

	// Wrapped causes classify the same way
	_, err := os.ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, metric.StatusUnsupported, classify(err).Status())
}
