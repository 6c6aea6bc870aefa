package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBytesToString(t *testing.T) {
	assert.Equal(t, "", BytesToString(nil))
	assert.Equal(t, "liftlog", BytesToString([]byte("liftlog")))
}

func TestPathExists(t *testing.T) {
	tempDir := t.TempDir()

	exists, err := PathExists(tempDir, true)
	require.NoError(t, err)
	assert.True(t, exists)

	// a dir is not a file
	exists, err = PathExists(tempDir, false)
	require.NoError(t, err)
	assert.False(t, exists)

	filePath := filepath.Join(tempDir, "backup.json")
	require.NoError(t, os.WriteFile(filePath, []byte("{}"), 0o600))

	exists, err = PathExists(filePath, false)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = PathExists(filepath.Join(tempDir, "nope.json"), false)
	require.NoError(t, err)
	assert.False(t, exists)
}
