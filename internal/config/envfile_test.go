package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFileRespectsExistingValues(t *testing.T) {
	isolateEnv(t)
	envPath := filepath.Join(t.TempDir(), "mirrorhub.env")
	content := "# comment\nexport FOO_MH=bar\nQUOTED_MH=\"hello world\"\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	t.Setenv("MIRRORHUB_ENV_FILE", envPath)
	t.Setenv("FOO_MH", "existing")
	t.Setenv("QUOTED_MH", "")
	os.Unsetenv("QUOTED_MH")

	LoadEnvFileCandidates()

	assert.Equal(t, "existing", os.Getenv("FOO_MH"))
	assert.Equal(t, "hello world", os.Getenv("QUOTED_MH"))
}

func TestEnvFileCandidatesOrder(t *testing.T) {
	home := isolateEnv(t)
	t.Setenv("MIRRORHUB_ENV_FILE", "/etc/mirrorhub.env")

	got := EnvFileCandidates()
	require.Len(t, got, 4)
	assert.Equal(t, "/etc/mirrorhub.env", got[0])
	assert.Equal(t, filepath.Join(home, ".config", "mirrorhub", "env"), got[1])
	assert.Equal(t, ".env", got[3])
}
