package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentials(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCredentials(t *testing.T) {
	file := writeCredentials(t, "# board uploads\nuser=logger\npassword=\"s3cret\"\n")

	tests := []struct {
		name           string
		user, password string
		file           string
		want           Credentials
	}{
		{"nothing", "", "", "", Credentials{}},
		{"flags only", "alice", "pw", "", Credentials{User: "alice", Password: "pw"}},
		{"flags win over file", "alice", "", file, Credentials{User: "alice"}},
		{"file", "", "", file, Credentials{User: "logger", Password: "s3cret"}},
		{"password flag overrides file", "", "other", file, Credentials{User: "logger", Password: "other"}},
		{"file without keys", "", "", writeCredentials(t, "token=abc\n"), Credentials{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadCredentials(tt.user, tt.password, tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	_, err := LoadCredentials("", "", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCredentials_Empty(t *testing.T) {
	assert.True(t, Credentials{}.Empty())
	assert.True(t, Credentials{Password: "x"}.Empty())
	assert.False(t, Credentials{User: "u"}.Empty())
}
