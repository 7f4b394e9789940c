package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "GITHUB_TOKEN", EnvName("github_token"))
	assert.Equal(t, "GITHUB_WEBHOOK_SECRET", EnvName("github-webhook.secret"))
}

func TestEnvProviderReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COMMITGATE_TEST_FROM_FILE=filevalue\n"), 0600))
	t.Setenv("COMMITGATE_TEST_FROM_FILE", "")
	os.Unsetenv("COMMITGATE_TEST_FROM_FILE")

	p, err := NewEnvProvider(envFile)
	require.NoError(t, err)

	v, err := p.GetSecret(context.Background(), "commitgate_test_from_file")
	require.NoError(t, err)
	assert.Equal(t, "filevalue", v)
}

func TestEnvProviderDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COMMITGATE_TEST_PRECEDENCE=file\n"), 0600))
	t.Setenv("COMMITGATE_TEST_PRECEDENCE", "process")

	p, err := NewEnvProvider(envFile)
	require.NoError(t, err)

	v, err := p.GetSecret(context.Background(), "commitgate_test_precedence")
	require.NoError(t, err)
	assert.Equal(t, "process", v)
}

func TestEnvProviderMissingFileIsFine(t *testing.T) {
	_, err := NewEnvProvider(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "github_token"), []byte("ghp_abc\n"), 0600))
	p := NewDirProvider(dir)

	v, err := p.GetSecret(context.Background(), "github_token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", v)

	_, err = p.GetSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.GetSecret(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestChainFallsThrough(t *testing.T) {
	c := Chain{Static{"a": "1"}, Static{"b": "2"}}

	v, err := c.GetSecret(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, err = c.GetSecret(context.Background(), "c")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingProvider struct{}

func (failingProvider) GetSecret(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}

func TestChainStopsOnHardError(t *testing.T) {
	c := Chain{failingProvider{}, Static{"a": "1"}}
	_, err := c.GetSecret(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestRequire(t *testing.T) {
	p := Static{"webhook": "s3cret", "token": "t", "blank": "  "}

	got, err := Require(context.Background(), p, "webhook", "token")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got["webhook"])

	_, err = Require(context.Background(), p, "webhook", "absent")
	var rerr *RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "absent", rerr.Name)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Require(context.Background(), p, "blank")
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "blank", rerr.Name)
}
