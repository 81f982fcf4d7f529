package cli

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~jakintosh/idtoken/pkg/idtokentest"
)

const (
	testEmail    = "svc@idtoken-test.iam.gserviceaccount.com"
	testAudience = "https://service.example.com"
)

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func setup(t *testing.T) (*idtokentest.Server, string) {
	t.Helper()
	srv := idtokentest.NewTestServer(t)
	path := idtokentest.WriteTestKeyFile(t, srv.NewKeyFile(testEmail, idtokentest.SharedKey()))
	return srv, path
}

func TestExecuteSuccess(t *testing.T) {
	srv, keyFile := setup(t)

	code, stdout, stderr := execute(
		"--keyfile", keyFile,
		"--audience", testAudience,
		"--tokeninfo-url", srv.TokenInfoURL(),
	)

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "JWT Payload:")
	assert.Contains(t, stdout, "Signed Assertion:")
	assert.Contains(t, stdout, "Token Response:")
	assert.Contains(t, stdout, "Token Info:")
	assert.Equal(t, 1, srv.TokenInfoCalls())
}

func TestExecuteSkipTokenInfo(t *testing.T) {
	srv, keyFile := setup(t)

	code, stdout, stderr := execute(
		"--keyfile", keyFile,
		"--audience", testAudience,
		"--tokeninfo-url", srv.TokenInfoURL(),
		"--skip-tokeninfo",
	)

	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stdout, "Token Info:")
	assert.Equal(t, 0, srv.TokenInfoCalls())
}

func TestExecuteFromEnvironment(t *testing.T) {
	srv, keyFile := setup(t)
	t.Setenv("IDTOKEN_KEYFILE", keyFile)
	t.Setenv("IDTOKEN_AUDIENCE", testAudience)
	t.Setenv("IDTOKEN_TOKENINFO_URL", srv.TokenInfoURL())

	code, stdout, stderr := execute()

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Token Info:")
}

func TestExecuteFromConfigFile(t *testing.T) {
	srv, keyFile := setup(t)
	config := "keyfile: " + keyFile + "\n" +
		"audience: " + testAudience + "\n" +
		"tokeninfo-url: " + srv.TokenInfoURL() + "\n"
	configPath := filepath.Join(t.TempDir(), "idtoken.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0600))

	code, stdout, stderr := execute("--config", configPath)

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Token Info:")
}

func TestExecuteFlagOverridesEnvironment(t *testing.T) {
	srv, keyFile := setup(t)
	t.Setenv("IDTOKEN_KEYFILE", filepath.Join(t.TempDir(), "wrong.json"))

	code, _, stderr := execute(
		"--keyfile", keyFile,
		"--audience", testAudience,
		"--tokeninfo-url", srv.TokenInfoURL(),
	)

	assert.Equal(t, 0, code, stderr)
}

func TestExecuteUsageErrors(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		message string
	}{
		{"no arguments", nil, "--keyfile is required"},
		{"no audience", []string{"--keyfile", "key.json"}, "--audience is required"},
		{"unknown flag", []string{"--frobnicate"}, "unknown flag"},
		{"positional argument", []string{"key.json"}, "unknown command"},
		{"bad log level", []string{"--keyfile", "k", "--audience", "a", "--log-level", "loud"}, "--log-level"},
		{"bad timeout", []string{"--keyfile", "k", "--audience", "a", "--timeout", "0s"}, "--timeout must be positive"},
		{"keyfile and p12", []string{"--keyfile", "k", "--p12", "p", "--client-email", "e", "--audience", "a"}, "cannot be combined"},
		{"p12 without email", []string{"--p12", "p", "--audience", "a"}, "--client-email is required"},
		{"missing config file", []string{"--config", "/no/such/idtoken.yaml"}, "read config file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, stderr := execute(tc.args...)

			assert.Equal(t, exitUsage, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tc.message)
			assert.Contains(t, stderr, "Usage:")
		})
	}
}

func TestExecuteKeyFileNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")

	code, stdout, stderr := execute("--keyfile", missing, "--audience", testAudience)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: key file not found at '"+missing+"'")
	assert.NotContains(t, stderr, "Stack Trace:")
}

func TestExecuteTokenEndpointRejects(t *testing.T) {
	srv, keyFile := setup(t)
	srv.RespondToken(http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`)

	code, stdout, stderr := execute(
		"--keyfile", keyFile,
		"--audience", testAudience,
		"--tokeninfo-url", srv.TokenInfoURL(),
	)

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Signed Assertion:")
	assert.NotContains(t, stdout, "Token Response:")
	assert.Contains(t, stderr, "An error occurred (HttpStatusError)")
	assert.Contains(t, stderr, "invalid_grant")
	assert.Contains(t, stderr, "Stack Trace:")
	assert.Equal(t, 0, srv.TokenInfoCalls())
}

func TestExecuteDebugLogging(t *testing.T) {
	srv, keyFile := setup(t)

	code, _, stderr := execute(
		"--keyfile", keyFile,
		"--audience", testAudience,
		"--tokeninfo-url", srv.TokenInfoURL(),
		"--log-level", "debug",
	)

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "signing assertion")
	assert.Contains(t, stderr, "redeeming assertion")
}

func TestLoadConfigDefaults(t *testing.T) {
	cmd := NewRootCommand(&bytes.Buffer{}, &bytes.Buffer{})
	v := viper.New()
	require.NoError(t, bindFlags(v, cmd.Flags()))
	v.Set(KeyFileFlag, "key.json")
	v.Set(AudienceFlag, testAudience)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "key.json", cfg.KeyFile)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "https://www.googleapis.com/oauth2/v3/tokeninfo", cfg.TokenInfoURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.SkipTokenInfo)
}
