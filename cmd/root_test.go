package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"brokeradmin/core"
	"brokeradmin/service"
	"brokeradmin/storage"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	cliSysadminEmail    = "root@example.com"
	cliSysadminPassword = "Sysadm1n-Passw0rd!"
)

// setupCLI points the configuration at a fresh database and returns an empty config dir.
func setupCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("BROKERADMIN_AUTH_JWT_SECRET", "k9f2Lq8ZrT4vWx7YbN3mPc6HdJ5sGa1E")
	t.Setenv("BROKERADMIN_STORAGE_SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("BROKERADMIN_BOOTSTRAP_SYSADMIN_EMAIL", cliSysadminEmail)
	t.Setenv("BROKERADMIN_BOOTSTRAP_SYSADMIN_PASSWORD", cliSysadminPassword)
	return t.TempDir()
}

func runCLI(t *testing.T, configDir, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", configDir, "--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func findCommand(parent *cobra.Command, name string) *cobra.Command {
	for _, cmd := range parent.Commands() {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func TestRootCommandStructure(t *testing.T) {
	root := NewRootCmd()
	assert.Equal(t, "brokeradmin", root.Use)

	for _, name := range []string{"serve", "admins", "settings", "security", "token"} {
		assert.NotNil(t, findCommand(root, name), "Missing command: %s", name)
	}
	admins := findCommand(root, "admins")
	for _, name := range []string{"list", "get", "create", "delete"} {
		assert.NotNil(t, findCommand(admins, name), "Missing admins command: %s", name)
	}
	settings := findCommand(root, "settings")
	for _, name := range []string{"get", "set", "test-mail"} {
		assert.NotNil(t, findCommand(settings, name), "Missing settings command: %s", name)
	}

	for _, flag := range []string{"json", "yaml", "config", "no-color", "quiet", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "Missing flag: %s", flag)
	}
}

func TestCommandArgValidation(t *testing.T) {
	dir := setupCLI(t)

	_, err := runCLI(t, dir, "", "admins", "get")
	assert.Error(t, err)

	_, err = runCLI(t, dir, "", "admins", "get", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect userId not-a-uuid")
	assert.Contains(t, err.Error(), "BAD_REQUEST_PARAMS")
}

func TestAdminsLifecycle(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, dir, "", "admins", "create", "--email", "ops@example.com", "--password", "secret1", "--first-name", "Ops", "--json")
	require.NoError(t, err)
	var created core.User
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "ops@example.com", created.Email)
	assert.Equal(t, core.AuthoritySysAdmin, created.Authority)

	out, err = runCLI(t, dir, "", "admins", "list", "--json")
	require.NoError(t, err)
	var listed []core.User
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	emails := make([]string, 0, len(listed))
	for _, u := range listed {
		emails = append(emails, u.Email)
	}
	assert.ElementsMatch(t, []string{cliSysadminEmail, "ops@example.com"}, emails)

	out, err = runCLI(t, dir, "", "admins", "list", "--all", "--page-size", "1", "--json")
	require.NoError(t, err)
	listed = nil
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Len(t, listed, 2, "--all drains every page")

	out, err = runCLI(t, dir, "", "admins", "get", created.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "ops@example.com")
	assert.Contains(t, out, "SYS_ADMIN")

	out, err = runCLI(t, dir, "", "admins", "delete", created.ID.String(), "--force", "--json")
	require.NoError(t, err)
	var summary service.DeleteSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, created.ID, summary.UserID)
	assert.Zero(t, summary.Sessions)

	_, err = runCLI(t, dir, "", "admins", "get", created.ID.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ITEM_NOT_FOUND")
}

func TestAdminsDelete_Cancelled(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, dir, "", "admins", "create", "--email", "keep@example.com", "--password", "secret1", "--json")
	require.NoError(t, err)
	var created core.User
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	out, err = runCLI(t, dir, "n\n", "admins", "delete", created.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Deletion cancelled")

	_, err = runCLI(t, dir, "", "admins", "get", created.ID.String())
	assert.NoError(t, err)
}

func TestAdminsDelete_RefusedWhileSessionsExist(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, dir, "", "admins", "create", "--email", "online@example.com", "--password", "secret1", "--json")
	require.NoError(t, err)
	var created core.User
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	db, err := storage.NewSQLite(os.Getenv("BROKERADMIN_STORAGE_SQLITE_PATH"), zap.NewNop().Sugar())
	require.NoError(t, err)
	conns := storage.NewSQLiteWebSocketConnectionStorage(db, zap.NewNop().Sugar())
	_, err = conns.SaveConnection(context.Background(), &core.WebSocketConnection{Name: "dashboard", UserID: created.ID, ClientID: "online-client"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = runCLI(t, dir, "", "admins", "delete", created.ID.String(), "--force", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "held by the running server")

	out, err = runCLI(t, dir, "", "admins", "get", created.ID.String())
	require.NoError(t, err, "the account must survive a refused delete")
	assert.Contains(t, out, "online@example.com")
}

func TestAdminsCreate_Prompts(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, dir, "prompted@example.com\nsecret12\n", "admins", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin created: prompted@example.com")

	_, err = runCLI(t, dir, "", "admins", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email and password are required")
}

func TestSettingsCommands(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, dir, "baseUrl: http://localhost:8080\n", "settings", "set", "general", "--quiet")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = runCLI(t, dir, "", "settings", "get", "general", "--json")
	require.NoError(t, err)
	var got core.AdminSettings
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "http://localhost:8080", got.JSONValue.String("baseUrl"))

	mail := `{"mailFrom":"noreply@example.com","smtpHost":"smtp.example.com","smtpPort":587,"password":"hunter2"}`
	out, err = runCLI(t, dir, mail, "settings", "set", "mail", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")

	out, err = runCLI(t, dir, "", "settings", "get", "mail", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "smtpHost: smtp.example.com")
	assert.NotContains(t, out, "hunter2")

	_, err = runCLI(t, dir, "minimumLength: 8\n", "settings", "set", core.SecuritySettingsKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")

	_, err = runCLI(t, dir, "", "settings", "get", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ITEM_NOT_FOUND")
}

func TestSecurityCommands(t *testing.T) {
	dir := setupCLI(t)

	policy := `{"passwordPolicy":{"minimumLength":10},"maxFailedLoginAttempts":3}`
	_, err := runCLI(t, dir, policy, "security", "set", "--quiet")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "", "security", "get", "--json")
	require.NoError(t, err)
	var got core.SecuritySettings
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 10, got.PasswordPolicy.MinimumLength)
	assert.Equal(t, 3, got.MaxFailedLoginAttempts)

	_, err = runCLI(t, dir, "", "admins", "create", "--email", "weak@example.com", "--password", "short1")
	assert.Error(t, err, "new admins follow the stored password policy")
}

func TestTokenIssue(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, dir, "", "admins", "list", "--search", "root", "--json")
	require.NoError(t, err)
	var listed []core.User
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)

	out, err = runCLI(t, dir, "", "token", "issue", listed[0].ID.String(), "--json")
	require.NoError(t, err)
	var pair core.TokenPair
	require.NoError(t, json.Unmarshal([]byte(out), &pair))
	assert.NotEmpty(t, pair.Token)
	assert.NotEmpty(t, pair.RefreshToken)

	t.Setenv("BROKERADMIN_SECURITY_USER_TOKEN_ACCESS_ENABLED", "false")
	_, err = runCLI(t, dir, "", "token", "issue", listed[0].ID.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
}

func TestReadPayload(t *testing.T) {
	cmd := &cobra.Command{}

	cmd.SetIn(strings.NewReader(`{"a": 1, "nested": {"b": true}}`))
	payload, err := readPayload(cmd, "-")
	require.NoError(t, err)
	assert.Equal(t, float64(1), payload["a"])
	assert.Equal(t, map[string]interface{}{"b": true}, payload["nested"])

	cmd.SetIn(strings.NewReader(""))
	_, err = readPayload(cmd, "-")
	assert.ErrorContains(t, err, "payload is empty")

	cmd.SetIn(strings.NewReader("a: [unterminated"))
	_, err = readPayload(cmd, "-")
	assert.ErrorContains(t, err, "failed to parse payload")

	_, err = readPayload(cmd, "../../etc/passwd")
	assert.ErrorContains(t, err, "path traversal detected")
}

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{"valid relative path", "payload.yaml", ""},
		{"absolute path outside working directory", "/tmp/payload.yaml", "path escapes current directory"},
		{"path traversal", "../../../etc/passwd", "path traversal detected"},
		{"encoded path traversal", "..%2F..%2Fetc%2Fpasswd", "path traversal detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFilePath(tt.path)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestOutputAsYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputAsYAML(&buf, core.TokenPair{Token: "a", RefreshToken: "b"}))
	assert.Equal(t, "refreshToken: b\ntoken: a\n", buf.String())
}

func TestPromptYesNo(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\ny\n", true},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			reader := bufio.NewReader(strings.NewReader(tt.input))
			assert.Equal(t, tt.expected, promptYesNo(reader, io.Discard, "Continue?", false))
		})
	}
}
