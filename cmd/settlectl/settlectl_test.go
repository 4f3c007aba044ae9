package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixelmart/internal/auth"
	"github.com/baharkarakas/pixelmart/internal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteEnv(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "ctl.db"))
	t.Setenv("GATEWAY", "fake")
	t.Setenv("LOG_LEVEL", "error")
}

func TestTokenCommand(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("JWT_SECRET", "ctl-secret")

	out, err := execute(t, "token", "--user", "ops-1")
	require.NoError(t, err)

	tm := auth.NewTokenManager("pixelmart", "ctl-secret", "unused", time.Minute, time.Minute)
	claims, err := tm.ParseAccess(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = execute(t, "token")
	assert.ErrorContains(t, err, "--user")
	_, err = execute(t, "token", "--user", "x", "--role", "root")
	assert.ErrorContains(t, err, "unknown role")
}

func TestOutstandingEmpty(t *testing.T) {
	sqliteEnv(t)
	out, err := execute(t, "outstanding")
	require.NoError(t, err)
	assert.Contains(t, out, "no outstanding settlements")

	out, err = execute(t, "outstanding", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestReconcileArgs(t *testing.T) {
	sqliteEnv(t)
	_, err := execute(t, "reconcile")
	assert.ErrorContains(t, err, "--all")
	_, err = execute(t, "reconcile", "abc", "--all")
	assert.ErrorContains(t, err, "not both")

	_, err = execute(t, "reconcile", "missing")
	assert.ErrorContains(t, err, "not found")

	out, err := execute(t, "reconcile", "--all")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestShowArgs(t *testing.T) {
	sqliteEnv(t)
	_, err := execute(t, "show")
	assert.ErrorContains(t, err, "--token")
	_, err = execute(t, "show", "--token", "tg_nope")
	assert.ErrorContains(t, err, "not found")
}
