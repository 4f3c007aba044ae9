// Package sqlitetest opens a migrated throwaway store for tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixelmart/internal/db"
	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/repository"
	"github.com/baharkarakas/pixelmart/internal/repository/sqlite"
)

func New(t testing.TB) repository.Repositories {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "pixelmart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.RunSQLiteMigrations(ctx, sqlDB))
	return sqlite.NewRepositories(sqlDB)
}

// User creates a user; a non-empty payout account makes them payable.
func User(t testing.TB, repos repository.Repositories, name, payoutAccount string) models.User {
	t.Helper()
	u, err := repos.Users.Create(context.Background(), models.User{
		Username:       name,
		Email:          name + "@example.test",
		CustomerHandle: "cus_" + name,
		PayoutAccount:  payoutAccount,
	})
	require.NoError(t, err)
	return u
}

// Item creates a public item owned by owner with a registered price handle.
func Item(t testing.TB, repos repository.Repositories, owner models.User, price int64) models.Item {
	t.Helper()
	it, err := repos.Items.Create(context.Background(), models.Item{
		OwnerID:     owner.ID,
		URL:         "https://img.example.test/" + owner.Username,
		Description: "photo by " + owner.Username,
		Price:       price,
		IsPublic:    true,
		PriceHandle: "price_" + owner.Username,
	})
	require.NoError(t, err)
	return it
}
