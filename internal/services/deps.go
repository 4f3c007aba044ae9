package services

import (
	"context"
	"log/slog"

	"github.com/juju/clock"

	"github.com/baharkarakas/pixelmart/internal/fees"
	"github.com/baharkarakas/pixelmart/internal/gateway"
	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/repository"
	"github.com/baharkarakas/pixelmart/internal/worker"
)

// Deps are the collaborators shared by every service. Pool may be nil, in
// which case audit entries are written inline.
type Deps struct {
	Repos    repository.Repositories
	Gateway  gateway.Gateway
	Fees     fees.Calculator
	Clock    clock.Clock
	Pool     *worker.Pool
	Logger   *slog.Logger
	Currency string
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Fees == (fees.Calculator{}) {
		d.Fees = fees.Default()
	}
	return d
}

// ----------------- Audit -----------------

// audit records a secondary bookkeeping entry after the primary change has
// committed. Failures are logged by the pool and never reach the caller.
func (d Deps) audit(entityType, entityID, action string, details map[string]any) {
	entry := models.AuditLog{
		EntityType: entityType,
		EntityID:   &entityID,
		Action:     action,
		Details:    details,
	}
	task := func(ctx context.Context) error { return d.Repos.AuditLogs.Create(ctx, entry) }
	if d.Pool != nil && d.Pool.Submit("audit."+action, task) {
		return
	}
	if err := task(context.Background()); err != nil {
		d.Logger.Warn("audit write failed", "entity", entityType, "id", entityID, "action", action, "err", err)
	}
}
