package services

import (
	"context"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

const (
	PartyBuyer  = "buyer"
	PartySeller = "seller"
)

type SettlementQueries struct {
	Deps
}

func NewSettlementQueries(d Deps) *SettlementQueries {
	return &SettlementQueries{Deps: d.withDefaults()}
}

// ForUser lists the settlements userID took part in as party, newest first.
func (q *SettlementQueries) ForUser(ctx context.Context, userID, party string, limit, offset int) ([]models.Settlement, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var (
		out []models.Settlement
		err error
	)
	switch party {
	case PartyBuyer, "":
		out, err = q.Repos.Settlements.ListByBuyer(ctx, userID, limit, offset)
	case PartySeller:
		out, err = q.Repos.Settlements.ListBySeller(ctx, userID, limit, offset)
	default:
		return nil, errors.BadRequestf("role must be %q or %q", PartyBuyer, PartySeller)
	}
	if out == nil {
		out = []models.Settlement{}
	}
	return out, errors.Annotate(err, "listing settlements")
}

// Get returns a settlement to its buyer, one of its paid sellers, or an admin.
func (q *SettlementQueries) Get(ctx context.Context, userID, role, id string) (models.Settlement, error) {
	rec, err := q.Repos.Settlements.GetByID(ctx, id)
	if err != nil {
		return models.Settlement{}, errors.Trace(err)
	}
	if role != models.RoleAdmin && !rec.Involves(userID) {
		return models.Settlement{}, errors.Forbiddenf("settlement %s", id)
	}
	return rec, nil
}

func (q *SettlementQueries) ByCorrelationToken(ctx context.Context, token string) (models.Settlement, error) {
	rec, err := q.Repos.Settlements.GetByCorrelationToken(ctx, token)
	return rec, errors.Trace(err)
}
