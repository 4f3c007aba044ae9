package services

import (
	"context"
	"strconv"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/api/validate"
	"github.com/baharkarakas/pixelmart/internal/gateway"
	"github.com/baharkarakas/pixelmart/internal/models"
)

type PriceUpdate struct {
	ID    string `json:"id"`
	Price int64  `json:"price"`
}

// ItemService covers the owner-side listing operations checkout depends on.
type ItemService struct {
	Deps
}

func NewItemService(d Deps) *ItemService {
	return &ItemService{Deps: d.withDefaults()}
}

func (s *ItemService) ListOwned(ctx context.Context, ownerID string) ([]models.Item, error) {
	items, err := s.Repos.Items.ListByOwner(ctx, ownerID)
	if items == nil {
		items = []models.Item{}
	}
	return items, errors.Annotate(err, "listing items")
}

// UpdatePrices sets prices on the owner's items. A positive price registers a
// fresh price handle with the gateway; zero unlists the item.
func (s *ItemService) UpdatePrices(ctx context.Context, ownerID string, updates []PriceUpdate) ([]models.Item, error) {
	var errs validate.Errs
	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
		errs.Add(
			validate.Required("id", u.ID),
			validate.MinInt("price["+strconv.Itoa(i)+"]", u.Price, 0),
		)
	}
	errs.Add(validate.NonEmpty("prices", len(updates)), validate.Unique("id", ids))
	if err := errs.Err(); err != nil {
		return nil, err
	}

	items, err := s.owned(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.Item, 0, len(updates))
	for _, u := range updates {
		it := items[u.ID]
		handle := ""
		if u.Price > 0 {
			handle, err = s.Gateway.RegisterPrice(ctx, gateway.PriceRequest{
				ItemID:      it.ID,
				OwnerID:     ownerID,
				Description: it.Description,
				Amount:      u.Price,
				Currency:    s.Currency,
			})
			if err != nil {
				return nil, errors.Annotatef(err, "registering price for item %s", it.ID)
			}
		}
		if err := s.Repos.Items.UpdatePrice(ctx, it.ID, u.Price, handle); err != nil {
			return nil, err
		}
		it.Price, it.PriceHandle = u.Price, handle
		out = append(out, it)
		s.audit(models.AuditEntityItem, it.ID, "price_updated", map[string]any{"price": u.Price})
	}
	return out, nil
}

func (s *ItemService) SetVisibility(ctx context.Context, ownerID string, ids []string, isPublic bool) (int64, error) {
	if err := s.checkIDs(ids); err != nil {
		return 0, err
	}
	if _, err := s.owned(ctx, ownerID, ids); err != nil {
		return 0, err
	}
	n, err := s.Repos.Items.SetVisibility(ctx, ownerID, ids, isPublic)
	return n, errors.Trace(err)
}

// Delete soft-deletes the owner's items. Records of past sales keep pointing
// at them.
func (s *ItemService) Delete(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if err := s.checkIDs(ids); err != nil {
		return 0, err
	}
	if _, err := s.owned(ctx, ownerID, ids); err != nil {
		return 0, err
	}
	n, err := s.Repos.Items.SoftDelete(ctx, ownerID, ids)
	if err != nil {
		return 0, errors.Trace(err)
	}
	for _, id := range ids {
		s.audit(models.AuditEntityItem, id, "deleted", nil)
	}
	return n, nil
}

func (s *ItemService) checkIDs(ids []string) error {
	var errs validate.Errs
	errs.Add(validate.NonEmpty("ids", len(ids)), validate.Unique("ids", ids))
	for _, id := range ids {
		errs.Add(validate.Required("ids", id))
	}
	return errs.Err()
}

// owned loads ids and requires each to be a live item of ownerID.
func (s *ItemService) owned(ctx context.Context, ownerID string, ids []string) (map[string]models.Item, error) {
	found, err := s.Repos.Items.GetMany(ctx, ids)
	if err != nil {
		return nil, errors.Annotate(err, "loading items")
	}
	for _, id := range ids {
		it, ok := found[id]
		if !ok || it.IsDeleted || !it.VisibleTo(ownerID) {
			return nil, errors.NotFoundf("item %s", id)
		}
		if it.OwnerID != ownerID {
			return nil, errors.Forbiddenf("item %s belongs to another user", id)
		}
	}
	return found, nil
}
