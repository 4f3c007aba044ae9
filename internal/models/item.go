package models

import "time"

// Item is a sellable image. Prices are in minor currency units.
type Item struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	OriginalUser string    `json:"original_user,omitempty"`
	URL          string    `json:"url"`
	Description  string    `json:"description,omitempty"`
	Price        int64     `json:"price"`
	IsPublic     bool      `json:"is_public"`
	IsDeleted    bool      `json:"-"`
	PriceHandle  string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Chargeable reports whether the item may appear in a paid checkout.
func (i Item) Chargeable() bool { return i.Price > 0 && !i.IsDeleted }

// VisibleTo reports whether userID may see (and therefore buy) the item.
func (i Item) VisibleTo(userID string) bool {
	if i.IsDeleted {
		return false
	}
	return i.IsPublic || i.OwnerID == userID
}

// OwnershipCopy returns the buyer-owned copy handed out when the item is sold.
// The copy is free, private, carries no price handle and points back at the seller.
func (i Item) OwnershipCopy(buyerID string) Item {
	return Item{
		OwnerID:      buyerID,
		OriginalUser: i.OwnerID,
		URL:          i.URL,
		Description:  i.Description,
		Price:        0,
		IsPublic:     false,
	}
}
