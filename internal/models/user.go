package models

import (
	"strings"
	"time"

	"github.com/juju/errors"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the marketplace account as seen by checkout and settlement.
// CustomerHandle and PayoutAccount are references issued by the payment gateway.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	CustomerHandle string    `json:"-"`
	PayoutAccount  string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u *User) Validate() error {
	if len(strings.TrimSpace(u.Username)) < 3 {
		return errors.BadRequestf("username too short")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.BadRequestf("invalid email")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// CanReceivePayouts reports whether transfers to this user have a destination.
func (u User) CanReceivePayouts() bool { return u.PayoutAccount != "" }
