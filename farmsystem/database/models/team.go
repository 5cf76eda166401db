package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DefaultStartingBalance is the POM balance every new team begins with.
const DefaultStartingBalance = 100

type Team struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Name    string `bun:"name,notnull,unique"`
	OwnerID string `bun:"owner_id,notnull,unique"`
	Balance int64  `bun:"balance,notnull,default:100"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// CanAfford reports whether the raw balance covers amount. Commitments on
// open auctions are not considered here; see AvailableBalance.
func (t *Team) CanAfford(amount int64) bool {
	return t.Balance >= amount
}

// AvailableBalance is the uncommitted portion of a balance: what is left
// after subtracting the total a team has pledged as the leading bidder on
// active auctions.
func AvailableBalance(balance, committed int64) int64 {
	return balance - committed
}
