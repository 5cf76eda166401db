// Package bidderrors defines the error taxonomy shared by the bidding
// domain, the ledger, and both store implementations.
package bidderrors

import (
	"errors"
	"fmt"
)

// Lookup errors
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrProspectNotFound = errors.New("prospect not found")
	ErrTeamNotFound     = errors.New("team not found")
)

// Validation errors
var (
	ErrInvalidNomination = errors.New("invalid nomination")
	ErrProspectOwned     = errors.New("prospect already owned by a team")
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrBidTooLow         = errors.New("bid must be higher than current bid")
	ErrSelfOutbid        = errors.New("team is already the highest bidder")
	ErrInsufficientFunds = errors.New("insufficient POM balance")
)

// InsufficientFundsError carries the numeric breakdown a client needs to
// render actionable feedback: how much the team holds, how much of that is
// committed on other active auctions, and what was requested.
type InsufficientFundsError struct {
	Balance   int64
	Committed int64
	Requested int64
}

func NewInsufficientFunds(balance, committed, requested int64) *InsufficientFundsError {
	return &InsufficientFundsError{
		Balance:   balance,
		Committed: committed,
		Requested: requested,
	}
}

// Available is the uncommitted balance at the time of the failed check.
func (e *InsufficientFundsError) Available() int64 {
	return e.Balance - e.Committed
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient POM balance: requested %d, balance %d, committed %d, available %d",
		e.Requested, e.Balance, e.Committed, e.Available())
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}
