package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
)

type EventKind string

const (
	EventAuctionCreated   EventKind = "auction_created"
	EventBidPlaced        EventKind = "bid_placed"
	EventOutbid           EventKind = "outbid"
	EventAuctionCompleted EventKind = "auction_completed"
	EventAuctionCancelled EventKind = "auction_cancelled"
)

// TopicGlobal receives every auction event. Per-auction and per-team
// topics narrow the stream for clients watching a single auction or
// their own team.
const TopicGlobal = "auctions"

func AuctionTopic(auctionID int64) string {
	return fmt.Sprintf("auction.%d", auctionID)
}

func TeamTopic(teamID int64) string {
	return fmt.Sprintf("team.%d", teamID)
}

// ProspectInfo is the subset of prospect fields carried on events so
// subscribers can render notifications without a second lookup.
type ProspectInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
	Level    string `json:"level"`
}

type Event struct {
	ID          string       `json:"id"`
	Kind        EventKind    `json:"kind"`
	AuctionID   int64        `json:"auction_id"`
	AuctionCode string       `json:"auction_code"`
	Prospect    ProspectInfo `json:"prospect"`
	// TeamID is the team the event concerns: the bidder for bid_placed,
	// the displaced leader for outbid, the winner for auction_completed.
	TeamID int64 `json:"team_id,omitempty"`
	Amount int64 `json:"amount,omitempty"`
	// Available is the acting team's uncommitted balance after the event.
	Available  int64     `json:"available,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newEvent(kind EventKind, a *models.Auction, p *models.Prospect, teamID, amount, available int64, now time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		AuctionID:   a.ID,
		AuctionCode: a.Code,
		Prospect: ProspectInfo{
			ID:       p.ID,
			Name:     p.Name,
			Position: p.Position,
			Level:    p.Level,
		},
		TeamID:     teamID,
		Amount:     amount,
		Available:  available,
		OccurredAt: now,
	}
}

// Topics lists every topic this event fans out to.
func (e Event) Topics() []string {
	topics := []string{TopicGlobal, AuctionTopic(e.AuctionID)}
	if e.TeamID != 0 {
		topics = append(topics, TeamTopic(e.TeamID))
	}
	return topics
}
