package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Player positions. Pitchers track usage in innings pitched, everyone else
// in at-bats.
const (
	PositionPitcher   = "P"
	PositionCatcher   = "C"
	PositionFirstBase = "1B"
	PositionSecond    = "2B"
	PositionThirdBase = "3B"
	PositionShortstop = "SS"
	PositionOutfield  = "OF"
	PositionUtility   = "UTIL"
)

// Minor-league levels.
const (
	LevelRookie = "ROK"
	LevelA      = "A"
	LevelAPlus  = "A+"
	LevelAA     = "AA"
	LevelAAA    = "AAA"
	LevelMLB    = "MLB"
)

type Prospect struct {
	bun.BaseModel `bun:"table:prospects,alias:p"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,notnull"`
	Position     string    `bun:"position,notnull"`
	Organization string    `bun:"organization,notnull"`
	Level        string    `bun:"level,notnull"`
	DateOfBirth  time.Time `bun:"date_of_birth,notnull"`
	ETA          int       `bun:"eta,notnull"`

	// Eligibility tracking
	AtBats         int64     `bun:"at_bats,notnull,default:0"`
	InningsPitched float64   `bun:"innings_pitched,notnull,default:0"`
	TagsApplied    int       `bun:"tags_applied,notnull,default:0"`
	LastTaggedAt   time.Time `bun:"last_tagged_at,nullzero"`
	LastTaggedByID int64     `bun:"last_tagged_by_id,nullzero"`

	// Farm system ownership. TeamID zero means unowned/available.
	TeamID     int64     `bun:"team_id,nullzero"`
	AcquiredAt time.Time `bun:"acquired_at,nullzero"`

	CreatedByID int64     `bun:"created_by_id,nullzero"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// IsAvailable reports whether the prospect can be nominated (not on any
// team's farm system).
func (p *Prospect) IsAvailable() bool {
	return p.TeamID == 0
}

func (p *Prospect) IsPitcher() bool {
	return p.Position == PositionPitcher
}

// Usage returns the role-relevant usage counter: innings pitched for
// pitchers, at-bats for everyone else.
func (p *Prospect) Usage() float64 {
	if p.IsPitcher() {
		return p.InningsPitched
	}
	return float64(p.AtBats)
}

// Age returns the prospect's decimal age at the given date, rounded to two
// places.
func (p *Prospect) Age(today time.Time) float64 {
	years := today.Year() - p.DateOfBirth.Year()
	months := (int(today.Month()) - int(p.DateOfBirth.Month())) % 12
	if months < 0 {
		months += 12
	}
	if int(today.Month()) < int(p.DateOfBirth.Month()) ||
		(today.Month() == p.DateOfBirth.Month() && today.Day() < p.DateOfBirth.Day()) {
		years--
		months = (12 + int(today.Month()) - int(p.DateOfBirth.Month())) % 12
	}
	age := float64(years) + float64(months)/12.0
	return float64(int(age*100+0.5)) / 100
}
