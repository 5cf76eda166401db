// Package eligibility tracks how much major-league playing time a
// prospect has accrued and whether they still qualify for a farm system.
// Teams can pay POM to tag a prospect, raising the usage threshold at a
// cost that doubles with each tag.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
)

const lookupCacheSize = 512

// Bases holds the per-role eligibility constants. Thresholds grow
// linearly with tags while tag costs double.
type Bases struct {
	BattingThreshold   int64
	PitchingThreshold  float64
	BaseTagCostBatting int64
	BaseTagCostPitcher int64
}

func DefaultBases() Bases {
	return Bases{
		BattingThreshold:   140,
		PitchingThreshold:  50,
		BaseTagCostBatting: 5,
		BaseTagCostPitcher: 5,
	}
}

// UsageLookup resolves a prospect's current major-league usage from an
// external stats source. The bool reports whether the prospect was
// found; not found is not an error.
type UsageLookup func(ctx context.Context, name string, dateOfBirth time.Time, pitcher bool) (float64, bool, error)

// Status is a point-in-time eligibility report for one prospect.
type Status struct {
	ProspectID  int64   `json:"prospect_id"`
	Name        string  `json:"name"`
	Pitcher     bool    `json:"pitcher"`
	Usage       float64 `json:"usage"`
	Threshold   float64 `json:"threshold"`
	TagsApplied int     `json:"tags_applied"`
	Eligible    bool    `json:"eligible"`
	NextTagCost int64   `json:"next_tag_cost"`
}

type Tracker struct {
	prospects repositories.ProspectRepository
	bases     Bases
	lookup    UsageLookup
	cache     *lru.Cache
}

func NewTracker(prospects repositories.ProspectRepository, bases Bases, lookup UsageLookup) (*Tracker, error) {
	cache, err := lru.New(lookupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup cache: %w", err)
	}
	return &Tracker{
		prospects: prospects,
		bases:     bases,
		lookup:    lookup,
		cache:     cache,
	}, nil
}

// Threshold returns the usage ceiling for a prospect given their tag
// count: the role base plus one base per tag.
func (t *Tracker) Threshold(p *models.Prospect) float64 {
	tags := float64(p.TagsApplied)
	if p.IsPitcher() {
		return t.bases.PitchingThreshold + t.bases.PitchingThreshold*tags
	}
	return float64(t.bases.BattingThreshold) + float64(t.bases.BattingThreshold)*tags
}

// NextTagCost is the POM price of the prospect's next tag. Costs double
// with every tag already applied.
func (t *Tracker) NextTagCost(p *models.Prospect) int64 {
	base := t.bases.BaseTagCostBatting
	if p.IsPitcher() {
		base = t.bases.BaseTagCostPitcher
	}
	return base << uint(p.TagsApplied)
}

// IsEligible reports whether the prospect's usage is still under their
// threshold.
func (t *Tracker) IsEligible(p *models.Prospect) bool {
	return p.Usage() < t.Threshold(p)
}

func (t *Tracker) StatusFor(p *models.Prospect) Status {
	return Status{
		ProspectID:  p.ID,
		Name:        p.Name,
		Pitcher:     p.IsPitcher(),
		Usage:       p.Usage(),
		Threshold:   t.Threshold(p),
		TagsApplied: p.TagsApplied,
		Eligible:    t.IsEligible(p),
		NextTagCost: t.NextTagCost(p),
	}
}

func (t *Tracker) EligibilityStatus(ctx context.Context, prospectID int64) (*Status, error) {
	prospect, err := t.prospects.GetByID(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	status := t.StatusFor(prospect)
	return &status, nil
}

// Tag applies one tag to a prospect on behalf of the owning team,
// charging the doubling cost against the team's balance. Pricing happens
// inside the repository's mutual-exclusion boundary, against the tag
// count actually incremented, so concurrent tags cannot both pay the
// lower price.
func (t *Tracker) Tag(ctx context.Context, prospectID, teamID int64) (*Status, error) {
	tagged, err := t.prospects.ApplyTag(ctx, prospectID, teamID, t.NextTagCost, time.Now())
	if err != nil {
		return nil, err
	}

	prior := *tagged
	prior.TagsApplied--
	cost := t.NextTagCost(&prior)

	slog.Info("Tag applied",
		slog.String("type", "eligibility"),
		slog.String("prospect", tagged.Name),
		slog.Int64("team_id", teamID),
		slog.Int64("cost", cost),
		slog.Int("tags_applied", tagged.TagsApplied))

	status := t.StatusFor(tagged)
	return &status, nil
}

// RefreshUsage pulls the prospect's latest usage from the stats source
// and stores it. Lookups are cached so a league-wide refresh does not
// hammer the source for prospects checked recently.
func (t *Tracker) RefreshUsage(ctx context.Context, prospectID int64) (*Status, error) {
	prospect, err := t.prospects.GetByID(ctx, prospectID)
	if err != nil {
		return nil, err
	}
	if t.lookup == nil {
		status := t.StatusFor(prospect)
		return &status, nil
	}

	key := lookupKey(prospect)
	var usage float64
	if cached, ok := t.cache.Get(key); ok {
		usage = cached.(float64)
	} else {
		found := false
		usage, found, err = t.lookup(ctx, prospect.Name, prospect.DateOfBirth, prospect.IsPitcher())
		if err != nil {
			return nil, fmt.Errorf("usage lookup for %s: %w", prospect.Name, err)
		}
		if !found {
			status := t.StatusFor(prospect)
			return &status, nil
		}
		t.cache.Add(key, usage)
	}

	if prospect.IsPitcher() {
		err = t.prospects.UpdateUsage(ctx, prospect.ID, prospect.AtBats, usage)
		prospect.InningsPitched = usage
	} else {
		err = t.prospects.UpdateUsage(ctx, prospect.ID, int64(usage), prospect.InningsPitched)
		prospect.AtBats = int64(usage)
	}
	if err != nil {
		return nil, err
	}

	status := t.StatusFor(prospect)
	return &status, nil
}

// InvalidateLookup drops a prospect's cached usage so the next refresh
// hits the source.
func (t *Tracker) InvalidateLookup(p *models.Prospect) {
	t.cache.Remove(lookupKey(p))
}

func lookupKey(p *models.Prospect) string {
	return fmt.Sprintf("%s|%s|%t", p.Name, p.DateOfBirth.Format("2006-01-02"), p.IsPitcher())
}
