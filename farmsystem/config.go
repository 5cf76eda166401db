package farmsystem

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pomfarm/farmsystem/farmsystem/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log         LogConfig         `toml:"log"`
	DB          database.DBConfig `toml:"db"`
	Auction     AuctionConfig     `toml:"auction"`
	Eligibility EligibilityConfig `toml:"eligibility"`
	Gateway     GatewayConfig     `toml:"gateway"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	AddSource bool       `toml:"add_source"`
}

type AuctionConfig struct {
	// MinBid is the lowest allowed opening pledge.
	MinBid int64 `toml:"min_bid"`
	// ExpirationMinutes is how long an auction stays open after its most
	// recent bid.
	ExpirationMinutes int `toml:"expiration_minutes"`
	// SweepIntervalSeconds is how often the settlement sweep runs.
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

func (c AuctionConfig) ExpirationWindow() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

func (c AuctionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

type EligibilityConfig struct {
	BattingThreshold   int64   `toml:"batting_threshold"`
	PitchingThreshold  float64 `toml:"pitching_threshold"`
	BaseTagCostBatting int64   `toml:"base_tag_cost_batting"`
	BaseTagCostPitcher int64   `toml:"base_tag_cost_pitcher"`
}

type GatewayConfig struct {
	Addr string `toml:"addr"`
}

func (c *Config) applyDefaults() {
	if c.Auction.MinBid == 0 {
		c.Auction.MinBid = 5
	}
	if c.Auction.ExpirationMinutes == 0 {
		c.Auction.ExpirationMinutes = 1440
	}
	if c.Auction.SweepIntervalSeconds == 0 {
		c.Auction.SweepIntervalSeconds = 15
	}
	if c.Eligibility.BattingThreshold == 0 {
		c.Eligibility.BattingThreshold = 140
	}
	if c.Eligibility.PitchingThreshold == 0 {
		c.Eligibility.PitchingThreshold = 50
	}
	if c.Eligibility.BaseTagCostBatting == 0 {
		c.Eligibility.BaseTagCostBatting = 5
	}
	if c.Eligibility.BaseTagCostPitcher == 0 {
		c.Eligibility.BaseTagCostPitcher = 5
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = ":8090"
	}
}
