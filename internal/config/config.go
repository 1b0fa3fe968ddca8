package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string

	// API key for the YouTube Data API. Absence disables the YouTube
	// adapter only; Twitch sides keep working.
	YouTubeAPIKey string

	RedisURL    string
	DatabaseURL string

	SettingsFile string

	ShutdownTimeoutSec int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		ShutdownTimeoutSec: 10,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.YouTubeAPIKey = strings.TrimSpace(os.Getenv("GCC_API_KEY"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.SettingsFile = strings.TrimSpace(os.Getenv("SETTINGS_FILE"))

	if v := strings.TrimSpace(os.Getenv("SHUTDOWN_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ShutdownTimeoutSec = n
		}
	}

	return cfg, nil
}

// Platform identifies a chat source for one side of the board.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
	// PlatformSelf means the side has no external voting; the engine
	// falls back to a random legal move every turn.
	PlatformSelf Platform = "self"
)

type Strategy string

const (
	StrategyMostVotes      Strategy = "mostVotes"
	StrategyWeightedRandom Strategy = "weightedRandom"
	StrategyRandom         Strategy = "random"
)

type Restriction string

const (
	RestrictionNone          Restriction = "noRestriction"
	RestrictionOnePerUser    Restriction = "1VotePerUser"
	RestrictionUniquePerMove Restriction = "uniqueVotesPerUser"
)

type SideSettings struct {
	Platform Platform `yaml:"platform"`
	Channel  string   `yaml:"channel"`
}

// Settings is the immutable-per-turn configuration bag for one game.
type Settings struct {
	MoveSelection   Strategy     `yaml:"moveSelection"`
	VoteRestriction Restriction  `yaml:"voteRestriction"`
	SecondsPerMove  int          `yaml:"secondsPerMove"`
	White           SideSettings `yaml:"white"`
	Black           SideSettings `yaml:"black"`
}

var (
	ErrIncompleteSettings = errors.New("incomplete game settings")
)

func DefaultSettings() Settings {
	return Settings{
		MoveSelection:   StrategyMostVotes,
		VoteRestriction: RestrictionNone,
		SecondsPerMove:  30,
		White:           SideSettings{Platform: PlatformSelf},
		Black:           SideSettings{Platform: PlatformSelf},
	}
}

// LoadSettings reads a YAML settings file layered over the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch s.MoveSelection {
	case StrategyMostVotes, StrategyWeightedRandom, StrategyRandom:
	default:
		return fmt.Errorf("%w: unknown move selection %q", ErrIncompleteSettings, s.MoveSelection)
	}
	switch s.VoteRestriction {
	case RestrictionNone, RestrictionOnePerUser, RestrictionUniquePerMove:
	default:
		return fmt.Errorf("%w: unknown vote restriction %q", ErrIncompleteSettings, s.VoteRestriction)
	}
	if s.SecondsPerMove <= 0 {
		return fmt.Errorf("%w: secondsPerMove must be positive", ErrIncompleteSettings)
	}
	for _, side := range []struct {
		name string
		s    SideSettings
	}{{"white", s.White}, {"black", s.Black}} {
		switch side.s.Platform {
		case PlatformTwitch, PlatformYouTube:
			if strings.TrimSpace(side.s.Channel) == "" {
				return fmt.Errorf("%w: %s side needs a channel for platform %s", ErrIncompleteSettings, side.name, side.s.Platform)
			}
		case PlatformSelf:
		default:
			return fmt.Errorf("%w: %s side has unknown platform %q", ErrIncompleteSettings, side.name, side.s.Platform)
		}
	}
	return nil
}
