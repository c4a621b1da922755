package match

import (
	"time"

	"github.com/cellwars/cellwars-server/internal/config"
	"github.com/cellwars/cellwars-server/internal/game/resources"
	"github.com/cellwars/cellwars-server/internal/game/targeting"
)

// Settings are the per-match timings and rule numbers.
type Settings struct {
	ReadinessWindow   time.Duration
	TurnDuration      time.Duration
	InactivityWarning time.Duration
	InactivityFinal   time.Duration
	InactivityForfeit time.Duration
	ExitGrace         time.Duration
	CleanupDelay      time.Duration
	// FatigueTurn is the first turn whose start costs the active side 1 hp. 0 disables it.
	FatigueTurn int

	Limits    resources.Limits
	Inventory map[string]int
	SpawnCost resources.Cost
	// Seed fixes the match's random source. 0 seeds from the clock.
	Seed int64
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		ReadinessWindow:   30 * time.Second,
		TurnDuration:      60 * time.Second,
		InactivityWarning: 20 * time.Second,
		InactivityFinal:   40 * time.Second,
		InactivityForfeit: 90 * time.Second,
		ExitGrace:         30 * time.Second,
		CleanupDelay:      10 * time.Second,
		FatigueTurn:       60,
		Limits:            resources.DefaultLimits(),
		Inventory:         targeting.DefaultInventory(),
		SpawnCost:         resources.Cost{Mana: 1},
	}
}

// SettingsFromConfig converts the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	inventory := make(map[string]int, len(cfg.Rules.Spells))
	for id, n := range cfg.Rules.Spells {
		inventory[id] = n
	}
	return Settings{
		ReadinessWindow:   cfg.Match.ReadinessWindow,
		TurnDuration:      cfg.Match.TurnDuration,
		InactivityWarning: cfg.Match.InactivityWarning,
		InactivityFinal:   cfg.Match.InactivityFinal,
		InactivityForfeit: cfg.Match.InactivityForfeit,
		ExitGrace:         cfg.Match.ExitGrace,
		CleanupDelay:      cfg.Match.CleanupDelay,
		FatigueTurn:       cfg.Match.FatigueTurn,
		Limits: resources.Limits{
			MaxHP:      cfg.Rules.MaxHP,
			MaxMana:    cfg.Rules.MaxMana,
			MaxStamina: cfg.Rules.MaxStamina,
		},
		Inventory: inventory,
		SpawnCost: resources.Cost{Mana: cfg.Rules.SpawnCost},
	}
}

// turnMana is the mana the active side gets at the start of turn.
func turnMana(turn, maxMana int) int {
	return min(maxMana, turn/2+turn%2)
}
