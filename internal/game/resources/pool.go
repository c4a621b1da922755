package resources

import (
	"fmt"
	"sort"
)

// Kind identifies one of the capped meters.
type Kind string

const (
	HP      Kind = "HP"
	Mana    Kind = "MANA"
	Stamina Kind = "STAMINA"
)

// Limits are the caps of each meter.
type Limits struct {
	MaxHP      int
	MaxMana    int
	MaxStamina int
}

// DefaultLimits returns the standard caps.
func DefaultLimits() Limits {
	return Limits{MaxHP: 5, MaxMana: 10, MaxStamina: 10}
}

// Cost is what an action charges at apply time.
type Cost struct {
	Mana    int
	Stamina int
}

// IsZero reports whether the cost is free.
func (c Cost) IsZero() bool {
	return c.Mana == 0 && c.Stamina == 0
}

func (c Cost) String() string {
	return fmt.Sprintf("mana=%d stamina=%d", c.Mana, c.Stamina)
}

// Pool holds one player's meters and spell charges. It is not safe for
// concurrent use; the owning match serializes access.
type Pool struct {
	limits  Limits
	hp      int
	mana    int
	stamina int
	spells  map[string]int
}

// NewPool creates a pool with full hp, empty mana and stamina, and the given
// spell charges.
func NewPool(limits Limits, spells map[string]int) *Pool {
	p := &Pool{
		limits: limits,
		hp:     limits.MaxHP,
		spells: make(map[string]int, len(spells)),
	}
	for id, n := range spells {
		if n > 0 {
			p.spells[id] = n
		}
	}
	return p
}

// Limits returns the pool's caps.
func (p *Pool) Limits() Limits {
	return p.limits
}

// Get returns the current value of a meter.
func (p *Pool) Get(kind Kind) int {
	switch kind {
	case HP:
		return p.hp
	case Mana:
		return p.mana
	case Stamina:
		return p.stamina
	default:
		return 0
	}
}

// HP returns the current hp.
func (p *Pool) HP() int { return p.hp }

// Mana returns the current mana.
func (p *Pool) Mana() int { return p.mana }

// Stamina returns the current stamina.
func (p *Pool) Stamina() int { return p.stamina }

// Add raises a meter by amount, clamped to its cap.
func (p *Pool) Add(kind Kind, amount int) {
	if amount <= 0 {
		return
	}
	switch kind {
	case HP:
		p.hp = clamp(p.hp+amount, p.limits.MaxHP)
	case Mana:
		p.mana = clamp(p.mana+amount, p.limits.MaxMana)
	case Stamina:
		p.stamina = clamp(p.stamina+amount, p.limits.MaxStamina)
	}
}

// Set replaces a meter's value, clamped to [0, cap].
func (p *Pool) Set(kind Kind, value int) {
	switch kind {
	case HP:
		p.hp = clamp(value, p.limits.MaxHP)
	case Mana:
		p.mana = clamp(value, p.limits.MaxMana)
	case Stamina:
		p.stamina = clamp(value, p.limits.MaxStamina)
	}
}

// Damage lowers hp by amount. Hp may drop to zero but never below.
func (p *Pool) Damage(amount int) {
	if amount <= 0 {
		return
	}
	p.hp -= amount
	if p.hp < 0 {
		p.hp = 0
	}
}

// Dead reports whether hp reached zero.
func (p *Pool) Dead() bool {
	return p.hp <= 0
}

// CanAfford reports whether the pool covers cost.
func (p *Pool) CanAfford(cost Cost) bool {
	return p.mana >= cost.Mana && p.stamina >= cost.Stamina
}

// Spend deducts cost. It returns false and changes nothing if the pool
// cannot cover it.
func (p *Pool) Spend(cost Cost) bool {
	if !p.CanAfford(cost) {
		return false
	}
	p.mana -= cost.Mana
	p.stamina -= cost.Stamina
	return true
}

// Charges returns the remaining casts of a spell.
func (p *Pool) Charges(spellID string) int {
	return p.spells[spellID]
}

// ConsumeCharge uses one cast of a spell.
func (p *Pool) ConsumeCharge(spellID string) bool {
	if p.spells[spellID] <= 0 {
		return false
	}
	p.spells[spellID]--
	return true
}

// Spells returns the spell ids with remaining charges, sorted.
func (p *Pool) Spells() []string {
	ids := make([]string, 0, len(p.spells))
	for id, n := range p.spells {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Inventory returns a copy of the spell charges.
func (p *Pool) Inventory() map[string]int {
	out := make(map[string]int, len(p.spells))
	for id, n := range p.spells {
		out[id] = n
	}
	return out
}

// Copy creates a deep copy of the pool.
func (p *Pool) Copy() *Pool {
	return &Pool{
		limits:  p.limits,
		hp:      p.hp,
		mana:    p.mana,
		stamina: p.stamina,
		spells:  p.Inventory(),
	}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
