// Package state defines the engine's live entities and the State Access
// Layer: typed readers/writers, in-process caches, and invariant
// enforcement (§4.2). It generalizes the teacher's agents.Agent and
// Simulation.AgentIndex to the Reef data model (§3).
package state

import "time"

// Equipped holds the three equip-slot item ids (empty string = empty slot).
type Equipped struct {
	Weapon    string `json:"weapon,omitempty"`
	Armor     string `json:"armor,omitempty"`
	Accessory string `json:"accessory,omitempty"`
}

// Agent is a player-controlled entity (§3 Agent).
type Agent struct {
	ID       uint64 `json:"id"`
	Wallet   string `json:"wallet"`
	Name     string `json:"name"`
	APIKey   string `json:"-"`

	Location  string `json:"location"`
	HP        int    `json:"hp"`
	MaxHP     int    `json:"maxHp"`
	Energy    int    `json:"energy"`
	MaxEnergy int    `json:"maxEnergy"`
	Level     int    `json:"level"`
	XP        int    `json:"xp"`
	Shells    int    `json:"shells"`
	Reputation int   `json:"reputation"`
	Deaths    int    `json:"deaths"`

	IsAlive          bool   `json:"isAlive"`
	IsHidden         bool   `json:"isHidden"`
	PvPFlaggedUntil  uint64 `json:"pvpFlaggedUntil,omitempty"`
	VisitedZones     map[string]bool `json:"visitedZones"`
	Faction          string `json:"faction,omitempty"`
	Equipped         Equipped `json:"equipped"`

	InventorySlots int `json:"inventorySlots"`
	VaultSlots     int `json:"vaultSlots"`

	LastActionTick uint64    `json:"lastActionTick"`
	LastActionAt   time.Time `json:"lastActionAt"`
	TickEntered    uint64    `json:"tickEntered"`

	// Daily XP-grant counters, reset at UTC midnight (§4.3).
	MoveXPToday      int       `json:"-"`
	BroadcastXPToday int       `json:"-"`
	DailyResetAt     time.Time `json:"-"`
}

// NewAgent constructs a freshly-entered agent with starting stats.
func NewAgent(id uint64, wallet, name, apiKey string) *Agent {
	now := time.Now().UTC()
	return &Agent{
		ID: id, Wallet: wallet, Name: name, APIKey: apiKey,
		Location: "shallows", HP: 100, MaxHP: 100, Energy: 100, MaxEnergy: 100,
		Level: 1, XP: 0, Shells: 50, IsAlive: true,
		VisitedZones:   map[string]bool{"shallows": true},
		InventorySlots: 20, VaultSlots: 10,
		TickEntered: 0, DailyResetAt: nextUTCMidnight(now),
	}
}

func nextUTCMidnight(from time.Time) time.Time {
	y, m, d := from.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// ItemStack is an inventory or vault row (§3 Inventory Item / Vault Item).
type ItemStack struct {
	AgentID  uint64 `json:"agentId"`
	Resource string `json:"resource"`
	Quantity int    `json:"quantity"`
}

// LocationResource tracks regenerating gatherable quantity at a zone (§3).
type LocationResource struct {
	LocationID      string `json:"locationId"`
	Resource        string `json:"resource"`
	CurrentQuantity int    `json:"currentQuantity"`
	MaxQuantity     int    `json:"maxQuantity"`
	RespawnRate     int    `json:"respawnRate"`
}

// WorldMeta is the singleton world clock and ambient state (§3).
type WorldMeta struct {
	Tick      uint64 `json:"tick"`
	DayCycle  int    `json:"dayCycle"`
	Weather   string `json:"weather"`
}

// WorldEvent is an append-only log entry (§3).
type WorldEvent struct {
	ID          uint64   `json:"id"`
	Tick        uint64   `json:"tick"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	LocationID  string   `json:"locationId,omitempty"`
	AgentIDs    []uint64 `json:"agentIds,omitempty"`
}

// CooldownType enumerates the wall-clock cooldowns tracked per agent (§3, §5).
type CooldownType string

const (
	CooldownRest         CooldownType = "rest"
	CooldownBroadcast    CooldownType = "broadcast"
	CooldownDungeonDaily CooldownType = "dungeon_daily"
)

// Cooldown is a per-agent, per-type wall-clock gate (§3).
type Cooldown struct {
	AgentID   uint64       `json:"agentId"`
	Type      CooldownType `json:"type"`
	Value     int          `json:"value"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// GuardianKill records that an agent defeated a resource guardian in a
// zone, suppressing refights for 50 ticks (§4.5).
type GuardianKill struct {
	AgentID  uint64
	Resource string
	Zone     string
	Tick     uint64
}
