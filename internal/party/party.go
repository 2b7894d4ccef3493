// Package party implements party lifecycle (invites, join-in-place,
// leader transfer) and wave-based dungeon instances (§4.7). New
// subsystem grounded on the teacher's settlement-scoped coordination
// idiom (internal/social/settlement.go groups agents by a shared id) but
// built for the Reef data model.
package party

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/progression"
	"github.com/talgya/reef-engine/internal/state"
)

const (
	MinPartySize = 1
	MaxPartySize = 4
	MinDungeonPartySize = 2
	InviteTTL = 60 * time.Second
	DailyDungeonLimit = 5

	// EquipDropChance is the per-member Bernoulli chance of each of a
	// cleared dungeon's configured equipment drops (§4.7 "equipment
	// drops separately").
	EquipDropChance = 0.1
)

// Status enumerates Party.status (§3).
type Status string

const (
	StatusForming   Status = "forming"
	StatusInDungeon Status = "in_dungeon"
	StatusDisbanded Status = "disbanded"
)

// Party is a 1..4 member group (§3).
type Party struct {
	ID      uint64
	LeaderID uint64
	Members []uint64
	Invites map[uint64]time.Time // agentID -> expiry
	Status  Status
}

// Manager owns all parties and the agent->party reverse index (§3 Ownership).
type Manager struct {
	mu         sync.Mutex
	nextID     uint64
	parties    map[uint64]*Party
	agentParty map[uint64]uint64
	dungeons   map[uint64]*Dungeon // keyed by partyID
	dailyRuns  map[uint64]*dailyQuota
}

type dailyQuota struct {
	Count   int
	ResetAt time.Time
}

// NewManager constructs an empty party manager.
func NewManager() *Manager {
	return &Manager{
		parties: map[uint64]*Party{}, agentParty: map[uint64]uint64{},
		dungeons: map[uint64]*Dungeon{}, dailyRuns: map[uint64]*dailyQuota{},
	}
}

// PartyOf returns the party an agent belongs to, or nil.
func (m *Manager) PartyOf(agentID uint64) *Party {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.agentParty[agentID]
	if !ok {
		return nil
	}
	return m.parties[id]
}

// Create forms a new party led by the given agent.
func (m *Manager) Create(leaderID uint64) (*Party, engineerr.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, inParty := m.agentParty[leaderID]; inParty {
		return nil, engineerr.Fail(engineerr.Conflict, "you're already in a party")
	}
	m.nextID++
	p := &Party{ID: m.nextID, LeaderID: leaderID, Members: []uint64{leaderID}, Invites: map[uint64]time.Time{}, Status: StatusForming}
	m.parties[p.ID] = p
	m.agentParty[leaderID] = p.ID
	return p, engineerr.Ok("party formed")
}

// Invite issues a 60s invite to targetID; only the leader may invite.
func (m *Manager) Invite(leaderID, targetID uint64) engineerr.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.partyOfLocked(leaderID)
	if p == nil || p.LeaderID != leaderID {
		return engineerr.Fail(engineerr.Gated, "only the party leader can invite")
	}
	if len(p.Members) >= MaxPartySize {
		return engineerr.Fail(engineerr.Gated, "party is full")
	}
	if _, inParty := m.agentParty[targetID]; inParty {
		return engineerr.Fail(engineerr.Conflict, "that agent is already in a party")
	}
	p.Invites[targetID] = time.Now().UTC().Add(InviteTTL)
	return engineerr.Ok("invite sent")
}

func (m *Manager) partyOfLocked(agentID uint64) *Party {
	id, ok := m.agentParty[agentID]
	if !ok {
		return nil
	}
	return m.parties[id]
}

// purgeExpiredInvites evaluates invite expiry lazily at access time (§9).
func purgeExpiredInvites(p *Party) {
	now := time.Now().UTC()
	for agentID, expiry := range p.Invites {
		if now.After(expiry) {
			delete(p.Invites, agentID)
		}
	}
}

// Join accepts an invite, or joins without one if the agent shares the
// forming party's location (§4.7).
func (m *Manager) Join(agentID, partyID uint64, agentLocation, partyLocation string) engineerr.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, inParty := m.agentParty[agentID]; inParty {
		return engineerr.Fail(engineerr.Conflict, "you're already in a party")
	}
	p, ok := m.parties[partyID]
	if !ok || p.Status != StatusForming {
		return engineerr.Fail(engineerr.NotFound, "no such open party")
	}
	purgeExpiredInvites(p)
	_, invited := p.Invites[agentID]
	if !invited && agentLocation != partyLocation {
		return engineerr.Fail(engineerr.Gated, "you need an invite, or be at the party's location")
	}
	if len(p.Members) >= MaxPartySize {
		return engineerr.Fail(engineerr.Gated, "party is full")
	}
	p.Members = append(p.Members, agentID)
	delete(p.Invites, agentID)
	m.agentParty[agentID] = p.ID
	return engineerr.Ok("joined the party")
}

// Leave removes an agent from its party, transferring leadership to the
// first remaining member, or deleting the party if now empty (§4.7).
func (m *Manager) Leave(agentID uint64) engineerr.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.partyOfLocked(agentID)
	if p == nil {
		return engineerr.Fail(engineerr.InvalidInput, "you aren't in a party")
	}
	p.Members = removeID(p.Members, agentID)
	delete(m.agentParty, agentID)
	if len(p.Members) == 0 {
		p.Status = StatusDisbanded
		delete(m.parties, p.ID)
		delete(m.dungeons, p.ID)
		return engineerr.Ok("party disbanded")
	}
	if p.LeaderID == agentID {
		p.LeaderID = p.Members[0]
	}
	return engineerr.Ok("left the party")
}

func removeID(ids []uint64, target uint64) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// --- Dungeon (§4.7) -------------------------------------------------------------

// Dungeon is a wave-based party instance (§3).
type Dungeon struct {
	ID            uint64
	PartyID       uint64
	ZoneID        string
	Wave          int
	MobsRemaining int
	BossHP        int
	BossMaxHP     int
	Damage        map[uint64]int
	Chat          []string
	Status        string // "active" | "cleared"
	StartedTick   uint64
}

func (m *Manager) quotaLocked(agentID uint64) *dailyQuota {
	q, ok := m.dailyRuns[agentID]
	now := time.Now().UTC()
	if !ok {
		q = &dailyQuota{ResetAt: nextUTCMidnight(now)}
		m.dailyRuns[agentID] = q
		return q
	}
	if now.After(q.ResetAt) {
		q.Count = 0
		q.ResetAt = nextUTCMidnight(now)
	}
	return q
}

func nextUTCMidnight(from time.Time) time.Time {
	y, mo, d := from.Date()
	return time.Date(y, mo, d+1, 0, 0, 0, 0, time.UTC)
}

// Enter starts a dungeon instance for the party (§4.7 lifecycle).
func (m *Manager) Enter(cat *config.Catalog, leaderID uint64, zoneID string, memberLocations map[uint64]string, currentTick uint64) (*Dungeon, engineerr.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.partyOfLocked(leaderID)
	if p == nil || p.LeaderID != leaderID {
		return nil, engineerr.Fail(engineerr.Gated, "only the party leader can start a dungeon")
	}
	if len(p.Members) < MinDungeonPartySize {
		return nil, engineerr.Fail(engineerr.Gated, "need at least 2 party members")
	}
	if p.Status != StatusForming {
		return nil, engineerr.Fail(engineerr.Conflict, "party is already in a dungeon")
	}
	dc, ok := cat.DungeonConfigs[zoneID]
	if !ok {
		return nil, engineerr.Fail(engineerr.InvalidInput, "no dungeon here")
	}
	for _, mid := range p.Members {
		if memberLocations[mid] != zoneID {
			return nil, engineerr.Fail(engineerr.Gated, "all members must be in the dungeon's zone")
		}
		if m.quotaLocked(mid).Count >= DailyDungeonLimit {
			return nil, engineerr.Fail(engineerr.Gated, "a member has reached today's dungeon limit")
		}
	}
	for _, mid := range p.Members {
		m.quotaLocked(mid).Count++
	}
	p.Status = StatusInDungeon
	d := &Dungeon{
		PartyID: p.ID, ZoneID: zoneID, Wave: 1,
		MobsRemaining: dc.MobsPerWave, BossHP: dc.BossHP, BossMaxHP: dc.BossHP,
		Damage: map[uint64]int{}, Status: "active", StartedTick: currentTick,
	}
	m.dungeons[p.ID] = d
	return d, engineerr.Ok(fmt.Sprintf("the party descends into the %s dungeon", zoneID))
}

// DungeonOf returns the active dungeon for a party, or nil.
func (m *Manager) DungeonOf(partyID uint64) *Dungeon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dungeons[partyID]
}

// AttackDungeon resolves one `dungeon attack` action (§4.7).
func AttackDungeon(cat *config.Catalog, m *Manager, a *state.Agent, p *Party, d *Dungeon) engineerr.Result {
	dc := cat.DungeonConfigs[d.ZoneID]
	a.Energy -= 10
	state.ClampEnergy(a)

	hpCost := 5 + rand.Intn(11)
	a.HP -= hpCost
	state.ClampHP(a)

	if d.Wave <= dc.Waves-1 && d.MobsRemaining > 0 {
		dr := progression.CalculateDamage(cat, a, 10+rand.Intn(11))
		d.MobsRemaining--
		d.Damage[a.ID] += dr.Damage
		if d.MobsRemaining == 0 {
			d.Wave++
			if d.Wave <= dc.Waves-1 {
				d.MobsRemaining = dc.MobsPerWave
				return engineerr.Ok(fmt.Sprintf("wave cleared! advancing to wave %d", d.Wave))
			}
			return engineerr.Ok("all waves cleared — the boss emerges!")
		}
		return engineerr.Ok(fmt.Sprintf("you deal %d damage (%d mobs remain this wave)", dr.Damage, d.MobsRemaining))
	}

	dr := progression.CalculateDamage(cat, a, 14+rand.Intn(13))
	d.BossHP -= dr.Damage
	d.Damage[a.ID] += dr.Damage
	if d.BossHP <= 0 {
		d.Status = "cleared"
		return engineerr.Ok("the dungeon boss falls!")
	}
	return engineerr.Ok(fmt.Sprintf("you strike the boss for %d (boss hp %d/%d)", dr.Damage, d.BossHP, d.BossMaxHP))
}

// ClearReward is the per-member reward Clear grants for a cleared dungeon (§4.7).
type ClearReward struct {
	Shells int
	XP     int
	Reputation int
	Loot   []string
}

// Clear grants rewards and resets the party to forming. Rolled loot is
// credited directly to each member's inventory via w.AddInventory, not
// merely narrated (§4.7: "zone-keyed loot table rolled per member").
func Clear(cat *config.Catalog, m *Manager, w *state.World, p *Party, d *Dungeon, agents map[uint64]*state.Agent) map[uint64]ClearReward {
	dc := cat.DungeonConfigs[d.ZoneID]
	partyBonus := 1 + float64(len(p.Members))*0.5
	rewards := map[uint64]ClearReward{}
	for _, mid := range p.Members {
		a := agents[mid]
		if a == nil {
			continue
		}
		shells := int(75 * dc.ZoneMultiplier * partyBonus)
		xp := int(50 * dc.ZoneMultiplier * partyBonus)
		progression.GrantShells(cat, a, shells, "dungeon_clear")
		progression.GrantXP(cat, a, xp, "dungeon_clear")
		a.Reputation += 5
		var loot []string
		for _, entry := range dc.LootTable {
			if randFloat() < entry.Chance {
				qty := entry.Min
				if entry.Max > entry.Min {
					qty += randIntn(entry.Max - entry.Min + 1)
				}
				w.AddInventory(mid, entry.Resource, qty)
				loot = append(loot, fmt.Sprintf("%d %s", qty, entry.Resource))
			}
		}
		for _, equipID := range dc.EquipDrops {
			if randFloat() < EquipDropChance {
				w.AddInventory(mid, equipID, 1)
				loot = append(loot, equipID)
			}
		}
		rewards[mid] = ClearReward{Shells: shells, XP: xp, Reputation: 5, Loot: loot}
	}
	p.Status = StatusForming
	m.mu.Lock()
	delete(m.dungeons, p.ID)
	m.mu.Unlock()
	return rewards
}

func randFloat() float64   { return rand.Float64() }
func randIntn(n int) int   { return rand.Intn(n) }

// QuotaRow is one persisted per-agent daily-dungeon-quota counter.
type QuotaRow struct {
	AgentID uint64
	Count   int
	ResetAt time.Time
}

// Snapshot captures every party, dungeon, and daily quota for persistence.
func (m *Manager) Snapshot() (parties []*Party, dungeons []*Dungeon, quotas []QuotaRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.parties {
		parties = append(parties, p)
	}
	for _, d := range m.dungeons {
		dungeons = append(dungeons, d)
	}
	for agentID, q := range m.dailyRuns {
		quotas = append(quotas, QuotaRow{AgentID: agentID, Count: q.Count, ResetAt: q.ResetAt})
	}
	return
}

// Restore reinstalls a persisted party/dungeon/quota set, used on load.
func (m *Manager) Restore(parties []*Party, dungeons []*Dungeon, quotas []QuotaRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parties = map[uint64]*Party{}
	m.agentParty = map[uint64]uint64{}
	for _, p := range parties {
		m.parties[p.ID] = p
		for _, mid := range p.Members {
			m.agentParty[mid] = p.ID
		}
		if p.ID > m.nextID {
			m.nextID = p.ID
		}
	}
	m.dungeons = map[uint64]*Dungeon{}
	for _, d := range dungeons {
		m.dungeons[d.PartyID] = d
	}
	m.dailyRuns = map[uint64]*dailyQuota{}
	for _, q := range quotas {
		m.dailyRuns[q.AgentID] = &dailyQuota{Count: q.Count, ResetAt: q.ResetAt}
	}
}
