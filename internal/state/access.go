package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/talgya/reef-engine/internal/config"
)

// World is the State Access Layer (§4.2): typed accessors for every
// entity, in-process caches for hot lookups, and invariant enforcement.
// It generalizes the teacher's Simulation.AgentIndex/SettlementIndex
// pattern (internal/engine/simulation.go) from a by-id map to the full
// Reef entity set, guarded by a single coarse RWMutex — the "acceptable"
// baseline per §5, with per-agent action-admission locks layered on top
// by the action router.
type World struct {
	mu sync.RWMutex

	Catalog *config.Catalog

	meta WorldMeta

	agents        map[uint64]*Agent
	agentByName   map[string]uint64
	agentByAPIKey map[string]uint64
	nextAgentID   uint64

	inventory map[uint64]map[string]*ItemStack
	vault     map[uint64]map[string]*ItemStack

	locationResources map[string]map[string]*LocationResource

	events      []WorldEvent
	nextEventID uint64

	cooldowns map[uint64]map[CooldownType]*Cooldown

	guardianKills map[string]GuardianKill // key: agentID|resource|zone
}

// NewWorld constructs an empty World seeded from the given catalog's
// starting location-resource quantities.
func NewWorld(cat *config.Catalog) *World {
	w := &World{
		Catalog:           cat,
		meta:              WorldMeta{Tick: 0, DayCycle: 0, Weather: "clear"},
		agents:            map[uint64]*Agent{},
		agentByName:       map[string]uint64{},
		agentByAPIKey:     map[string]uint64{},
		nextAgentID:       1,
		inventory:         map[uint64]map[string]*ItemStack{},
		vault:             map[uint64]map[string]*ItemStack{},
		locationResources: map[string]map[string]*LocationResource{},
		cooldowns:         map[uint64]map[CooldownType]*Cooldown{},
		guardianKills:     map[string]GuardianKill{},
	}
	for zoneID, zone := range cat.Zones {
		if len(zone.Resources) == 0 {
			continue
		}
		w.locationResources[zoneID] = map[string]*LocationResource{}
		for _, res := range zone.Resources {
			w.locationResources[zoneID][res] = &LocationResource{
				LocationID: zoneID, Resource: res,
				CurrentQuantity: 500, MaxQuantity: 500, RespawnRate: 2,
			}
		}
	}
	return w
}

// --- World meta / tick ---------------------------------------------------

// Tick returns the current monotonic tick.
func (w *World) Tick() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.meta.Tick
}

// Meta returns a copy of the world meta row.
func (w *World) Meta() WorldMeta {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.meta
}

// AdvanceTick increments the monotonic tick by one and returns the new
// value (§4.1 step 5, §8: strictly increases on each successful action).
func (w *World) AdvanceTick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.meta.Tick++
	return w.meta.Tick
}

// SetWeather sets the ambient weather descriptor.
func (w *World) SetWeather(weather string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.meta.Weather = weather
}

// --- World events ---------------------------------------------------------

// LogEvent appends a totally-tick-ordered world event (§5 ordering guarantee).
func (w *World) LogEvent(evtType, description, locationID string, agentIDs ...uint64) WorldEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextEventID++
	evt := WorldEvent{
		ID: w.nextEventID, Tick: w.meta.Tick, Type: evtType,
		Description: description, LocationID: locationID, AgentIDs: agentIDs,
	}
	w.events = append(w.events, evt)
	return evt
}

// RecentEvents returns up to n most recent events, newest last.
func (w *World) RecentEvents(n int) []WorldEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 || n > len(w.events) {
		n = len(w.events)
	}
	out := make([]WorldEvent, n)
	copy(out, w.events[len(w.events)-n:])
	return out
}

// --- Agents -----------------------------------------------------------------

// CreateAgent mints a new agent with a fresh id and api key, indexing it
// by name and api key.
func (w *World) CreateAgent(wallet, name, apiKey string) *Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextAgentID
	w.nextAgentID++
	a := NewAgent(id, wallet, name, apiKey)
	a.TickEntered = w.meta.Tick
	w.agents[id] = a
	w.agentByName[name] = id
	w.agentByAPIKey[apiKey] = id
	return a
}

// Agent returns the agent by id, or nil.
func (w *World) Agent(id uint64) *Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.agents[id]
}

// AgentByName returns the agent by display name, or nil.
func (w *World) AgentByName(name string) *Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.agentByName[name]
	if !ok {
		return nil
	}
	return w.agents[id]
}

// AgentByAPIKey returns the agent owning the given API key, or nil.
func (w *World) AgentByAPIKey(key string) *Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.agentByAPIKey[key]
	if !ok {
		return nil
	}
	return w.agents[id]
}

// AllAgents returns every agent, ordered by id, for projections/snapshots.
func (w *World) AllAgents() []*Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AgentsAt returns the alive agents currently at a location.
func (w *World) AgentsAt(location string) []*Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Agent
	for _, a := range w.agents {
		if a.IsAlive && a.Location == location {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IndexAgent re-registers an agent's name/api-key index entries; used by
// the Persistence Orchestrator after a bulk load.
func (w *World) IndexAgent(a *Agent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents[a.ID] = a
	w.agentByName[a.Name] = a.ID
	w.agentByAPIKey[a.APIKey] = a.ID
	if a.ID >= w.nextAgentID {
		w.nextAgentID = a.ID + 1
	}
}

// ClampHP enforces 0 <= hp <= maxHp (§3, §8).
func ClampHP(a *Agent) {
	if a.HP < 0 {
		a.HP = 0
	}
	if a.HP > a.MaxHP {
		a.HP = a.MaxHP
	}
}

// ClampEnergy enforces 0 <= energy <= maxEnergy (§3, §8).
func ClampEnergy(a *Agent) {
	if a.Energy < 0 {
		a.Energy = 0
	}
	if a.Energy > a.MaxEnergy {
		a.Energy = a.MaxEnergy
	}
}

// AddShells adds (or subtracts, if delta<0) shells, clamping at 0 (§3, §8).
func AddShells(a *Agent, delta int) {
	a.Shells += delta
	if a.Shells < 0 {
		a.Shells = 0
	}
}

// MutateAgent runs fn under the world lock and re-applies hp/energy/shells
// clamps afterward — the single mutation path every handler should use
// so invariants in §8 hold by construction.
func (w *World) MutateAgent(id uint64, fn func(a *Agent)) *Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.agents[id]
	if a == nil {
		return nil
	}
	fn(a)
	ClampHP(a)
	ClampEnergy(a)
	if a.Shells < 0 {
		a.Shells = 0
	}
	if !a.IsAlive {
		a.Location = "shallows"
	}
	return a
}

// --- Inventory / Vault -------------------------------------------------------

// invSlotsUsed sums quantities across a stack map.
func invSlotsUsed(m map[string]*ItemStack) int {
	n := 0
	for _, s := range m {
		n += s.Quantity
	}
	return n
}

// AddInventory adds qty of resource to an agent's inventory, collapsing
// insert-or-update on (agent,resource) (§4.2). Returns the quantity
// actually added (may be less than qty, or 0, if the slot cap would be
// exceeded) and whether any was lost to overflow.
func (w *World) AddInventory(agentID uint64, resource string, qty int) (added int, overflowed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.agents[agentID]
	if a == nil || qty <= 0 {
		return 0, false
	}
	m, ok := w.inventory[agentID]
	if !ok {
		m = map[string]*ItemStack{}
		w.inventory[agentID] = m
	}
	used := invSlotsUsed(m)
	room := a.InventorySlots - used
	if room <= 0 {
		return 0, true
	}
	add := qty
	if add > room {
		add = room
		overflowed = true
	}
	stack, ok := m[resource]
	if !ok {
		stack = &ItemStack{AgentID: agentID, Resource: resource}
		m[resource] = stack
	}
	stack.Quantity += add
	return add, overflowed
}

// RemoveInventory removes qty of resource from an agent's inventory; the
// row is deleted when quantity reaches 0 (§3). Returns false if the agent
// does not hold enough.
func (w *World) RemoveInventory(agentID uint64, resource string, qty int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.inventory[agentID]
	if m == nil {
		return false
	}
	stack, ok := m[resource]
	if !ok || stack.Quantity < qty {
		return false
	}
	stack.Quantity -= qty
	if stack.Quantity <= 0 {
		delete(m, resource)
	}
	return true
}

// Inventory returns a snapshot of an agent's inventory stacks.
func (w *World) Inventory(agentID uint64) []ItemStack {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m := w.inventory[agentID]
	out := make([]ItemStack, 0, len(m))
	for _, s := range m {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}

// InventoryHasAtLeast reports whether an agent holds at least qty of
// resource, used by the trade-accept revalidation (§5).
func (w *World) InventoryHasAtLeast(agentID uint64, resource string, qty int) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m := w.inventory[agentID]
	if m == nil {
		return qty <= 0
	}
	s, ok := m[resource]
	if !ok {
		return qty <= 0
	}
	return s.Quantity >= qty
}

// InventoryCount sums quantities held by an agent.
func (w *World) InventoryCount(agentID uint64) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return invSlotsUsed(w.inventory[agentID])
}

// AddVault mirrors AddInventory for the vault collection.
func (w *World) AddVault(agentID uint64, resource string, qty int) (added int, overflowed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.agents[agentID]
	if a == nil || qty <= 0 {
		return 0, false
	}
	m, ok := w.vault[agentID]
	if !ok {
		m = map[string]*ItemStack{}
		w.vault[agentID] = m
	}
	used := invSlotsUsed(m)
	room := a.VaultSlots - used
	if room <= 0 {
		return 0, true
	}
	add := qty
	if add > room {
		add = room
		overflowed = true
	}
	stack, ok := m[resource]
	if !ok {
		stack = &ItemStack{AgentID: agentID, Resource: resource}
		m[resource] = stack
	}
	stack.Quantity += add
	return add, overflowed
}

// RemoveVault mirrors RemoveInventory for the vault collection.
func (w *World) RemoveVault(agentID uint64, resource string, qty int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.vault[agentID]
	if m == nil {
		return false
	}
	stack, ok := m[resource]
	if !ok || stack.Quantity < qty {
		return false
	}
	stack.Quantity -= qty
	if stack.Quantity <= 0 {
		delete(m, resource)
	}
	return true
}

// Vault returns a snapshot of an agent's vault stacks.
func (w *World) Vault(agentID uint64) []ItemStack {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m := w.vault[agentID]
	out := make([]ItemStack, 0, len(m))
	for _, s := range m {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}

// ReplaceInventory and ReplaceVault are used by the Persistence
// Orchestrator on load to install a full snapshot for one agent.
func (w *World) ReplaceInventory(agentID uint64, stacks []ItemStack) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := map[string]*ItemStack{}
	for i := range stacks {
		s := stacks[i]
		m[s.Resource] = &s
	}
	w.inventory[agentID] = m
}

func (w *World) ReplaceVault(agentID uint64, stacks []ItemStack) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := map[string]*ItemStack{}
	for i := range stacks {
		s := stacks[i]
		m[s.Resource] = &s
	}
	w.vault[agentID] = m
}

// --- Location resources -------------------------------------------------------

// LocationResource returns the live resource node at a zone, or nil.
func (w *World) LocationResource(zone, resource string) *LocationResource {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m := w.locationResources[zone]
	if m == nil {
		return nil
	}
	return m[resource]
}

// ConsumeLocationResource decrements a node's current quantity by qty if
// available, clamped at 0 (§3).
func (w *World) ConsumeLocationResource(zone, resource string, qty int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.locationResources[zone]
	if m == nil {
		return false
	}
	lr := m[resource]
	if lr == nil || lr.CurrentQuantity < qty {
		return false
	}
	lr.CurrentQuantity -= qty
	return true
}

// SetLocationResourceQuantity overwrites a node's live current quantity,
// used to reinstall a persisted snapshot on load.
func (w *World) SetLocationResourceQuantity(zone, resource string, qty int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.locationResources[zone]
	if m == nil {
		return
	}
	if lr := m[resource]; lr != nil {
		lr.CurrentQuantity = qty
	}
}

// RegenerateLocationResources advances every node's respawn by one tick,
// clamped at max (§3 "Regenerates on a tick-timer").
func (w *World) RegenerateLocationResources() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, zoneMap := range w.locationResources {
		for _, lr := range zoneMap {
			lr.CurrentQuantity += lr.RespawnRate
			if lr.CurrentQuantity > lr.MaxQuantity {
				lr.CurrentQuantity = lr.MaxQuantity
			}
		}
	}
}

// --- Cooldowns -----------------------------------------------------------------

// CooldownExpiry returns the expiry time for an agent's cooldown of the
// given type, and whether one is tracked at all.
func (w *World) CooldownExpiry(agentID uint64, t CooldownType) (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m := w.cooldowns[agentID]
	if m == nil {
		return time.Time{}, false
	}
	cd, ok := m[t]
	if !ok {
		return time.Time{}, false
	}
	return cd.ExpiresAt, true
}

// SetCooldown installs (overwriting) a cooldown expiring at now+d.
func (w *World) SetCooldown(agentID uint64, t CooldownType, value int, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.cooldowns[agentID]
	if !ok {
		m = map[CooldownType]*Cooldown{}
		w.cooldowns[agentID] = m
	}
	m[t] = &Cooldown{AgentID: agentID, Type: t, Value: value, ExpiresAt: time.Now().UTC().Add(d)}
}

// AllCooldowns returns a flat snapshot for persistence.
func (w *World) AllCooldowns() []Cooldown {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []Cooldown
	for _, m := range w.cooldowns {
		for _, cd := range m {
			out = append(out, *cd)
		}
	}
	return out
}

// ReplaceCooldowns installs a full snapshot loaded from the store.
func (w *World) ReplaceCooldowns(rows []Cooldown) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cooldowns = map[uint64]map[CooldownType]*Cooldown{}
	for i := range rows {
		r := rows[i]
		m, ok := w.cooldowns[r.AgentID]
		if !ok {
			m = map[CooldownType]*Cooldown{}
			w.cooldowns[r.AgentID] = m
		}
		m[r.Type] = &r
	}
}

// --- Guardian kill suppression (§4.5) -------------------------------------------

func guardianKey(agentID uint64, resource, zone string) string {
	return fmt.Sprintf("%d|%s|%s", agentID, resource, zone)
}

// RecordGuardianKill marks that agentID defeated the guardian for
// resource in zone at the given tick.
func (w *World) RecordGuardianKill(agentID uint64, resource, zone string, tick uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.guardianKills[guardianKey(agentID, resource, zone)] = GuardianKill{
		AgentID: agentID, Resource: resource, Zone: zone, Tick: tick,
	}
}

// GuardianRecentlyKilled reports whether agentID killed this zone's
// guardian for resource within the last 50 ticks of currentTick (§4.5).
func (w *World) GuardianRecentlyKilled(agentID uint64, resource, zone string, currentTick uint64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	gk, ok := w.guardianKills[guardianKey(agentID, resource, zone)]
	if !ok {
		return false
	}
	return currentTick-gk.Tick < 50
}
