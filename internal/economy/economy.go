// Package economy implements the shop, vault pricing, fast-travel graph,
// death penalty, and hourly featured-item rotation (§4.4). The price
// formulas are new (the teacher's world has no shop), but the package
// follows the shape of the teacher's economy.Market: a small struct with
// pure resolution methods, no hidden globals.
package economy

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/state"
)

// VaultSlotPrice is linear: 25 * (currentSlots+1) (§4.4).
func VaultSlotPrice(currentSlots int) int {
	return 25 * (currentSlots + 1)
}

// InventorySlotPrice is a flat 100 shells, up to a cap of 20 extra slots
// beyond the starting allotment (§4.4).
const (
	InventorySlotPrice = 100
	InventorySlotCap   = 20
)

// BuyVaultSlot charges VaultSlotPrice and grants one more vault slot.
func BuyVaultSlot(a *state.Agent) engineerr.Result {
	price := VaultSlotPrice(a.VaultSlots)
	if a.Shells < price {
		return engineerr.Fail(engineerr.InsufficientResource, fmt.Sprintf("you need %d shells for another vault slot (have %d)", price, a.Shells))
	}
	state.AddShells(a, -price)
	a.VaultSlots++
	return engineerr.Ok(fmt.Sprintf("vault expanded to %d slots for %d shells", a.VaultSlots, price))
}

// BuyInventorySlot charges InventorySlotPrice, capped at InventorySlotCap
// purchased slots beyond the default.
func BuyInventorySlot(a *state.Agent, defaultSlots int) engineerr.Result {
	if a.InventorySlots-defaultSlots >= InventorySlotCap {
		return engineerr.Fail(engineerr.Gated, "inventory is already at its maximum expansion")
	}
	if a.Shells < InventorySlotPrice {
		return engineerr.Fail(engineerr.InsufficientResource, fmt.Sprintf("you need %d shells for another inventory slot (have %d)", InventorySlotPrice, a.Shells))
	}
	state.AddShells(a, -InventorySlotPrice)
	a.InventorySlots++
	return engineerr.Ok(fmt.Sprintf("inventory expanded to %d slots", a.InventorySlots))
}

// Buy transacts shells<->inventory for both shop consumables and
// equipment (equipment lands in inventory, not in an equip slot) with an
// atomic check-then-act.
func Buy(w *state.World, cat *config.Catalog, a *state.Agent, itemID string) engineerr.Result {
	if eq, ok := cat.Equipment[itemID]; ok {
		if a.Shells < eq.Price {
			return engineerr.Fail(engineerr.InsufficientResource, fmt.Sprintf("%s costs %d shells, you have %d", eq.Name, eq.Price, a.Shells))
		}
		state.AddShells(a, -eq.Price)
		added, overflow := w.AddInventory(a.ID, itemID, 1)
		if added == 0 {
			state.AddShells(a, eq.Price)
			return engineerr.Fail(engineerr.InsufficientResource, "inventory is full")
		}
		msg := fmt.Sprintf("bought %s for %d shells", eq.Name, eq.Price)
		if overflow {
			msg += " (inventory nearly full)"
		}
		return engineerr.Ok(msg)
	}
	item, ok := cat.ShopItems[itemID]
	if !ok {
		return engineerr.Fail(engineerr.NotFound, "no such item in the shop")
	}
	if a.Shells < item.Price {
		return engineerr.Fail(engineerr.InsufficientResource, fmt.Sprintf("%s costs %d shells, you have %d", item.Name, item.Price, a.Shells))
	}
	state.AddShells(a, -item.Price)
	added, _ := w.AddInventory(a.ID, itemID, 1)
	if added == 0 {
		state.AddShells(a, item.Price)
		return engineerr.Fail(engineerr.InsufficientResource, "inventory is full")
	}
	return engineerr.Ok(fmt.Sprintf("bought %s for %d shells", item.Name, item.Price))
}

// Equip moves an item from inventory into its equip slot, returning the
// previously-equipped item (if any) to inventory. §9 open question: the
// spec leaves slot-cap behavior on swap-back unspecified; this
// implementation fails the equip if the inventory has no room for the
// displaced item rather than silently destroying it (documented in
// DESIGN.md).
func Equip(w *state.World, cat *config.Catalog, a *state.Agent, itemID string) engineerr.Result {
	eq, ok := cat.Equipment[itemID]
	if !ok {
		return engineerr.Fail(engineerr.InvalidInput, "that isn't equippable")
	}
	if !w.RemoveInventory(a.ID, itemID, 1) {
		return engineerr.Fail(engineerr.NotFound, "you don't have that item")
	}
	var prev string
	switch eq.Slot {
	case config.SlotWeapon:
		prev, a.Equipped.Weapon = a.Equipped.Weapon, itemID
	case config.SlotArmor:
		prev, a.Equipped.Armor = a.Equipped.Armor, itemID
	case config.SlotAccessory:
		prev, a.Equipped.Accessory = a.Equipped.Accessory, itemID
	}
	if prev != "" {
		if added, _ := w.AddInventory(a.ID, prev, 1); added == 0 {
			// roll back: no room for the displaced item.
			switch eq.Slot {
			case config.SlotWeapon:
				a.Equipped.Weapon = prev
			case config.SlotArmor:
				a.Equipped.Armor = prev
			case config.SlotAccessory:
				a.Equipped.Accessory = prev
			}
			w.AddInventory(a.ID, itemID, 1)
			return engineerr.Fail(engineerr.InsufficientResource, "no inventory room for your current gear")
		}
	}
	return engineerr.Ok(fmt.Sprintf("equipped %s", eq.Name))
}

// Unequip is the inverse of Equip: same item id toggles the slot empty
// and returns it to inventory.
func Unequip(w *state.World, cat *config.Catalog, a *state.Agent, itemID string) engineerr.Result {
	eq, ok := cat.Equipment[itemID]
	if !ok {
		return engineerr.Fail(engineerr.InvalidInput, "that isn't equippable")
	}
	var equipped *string
	switch eq.Slot {
	case config.SlotWeapon:
		equipped = &a.Equipped.Weapon
	case config.SlotArmor:
		equipped = &a.Equipped.Armor
	case config.SlotAccessory:
		equipped = &a.Equipped.Accessory
	}
	if *equipped != itemID {
		return engineerr.Fail(engineerr.InvalidInput, "that item isn't equipped")
	}
	if added, _ := w.AddInventory(a.ID, itemID, 1); added == 0 {
		return engineerr.Fail(engineerr.InsufficientResource, "no inventory room to unequip")
	}
	*equipped = ""
	return engineerr.Ok(fmt.Sprintf("unequipped %s", eq.Name))
}

// Travel resolves a fast-travel request: destination must have been
// visited before and the agent must afford the edge cost; no encounter
// roll on fast travel (§4.4).
func Travel(cat *config.Catalog, a *state.Agent, from, to string) engineerr.Result {
	var edge *config.FastTravelEdge
	for i := range cat.FastTravel {
		e := cat.FastTravel[i]
		if e.From == from && e.To == to {
			edge = &e
			break
		}
	}
	if edge == nil {
		return engineerr.Fail(engineerr.InvalidInput, "there's no route there")
	}
	if !a.VisitedZones[to] {
		return engineerr.Fail(engineerr.Gated, "you haven't discovered that destination yet")
	}
	if a.Shells < edge.Cost {
		return engineerr.Fail(engineerr.InsufficientResource, fmt.Sprintf("the %s costs %d shells", edge.Name, edge.Cost))
	}
	state.AddShells(a, -edge.Cost)
	a.Location = to
	a.VisitedZones[to] = true
	return engineerr.Ok(fmt.Sprintf("took the %s to %s", edge.Name, to))
}

// DeathPenalty is the shell loss on death: min(500, max(5, floor(shells*0.15))).
func DeathPenalty(shells int) int {
	p := int(float64(shells) * 0.15)
	if p < 5 {
		p = 5
	}
	if p > 500 {
		p = 500
	}
	return p
}

// ApplyDeath marks the agent dead (HP 0, IsAlive=false), charges the
// standard shell penalty and increments the death counter (§4.1, §4.5,
// §4.6). It does not move the agent; Respawn returns it to the shallows.
func ApplyDeath(a *state.Agent) int {
	penalty := DeathPenalty(a.Shells)
	state.AddShells(a, -penalty)
	a.IsAlive = false
	a.Deaths++
	a.HP = 0
	return penalty
}

// Respawn revives a dead agent at the shallows with full hp/energy.
func Respawn(a *state.Agent) {
	a.IsAlive = true
	a.Location = "shallows"
	a.HP = a.MaxHP
	a.Energy = a.MaxEnergy
}

// FeaturedRotation tracks the hourly-rotating featured shop item (§4.4).
type FeaturedRotation struct {
	mu        sync.Mutex
	itemID    string
	stock     int
	hourStamp int64
}

// NewFeaturedRotation constructs an empty rotation; Current lazily rolls
// the first pick.
func NewFeaturedRotation() *FeaturedRotation {
	return &FeaturedRotation{}
}

// Current returns the item id and remaining stock for the current UTC
// hour, rolling a fresh uniform pick (and resetting stock) the first
// time this hour is accessed (§4.4).
func (f *FeaturedRotation) Current(cat *config.Catalog, now time.Time) (itemID string, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hourStamp := now.UTC().Truncate(time.Hour).Unix()
	if hourStamp != f.hourStamp || f.itemID == "" {
		f.hourStamp = hourStamp
		f.itemID = cat.FeaturedPool[rand.Intn(len(cat.FeaturedPool))]
		f.stock = 10
	}
	return f.itemID, f.stock
}

// BuyFeatured decrements stock within the hour; fails if sold out.
func (f *FeaturedRotation) BuyFeatured(cat *config.Catalog, w *state.World, a *state.Agent, now time.Time) engineerr.Result {
	itemID, stock := f.Current(cat, now)
	if itemID == "" || stock <= 0 {
		return engineerr.Fail(engineerr.NotFound, "no featured item is available this hour")
	}
	res := Buy(w, cat, a, itemID)
	if res.Success {
		f.mu.Lock()
		f.stock--
		f.mu.Unlock()
	}
	return res
}
