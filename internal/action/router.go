// Package action implements the Action Router (§4.1): sanitizes every
// inbound request, enforces the per-agent rate limit and encounter
// admission gate, dispatches to one of 30+ verb handlers, and applies
// the post-success effects (tick advance, pressure damage, tutorial
// hints, death/respawn) common to every action.
//
// This generalizes the teacher's Engine.step() (internal/engine/tick.go):
// where the teacher advances a real-time tick on a fixed scheduler with
// OnTick/OnHour/OnDay callbacks, Reef advances its tick synchronously
// inside ProcessAction on every successful action (§4.1 step 5) — same
// single-counter-plus-fan-out-side-effects shape, driven by actions
// instead of wall-clock.
package action

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/reef-engine/internal/abyss"
	"github.com/talgya/reef-engine/internal/arena"
	"github.com/talgya/reef-engine/internal/boss"
	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/economy"
	"github.com/talgya/reef-engine/internal/encounter"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/party"
	"github.com/talgya/reef-engine/internal/progression"
	"github.com/talgya/reef-engine/internal/pvp"
	"github.com/talgya/reef-engine/internal/quest"
	"github.com/talgya/reef-engine/internal/social"
	"github.com/talgya/reef-engine/internal/state"
	"github.com/talgya/reef-engine/internal/treasury"
	"github.com/talgya/reef-engine/internal/tutorial"
)

// ActionRateLimit is the per-agent global action cooldown (§5).
const ActionRateLimit = 5 * time.Second

// PressureDamage is the per-action deep_trench toll absent a rebreather
// or pressure-resist accessory. The spec names the penalty but not its
// magnitude; fixed at a modest flat toll (DESIGN.md: Open Question).
const PressureDamage = 8

// GatherYieldMin/Max bound the per-gather quantity roll. The spec
// specifies guardian gating and slot-cap overflow but not a yield
// range; resolved here as a uniform 1..3 (DESIGN.md: Open Question).
const (
	GatherYieldMin = 1
	GatherYieldMax = 3
)

// Request is one inbound ProcessAction call (§4.1).
type Request struct {
	AgentID uint64
	Action  string
	Target  string
	Params  map[string]string
}

// Router wires every subsystem singleton together and dispatches
// actions, mirroring the teacher's Engine holding all of Simulation's
// moving parts in one struct.
type Router struct {
	Catalog      *config.Catalog
	World        *state.World
	Encounters   *encounter.Registry
	Engagements  *pvp.Registry
	Parties      *party.Manager
	Boss         *boss.Leviathan
	Abyss        *abyss.Abyss
	Duels        *arena.DuelBook
	Tournaments  *arena.Manager
	Listings     *economy.ListingBook
	Predictions  *economy.PredictionBook
	Featured     *economy.FeaturedRotation
	Board        *social.Board
	Quests       *quest.Ledger
	QuestCatalog map[string]quest.Quest
	Tutorial     *tutorial.Tracker
	Treasury     *treasury.Client
	LogTx        func(treasury.Distribution)

	locksMu sync.Mutex
	locks   map[uint64]*agentLock
}

type agentLock struct {
	mu           sync.Mutex
	lastActionAt time.Time
}

// NewRouter constructs a Router with fresh subsystem singletons. Callers
// that restore persisted state should overwrite the relevant fields
// after construction (persistence.LoadSubsystems takes pointers to
// each of these).
func NewRouter(cat *config.Catalog, w *state.World) *Router {
	return &Router{
		Catalog:      cat,
		World:        w,
		Encounters:   encounter.NewRegistry(),
		Engagements:  pvp.NewRegistry(),
		Parties:      party.NewManager(),
		Boss:         boss.New(w.Tick()),
		Abyss:        abyss.New(cat),
		Duels:        arena.NewDuelBook(),
		Tournaments:  arena.NewManager(),
		Listings:     economy.NewListingBook(),
		Predictions:  economy.NewPredictionBook(),
		Featured:     economy.NewFeaturedRotation(),
		Board:        social.NewBoard(),
		Quests:       quest.NewLedger(),
		QuestCatalog: quest.DefaultCatalog(),
		Tutorial:     tutorial.NewTracker(),
		Treasury:     treasury.Disabled(),
		LogTx:        func(treasury.Distribution) {},
		locks:        map[uint64]*agentLock{},
	}
}

func (r *Router) lockFor(agentID uint64) *agentLock {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[agentID]
	if !ok {
		l = &agentLock{}
		r.locks[agentID] = l
	}
	return l
}

// sanitize trims a value to maxLen and strips `<...>` tag-like
// substrings (§4.1 step 1).
func sanitize(v string, maxLen int) string {
	for {
		start := strings.Index(v, "<")
		if start < 0 {
			break
		}
		end := strings.Index(v[start:], ">")
		if end < 0 {
			v = v[:start]
			break
		}
		v = v[:start] + v[start+end+1:]
	}
	v = strings.TrimSpace(v)
	if len(v) > maxLen {
		v = v[:maxLen]
	}
	return v
}

func sanitizeRequest(req Request) Request {
	req.Target = sanitize(req.Target, 100)
	params := make(map[string]string, len(req.Params))
	for k, v := range req.Params {
		params[k] = sanitize(v, 200)
	}
	req.Params = params
	return req
}

// ProcessAction implements §4.1's full algorithm.
//
// Death bookkeeping note (DESIGN.md): encounter and pvp kills already
// call economy.ApplyDeath (and so set IsAlive=false + charge the shell
// penalty) internally as part of their own narrative — that is what
// step 2's "isAlive=false and action != rest -> fail" guard is for: it
// catches a *different* agent's next action after they were killed by
// someone else's PvP strike, not a near-dead-code path. Raid-style
// damage (world boss, the Null, dungeon waves) never calls ApplyDeath
// and so never drops IsAlive — it floors HP at 0 without killing, by
// design of those subsystems. The one death ProcessAction itself must
// apply is deep_trench pressure damage, an environmental hazard with no
// subsystem of its own.
func (r *Router) ProcessAction(req Request) engineerr.Result {
	req = sanitizeRequest(req)

	a := r.World.Agent(req.AgentID)
	if a == nil {
		return engineerr.Fail(engineerr.Unauthorized, "unknown agent")
	}

	lock := r.lockFor(a.ID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if !lock.lastActionAt.IsZero() && time.Since(lock.lastActionAt) < ActionRateLimit {
		retryAfter := ActionRateLimit - time.Since(lock.lastActionAt)
		return engineerr.Fail(engineerr.RateLimited, fmt.Sprintf("action cooldown: retry in %.1fs", retryAfter.Seconds()))
	}

	if !a.IsAlive && req.Action != "rest" {
		return engineerr.Fail(engineerr.Gated, "you are dead — rest to respawn")
	}

	if enc := r.Encounters.Active(a.ID); enc != nil {
		switch req.Action {
		case "attack", "flee", "look":
		default:
			return engineerr.Fail(engineerr.Gated, encounter.Look(r.Encounters, a).Narrative)
		}
	}

	result := r.dispatch(a, req)

	if result.Success {
		lock.lastActionAt = time.Now().UTC()
		r.World.AdvanceTick()
		a.LastActionTick = r.World.Tick()
		a.LastActionAt = lock.lastActionAt

		if a.IsAlive && a.Location == "deep_trench" && req.Action != "move" && !r.hasPressureImmunity(a) {
			a.HP -= PressureDamage
			state.ClampHP(a)
			if a.HP <= 0 {
				penalty := economy.ApplyDeath(a)
				result.Narrative += fmt.Sprintf(" the crushing pressure finishes you — you lose %s shells.", humanize.Comma(int64(penalty)))
			}
		}

		if !a.IsAlive {
			economy.Respawn(a)
			result.Narrative += " you wash up in the shallows."
			r.Tutorial.MarkFirst(a.ID, tutorial.StepFirstDeath)
		}

		if hint := r.hintFor(a, req.Action); hint != "" {
			result.Narrative += " " + hint
		}
	}

	return result
}

func (r *Router) hasPressureImmunity(a *state.Agent) bool {
	if eq, ok := r.Catalog.Equipment[a.Equipped.Accessory]; ok {
		return eq.IsRebreather || eq.IsPressureResist
	}
	return false
}

func (r *Router) hintFor(a *state.Agent, action string) string {
	switch action {
	case "move":
		return r.Tutorial.MarkFirst(a.ID, tutorial.StepFirstMove)
	case "gather":
		return r.Tutorial.MarkFirst(a.ID, tutorial.StepFirstGather)
	case "attack":
		return r.Tutorial.MarkFirst(a.ID, tutorial.StepFirstAttack)
	case "party_create", "party_join":
		return r.Tutorial.MarkFirst(a.ID, tutorial.StepFirstParty)
	}
	return ""
}

// dispatch routes a sanitized request to its verb handler (§4.1 step 4).
func (r *Router) dispatch(a *state.Agent, req Request) engineerr.Result {
	switch req.Action {
	case "look":
		return r.doLook(a)
	case "rest":
		return r.doRest(a)
	case "move":
		return r.doMove(a, req.Target)
	case "gather":
		return r.doGather(a, req.Target)
	case "attack":
		return r.doAttack(a, req.Target)
	case "flee":
		return r.doFlee(a)
	case "broadcast":
		return r.doBroadcast(a, req.Target)
	case "tell":
		return r.doTell(a, req.Target, req.Params["text"])
	case "buy":
		return economy.Buy(r.World, r.Catalog, a, req.Target)
	case "equip":
		return economy.Equip(r.World, r.Catalog, a, req.Target)
	case "unequip":
		return economy.Unequip(r.World, r.Catalog, a, req.Target)
	case "travel":
		return economy.Travel(r.Catalog, a, a.Location, req.Target)
	case "buy_vault_slot":
		return economy.BuyVaultSlot(a)
	case "buy_inventory_slot":
		return economy.BuyInventorySlot(a, 20)
	case "buy_featured":
		return r.Featured.BuyFeatured(r.Catalog, r.World, a, time.Now().UTC())
	case "vault_deposit":
		return r.doVaultDeposit(a, req.Target, req.Params["qty"])
	case "vault_withdraw":
		return r.doVaultWithdraw(a, req.Target, req.Params["qty"])
	case "market_list":
		return r.doMarketList(a, req)
	case "market_buy":
		return r.doMarketBuy(a, req.Target)
	case "market_cancel":
		return r.doMarketCancel(a, req.Target)
	case "bet":
		return r.doPredictionBet(a, req)
	case "party_create":
		return r.doPartyCreate(a)
	case "party_invite":
		return r.doPartyInvite(a, req.Target)
	case "party_join":
		return r.doPartyJoin(a, req.Target)
	case "party_leave":
		return r.doPartyLeave(a)
	case "dungeon_enter":
		return r.doDungeonEnter(a)
	case "dungeon_attack":
		return r.doDungeonAttack(a)
	case "challenge":
		return r.doBossChallenge(a)
	case "abyss_contribute":
		return r.doAbyssContribute(a, req.Target)
	case "abyss_offer":
		return r.doAbyssOffer(a, req.Target)
	case "abyss_challenge":
		return r.doAbyssChallenge(a)
	case "duel_challenge":
		return r.doDuelChallenge(a, req)
	case "duel_accept":
		return r.doDuelAccept(a, req.Target)
	case "duel_strike":
		return r.doDuelStrike(a, req.Target)
	case "duel_bet":
		return r.doDuelBet(a, req)
	case "tournament_register":
		return r.doTournamentRegister(a, req.Target)
	case "tournament_strike":
		return r.doTournamentStrike(a, req)
	case "quest_accept":
		return r.Quests.Accept(r.QuestCatalog, a.ID, req.Target)
	case "quest_turnin":
		return quest.TurnIn(r.Catalog, r.World, r.Quests, r.QuestCatalog, a, req.Target)
	case "trade_offer":
		return r.doTradeOffer(a, req)
	case "trade_accept":
		return r.doTradeAccept(a, req.Target)
	case "trade_cancel":
		return r.doTradeCancel(a, req.Target)
	default:
		return engineerr.Fail(engineerr.InvalidInput, "unknown action: "+req.Action)
	}
}

// --- Core navigation / combat ------------------------------------------

func (r *Router) doLook(a *state.Agent) engineerr.Result {
	if r.Encounters.Active(a.ID) != nil {
		return encounter.Look(r.Encounters, a)
	}
	zone := r.Catalog.Zones[a.Location]
	others := r.World.AgentsAt(a.Location)
	return engineerr.Ok(fmt.Sprintf("you are in %s. %d other agents here.", zone.Name, len(others)-1))
}

func (r *Router) doRest(a *state.Agent) engineerr.Result {
	if exp, ok := r.World.CooldownExpiry(a.ID, state.CooldownRest); ok && time.Now().UTC().Before(exp) {
		return engineerr.Fail(engineerr.RateLimited, "you're still winded from your last rest")
	}
	if !a.IsAlive {
		economy.Respawn(a)
		r.World.SetCooldown(a.ID, state.CooldownRest, 0, 60*time.Second)
		return engineerr.Ok("you respawn in the shallows")
	}
	a.HP = a.MaxHP
	a.Energy = a.MaxEnergy
	r.World.SetCooldown(a.ID, state.CooldownRest, 0, 60*time.Second)
	return engineerr.Ok("you rest and recover fully")
}

func (r *Router) doMove(a *state.Agent, destination string) engineerr.Result {
	zone, ok := r.Catalog.Zones[destination]
	if !ok {
		return engineerr.Fail(engineerr.InvalidInput, "no such place")
	}
	za := progression.CheckZoneAccess(r.Catalog, a, destination)
	if za.UnderLeveled && zone.RequiredLevel-a.Level >= 5 {
		return engineerr.Fail(engineerr.Gated, fmt.Sprintf("%s requires level %d; you are %d", zone.Name, za.RequiredLevel, za.AgentLevel))
	}
	started, ambush := encounter.TryTravelAmbush(r.World, r.Catalog, r.Encounters, a, destination)
	if started {
		return ambush
	}
	a.Location = destination
	a.VisitedZones[destination] = true
	progression.GrantMoveXP(r.Catalog, a, 2)
	return engineerr.Ok(fmt.Sprintf("you arrive at %s", zone.Name))
}

func (r *Router) doGather(a *state.Agent, resource string) engineerr.Result {
	if _, ok := r.Catalog.Resources[resource]; !ok {
		return engineerr.Fail(engineerr.InvalidInput, "no such resource")
	}
	lr := r.World.LocationResource(a.Location, resource)
	if lr == nil || lr.CurrentQuantity <= 0 {
		return engineerr.Fail(engineerr.NotFound, "that isn't gatherable here right now")
	}
	if r.World.InventoryCount(a.ID) >= a.InventorySlots {
		return engineerr.Fail(engineerr.InsufficientResource, "your inventory is full")
	}
	started, guardianResult := encounter.TryResourceGuardian(r.World, r.Catalog, r.Encounters, a, a.Location, resource, r.World.Tick())
	if started {
		return guardianResult
	}
	qty := GatherYieldMin + rand.Intn(GatherYieldMax-GatherYieldMin+1)
	if !r.World.ConsumeLocationResource(a.Location, resource, qty) {
		return engineerr.Fail(engineerr.NotFound, "that resource is depleted")
	}
	r.World.AddInventory(a.ID, resource, qty)
	res := r.Catalog.Resources[resource]
	if res.Rare {
		pvp.SetRareFlag(a, r.World.Tick())
	}
	return engineerr.Ok(fmt.Sprintf("you gather %d %s", qty, resource))
}

func (r *Router) doAttack(a *state.Agent, target string) engineerr.Result {
	if r.Encounters.Active(a.ID) != nil {
		return encounter.Attack(r.World, r.Catalog, r.Encounters, a, r.World.Tick()).Result
	}
	if !strings.HasPrefix(target, "@") {
		return engineerr.Fail(engineerr.InvalidInput, "attack what? try `attack @name`")
	}
	defender := r.World.AgentByName(strings.TrimPrefix(target, "@"))
	return pvp.Attack(r.World, r.Catalog, r.Engagements, a, defender).Result
}

func (r *Router) doFlee(a *state.Agent) engineerr.Result {
	if r.Encounters.Active(a.ID) != nil {
		return encounter.Flee(r.World, r.Catalog, r.Encounters, a).Result
	}
	if r.Engagements.Of(a.ID) != nil {
		return pvp.Flee(r.World, r.Catalog, r.Engagements, a).Result
	}
	return engineerr.Fail(engineerr.InvalidInput, "there's nothing to flee from")
}

// --- Social --------------------------------------------------------------

func (r *Router) doBroadcast(a *state.Agent, text string) engineerr.Result {
	if exp, ok := r.World.CooldownExpiry(a.ID, state.CooldownBroadcast); ok && time.Now().UTC().Before(exp) {
		return engineerr.Fail(engineerr.RateLimited, "broadcast is on cooldown")
	}
	if text == "" {
		return engineerr.Fail(engineerr.InvalidInput, "say what?")
	}
	r.Board.PostMessage(a.ID, 0, a.Location, social.MessageBroadcast, text, r.World.Tick())
	progression.GrantBroadcastXP(r.Catalog, a, 1)
	r.World.SetCooldown(a.ID, state.CooldownBroadcast, 0, 60*time.Second)
	return engineerr.Ok("broadcast sent: " + text)
}

func (r *Router) doTell(a *state.Agent, targetName, text string) engineerr.Result {
	target := r.World.AgentByName(strings.TrimPrefix(targetName, "@"))
	if target == nil {
		return engineerr.Fail(engineerr.NotFound, "no such agent")
	}
	if text == "" {
		return engineerr.Fail(engineerr.InvalidInput, "say what?")
	}
	r.Board.PostMessage(a.ID, target.ID, "", social.MessageDM, text, r.World.Tick())
	return engineerr.Ok("message sent to " + target.Name)
}

func (r *Router) doTradeOffer(a *state.Agent, req Request) engineerr.Result {
	target := r.World.AgentByName(strings.TrimPrefix(req.Target, "@"))
	if target == nil {
		return engineerr.Fail(engineerr.NotFound, "no such agent")
	}
	offerRes, offerQty := req.Params["offer_resource"], atoiDefault(req.Params["offer_qty"], 0)
	wantRes, wantQty := req.Params["want_resource"], atoiDefault(req.Params["want_qty"], 0)
	if offerQty <= 0 || wantQty <= 0 {
		return engineerr.Fail(engineerr.InvalidInput, "specify offer_qty and want_qty")
	}
	if !r.World.InventoryHasAtLeast(a.ID, offerRes, offerQty) {
		return engineerr.Fail(engineerr.InsufficientResource, "you don't have that to offer")
	}
	t := r.Board.Offer(a.ID, target.ID, social.ResourceQty{Resource: offerRes, Quantity: offerQty}, social.ResourceQty{Resource: wantRes, Quantity: wantQty}, r.World.Tick())
	return engineerr.Ok(fmt.Sprintf("trade #%d offered to %s", t.ID, target.Name))
}

func (r *Router) doTradeAccept(a *state.Agent, idStr string) engineerr.Result {
	id := atoiDefault(idStr, 0)
	t := r.Board.Trade(uint64(id))
	if t == nil || t.ToAgent != a.ID {
		return engineerr.Fail(engineerr.NotFound, "no such trade offer")
	}
	return social.Accept(r.World, r.Board, t)
}

func (r *Router) doTradeCancel(a *state.Agent, idStr string) engineerr.Result {
	id := atoiDefault(idStr, 0)
	t := r.Board.Trade(uint64(id))
	if t == nil || (t.FromAgent != a.ID && t.ToAgent != a.ID) {
		return engineerr.Fail(engineerr.NotFound, "no such trade offer")
	}
	return social.Cancel(t)
}

// --- Economy ---------------------------------------------------------------

func (r *Router) doVaultDeposit(a *state.Agent, resource, qtyStr string) engineerr.Result {
	qty := atoiDefault(qtyStr, 1)
	if !r.World.RemoveInventory(a.ID, resource, qty) {
		return engineerr.Fail(engineerr.InsufficientResource, "you don't have that many")
	}
	added, overflow := r.World.AddVault(a.ID, resource, qty)
	if added < qty {
		r.World.AddInventory(a.ID, resource, qty-added)
	}
	if overflow {
		return engineerr.Ok(fmt.Sprintf("deposited %d %s (vault nearly full)", added, resource))
	}
	return engineerr.Ok(fmt.Sprintf("deposited %d %s to vault", added, resource))
}

func (r *Router) doVaultWithdraw(a *state.Agent, resource, qtyStr string) engineerr.Result {
	qty := atoiDefault(qtyStr, 1)
	if !r.World.RemoveVault(a.ID, resource, qty) {
		return engineerr.Fail(engineerr.InsufficientResource, "vault doesn't have that many")
	}
	added, _ := r.World.AddInventory(a.ID, resource, qty)
	if added < qty {
		r.World.AddVault(a.ID, resource, qty-added)
		return engineerr.Fail(engineerr.InsufficientResource, "inventory has no room")
	}
	return engineerr.Ok(fmt.Sprintf("withdrew %d %s from vault", qty, resource))
}

func (r *Router) doMarketList(a *state.Agent, req Request) engineerr.Result {
	resource := req.Params["resource"]
	qty := atoiDefault(req.Params["qty"], 0)
	price := atoiDefault(req.Params["price"], 0)
	if qty <= 0 || price <= 0 {
		return engineerr.Fail(engineerr.InvalidInput, "specify resource, qty, price")
	}
	if !r.World.RemoveInventory(a.ID, resource, qty) {
		return engineerr.Fail(engineerr.InsufficientResource, "you don't have that many to list")
	}
	_, res := r.Listings.CreateListing(a.ID, a.Name, resource, qty, price, r.World.Tick())
	if !res.Success {
		r.World.AddInventory(a.ID, resource, qty)
	}
	return res
}

func (r *Router) doMarketBuy(a *state.Agent, idStr string) engineerr.Result {
	id := atoiDefault(idStr, 0)
	l, ok := r.Listings.Buy(uint64(id))
	if !ok {
		return engineerr.Fail(engineerr.NotFound, "that listing is gone")
	}
	if a.Shells < l.PriceShells {
		l.Status = economy.ListingActive
		return engineerr.Fail(engineerr.InsufficientResource, "you can't afford that")
	}
	state.AddShells(a, -l.PriceShells)
	if seller := r.World.Agent(l.SellerID); seller != nil {
		state.AddShells(seller, l.PriceShells)
	}
	added, _ := r.World.AddInventory(a.ID, l.Resource, l.Quantity)
	if added < l.Quantity {
		return engineerr.Ok(fmt.Sprintf("bought %d %s (some lost to a full inventory)", added, l.Resource))
	}
	return engineerr.Ok(fmt.Sprintf("bought %d %s for %d shells", l.Quantity, l.Resource, l.PriceShells))
}

func (r *Router) doMarketCancel(a *state.Agent, idStr string) engineerr.Result {
	id := atoiDefault(idStr, 0)
	l := r.Listings.Listing(uint64(id))
	if l == nil {
		return engineerr.Fail(engineerr.NotFound, "no such listing")
	}
	resource, qty := l.Resource, l.Quantity
	if !r.Listings.Cancel(uint64(id), a.ID) {
		return engineerr.Fail(engineerr.Conflict, "you can't cancel that")
	}
	r.World.AddInventory(a.ID, resource, qty)
	return engineerr.Ok("listing cancelled, goods returned")
}

func (r *Router) doPredictionBet(a *state.Agent, req Request) engineerr.Result {
	marketID := uint64(atoiDefault(req.Target, 0))
	option := atoiDefault(req.Params["option"], -1)
	amount := atoiDefault(req.Params["amount"], 0)
	if a.Shells < amount {
		return engineerr.Fail(engineerr.InsufficientResource, "not enough shells")
	}
	_, res := r.Predictions.PlaceBet(marketID, a.ID, option, amount)
	if res.Success {
		state.AddShells(a, -amount)
	}
	return res
}

// --- Party / Dungeon ---------------------------------------------------------

func (r *Router) doPartyCreate(a *state.Agent) engineerr.Result {
	_, res := r.Parties.Create(a.ID)
	return res
}

func (r *Router) doPartyInvite(a *state.Agent, targetName string) engineerr.Result {
	target := r.World.AgentByName(strings.TrimPrefix(targetName, "@"))
	if target == nil {
		return engineerr.Fail(engineerr.NotFound, "no such agent")
	}
	return r.Parties.Invite(a.ID, target.ID)
}

func (r *Router) doPartyJoin(a *state.Agent, partyIDStr string) engineerr.Result {
	partyID := uint64(atoiDefault(partyIDStr, 0))
	p := r.findPartyByID(partyID)
	if p == nil {
		return engineerr.Fail(engineerr.NotFound, "no such party")
	}
	leader := r.World.Agent(p.LeaderID)
	if leader == nil {
		return engineerr.Fail(engineerr.NotFound, "party leader is gone")
	}
	return r.Parties.Join(a.ID, partyID, a.Location, leader.Location)
}

func (r *Router) findPartyByID(id uint64) *party.Party {
	parties, _, _ := r.Parties.Snapshot()
	for _, p := range parties {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Router) doPartyLeave(a *state.Agent) engineerr.Result {
	return r.Parties.Leave(a.ID)
}

func (r *Router) doDungeonEnter(a *state.Agent) engineerr.Result {
	p := r.Parties.PartyOf(a.ID)
	if p == nil || p.LeaderID != a.ID {
		return engineerr.Fail(engineerr.Gated, "only the party leader may enter a dungeon")
	}
	memberLocations := map[uint64]string{}
	for _, mid := range p.Members {
		if m := r.World.Agent(mid); m != nil {
			memberLocations[mid] = m.Location
		}
	}
	_, res := r.Parties.Enter(r.Catalog, a.ID, a.Location, memberLocations, r.World.Tick())
	return res
}

func (r *Router) doDungeonAttack(a *state.Agent) engineerr.Result {
	p := r.Parties.PartyOf(a.ID)
	if p == nil {
		return engineerr.Fail(engineerr.Gated, "you aren't in a party")
	}
	d := r.Parties.DungeonOf(p.ID)
	if d == nil {
		return engineerr.Fail(engineerr.Gated, "your party isn't in a dungeon")
	}
	res := party.AttackDungeon(r.Catalog, r.Parties, a, p, d)
	if res.Success && d.Status == "cleared" {
		agents := map[uint64]*state.Agent{}
		for _, mid := range p.Members {
			if m := r.World.Agent(mid); m != nil {
				agents[mid] = m
			}
		}
		rewards := party.Clear(r.Catalog, r.Parties, r.World, p, d, agents)
		var names []string
		for id := range rewards {
			if m := agents[id]; m != nil {
				names = append(names, m.Name)
			}
		}
		res.Narrative += fmt.Sprintf(" the dungeon is cleared! rewards distributed to %s", strings.Join(names, ", "))
	}
	return res
}

// --- World Boss / Abyss -----------------------------------------------------

func (r *Router) doBossChallenge(a *state.Agent) engineerr.Result {
	if a.Location != "leviathans_lair" {
		return engineerr.Fail(engineerr.Gated, "the Leviathan isn't here")
	}
	agentsInLair := len(r.World.AgentsAt(a.Location))
	za := progression.CheckZoneAccess(r.Catalog, a, a.Location)
	out := boss.Challenge(r.Catalog, r.Boss, a, agentsInLair, za)
	if out.Killed && out.Payout != nil {
		r.submitLeviathanPayout(out.Payout)
	}
	return out.Result
}

func (r *Router) submitLeviathanPayout(p *boss.PayoutPlan) {
	wallets := make([]string, 0, len(p.SharesBps))
	shares := make([]int, 0, len(p.SharesBps))
	for agentID, bps := range p.SharesBps {
		wallets = append(wallets, p.Wallets[agentID])
		shares = append(shares, bps)

		if m := r.World.Agent(agentID); m != nil {
			m.Reputation += p.ReputationAll
			r.World.AddInventory(agentID, boss.LootResource, p.ResourceLootEach)
		}
	}
	if top := r.World.Agent(p.ReputationTop); top != nil {
		top.Reputation += boss.TopDamageReputationBonus
	}
	if p.LegendaryWinner != 0 && len(r.Catalog.LegendaryItems) > 0 {
		if winner := r.World.Agent(p.LegendaryWinner); winner != nil {
			item := r.Catalog.LegendaryItems[rand.Intn(len(r.Catalog.LegendaryItems))]
			r.World.AddInventory(winner.ID, item, 1)
		}
	}
	treasury.Submit(nil, r.LogTx, func(ctx context.Context) treasury.Distribution {
		return r.Treasury.DistributeLeviathan(ctx, p.SpawnID, wallets, shares, p.TotalDamage)
	})
}

func (r *Router) doAbyssContribute(a *state.Agent, amountStr string) engineerr.Result {
	qty := atoiDefault(amountStr, 0)
	if qty <= 0 || a.Shells < qty {
		return engineerr.Fail(engineerr.InsufficientResource, "not enough shells")
	}
	res := r.Abyss.Contribute(r.Catalog, a.ID, "shells", qty, r.World.Tick())
	if res.Success {
		state.AddShells(a, -qty)
	}
	return res
}

func (r *Router) doAbyssOffer(a *state.Agent, offer string) engineerr.Result {
	parts := strings.SplitN(offer, ":", 2)
	if len(parts) != 2 {
		return engineerr.Fail(engineerr.InvalidInput, "use offer=<resource>:<qty>")
	}
	resource := parts[0]
	qty := atoiDefault(parts[1], 0)
	if qty <= 0 || !r.World.InventoryHasAtLeast(a.ID, resource, qty) {
		return engineerr.Fail(engineerr.InsufficientResource, "you don't have that many")
	}
	res := r.Abyss.Contribute(r.Catalog, a.ID, resource, qty, r.World.Tick())
	if res.Success {
		r.World.RemoveInventory(a.ID, resource, qty)
	}
	return res
}

func (r *Router) doAbyssChallenge(a *state.Agent) engineerr.Result {
	if a.Location != abyss.ZoneID {
		return engineerr.Fail(engineerr.Gated, "the Abyss gate isn't here")
	}
	agentsInZone := len(r.World.AgentsAt(a.Location))
	out := abyss.Challenge(r.Catalog, r.Abyss, a, agentsInZone)
	if out.Killed && out.Payout != nil {
		r.submitNullPayout(out.Payout)
	}
	return out.Result
}

func (r *Router) submitNullPayout(p *abyss.PayoutPlan) {
	wallets := make([]string, 0, len(p.MonSharesBps))
	shares := make([]int, 0, len(p.MonSharesBps))
	for agentID, bps := range p.MonSharesBps {
		if m := r.World.Agent(agentID); m != nil {
			wallets = append(wallets, m.Wallet)
			shares = append(shares, bps)
		}
	}
	for agentID, shells := range p.ShellShare {
		if m := r.World.Agent(agentID); m != nil {
			state.AddShells(m, shells)
		}
	}
	treasury.Submit(nil, r.LogTx, func(ctx context.Context) treasury.Distribution {
		return r.Treasury.DistributeNull(ctx, wallets, shares, p.TotalDamage)
	})
}

// --- Arena / Tournament -------------------------------------------------------

func (r *Router) doDuelChallenge(a *state.Agent, req Request) engineerr.Result {
	opponent := r.World.AgentByName(strings.TrimPrefix(req.Target, "@"))
	if opponent == nil {
		return engineerr.Fail(engineerr.NotFound, "no such agent")
	}
	wager := atoiDefault(req.Params["wager"], 0)
	_, res := r.Duels.Challenge(a, opponent.ID, wager)
	return res
}

func (r *Router) doDuelAccept(a *state.Agent, idStr string) engineerr.Result {
	id := uint64(atoiDefault(idStr, 0))
	return r.Duels.Accept(a, id)
}

func (r *Router) doDuelStrike(a *state.Agent, idStr string) engineerr.Result {
	id := uint64(atoiDefault(idStr, 0))
	d := r.Duels.Duel(id)
	if d == nil {
		return engineerr.Fail(engineerr.NotFound, "no such duel")
	}
	var defenderID uint64
	if d.Challenger == a.ID {
		defenderID = d.Opponent
	} else {
		defenderID = d.Challenger
	}
	defender := r.World.Agent(defenderID)
	out := arena.Strike(r.Catalog, r.Duels, d, a, defender)
	if out.Finished {
		if winner := r.World.Agent(out.Winner); winner != nil {
			state.AddShells(winner, out.PayoutWinner)
			out.Result.Narrative += fmt.Sprintf(" %s wins the duel and collects %d shells!", winner.Name, out.PayoutWinner)
		}
		for bettorID, payout := range out.BetPayouts {
			if bettor := r.World.Agent(bettorID); bettor != nil {
				state.AddShells(bettor, payout)
			}
		}
	}
	return out.Result
}

func (r *Router) doDuelBet(a *state.Agent, req Request) engineerr.Result {
	id := uint64(atoiDefault(req.Target, 0))
	if r.Duels.Duel(id) == nil {
		return engineerr.Fail(engineerr.NotFound, "no such duel")
	}
	onAgent := uint64(atoiDefault(req.Params["on_agent"], 0))
	amount := atoiDefault(req.Params["amount"], 0)
	return r.Duels.PlaceBet(id, a, onAgent, amount)
}

func (r *Router) doTournamentRegister(a *state.Agent, idStr string) engineerr.Result {
	id := uint64(atoiDefault(idStr, 0))
	t := r.Tournaments.Tournament(id)
	if t == nil {
		return engineerr.Fail(engineerr.NotFound, "no such tournament")
	}
	return r.Tournaments.Register(t, a, r.World.Tick())
}

// doTournamentStrike resolves one bracket-match strike against the
// caller's current opponent, advancing the round and paying the
// champion's final reward once the bracket is exhausted (§4.10).
func (r *Router) doTournamentStrike(a *state.Agent, req Request) engineerr.Result {
	id := uint64(atoiDefault(req.Target, 0))
	t := r.Tournaments.Tournament(id)
	if t == nil {
		return engineerr.Fail(engineerr.NotFound, "no such tournament")
	}
	opponentID := uint64(atoiDefault(req.Params["opponent"], 0))
	opponent := r.World.Agent(opponentID)
	if opponent == nil {
		mt := r.Tournaments.ActiveMatch(t, a.ID)
		if mt == nil {
			return engineerr.Fail(engineerr.NotFound, "you have no live bracket match")
		}
		opponentID = mt.Agent1
		if opponentID == a.ID {
			opponentID = mt.Agent2
		}
		opponent = r.World.Agent(opponentID)
	}
	if opponent == nil {
		return engineerr.Fail(engineerr.NotFound, "no such agent")
	}

	out := r.Tournaments.StrikeMatch(r.Catalog, t, a, opponent)
	if out.Finished {
		if winner := r.World.Agent(out.Winner); winner != nil {
			out.Result.Narrative += fmt.Sprintf(" %s advances!", winner.Name)
		}
		championed, narrative := r.Tournaments.AdvanceTournament(t)
		if narrative != "" {
			out.Result.Narrative += " " + narrative
		}
		if championed {
			r.submitTournamentPayout(t)
		}
	}
	return out.Result
}

// submitTournamentPayout grants the champion's shells, equipment drop,
// and bonus material, and forwards the MON tier bonus to the treasury
// (§4.10).
func (r *Router) submitTournamentPayout(t *arena.Tournament) {
	champion := r.World.Agent(t.Champion)
	if champion == nil {
		return
	}
	reward := arena.FinalRewardFor(t)
	arena.ApplyFinalReward(r.Catalog, champion, reward)
	if reward.EquipmentDrop != "" {
		r.World.AddInventory(champion.ID, reward.EquipmentDrop, 1)
	}
	if reward.BonusMaterial != "" {
		r.World.AddInventory(champion.ID, reward.BonusMaterial, 1)
	}
	if reward.MonShareBps <= 0 {
		return
	}
	var tier uint8
	for i, tr := range arena.Tiers {
		if tr.Name == t.Tier.Name {
			tier = uint8(i)
			break
		}
	}
	treasury.Submit(nil, r.LogTx, func(ctx context.Context) treasury.Distribution {
		return r.Treasury.DistributeTournament(ctx, t.ID, champion.Wallet, tier)
	})
}

// --- helpers -----------------------------------------------------------------

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
