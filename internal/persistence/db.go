// Package persistence provides SQLite-based world state storage,
// generalizing the teacher's internal/persistence/db.go (sqlx +
// modernc.org/sqlite, full-replace-via-transaction saves, INSERT OR
// REPLACE singletons) to the Reef entity set (§3, §4.11).
//
// The hot-path entities the teacher also modeled with typed columns —
// agents, inventories, location resources, events, world meta — keep
// that shape here. Entities with no teacher analogue (parties, PvP
// engagements, boss/abyss singleton state, arena duels/tournaments,
// social messages/trades, quests, market/prediction books) are stored
// as JSON blobs keyed by kind, extending the teacher's world_meta
// key-value convention rather than hand-rolling a dozen narrow schemas
// for state that is always loaded and replaced as a whole on startup.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/reef-engine/internal/abyss"
	"github.com/talgya/reef-engine/internal/arena"
	"github.com/talgya/reef-engine/internal/boss"
	"github.com/talgya/reef-engine/internal/economy"
	"github.com/talgya/reef-engine/internal/party"
	"github.com/talgya/reef-engine/internal/pvp"
	"github.com/talgya/reef-engine/internal/quest"
	"github.com/talgya/reef-engine/internal/social"
	"github.com/talgya/reef-engine/internal/state"
	"github.com/talgya/reef-engine/internal/treasury"
	"github.com/talgya/reef-engine/internal/tutorial"
)

const timeLayout = time.RFC3339Nano

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		wallet TEXT NOT NULL,
		name TEXT NOT NULL,
		api_key TEXT NOT NULL,
		location TEXT NOT NULL,
		hp INTEGER NOT NULL,
		max_hp INTEGER NOT NULL,
		energy INTEGER NOT NULL,
		max_energy INTEGER NOT NULL,
		level INTEGER NOT NULL,
		xp INTEGER NOT NULL,
		shells INTEGER NOT NULL,
		reputation INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		is_alive INTEGER NOT NULL,
		is_hidden INTEGER NOT NULL,
		pvp_flagged_until INTEGER NOT NULL,
		faction TEXT NOT NULL DEFAULT '',
		equipped_json TEXT NOT NULL,
		visited_zones_json TEXT NOT NULL,
		inventory_slots INTEGER NOT NULL,
		vault_slots INTEGER NOT NULL,
		last_action_tick INTEGER NOT NULL,
		last_action_at TEXT NOT NULL,
		tick_entered INTEGER NOT NULL,
		move_xp_today INTEGER NOT NULL DEFAULT 0,
		broadcast_xp_today INTEGER NOT NULL DEFAULT 0,
		daily_reset_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS inventory_items (
		agent_id INTEGER NOT NULL,
		resource TEXT NOT NULL,
		quantity INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vault_items (
		agent_id INTEGER NOT NULL,
		resource TEXT NOT NULL,
		quantity INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS location_resources (
		location_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		current_quantity INTEGER NOT NULL,
		max_quantity INTEGER NOT NULL,
		respawn_rate INTEGER NOT NULL,
		PRIMARY KEY (location_id, resource)
	);

	CREATE TABLE IF NOT EXISTS cooldowns (
		agent_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		value INTEGER NOT NULL,
		expires_at TEXT NOT NULL,
		PRIMARY KEY (agent_id, type)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY,
		tick INTEGER NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		location_id TEXT,
		agent_ids_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv_blobs (
		kind TEXT PRIMARY KEY,
		json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transaction_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		method TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		error TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_inventory_agent ON inventory_items(agent_id);
	CREATE INDEX IF NOT EXISTS idx_vault_agent ON vault_items(agent_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Agents / inventory / vault --------------------------------------------

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type agentRow struct {
	ID               uint64 `db:"id"`
	Wallet           string `db:"wallet"`
	Name             string `db:"name"`
	APIKey           string `db:"api_key"`
	Location         string `db:"location"`
	HP               int    `db:"hp"`
	MaxHP            int    `db:"max_hp"`
	Energy           int    `db:"energy"`
	MaxEnergy        int    `db:"max_energy"`
	Level            int    `db:"level"`
	XP               int    `db:"xp"`
	Shells           int    `db:"shells"`
	Reputation       int    `db:"reputation"`
	Deaths           int    `db:"deaths"`
	IsAlive          int    `db:"is_alive"`
	IsHidden         int    `db:"is_hidden"`
	PvPFlaggedUntil  uint64 `db:"pvp_flagged_until"`
	Faction          string `db:"faction"`
	EquippedJSON     string `db:"equipped_json"`
	VisitedZonesJSON string `db:"visited_zones_json"`
	InventorySlots   int    `db:"inventory_slots"`
	VaultSlots       int    `db:"vault_slots"`
	LastActionTick   uint64 `db:"last_action_tick"`
	LastActionAt     string `db:"last_action_at"`
	TickEntered      uint64 `db:"tick_entered"`
	MoveXPToday      int    `db:"move_xp_today"`
	BroadcastXPToday int    `db:"broadcast_xp_today"`
	DailyResetAt     string `db:"daily_reset_at"`
}

type stackRow struct {
	AgentID  uint64 `db:"agent_id"`
	Resource string `db:"resource"`
	Quantity int    `db:"quantity"`
}

// SaveAgents writes every agent and its inventory/vault stacks, replacing
// prior contents wholesale (§4.11: "30-second snapshot cycle").
func SaveAgents(db *DB, w *state.World) error {
	agentList := w.AllAgents()

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM inventory_items"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM vault_items"); err != nil {
		return err
	}

	agentStmt, err := tx.Preparex(`INSERT INTO agents
		(id, wallet, name, api_key, location, hp, max_hp, energy, max_energy,
		 level, xp, shells, reputation, deaths, is_alive, is_hidden,
		 pvp_flagged_until, faction, equipped_json, visited_zones_json,
		 inventory_slots, vault_slots, last_action_tick, last_action_at,
		 tick_entered, move_xp_today, broadcast_xp_today, daily_reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer agentStmt.Close()

	invStmt, err := tx.Preparex("INSERT INTO inventory_items (agent_id, resource, quantity) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer invStmt.Close()

	vaultStmt, err := tx.Preparex("INSERT INTO vault_items (agent_id, resource, quantity) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer vaultStmt.Close()

	for _, a := range agentList {
		equippedJSON, _ := json.Marshal(a.Equipped)
		zonesJSON, _ := json.Marshal(a.VisitedZones)

		_, err := agentStmt.Exec(
			a.ID, a.Wallet, a.Name, a.APIKey, a.Location, a.HP, a.MaxHP, a.Energy, a.MaxEnergy,
			a.Level, a.XP, a.Shells, a.Reputation, a.Deaths, boolToInt(a.IsAlive), boolToInt(a.IsHidden),
			a.PvPFlaggedUntil, a.Faction, string(equippedJSON), string(zonesJSON),
			a.InventorySlots, a.VaultSlots, a.LastActionTick, formatTime(a.LastActionAt),
			a.TickEntered, a.MoveXPToday, a.BroadcastXPToday, formatTime(a.DailyResetAt),
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
		for _, s := range w.Inventory(a.ID) {
			if _, err := invStmt.Exec(a.ID, s.Resource, s.Quantity); err != nil {
				return fmt.Errorf("insert inventory for agent %d: %w", a.ID, err)
			}
		}
		for _, s := range w.Vault(a.ID) {
			if _, err := vaultStmt.Exec(a.ID, s.Resource, s.Quantity); err != nil {
				return fmt.Errorf("insert vault for agent %d: %w", a.ID, err)
			}
		}
	}

	return tx.Commit()
}

// HasWorldState reports whether the database holds any saved agents.
func (db *DB) HasWorldState() bool {
	var count int
	err := db.conn.Get(&count, "SELECT COUNT(*) FROM agents")
	return err == nil && count > 0
}

// LoadAgents loads every agent with its inventory/vault into w, rebuilding
// w's reverse indices via IndexAgent (§4.11: "rebuild reverse indices").
func LoadAgents(db *DB, w *state.World) error {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents"); err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	var invRows, vaultRows []stackRow
	if err := db.conn.Select(&invRows, "SELECT agent_id, resource, quantity FROM inventory_items"); err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	if err := db.conn.Select(&vaultRows, "SELECT agent_id, resource, quantity FROM vault_items"); err != nil {
		return fmt.Errorf("load vault: %w", err)
	}
	invByAgent := map[uint64][]state.ItemStack{}
	for _, r := range invRows {
		invByAgent[r.AgentID] = append(invByAgent[r.AgentID], state.ItemStack{AgentID: r.AgentID, Resource: r.Resource, Quantity: r.Quantity})
	}
	vaultByAgent := map[uint64][]state.ItemStack{}
	for _, r := range vaultRows {
		vaultByAgent[r.AgentID] = append(vaultByAgent[r.AgentID], state.ItemStack{AgentID: r.AgentID, Resource: r.Resource, Quantity: r.Quantity})
	}

	for _, r := range rows {
		var equipped state.Equipped
		json.Unmarshal([]byte(r.EquippedJSON), &equipped)
		zones := map[string]bool{}
		json.Unmarshal([]byte(r.VisitedZonesJSON), &zones)

		a := &state.Agent{
			ID: r.ID, Wallet: r.Wallet, Name: r.Name, APIKey: r.APIKey,
			Location: r.Location, HP: r.HP, MaxHP: r.MaxHP, Energy: r.Energy, MaxEnergy: r.MaxEnergy,
			Level: r.Level, XP: r.XP, Shells: r.Shells, Reputation: r.Reputation, Deaths: r.Deaths,
			IsAlive: r.IsAlive != 0, IsHidden: r.IsHidden != 0, PvPFlaggedUntil: r.PvPFlaggedUntil,
			Faction: r.Faction, Equipped: equipped, VisitedZones: zones,
			InventorySlots: r.InventorySlots, VaultSlots: r.VaultSlots,
			LastActionTick: r.LastActionTick, LastActionAt: parseTime(r.LastActionAt),
			TickEntered: r.TickEntered, MoveXPToday: r.MoveXPToday,
			BroadcastXPToday: r.BroadcastXPToday, DailyResetAt: parseTime(r.DailyResetAt),
		}
		w.IndexAgent(a)
		w.ReplaceInventory(a.ID, invByAgent[a.ID])
		w.ReplaceVault(a.ID, vaultByAgent[a.ID])
	}
	return nil
}

// --- Location resources / cooldowns -----------------------------------------

type locationResourceRow struct {
	LocationID      string `db:"location_id"`
	Resource        string `db:"resource"`
	CurrentQuantity int    `db:"current_quantity"`
	MaxQuantity     int    `db:"max_quantity"`
	RespawnRate     int    `db:"respawn_rate"`
}

// SaveLocationResources writes every tracked resource node.
func SaveLocationResources(db *DB, w *state.World) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM location_resources"); err != nil {
		return err
	}
	for zoneID, zone := range w.Catalog.Zones {
		for _, resource := range zone.Resources {
			lr := w.LocationResource(zoneID, resource)
			if lr == nil {
				continue
			}
			_, err := tx.Exec(`INSERT INTO location_resources
				(location_id, resource, current_quantity, max_quantity, respawn_rate)
				VALUES (?, ?, ?, ?, ?)`,
				lr.LocationID, lr.Resource, lr.CurrentQuantity, lr.MaxQuantity, lr.RespawnRate)
			if err != nil {
				return fmt.Errorf("insert location resource %s/%s: %w", zoneID, resource, err)
			}
		}
	}
	return tx.Commit()
}

// LoadLocationResources restores every saved resource node's live quantity,
// overwriting NewWorld's freshly-seeded defaults.
func LoadLocationResources(db *DB, w *state.World) error {
	var rows []locationResourceRow
	if err := db.conn.Select(&rows, "SELECT * FROM location_resources"); err != nil {
		return fmt.Errorf("load location resources: %w", err)
	}
	for _, r := range rows {
		w.SetLocationResourceQuantity(r.LocationID, r.Resource, r.CurrentQuantity)
	}
	return nil
}

// SaveCooldowns writes every agent's active cooldowns.
func SaveCooldowns(db *DB, w *state.World) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM cooldowns"); err != nil {
		return err
	}
	for _, cd := range w.AllCooldowns() {
		_, err := tx.Exec(`INSERT INTO cooldowns (agent_id, type, value, expires_at) VALUES (?, ?, ?, ?)`,
			cd.AgentID, string(cd.Type), cd.Value, formatTime(cd.ExpiresAt))
		if err != nil {
			return fmt.Errorf("insert cooldown: %w", err)
		}
	}
	return tx.Commit()
}

// LoadCooldowns restores every agent's active cooldowns.
func LoadCooldowns(db *DB, w *state.World) error {
	type row struct {
		AgentID   uint64 `db:"agent_id"`
		Type      string `db:"type"`
		Value     int    `db:"value"`
		ExpiresAt string `db:"expires_at"`
	}
	var rows []row
	if err := db.conn.Select(&rows, "SELECT agent_id, type, value, expires_at FROM cooldowns"); err != nil {
		return fmt.Errorf("load cooldowns: %w", err)
	}
	out := make([]state.Cooldown, 0, len(rows))
	for _, r := range rows {
		out = append(out, state.Cooldown{AgentID: r.AgentID, Type: state.CooldownType(r.Type), Value: r.Value, ExpiresAt: parseTime(r.ExpiresAt)})
	}
	w.ReplaceCooldowns(out)
	return nil
}

// --- Events / world meta ----------------------------------------------------

// SaveEvents upserts the given events by id (INSERT OR REPLACE); SaveAll
// passes the whole in-memory event log.
func SaveEvents(db *DB, events []state.WorldEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range events {
		idsJSON, _ := json.Marshal(e.AgentIDs)
		_, err := tx.Exec(`INSERT OR REPLACE INTO events (id, tick, type, description, location_id, agent_ids_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.Tick, e.Type, e.Description, e.LocationID, string(idsJSON))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// saveMetaUint64 persists the world tick as text; the entrypoint reads it
// back with GetMeta.
func saveMetaUint64(db *DB, key string, v uint64) error {
	return db.SaveMeta(key, fmt.Sprintf("%d", v))
}

// --- Generic JSON-blob snapshots (parties, pvp, boss, abyss, arena, ---------
// --- social, quest, market/prediction, tutorial) ----------------------------

func saveBlob(db *DB, kind string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	_, err = db.conn.Exec("INSERT OR REPLACE INTO kv_blobs (kind, json) VALUES (?, ?)", kind, string(b))
	return err
}

func loadBlob(db *DB, kind string, v interface{}) (bool, error) {
	var raw string
	err := db.conn.Get(&raw, "SELECT json FROM kv_blobs WHERE kind = ?", kind)
	if err != nil {
		return false, nil // absent is not an error — fresh world
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return true, nil
}

type partySnapshot struct {
	Parties  []*party.Party
	Dungeons []*party.Dungeon
	Quotas   []party.QuotaRow
}

type socialSnapshot struct {
	Messages []social.Message
	Trades   []*social.TradeOffer
}

type marketSnapshot struct {
	Listings         []*economy.MarketListing
	PredictionBets   map[uint64][]*economy.PredictionBet
	PredictionMarkets []*economy.PredictionMarket
}

type tutorialSnapshot struct {
	AgentID uint64
	Steps   []string
}

// Subsystems bundles every live subsystem singleton the Persistence
// Orchestrator snapshots and restores alongside core world state (§4.11).
type Subsystems struct {
	Parties     *party.Manager
	Engagements *pvp.Registry
	Boss        *boss.Leviathan
	Abyss       *abyss.Abyss
	Duels       *arena.DuelBook
	Tournaments *arena.Manager
	Board       *social.Board
	Quests      *quest.Ledger
	Listings    *economy.ListingBook
	Predictions *economy.PredictionBook
	Tutorial    *tutorial.Tracker
}

// SaveSubsystems blob-snapshots every subsystem singleton (§4.11).
func SaveSubsystems(db *DB, w *state.World, s Subsystems) error {
	parties, dungeons, quotas := s.Parties.Snapshot()
	if err := saveBlob(db, "party", partySnapshot{Parties: parties, Dungeons: dungeons, Quotas: quotas}); err != nil {
		return err
	}
	if err := saveBlob(db, "pvp", s.Engagements.AllActive()); err != nil {
		return err
	}
	if err := saveBlob(db, "boss", s.Boss.Snapshot()); err != nil {
		return err
	}
	if err := saveBlob(db, "abyss", s.Abyss.Snapshot()); err != nil {
		return err
	}
	if err := saveBlob(db, "duels", s.Duels.AllDuels()); err != nil {
		return err
	}
	if err := saveBlob(db, "tournaments", s.Tournaments.AllTournaments()); err != nil {
		return err
	}
	messages, trades := s.Board.AllMessages(), s.Board.AllTrades()
	if err := saveBlob(db, "social", socialSnapshot{Messages: messages, Trades: trades}); err != nil {
		return err
	}
	if err := saveBlob(db, "quests", s.Quests.AllAccepted()); err != nil {
		return err
	}
	listings := s.Listings.AllListings()
	markets, bets := s.Predictions.AllMarkets()
	if err := saveBlob(db, "market", marketSnapshot{Listings: listings, PredictionBets: bets, PredictionMarkets: markets}); err != nil {
		return err
	}
	var tutorials []tutorialSnapshot
	for _, a := range w.AllAgents() {
		if steps := s.Tutorial.Completed(a.ID); len(steps) > 0 {
			tutorials = append(tutorials, tutorialSnapshot{AgentID: a.ID, Steps: steps})
		}
	}
	return saveBlob(db, "tutorial", tutorials)
}

// LoadSubsystems restores every subsystem singleton that has a saved blob;
// subsystems with nothing saved are left at their freshly-constructed
// zero state (§4.11: "missing entries are treated as empty, not fatal").
func LoadSubsystems(db *DB, s Subsystems) error {
	var ps partySnapshot
	if ok, err := loadBlob(db, "party", &ps); err != nil {
		return err
	} else if ok {
		s.Parties.Restore(ps.Parties, ps.Dungeons, ps.Quotas)
	}

	var engagements []pvp.Engagement
	if ok, err := loadBlob(db, "pvp", &engagements); err != nil {
		return err
	} else if ok {
		s.Engagements.Restore(engagements)
	}

	var bossSnap boss.Snapshot
	if ok, err := loadBlob(db, "boss", &bossSnap); err != nil {
		return err
	} else if ok {
		s.Boss.Restore(bossSnap)
	}

	var abyssSnap abyss.Snapshot
	if ok, err := loadBlob(db, "abyss", &abyssSnap); err != nil {
		return err
	} else if ok {
		s.Abyss.Restore(abyssSnap)
	}

	var duels []arena.Duel
	if ok, err := loadBlob(db, "duels", &duels); err != nil {
		return err
	} else if ok {
		s.Duels.Restore(duels)
	}

	var tournaments []*arena.Tournament
	if ok, err := loadBlob(db, "tournaments", &tournaments); err != nil {
		return err
	} else if ok {
		s.Tournaments.Restore(tournaments)
	}

	var ss socialSnapshot
	if ok, err := loadBlob(db, "social", &ss); err != nil {
		return err
	} else if ok {
		s.Board.Restore(ss.Messages, ss.Trades)
	}

	var accepted []quest.AcceptedRow
	if ok, err := loadBlob(db, "quests", &accepted); err != nil {
		return err
	} else if ok {
		s.Quests.Restore(accepted)
	}

	var ms marketSnapshot
	if ok, err := loadBlob(db, "market", &ms); err != nil {
		return err
	} else if ok {
		s.Listings.Restore(ms.Listings)
		s.Predictions.Restore(ms.PredictionMarkets, ms.PredictionBets)
	}

	var tutorials []tutorialSnapshot
	if ok, err := loadBlob(db, "tutorial", &tutorials); err != nil {
		return err
	} else if ok {
		for _, t := range tutorials {
			s.Tutorial.Restore(t.AgentID, t.Steps)
		}
	}
	return nil
}

// LogTransaction appends one treasury distribution outcome (§9: "every
// distribution attempt, success or failure, is appended to a durable
// transaction log").
func (db *DB) LogTransaction(d treasury.Distribution) error {
	errText := ""
	if d.Err != nil {
		errText = d.Err.Error()
	}
	_, err := db.conn.Exec(`INSERT INTO transaction_logs (method, tx_hash, error, at) VALUES (?, ?, ?, ?)`,
		d.Method, d.TxHash, errText, formatTime(d.At))
	return err
}

// SaveAll performs a full save of every entity the Persistence
// Orchestrator owns — the 30-second snapshot cycle's payload (§4.11).
func SaveAll(db *DB, w *state.World, s Subsystems) error {
	slog.Info("saving world state", "agents", len(w.AllAgents()), "tick", w.Tick())
	if err := SaveAgents(db, w); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := SaveLocationResources(db, w); err != nil {
		return fmt.Errorf("save location resources: %w", err)
	}
	if err := SaveCooldowns(db, w); err != nil {
		return fmt.Errorf("save cooldowns: %w", err)
	}
	if err := SaveEvents(db, w.RecentEvents(0)); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := SaveSubsystems(db, w, s); err != nil {
		return fmt.Errorf("save subsystems: %w", err)
	}
	if err := saveMetaUint64(db, "tick", w.Tick()); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	slog.Info("world state saved")
	return nil
}

// LoadAll performs the startup load: agents/inventory/vault, location
// resources, cooldowns, and every subsystem singleton, in that order so
// subsystem restores (e.g. boss participant wallets) can reference
// already-indexed agents (§4.11).
func LoadAll(db *DB, w *state.World, s Subsystems) error {
	if err := LoadAgents(db, w); err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	if err := LoadLocationResources(db, w); err != nil {
		return fmt.Errorf("load location resources: %w", err)
	}
	if err := LoadCooldowns(db, w); err != nil {
		return fmt.Errorf("load cooldowns: %w", err)
	}
	if err := LoadSubsystems(db, s); err != nil {
		return fmt.Errorf("load subsystems: %w", err)
	}
	return nil
}
