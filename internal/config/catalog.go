// Package config holds the static, read-only-after-load world tables:
// zones, resources, mobs, equipment, recipes, faction bonuses, the
// fast-travel graph, the shop catalog, dungeon configuration and the
// Abyss resource requirements. None of this is persisted — it is
// compiled-in data, the same way the teacher's economy package hardcodes
// its base-price table in NewMarket.
package config

// Zone describes one location in the world graph.
type Zone struct {
	ID             string
	Name           string
	Safe           bool
	RequiredLevel  int
	EncounterBase  float64 // base chance per travel, scaled by level gap
	Resources      []string
}

// Resource describes one gatherable/tradeable good.
type Resource struct {
	ID       string
	Name     string
	Rare     bool // rare resources set the PvP flag on gather (§4.6)
}

// LootEntry is one Bernoulli-rolled drop table row.
type LootEntry struct {
	Resource string
	Chance   float64 // 0..1
	Min, Max int
}

// Mob is a template for PvE combat (travel ambush or resource guardian).
type Mob struct {
	ID                string
	Name              string
	Level             int
	HP                int
	Damage            int
	XP                int
	Shells            int
	LootTable         []LootEntry
	IsResourceGuardian bool
	GuardedResource   string
}

// EquipSlot names the three equip slots an agent may fill.
type EquipSlot string

const (
	SlotWeapon    EquipSlot = "weapon"
	SlotArmor     EquipSlot = "armor"
	SlotAccessory EquipSlot = "accessory"
)

// Equipment is a shop item that occupies an equip slot and modifies stats.
type Equipment struct {
	ID               string
	Name             string
	Slot             EquipSlot
	Price            int
	DamageBonus      int // weapon
	DamageReduction  int // armor
	IsRebreather     bool // accessory: negates deep_trench pressure damage
	IsPressureResist bool // accessory buff equivalent
	Rarity           string
}

// ShopItem is a non-equipment consumable or material sold in the shop.
type ShopItem struct {
	ID     string
	Name   string
	Price  int
	Effect string
	Rarity string
}

// FastTravelEdge is one directed edge of the static travel graph.
type FastTravelEdge struct {
	From, To string
	Cost     int
	Name     string
}

// FactionBonus holds the permanent, irrevocable rescale applied at
// faction join (Level 5+, §4.3).
type FactionBonus struct {
	ID               string
	Name             string
	XPMultiplier     float64
	ShellMultiplier  float64
	DamageMultiplier float64
	CritChance       float64
	MaxHPBonus       int
	MaxDamageBonus   int
}

// DungeonConfig is the per-zone wave/loot configuration for Party dungeons.
type DungeonConfig struct {
	ZoneID         string
	Waves          int
	MobsPerWave    int
	BossHP         int
	BossDamage     int
	ZoneMultiplier float64
	LootTable      []LootEntry
	EquipDrops     []string
}

// AbyssRequirement is one resource line of ABYSS_REQUIREMENTS (§4.9).
type AbyssRequirement struct {
	Resource string
	Required int
}

// Catalog is the full static config, read-only once Default has built it.
type Catalog struct {
	Zones           map[string]Zone
	Resources       map[string]Resource
	Mobs            map[string]Mob
	MobsByZone      map[string][]string
	Equipment       map[string]Equipment
	ShopItems       map[string]ShopItem
	FastTravel      []FastTravelEdge
	Factions        map[string]FactionBonus
	DungeonConfigs  map[string]DungeonConfig
	AbyssReqs       []AbyssRequirement
	FeaturedPool    []string // shop item ids eligible for hourly featured rotation
	LegendaryItems  []string // legendary-tier equipment ids, awarded by the Leviathan raffle
}

// Default returns the built-in Reef world catalog. A production deployment
// would load this from the static-config collaborator (§1 non-goal: this
// repo owns only the glue, not config authoring) — Default ships a
// complete, internally-consistent table so the engine runs standalone.
func Default() *Catalog {
	c := &Catalog{
		Zones:          map[string]Zone{},
		Resources:      map[string]Resource{},
		Mobs:           map[string]Mob{},
		MobsByZone:     map[string][]string{},
		Equipment:      map[string]Equipment{},
		ShopItems:      map[string]ShopItem{},
		Factions:       map[string]FactionBonus{},
		DungeonConfigs: map[string]DungeonConfig{},
	}

	zones := []Zone{
		{ID: "shallows", Name: "The Shallows", Safe: true, RequiredLevel: 1, EncounterBase: 0},
		{ID: "coral_gardens", Name: "Coral Gardens", Safe: false, RequiredLevel: 1, EncounterBase: 0.15, Resources: []string{"kelp", "moonstone"}},
		{ID: "sunken_ruins", Name: "Sunken Ruins", Safe: false, RequiredLevel: 5, EncounterBase: 0.25, Resources: []string{"void_crystals", "ruinsteel"}},
		{ID: "deep_trench", Name: "The Deep Trench", Safe: false, RequiredLevel: 10, EncounterBase: 0.35, Resources: []string{"abyssal_pearl"}},
		{ID: "leviathans_lair", Name: "Leviathan's Lair", Safe: false, RequiredLevel: 15, EncounterBase: 0},
		{ID: "the_abyss", Name: "The Abyss", Safe: false, RequiredLevel: 20, EncounterBase: 0},
		{ID: "arena", Name: "The Arena", Safe: true, RequiredLevel: 1, EncounterBase: 0},
	}
	for _, z := range zones {
		c.Zones[z.ID] = z
	}

	resources := []Resource{
		{ID: "kelp", Name: "Kelp"},
		{ID: "moonstone", Name: "Moonstone"},
		{ID: "void_crystals", Name: "Void Crystals", Rare: true},
		{ID: "ruinsteel", Name: "Ruinsteel"},
		{ID: "abyssal_pearl", Name: "Abyssal Pearl", Rare: true},
		{ID: "coral_shards", Name: "Coral Shards"},
		{ID: "leviathan_scale", Name: "Leviathan Scale"},
		{ID: "null_essence", Name: "Null Essence"},
	}
	for _, r := range resources {
		c.Resources[r.ID] = r
	}

	mobs := []Mob{
		{
			ID: "tide_lurker", Name: "Tide Lurker", Level: 2, HP: 30, Damage: 4, XP: 20, Shells: 10,
			LootTable: []LootEntry{{Resource: "kelp", Chance: 0.6, Min: 1, Max: 3}},
		},
		{
			ID: "moonstone_crab", Name: "Moonstone Crab", Level: 3, HP: 45, Damage: 6, XP: 30, Shells: 15,
			LootTable: []LootEntry{{Resource: "moonstone", Chance: 0.5, Min: 1, Max: 2}},
			IsResourceGuardian: true, GuardedResource: "moonstone",
		},
		{
			ID: "ruin_wraith", Name: "Ruin Wraith", Level: 8, HP: 90, Damage: 12, XP: 80, Shells: 40,
			LootTable: []LootEntry{{Resource: "ruinsteel", Chance: 0.45, Min: 1, Max: 2}, {Resource: "void_crystals", Chance: 0.1, Min: 1, Max: 1}},
		},
		{
			ID: "trench_warden", Name: "Trench Warden", Level: 13, HP: 160, Damage: 20, XP: 150, Shells: 90,
			LootTable: []LootEntry{{Resource: "abyssal_pearl", Chance: 0.3, Min: 1, Max: 1}},
			IsResourceGuardian: true, GuardedResource: "abyssal_pearl",
		},
	}
	for _, m := range mobs {
		c.Mobs[m.ID] = m
	}
	c.MobsByZone["coral_gardens"] = []string{"tide_lurker", "moonstone_crab"}
	c.MobsByZone["sunken_ruins"] = []string{"ruin_wraith"}
	c.MobsByZone["deep_trench"] = []string{"trench_warden"}

	equipment := []Equipment{
		{ID: "rusty_spear", Name: "Rusty Spear", Slot: SlotWeapon, Price: 50, DamageBonus: 3, Rarity: "common"},
		{ID: "coral_blade", Name: "Coral Blade", Slot: SlotWeapon, Price: 200, DamageBonus: 8, Rarity: "uncommon"},
		{ID: "abyssal_trident", Name: "Abyssal Trident", Slot: SlotWeapon, Price: 900, DamageBonus: 18, Rarity: "rare"},
		{ID: "leviathan_fang", Name: "Fang of the Leviathan", Slot: SlotWeapon, Price: 0, DamageBonus: 35, Rarity: "legendary"},
		{ID: "kelp_wrap", Name: "Kelp Wrap", Slot: SlotArmor, Price: 40, DamageReduction: 2, Rarity: "common"},
		{ID: "ruinsteel_plate", Name: "Ruinsteel Plate", Slot: SlotArmor, Price: 350, DamageReduction: 9, Rarity: "uncommon"},
		{ID: "rebreather", Name: "Rebreather", Slot: SlotAccessory, Price: 150, IsRebreather: true, Rarity: "uncommon"},
		{ID: "pressure_charm", Name: "Pressure Charm", Slot: SlotAccessory, Price: 300, IsPressureResist: true, Rarity: "rare"},
	}
	for _, e := range equipment {
		c.Equipment[e.ID] = e
	}
	c.LegendaryItems = []string{"leviathan_fang"}

	shop := []ShopItem{
		{ID: "healing_draught", Name: "Healing Draught", Price: 25, Effect: "restore_hp_50", Rarity: "common"},
		{ID: "energy_tonic", Name: "Energy Tonic", Price: 20, Effect: "restore_energy_50", Rarity: "common"},
		{ID: "greater_healing_draught", Name: "Greater Healing Draught", Price: 80, Effect: "restore_hp_100", Rarity: "uncommon"},
	}
	for _, s := range shop {
		c.ShopItems[s.ID] = s
	}
	c.FeaturedPool = []string{"healing_draught", "energy_tonic", "greater_healing_draught"}

	c.FastTravel = []FastTravelEdge{
		{From: "shallows", To: "coral_gardens", Cost: 5, Name: "Tide Ferry"},
		{From: "coral_gardens", To: "shallows", Cost: 5, Name: "Tide Ferry"},
		{From: "coral_gardens", To: "sunken_ruins", Cost: 15, Name: "Ruin Skiff"},
		{From: "sunken_ruins", To: "coral_gardens", Cost: 15, Name: "Ruin Skiff"},
		{From: "sunken_ruins", To: "deep_trench", Cost: 30, Name: "Trench Dive"},
		{From: "deep_trench", To: "sunken_ruins", Cost: 30, Name: "Trench Dive"},
		{From: "deep_trench", To: "leviathans_lair", Cost: 0, Name: "Lair Current"},
		{From: "shallows", To: "the_abyss", Cost: 0, Name: "Abyss Rift"},
		{From: "shallows", To: "arena", Cost: 0, Name: "Arena Gate"},
	}

	factions := []FactionBonus{
		{ID: "tideguard", Name: "Tideguard", XPMultiplier: 1.1, ShellMultiplier: 1.0, DamageMultiplier: 1.0, CritChance: 0.08, MaxHPBonus: 30, MaxDamageBonus: 0},
		{ID: "depthcallers", Name: "Depthcallers", XPMultiplier: 1.0, ShellMultiplier: 1.2, DamageMultiplier: 1.0, CritChance: 0.05, MaxHPBonus: 0, MaxDamageBonus: 0},
		{ID: "wavebreakers", Name: "Wavebreakers", XPMultiplier: 1.0, ShellMultiplier: 1.0, DamageMultiplier: 1.15, CritChance: 0.12, MaxHPBonus: 0, MaxDamageBonus: 5},
	}
	for _, f := range factions {
		c.Factions[f.ID] = f
	}

	c.DungeonConfigs["sunken_ruins"] = DungeonConfig{
		ZoneID: "sunken_ruins", Waves: 3, MobsPerWave: 3, BossHP: 400, BossDamage: 18, ZoneMultiplier: 1.5,
		LootTable: []LootEntry{{Resource: "ruinsteel", Chance: 0.7, Min: 2, Max: 5}, {Resource: "void_crystals", Chance: 0.2, Min: 1, Max: 1}},
		EquipDrops: []string{"coral_blade"},
	}
	c.DungeonConfigs["deep_trench"] = DungeonConfig{
		ZoneID: "deep_trench", Waves: 4, MobsPerWave: 3, BossHP: 900, BossDamage: 28, ZoneMultiplier: 2.2,
		LootTable: []LootEntry{{Resource: "abyssal_pearl", Chance: 0.5, Min: 1, Max: 3}},
		EquipDrops: []string{"abyssal_trident", "ruinsteel_plate"},
	}

	c.AbyssReqs = []AbyssRequirement{
		{Resource: "shells", Required: 100000},
		{Resource: "coral_shards", Required: 5000},
		{Resource: "void_crystals", Required: 2000},
		{Resource: "abyssal_pearl", Required: 1000},
		{Resource: "ruinsteel", Required: 3000},
		{Resource: "leviathan_scale", Required: 500},
	}

	return c
}
