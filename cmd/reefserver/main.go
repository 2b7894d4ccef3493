// Command reefserver runs the Reef multi-agent world engine: HTTP API,
// background scheduler, and persistence snapshot cycle.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/reef-engine/internal/action"
	"github.com/talgya/reef-engine/internal/config"
	"github.com/talgya/reef-engine/internal/httpapi"
	"github.com/talgya/reef-engine/internal/persistence"
	"github.com/talgya/reef-engine/internal/scheduler"
	"github.com/talgya/reef-engine/internal/state"
	"github.com/talgya/reef-engine/internal/treasury"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found — reading config from process environment")
	}

	slog.Info("Reef — multi-agent coral-reef MMO engine")

	dbPath := envOr("REEF_DB_PATH", "data/reef.db")
	apiPort := envOrInt("REEF_API_PORT", 8080)
	devMode := os.Getenv("DEV_MODE") == "true"

	os.MkdirAll("data", 0o755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	cat := config.Default()
	w := state.NewWorld(cat)
	router := action.NewRouter(cat, w)

	if db.HasWorldState() {
		slog.Info("found saved world state, loading...")
		subsystems := persistence.Subsystems{
			Parties:     router.Parties,
			Engagements: router.Engagements,
			Boss:        router.Boss,
			Abyss:       router.Abyss,
			Duels:       router.Duels,
			Tournaments: router.Tournaments,
			Board:       router.Board,
			Quests:      router.Quests,
			Listings:    router.Listings,
			Predictions: router.Predictions,
			Tutorial:    router.Tutorial,
		}
		if err := persistence.LoadAll(db, w, subsystems); err != nil {
			slog.Error("failed to load world state", "error", err)
			os.Exit(1)
		}
		if tickStr, err := db.GetMeta("tick"); err == nil {
			if t, err := strconv.ParseUint(tickStr, 10, 64); err == nil {
				for w.Tick() < t {
					w.AdvanceTick()
				}
			}
		}
		slog.Info("world state restored", "agents", len(w.AllAgents()), "tick", w.Tick())
	} else {
		slog.Info("no saved state found, starting fresh world")
	}

	// ── Treasury client (absent envs = feature disabled, §6) ───────────
	rpcURL := os.Getenv("MONAD_RPC_URL")
	contractAddr := os.Getenv("REEF_CONTRACT_ADDRESS")
	privateKey := os.Getenv("BACKEND_PRIVATE_KEY")
	if rpcURL != "" && contractAddr != "" && privateKey != "" {
		chainID := int64(envOrInt("MONAD_CHAIN_ID", 10143))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := treasury.Dial(ctx, rpcURL, contractAddr, privateKey, chainID)
		cancel()
		if err != nil {
			slog.Error("treasury dial failed — continuing with treasury disabled", "error", err)
		} else {
			router.Treasury = client
			slog.Info("treasury client enabled", "contract", contractAddr)
		}
	} else {
		slog.Info("treasury env vars not set — on-chain payouts disabled")
	}
	router.LogTx = func(d treasury.Distribution) {
		if err := db.LogTransaction(d); err != nil {
			slog.Error("failed to log transaction", "error", err)
		}
	}

	// ── Scheduler ────────────────────────────────────────────────────
	sched := scheduler.New(router, w, db, time.Second, 30)
	go sched.Run()

	// ── HTTP API ─────────────────────────────────────────────────────
	apiServer := &httpapi.Server{
		Router:   router,
		World:    w,
		DB:       db,
		Port:     apiPort,
		AdminKey: os.Getenv("REEF_ADMIN_KEY"),
		DevMode:  devMode,
	}
	apiServer.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)
	sched.Stop()

	subsystems := persistence.Subsystems{
		Parties:     router.Parties,
		Engagements: router.Engagements,
		Boss:        router.Boss,
		Abyss:       router.Abyss,
		Duels:       router.Duels,
		Tournaments: router.Tournaments,
		Board:       router.Board,
		Quests:      router.Quests,
		Listings:    router.Listings,
		Predictions: router.Predictions,
		Tutorial:    router.Tutorial,
	}
	if err := persistence.SaveAll(db, w, subsystems); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Reef server stopped. World state saved.")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
