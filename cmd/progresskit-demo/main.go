package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	mem "progresskit/adapters/memory"
	ws "progresskit/adapters/websocket"
	"progresskit/analytics"
	"progresskit/config"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/leaderboard"
	"progresskit/progress"
	"progresskit/realtime"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger()

	store := mem.New()
	seed(store)

	if cfg.Titles.Path != "" {
		titles, err := config.LoadTitles(cfg.Titles.Path)
		if err != nil {
			logger.Error("failed to load title catalog", "error", err)
			os.Exit(1)
		}
		for _, def := range titles {
			store.PutTitle(def)
		}
	}

	strategy, _ := engine.StrategyByName(cfg.XP.Strategy)
	hub := realtime.NewHub()
	svc := progress.New(
		progress.WithStorage(store),
		progress.WithStrategy(strategy),
		progress.WithXPConfig(cfg.XP),
		progress.WithRealtime(hub),
		progress.WithLogger(logger),
	)
	defer svc.Close()

	// Read models fed from the event stream
	board := leaderboard.NewSkipList()
	tracker := leaderboard.NewTracker(board)
	dau := analytics.NewDAU()
	svc.Subscribe(core.EventXPAwarded, tracker.OnEvent)
	svc.Subscribe(core.EventXPAwarded, dau.OnEvent)

	http.Handle("/ws", ws.Handler(hub))
	http.HandleFunc("/users/", usersHandler(store, svc))
	http.HandleFunc("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, board.TopN(10))
	})

	logger.Info("starting demo server on :8080", "strategy", cfg.XP.Strategy)

	if err := http.ListenAndServe(":8080", nil); err != nil {
		logger.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

// usersHandler serves POST /users/{id}/entries, GET /users/{id}/targets and
// GET /users/{id}/titles. Path ids are normalized the same way the service
// normalizes them; an id that is empty after trimming is a 400.
func usersHandler(store *mem.Store, svc *engine.ProgressionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := split(r.URL.Path, '/')
		if len(parts) < 3 {
			http.NotFound(w, r)
			return
		}
		ctx := r.Context()
		user, err := core.NormalizeUserID(core.UserID(parts[1]))
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		switch {
		case r.Method == http.MethodPost && parts[2] == "entries":
			var req struct {
				Content  string               `json:"content"`
				Detected core.DetectedTargets `json:"detected"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			entry := core.JournalEntry{
				ID:        uuid.NewString(),
				UserID:    user,
				Content:   req.Content,
				CreatedAt: time.Now().UTC(),
			}
			store.AddEntry(entry)
			result, unlocked, err := svc.ProcessEntry(ctx, user, entry, req.Detected)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"xp": result, "unlocked": unlocked})
			return
		case r.Method == http.MethodGet && parts[2] == "targets":
			kind := core.TargetKind(r.URL.Query().Get("kind"))
			if kind == "" {
				kind = core.KindTheme
			}
			targets, err := svc.Targets(ctx, user, kind)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, targets)
			return
		case r.Method == http.MethodGet && parts[2] == "titles":
			grants, err := svc.Grants(ctx, user)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, grants)
			return
		}
		http.NotFound(w, r)
	}
}

// seed loads a small fixture so the demo responds out of the box.
func seed(store *mem.Store) {
	targets := []struct {
		kind core.TargetKind
		id   string
		name string
	}{
		{core.KindTheme, "theme-education", "Education"},
		{core.KindTheme, "theme-health", "Health"},
		{core.KindSkill, "skill-writing", "Writing"},
	}
	for _, t := range targets {
		tgt, err := core.NewTarget(t.kind, t.id, "demo", t.name)
		if err != nil {
			continue
		}
		store.PutTarget(tgt)
	}
	store.PutTitle(core.TitleDefinition{
		ID:   "first-steps",
		Name: "First Steps",
		Rank: core.RankF,
		UnlockCondition: core.Leaf(engine.TagJournalEntries, map[string]any{
			"count": 1,
		}),
	})
	store.PutTitle(core.TitleDefinition{
		ID:       "scholar",
		Name:     "Scholar",
		Rank:     core.RankB,
		Category: "journaling",
		Effect: core.TitleEffect{
			Type:   core.EffectXPMultiplier,
			Scope:  core.ScopeTheme,
			Target: "Education",
			Value:  1.2,
		},
		UnlockCondition: core.Leaf(engine.TagThemeLevel, map[string]any{
			"theme": "Education",
			"level": 5,
		}),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func split(p string, sep rune) []string {
	var parts []string
	current := make([]rune, 0, len(p))

	for _, r := range p {
		if r == sep {
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = current[:0]
			}
			continue
		}
		current = append(current, r)
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}

	return parts
}
