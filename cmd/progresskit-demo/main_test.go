package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mem "progresskit/adapters/memory"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/progress"
)

func newTestHandler(t *testing.T) (http.HandlerFunc, *mem.Store) {
	t.Helper()
	store := mem.New()
	seed(store)
	svc := progress.New(
		progress.WithStorage(store),
		progress.WithDispatchMode(engine.DispatchSync),
	)
	t.Cleanup(svc.Close)
	return usersHandler(store, svc), store
}

func TestUsersHandlerNormalizesPathID(t *testing.T) {
	h, _ := newTestHandler(t)

	// seed data lives under "demo"; a mixed-case path id must reach it
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/users/Demo/targets", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var targets []core.ProgressionTarget
	if err := json.NewDecoder(rec.Body).Decode(&targets); err != nil {
		t.Fatalf("decode targets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d themes, want 2: %+v", len(targets), targets)
	}
	for _, tgt := range targets {
		if tgt.UserID != "demo" {
			t.Fatalf("target owned by %q, want demo", tgt.UserID)
		}
	}
}

func TestUsersHandlerRejectsBlankID(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/users/%20%20/targets", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUsersHandlerProcessEntry(t *testing.T) {
	h, store := newTestHandler(t)

	body := `{"content":"studied hard","detected":{"themes":[{"id":"theme-education","name":"Education"}]}}`
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/users/Demo/entries", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		XP engine.XPResult `json:"xp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.XP.TotalXP <= 0 {
		t.Fatalf("TotalXP = %v, want > 0", resp.XP.TotalXP)
	}

	// the award lands on the lowercased user
	tgt, err := store.GetTargetByID(context.Background(), "demo", core.KindTheme, "theme-education")
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if tgt.XP != resp.XP.TotalXP {
		t.Fatalf("stored XP %v, want %v", tgt.XP, resp.XP.TotalXP)
	}
}
