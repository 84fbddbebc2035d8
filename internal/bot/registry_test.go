// ABOUTME: Tests for the bot registry and its persistence behavior
// ABOUTME: Covers index maintenance, case folding, and reload round-trips

package bot

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/2389/bot-relay/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestRegistry(t *testing.T) (*Registry, storage.Storage) {
	t.Helper()
	store := storage.NewMemory()
	r, err := NewRegistry(context.Background(), store, testLogger())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r, store
}

func TestRegistry_SaveAndFind(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	b := New("team-1", "mybot", "secret")
	saved, err := r.Save(ctx, b)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID != b.ID {
		t.Errorf("saved.ID = %q, want %q", saved.ID, b.ID)
	}

	byID, err := r.FindByID(b.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if byID.Name != "mybot" {
		t.Errorf("FindByID().Name = %q, want %q", byID.Name, "mybot")
	}

	byName, err := r.FindByTeamAndName("team-1", "mybot")
	if err != nil {
		t.Fatalf("FindByTeamAndName() error = %v", err)
	}
	if byName.ID != b.ID {
		t.Errorf("FindByTeamAndName().ID = %q, want %q", byName.ID, b.ID)
	}
}

func TestRegistry_FindIsCaseInsensitive(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	b := New("team-1", "MyBot", "secret")
	if _, err := r.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	found, err := r.FindByTeamAndName("team-1", "mybot")
	if err != nil {
		t.Fatalf("FindByTeamAndName(lowercase) error = %v", err)
	}
	// The stored display name keeps its original casing.
	if found.Name != "MyBot" {
		t.Errorf("found.Name = %q, want %q", found.Name, "MyBot")
	}

	if !r.Exists("team-1", "MYBOT") {
		t.Error("Exists(MYBOT) = false, want true")
	}
}

func TestRegistry_FindNotFound(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.FindByID("no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID() error = %v, want ErrNotFound", err)
	}

	_, err = r.FindByTeamAndName("team-1", "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByTeamAndName() error = %v, want ErrNotFound", err)
	}

	if r.Exists("team-1", "ghost") {
		t.Error("Exists(ghost) = true, want false")
	}
}

func TestRegistry_SaveRename_MovesIndexEntry(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	b := New("team-1", "oldname", "secret")
	if _, err := r.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	b.Name = "newname"
	if _, err := r.Save(ctx, b); err != nil {
		t.Fatalf("Save(renamed) error = %v", err)
	}

	if r.Exists("team-1", "oldname") {
		t.Error("Exists(oldname) = true after rename, want false")
	}
	if !r.Exists("team-1", "newname") {
		t.Error("Exists(newname) = false after rename, want true")
	}
}

func TestRegistry_SaveTeamChange_MovesIndexEntries(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	b := New("team-1", "mybot", "secret")
	if _, err := r.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	b.AddTeam("team-2")
	b.RemoveTeam("team-1")
	if _, err := r.Save(ctx, b); err != nil {
		t.Fatalf("Save(moved) error = %v", err)
	}

	if r.Exists("team-1", "mybot") {
		t.Error("Exists in team-1 = true after move, want false")
	}
	if !r.Exists("team-2", "mybot") {
		t.Error("Exists in team-2 = false after move, want true")
	}
}

func TestRegistry_DeleteByID(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	b := New("team-1", "mybot", "secret")
	if _, err := r.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deleted, err := r.DeleteByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if deleted.ID != b.ID {
		t.Errorf("deleted.ID = %q, want %q", deleted.ID, b.ID)
	}

	if _, err := r.FindByID(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after delete error = %v, want ErrNotFound", err)
	}
	if r.Exists("team-1", "mybot") {
		t.Error("Exists = true after delete, want false")
	}

	if _, err := r.DeleteByID(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteByID error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_GetAllByTeam(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		if _, err := r.Save(ctx, New("team-1", name, "secret")); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
	}
	if _, err := r.Save(ctx, New("team-2", "gamma", "secret")); err != nil {
		t.Fatalf("Save(gamma) error = %v", err)
	}

	bots := r.GetAllByTeam("team-1")
	if len(bots) != 2 {
		t.Fatalf("GetAllByTeam(team-1) len = %d, want 2", len(bots))
	}
	for _, b := range bots {
		if !b.InTeam("team-1") {
			t.Errorf("bot %q not in team-1", b.Name)
		}
	}

	if got := r.GetAllByTeam("team-3"); len(got) != 0 {
		t.Errorf("GetAllByTeam(team-3) len = %d, want 0", len(got))
	}
}

func TestRegistry_ReturnsClones(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	b := New("team-1", "mybot", "secret")
	if _, err := r.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	found, _ := r.FindByID(b.ID)
	found.Name = "mutated"

	again, _ := r.FindByID(b.ID)
	if again.Name != "mybot" {
		t.Errorf("registry record mutated through returned copy: Name = %q", again.Name)
	}
}

func TestRegistry_ReloadRoundTrip(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	r1, err := NewRegistry(ctx, store, testLogger())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	b := New("team-1", "mybot", "secret")
	b.AddTeam("team-2")
	b.Disabled = true
	if _, err := r1.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// A second registry over the same store sees the saved state.
	r2, err := NewRegistry(ctx, store, testLogger())
	if err != nil {
		t.Fatalf("NewRegistry(reload) error = %v", err)
	}

	found, err := r2.FindByID(b.ID)
	if err != nil {
		t.Fatalf("FindByID after reload error = %v", err)
	}
	if found.Name != "mybot" || !found.Disabled || len(found.TeamIDs) != 2 {
		t.Errorf("reloaded bot = %+v, want original fields preserved", found)
	}
	if !r2.Exists("team-2", "mybot") {
		t.Error("name index not rebuilt for team-2 on reload")
	}
}

func TestNewRegistry_EmptyStore(t *testing.T) {
	r, _ := newTestRegistry(t)
	if got := r.GetAllByTeam("any"); len(got) != 0 {
		t.Errorf("fresh registry has %d bots, want 0", len(got))
	}
}

func TestNewRegistry_CorruptRecord(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	// A record with no secret must fail the load.
	blob := []byte(`{"some-id":{"id":"some-id","name":"mybot","teamIds":["team-1"]}}`)
	if err := store.Save(ctx, blob); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	if _, err := NewRegistry(ctx, store, testLogger()); err == nil {
		t.Fatal("NewRegistry() error = nil, want corrupt-table error")
	}
}

func TestNewRegistry_MalformedBlob(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	if err := store.Save(ctx, []byte("not json")); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	if _, err := NewRegistry(ctx, store, testLogger()); err == nil {
		t.Fatal("NewRegistry() error = nil, want parse error")
	}
}
