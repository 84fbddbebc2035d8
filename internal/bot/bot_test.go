// ABOUTME: Tests for the bot record type and name validation
// ABOUTME: Covers cloning, team membership, and the name rules

package bot

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	b := New("team-1", "mybot", "secret123")

	if b.ID == "" {
		t.Error("New() bot has empty ID")
	}
	if b.Name != "mybot" {
		t.Errorf("Name = %q, want %q", b.Name, "mybot")
	}
	if b.Secret != "secret123" {
		t.Errorf("Secret = %q, want %q", b.Secret, "secret123")
	}
	if len(b.TeamIDs) != 1 || b.TeamIDs[0] != "team-1" {
		t.Errorf("TeamIDs = %v, want [team-1]", b.TeamIDs)
	}
	if b.Disabled {
		t.Error("new bot is disabled, want enabled")
	}
	if !strings.Contains(b.IconRef, b.ID) {
		t.Errorf("IconRef = %q, want it derived from id %q", b.IconRef, b.ID)
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New("team-1", "bot", "s")
	b := New("team-1", "bot", "s")
	if a.ID == b.ID {
		t.Errorf("two bots share id %q", a.ID)
	}
}

func TestClone_Independent(t *testing.T) {
	b := New("team-1", "mybot", "secret")
	c := b.Clone()

	c.Name = "other"
	c.TeamIDs[0] = "team-2"
	c.AddTeam("team-3")

	if b.Name != "mybot" {
		t.Errorf("original Name = %q after clone mutation, want %q", b.Name, "mybot")
	}
	if b.TeamIDs[0] != "team-1" {
		t.Errorf("original TeamIDs[0] = %q after clone mutation, want %q", b.TeamIDs[0], "team-1")
	}
	if len(b.TeamIDs) != 1 {
		t.Errorf("original TeamIDs len = %d after clone mutation, want 1", len(b.TeamIDs))
	}
}

func TestClone_Nil(t *testing.T) {
	var b *Bot
	if b.Clone() != nil {
		t.Error("Clone() of nil bot != nil")
	}
}

func TestTeamMembership(t *testing.T) {
	b := New("team-1", "mybot", "secret")

	if !b.InTeam("team-1") {
		t.Error("InTeam(team-1) = false, want true")
	}
	if b.InTeam("team-2") {
		t.Error("InTeam(team-2) = true, want false")
	}

	b.AddTeam("team-2")
	if !b.InTeam("team-2") {
		t.Error("InTeam(team-2) after AddTeam = false, want true")
	}

	// Idempotent add
	b.AddTeam("team-2")
	if len(b.TeamIDs) != 2 {
		t.Errorf("TeamIDs len after duplicate AddTeam = %d, want 2", len(b.TeamIDs))
	}

	b.RemoveTeam("team-1")
	if b.InTeam("team-1") {
		t.Error("InTeam(team-1) after RemoveTeam = true, want false")
	}

	// Idempotent remove
	b.RemoveTeam("team-1")
	if len(b.TeamIDs) != 1 {
		t.Errorf("TeamIDs len after duplicate RemoveTeam = %d, want 1", len(b.TeamIDs))
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple lowercase", "mybot", false},
		{"mixed case", "MyBot", false},
		{"digits", "bot42", false},
		{"single char", "a", false},
		{"max length", "abcdefghij", false},
		{"empty", "", true},
		{"too long", "abcdefghijk", true},
		{"space", "my bot", true},
		{"dash", "my-bot", true},
		{"unicode", "böt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateName(%q) = nil, want error", tt.input)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateName(%q) = %v, want nil", tt.input, err)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("ValidateName(%q) error = %v, want ErrInvalidArgument", tt.input, err)
			}
		})
	}
}

func TestNameKey(t *testing.T) {
	if NameKey("MyBot") != NameKey("mybot") {
		t.Error("NameKey folds differently for MyBot and mybot")
	}
	if NameKey("bot1") == NameKey("bot2") {
		t.Error("NameKey collides for distinct names")
	}
}
