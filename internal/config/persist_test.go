package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lab1702/skirmishd/internal/game"
)

func TestSplitQuotedHandlesQuotedRuns(t *testing.T) {
	fields, err := splitQuoted(`pban "10.0.0.*" "spamming" -1`)
	if err != nil {
		t.Fatalf("splitQuoted: %v", err)
	}
	want := []string{"pban", "10.0.0.*", "spamming", "-1"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("fields[%d] = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestSplitQuotedRejectsUnterminatedQuote(t *testing.T) {
	if _, err := splitQuoted(`blacklist "unterminated`); err == nil {
		t.Fatalf("expected an error for an unterminated quote")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.cfg")

	state := PersistedState{
		Bans: []game.Ban{
			{Match: "10.0.0.*", Name: "spammer", Expiry: game.Expiry{Permanent: true}},
			{Match: "10.0.0.1", Name: "tempban", Expiry: game.Expiry{At: 5000}},
		},
		Blacklist: []game.Notice{{Match: "bad.host", Reason: "known cheater"}},
		Whitelist: []game.Notice{{Match: "good.host", Reason: "trusted admin"}},
		BotNames:  []string{"bruce", "cat"},
		Vars:      map[string]string{"maxclients": "32"},
	}

	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if len(got.Bans) != 2 {
		t.Fatalf("bans = %d, want 2", len(got.Bans))
	}
	if !got.Bans[0].Expiry.Permanent {
		t.Errorf("first ban should be permanent, got %+v", got.Bans[0])
	}
	if got.Bans[1].Expiry.Permanent || got.Bans[1].Expiry.At != 5000 {
		t.Errorf("second ban = %+v, want non-permanent expiry at 5000", got.Bans[1])
	}
	if len(got.Blacklist) != 1 || got.Blacklist[0].Match != "bad.host" {
		t.Errorf("blacklist = %+v", got.Blacklist)
	}
	if len(got.Whitelist) != 1 || got.Whitelist[0].Reason != "trusted admin" {
		t.Errorf("whitelist = %+v", got.Whitelist)
	}
	if len(got.BotNames) != 2 || got.BotNames[0] != "bruce" {
		t.Errorf("bot names = %v", got.BotNames)
	}
	if got.Vars["maxclients"] != "32" {
		t.Errorf("vars[maxclients] = %q, want 32", got.Vars["maxclients"])
	}
}

func TestReadMissingFileReturnsEmptyState(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "does-not-exist.cfg"))
	if err != nil {
		t.Fatalf("Read of a missing file should not error, got %v", err)
	}
	if len(got.Bans) != 0 || len(got.BotNames) != 0 {
		t.Errorf("expected empty state, got %+v", got)
	}
}

func TestReadSkipsUnknownDirectives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.cfg")
	raw := "// a comment\nfrobnicate \"nonsense\"\nbotname \"bruce\"\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.BotNames) != 1 || got.BotNames[0] != "bruce" {
		t.Errorf("expected the known botname line to survive, got %+v", got)
	}
}
