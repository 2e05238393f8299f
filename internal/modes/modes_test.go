package modes

import (
	"testing"

	"github.com/lab1702/skirmishd/internal/game"
)

func TestFFAFragValueAndTeams(t *testing.T) {
	m := NewFFA()
	if v := m.FragValue(0, 1, false); v != 1 {
		t.Errorf("FragValue(enemy) = %d, want 1", v)
	}
	if v := m.FragValue(0, 0, false); v != -1 {
		t.Errorf("FragValue(self) = %d, want -1", v)
	}
	c := game.NewClient(0)
	if m.CanChangeTeam(c, game.TeamGood) {
		t.Errorf("FFA should not allow team changes")
	}
}

func TestCTFFragValuePenalizesTeamkillHarder(t *testing.T) {
	m := NewCTF()
	if v := m.FragValue(0, 1, false); v != 1 {
		t.Errorf("enemy frag = %d, want 1", v)
	}
	if v := m.FragValue(0, 0, false); v != -1 {
		t.Errorf("suicide = %d, want -1", v)
	}
	if v := m.FragValue(0, 1, true); v != -2 {
		t.Errorf("teamkill = %d, want -2", v)
	}
}

func TestCTFFlagCapturedScoresOwnTeam(t *testing.T) {
	m := NewCTF()
	c := game.NewClient(0)
	c.Team = game.TeamGood

	m.FlagCaptured(c)
	if c.State.Flags != 1 {
		t.Errorf("client flags = %d, want 1", c.State.Flags)
	}
	if got := m.GetTeamScore(game.TeamGood); got != 1 {
		t.Errorf("good score = %d, want 1", got)
	}
	if got := m.GetTeamScore(game.TeamEvil); got != 0 {
		t.Errorf("evil score = %d, want 0", got)
	}

	c2 := game.NewClient(1)
	c2.Team = game.TeamEvil
	m.FlagCaptured(c2)
	if got := m.GetTeamScore(game.TeamEvil); got != 1 {
		t.Errorf("evil score = %d, want 1", got)
	}
}

func TestCaptureUpdateAccumulatesHeldTime(t *testing.T) {
	m := NewCapture()
	m.SetHeld(2, 1)

	m.Update(3000)
	if got := m.GetTeamScore(game.TeamGood); got != 6 {
		t.Errorf("good score after 3s held by 2 bases = %d, want 6", got)
	}
	if got := m.GetTeamScore(game.TeamEvil); got != 3 {
		t.Errorf("evil score after 3s held by 1 base = %d, want 3", got)
	}

	m.SetHeld(0, 0)
	m.Update(5000)
	if got := m.GetTeamScore(game.TeamGood); got != 6 {
		t.Errorf("score should not grow once bases are unheld, got %d", got)
	}
}

func TestCaptureUpdateIgnoresSubSecondDeltas(t *testing.T) {
	m := NewCapture()
	m.SetHeld(5, 5)
	m.Update(999)
	if got := m.GetTeamScore(game.TeamGood); got != 0 {
		t.Errorf("sub-second delta should not accumulate score, got %d", got)
	}
}

func TestCoopEditNeverScoresAndHidesFrags(t *testing.T) {
	m := NewCoopEdit()
	c := game.NewClient(0)
	if !m.CanSpawn(c) {
		t.Errorf("coopedit should always allow spawning")
	}
	if v := m.FragValue(0, 1, false); v != 0 {
		t.Errorf("FragValue = %d, want 0", v)
	}
	if !m.HideFrags() {
		t.Errorf("coopedit should hide frags")
	}
}

func TestBaseResetClearsIntermission(t *testing.T) {
	var b Base
	if b.Intermission() {
		t.Fatalf("new Base should not start in intermission")
	}
	b.interm = true
	if !b.Intermission() {
		t.Fatalf("expected intermission flag to read back true")
	}
	b.Reset()
	if b.Intermission() {
		t.Errorf("Reset should clear intermission")
	}
}

func TestBaseChangeTeamAssignsTeam(t *testing.T) {
	var b Base
	c := game.NewClient(0)
	b.ChangeTeam(c, game.TeamEvil)
	if c.Team != game.TeamEvil {
		t.Errorf("client team = %v, want TeamEvil", c.Team)
	}
}

func TestModeInterfaceSatisfiedByAllPlugins(t *testing.T) {
	var _ Mode = NewFFA()
	var _ Mode = NewCTF()
	var _ Mode = NewCapture()
	var _ Mode = NewCoopEdit()
}

func TestTeamModeFlags(t *testing.T) {
	cases := []struct {
		mode Mode
		want bool
	}{
		{NewFFA(), false},
		{NewCTF(), true},
		{NewCapture(), true},
		{NewCoopEdit(), false},
	}
	for _, c := range cases {
		if got := c.mode.TeamMode(); got != c.want {
			t.Errorf("%s.TeamMode() = %v, want %v", c.mode.Name(), got, c.want)
		}
	}
}

func TestNewByNameFallsBackToFFA(t *testing.T) {
	if NewByName("ctf").Name() != "ctf" {
		t.Error("NewByName(ctf) should construct CTF")
	}
	if NewByName("capture").Name() != "capture" {
		t.Error("NewByName(capture) should construct Capture")
	}
	if NewByName("coopedit").Name() != "coopedit" {
		t.Error("NewByName(coopedit) should construct CoopEdit")
	}
	if NewByName("bogus").Name() != "ffa" {
		t.Error("NewByName should fall back to FFA for an unrecognized name")
	}
}
