package protocol

import (
	"testing"

	"github.com/lab1702/skirmishd/internal/game"
	"github.com/lab1702/skirmishd/internal/wire"
)

// fakeSink records every effect a Dispatcher produces, so tests can assert on
// what was sent/broadcast/dropped without a real transport.
type fakeSink struct {
	sent          []int
	bulkSent      []int
	broadcast     int
	broadcastData [][]byte
	drops         []MsgType
}

func (f *fakeSink) SendTo(cn int, data []byte)   { f.sent = append(f.sent, cn) }
func (f *fakeSink) SendBulk(cn int, data []byte) { f.bulkSent = append(f.bulkSent, cn) }
func (f *fakeSink) Broadcast(excludeCN int, data []byte) {
	f.broadcast++
	f.broadcastData = append(f.broadcastData, data)
}
func (f *fakeSink) LogDrop(cn int, tag MsgType, reason string) {
	f.drops = append(f.drops, tag)
}

// fakeAuth is a minimal AuthRelay double for dispatcher tests.
type fakeAuth struct {
	connected      bool
	requestedID    int
	requestedName  string
	answeredID     int
	answeredAnswer string
}

func (f *fakeAuth) RequestAuth(id int, name string) bool {
	f.requestedID, f.requestedName = id, name
	return f.connected
}

func (f *fakeAuth) AnswerChallenge(id int, answer string) bool {
	f.answeredID, f.answeredAnswer = id, answer
	return f.connected
}

// fakeDemo is a minimal DemoControl double for dispatcher tests.
type fakeDemo struct {
	recording bool
	demos     map[int][]byte
	cleared   []int
	emptyList bool
}

func newFakeDemo() *fakeDemo { return &fakeDemo{demos: map[int][]byte{1: []byte("demo-bytes")}} }

func (f *fakeDemo) SetRecording(on bool) { f.recording = on }
func (f *fakeDemo) ListDemos() []string {
	if f.emptyList {
		return nil
	}
	return []string{"demo one", "demo two"}
}
func (f *fakeDemo) GetDemo(num int) ([]byte, bool) {
	d, ok := f.demos[num]
	return d, ok
}
func (f *fakeDemo) ClearDemos(n int) { f.cleared = append(f.cleared, n) }

func newActiveClient(reg *game.Registry) *game.Client {
	c, err := reg.BeginConnect()
	if err != nil {
		panic(err)
	}
	reg.CompleteConnect(c)
	c.State.State = game.StateAlive
	c.State.Health = 100
	return c
}

func TestDispatchUnknownTagIsFatal(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(numMsgTypes) + 50)
	buf := wire.NewBuffer(b.Bytes())

	err := d.Dispatch(c.CN, buf, 0)
	fe, ok := err.(*FatalError)
	if !ok {
		t.Fatalf("expected *FatalError, got %v", err)
	}
	if fe.Reason != ReasonBadTag {
		t.Errorf("reason = %v, want ReasonBadTag", fe.Reason)
	}
}

func TestDispatchServerOnlyTagFromClientIsFatal(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Damage))
	for i := 0; i < 5; i++ {
		b.PutInt(0)
	}
	buf := wire.NewBuffer(b.Bytes())

	err := d.Dispatch(c.CN, buf, 0)
	fe, ok := err.(*FatalError)
	if !ok {
		t.Fatalf("expected *FatalError, got %v", err)
	}
	if fe.Reason != ReasonBadTag {
		t.Errorf("reason = %v, want ReasonBadTag", fe.Reason)
	}
}

func TestDispatchServerOnlyTagAllowedFromLocal(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())
	d.MarkLocal(c.CN)

	var b wire.Buffer
	b.PutInt(int(Damage))
	for i := 0; i < 5; i++ {
		b.PutInt(0)
	}
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("local client should not be rejected for server-only tag: %v", err)
	}
}

func TestDispatchTextBroadcasts(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Text))
	b.PutString("hello")
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sink.broadcast != 1 {
		t.Errorf("broadcast count = %d, want 1", sink.broadcast)
	}
}

func TestDispatchTextSpamIsDropped(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())
	cfg := game.DefaultGuardConfig()

	for i := 0; i < cfg.MaxSpam; i++ {
		var b wire.Buffer
		b.PutInt(int(Text))
		b.PutString("spam")
		buf := wire.NewBuffer(b.Bytes())
		if err := d.Dispatch(c.CN, buf, 0); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	sink.broadcast = 0
	var b wire.Buffer
	b.PutInt(int(Text))
	b.PutString("over the limit")
	buf := wire.NewBuffer(b.Bytes())
	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sink.broadcast != 0 {
		t.Errorf("over-threshold message should not broadcast, got %d", sink.broadcast)
	}
	if len(sink.drops) == 0 {
		t.Errorf("expected a LogDrop call for the over-threshold message")
	}
}

func TestDispatchPosRejectsNonOwner(t *testing.T) {
	reg := game.NewRegistry()
	sender := newActiveClient(reg)
	victim := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Pos))
	b.PutInt(victim.CN) // sender claims to be sending position for someone else
	b.PutInt(1)
	b.PutInt(2)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(sender.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(victim.PosBuf) != 0 {
		t.Errorf("non-owner pos update should not be applied, PosBuf = %v", victim.PosBuf)
	}
	if len(sink.drops) == 0 {
		t.Errorf("expected LogDrop for non-owner pos update")
	}
	if !buf.Empty() || buf.Overread {
		t.Errorf("dropped pos body should still be fully consumed, empty=%v overread=%v", buf.Empty(), buf.Overread)
	}
}

func TestDispatchPosAcceptsSelf(t *testing.T) {
	reg := game.NewRegistry()
	sender := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Pos))
	b.PutInt(sender.CN)
	b.PutInt(7)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(sender.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !buf.Empty() || buf.Overread {
		t.Errorf("pos body should be fully consumed, empty=%v overread=%v", buf.Empty(), buf.Overread)
	}
	out := wire.NewBuffer(sender.PosBuf)
	if v := out.GetInt(); v != 7 {
		t.Errorf("forwarded pos payload = %d, want 7 (the original body must be forwarded, not a wrong-offset slice)", v)
	}
}

func TestDispatchEditDroppedForSpectator(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	c.State.State = game.StateSpectator
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Flip))
	b.PutInt(1)
	b.PutInt(2)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sink.broadcast != 0 {
		t.Errorf("spectator edit should not broadcast, got %d", sink.broadcast)
	}
	if len(sink.drops) != 1 || sink.drops[0] != Flip {
		t.Errorf("expected one LogDrop for Flip, got %v", sink.drops)
	}
	if !buf.Empty() || buf.Overread {
		t.Errorf("dropped edit body should still be fully consumed, empty=%v overread=%v", buf.Empty(), buf.Overread)
	}
}

func TestDispatchEditBroadcastsForNonSpectator(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Flip))
	b.PutInt(1)
	b.PutInt(2)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sink.broadcast != 1 {
		t.Errorf("non-spectator edit should broadcast, got %d", sink.broadcast)
	}
	if !buf.Empty() || buf.Overread {
		t.Errorf("edit body should be fully consumed, empty=%v overread=%v", buf.Empty(), buf.Overread)
	}
	if len(sink.broadcastData) != 1 {
		t.Fatalf("expected one broadcast payload, got %d", len(sink.broadcastData))
	}
	out := wire.NewBuffer(sink.broadcastData[0])
	if tag := MsgType(out.GetInt()); tag != Flip {
		t.Errorf("broadcast tag = %v, want Flip", tag)
	}
	if cn := out.GetInt(); cn != c.CN {
		t.Errorf("broadcast cn = %d, want %d", cn, c.CN)
	}
	if a, b2 := out.GetInt(), out.GetInt(); a != 1 || b2 != 2 {
		t.Errorf("broadcast geometry = %d,%d, want 1,2 (the original edit body must be forwarded, not dropped)", a, b2)
	}
}

func TestDispatchKickRequiresPrivilege(t *testing.T) {
	reg := game.NewRegistry()
	sender := newActiveClient(reg)
	victim := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Kick))
	b.PutInt(victim.CN)
	b.PutString("bye")
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(sender.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, ok := reg.Get(victim.CN); !ok {
		t.Errorf("unprivileged kick should not remove the victim")
	}
}

func TestDispatchKickSucceedsForMaster(t *testing.T) {
	reg := game.NewRegistry()
	sender := newActiveClient(reg)
	sender.Privilege = game.PrivMaster
	victim := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Kick))
	b.PutInt(victim.CN)
	b.PutString("bye")
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(sender.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, ok := reg.Get(victim.CN); ok {
		t.Errorf("master kick should remove the victim from the registry")
	}
}

func TestDispatchShootQueuesEventForAliveNonSpectator(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Shoot))
	b.PutInt(1)     // projectile id
	b.PutInt(int(game.GunRifle))
	b.PutInt(0) // nHits
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 1000); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(c.Events) != 1 {
		t.Fatalf("expected 1 queued event, got %d", len(c.Events))
	}
	if c.Events[0].Kind != game.EventShot {
		t.Errorf("event kind = %v, want EventShot", c.Events[0].Kind)
	}
}

func TestDispatchShootIgnoredForSpectator(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	c.State.State = game.StateSpectator
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(Shoot))
	b.PutInt(1)
	b.PutInt(int(game.GunRifle))
	b.PutInt(0)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 1000); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(c.Events) != 0 {
		t.Errorf("spectator shoot should not queue an event, got %d", len(c.Events))
	}
}

func TestDispatchRecordDemoRequiresPrivilege(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	demos := newFakeDemo()
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(RecordDemo))
	b.PutInt(1)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if demos.recording {
		t.Errorf("unprivileged sender should not start a recording")
	}
	if len(sink.drops) != 1 || sink.drops[0] != RecordDemo {
		t.Errorf("expected one LogDrop for RecordDemo, got %v", sink.drops)
	}
}

func TestDispatchRecordDemoStartsForMaster(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	c.Privilege = game.PrivMaster
	sink := &fakeSink{}
	demos := newFakeDemo()
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(RecordDemo))
	b.PutInt(1)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !demos.recording {
		t.Errorf("master sender should start a recording")
	}
}

func TestDispatchStopDemoRequiresPrivilege(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	demos := newFakeDemo()
	demos.recording = true
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(StopDemo))
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !demos.recording {
		t.Errorf("unprivileged sender should not stop a recording")
	}
}

func TestDispatchStopDemoSucceedsForMaster(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	c.Privilege = game.PrivMaster
	sink := &fakeSink{}
	demos := newFakeDemo()
	demos.recording = true
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(StopDemo))
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if demos.recording {
		t.Errorf("master sender should stop the recording")
	}
}

func TestDispatchClearDemosRequiresPrivilege(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	demos := newFakeDemo()
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(ClearDemos))
	b.PutInt(3)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(demos.cleared) != 0 {
		t.Errorf("unprivileged sender should not clear demos, got %v", demos.cleared)
	}
}

func TestDispatchClearDemosSucceedsForMaster(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	c.Privilege = game.PrivMaster
	sink := &fakeSink{}
	demos := newFakeDemo()
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(ClearDemos))
	b.PutInt(3)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(demos.cleared) != 1 || demos.cleared[0] != 3 {
		t.Errorf("expected ClearDemos(3) to be recorded, got %v", demos.cleared)
	}
}

func TestDispatchListDemosSendsSummaryToSender(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	demos := newFakeDemo()
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(ListDemos))
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.sent) != 1 || sink.sent[0] != c.CN {
		t.Errorf("expected ListDemos reply sent to sender, got %v", sink.sent)
	}
}

func TestDispatchListDemosReportsEmptyLibrary(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	demos := newFakeDemo()
	demos.demos = map[int][]byte{}
	demos.emptyList = true
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(ListDemos))
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Errorf("expected an empty-library reply sent to sender, got %v", sink.sent)
	}
}

func TestDispatchGetDemoRoutesBytesOverBulkChannel(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	demos := newFakeDemo()
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(GetDemo))
	b.PutInt(1)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.bulkSent) != 1 || sink.bulkSent[0] != c.CN {
		t.Errorf("expected demo bytes sent over the bulk channel to sender, got %v", sink.bulkSent)
	}
	if len(sink.sent) != 0 {
		t.Errorf("GetDemo success should not send a ServMsg, got %v", sink.sent)
	}
}

func TestDispatchGetDemoReportsMissingDemo(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	demos := newFakeDemo()
	d := NewDispatcher(reg, sink, demos)

	var b wire.Buffer
	b.PutInt(int(GetDemo))
	b.PutInt(99)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.bulkSent) != 0 {
		t.Errorf("missing demo should not be sent over the bulk channel, got %v", sink.bulkSent)
	}
	if len(sink.sent) != 1 || sink.sent[0] != c.CN {
		t.Errorf("expected a not-found ServMsg sent to sender, got %v", sink.sent)
	}
}

func TestDispatchMapCRCMismatchWarnsSender(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())
	d.SetMapCRC(12345)

	var b wire.Buffer
	b.PutInt(int(MapCRC))
	b.PutInt(99999)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.sent) != 1 || sink.sent[0] != c.CN {
		t.Errorf("expected a mismatch warning sent to sender, got %v", sink.sent)
	}
}

func TestDispatchMapCRCMatchIsSilent(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())
	d.SetMapCRC(12345)

	var b wire.Buffer
	b.PutInt(int(MapCRC))
	b.PutInt(12345)
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.sent) != 0 {
		t.Errorf("matching CRC should not send a warning, got %v", sink.sent)
	}
}

func TestDispatchAuthTryRequestsChallengeFromRelay(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	auth := &fakeAuth{connected: true}
	d := NewDispatcher(reg, sink, newFakeDemo())
	d.SetAuthRelay(auth)

	var b wire.Buffer
	b.PutInt(int(AuthTry))
	b.PutString("")
	b.PutString("player1")
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if auth.requestedName != "player1" {
		t.Errorf("relay should have been asked to request auth for player1, got %q", auth.requestedName)
	}
	if auth.requestedID == 0 || auth.requestedID != c.AuthReqID {
		t.Errorf("relay request id = %d, want client's outstanding AuthReqID %d", auth.requestedID, c.AuthReqID)
	}
	if len(sink.sent) != 0 {
		t.Errorf("a connected relay should not produce a failure message, got %v", sink.sent)
	}
}

func TestDispatchAuthTryWithoutRelayWarnsSender(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(AuthTry))
	b.PutString("")
	b.PutString("player1")
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.sent) != 1 || sink.sent[0] != c.CN {
		t.Errorf("expected a not-connected warning sent to sender, got %v", sink.sent)
	}
	if c.AuthReqID != 0 {
		t.Errorf("AuthReqID should be cleared when no relay is available, got %d", c.AuthReqID)
	}
}

func TestDispatchAuthAnsForwardsToRelay(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	auth := &fakeAuth{connected: true}
	d := NewDispatcher(reg, sink, newFakeDemo())
	d.SetAuthRelay(auth)

	reqID := game.BeginAuthChallenge(c)

	var b wire.Buffer
	b.PutInt(int(AuthAns))
	b.PutString("")
	b.PutInt(reqID)
	b.PutString("deadbeef")
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if auth.answeredID != reqID || auth.answeredAnswer != "deadbeef" {
		t.Errorf("relay answer = (%d, %q), want (%d, deadbeef)", auth.answeredID, auth.answeredAnswer, reqID)
	}
}

func TestDispatchAuthAnsIgnoresMismatchedID(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	auth := &fakeAuth{connected: true}
	d := NewDispatcher(reg, sink, newFakeDemo())
	d.SetAuthRelay(auth)

	game.BeginAuthChallenge(c)

	var b wire.Buffer
	b.PutInt(int(AuthAns))
	b.PutString("")
	b.PutInt(99999)
	b.PutString("deadbeef")
	buf := wire.NewBuffer(b.Bytes())

	if err := d.Dispatch(c.CN, buf, 0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if auth.answeredID != 0 {
		t.Errorf("relay should not be called for a mismatched request id, got %d", auth.answeredID)
	}
}

func TestDispatchAuthChalFromClientIsFatal(t *testing.T) {
	reg := game.NewRegistry()
	c := newActiveClient(reg)
	sink := &fakeSink{}
	d := NewDispatcher(reg, sink, newFakeDemo())

	var b wire.Buffer
	b.PutInt(int(AuthChal))
	b.PutString("")
	b.PutInt(1)
	b.PutString("x")
	buf := wire.NewBuffer(b.Bytes())

	err := d.Dispatch(c.CN, buf, 0)
	fatal, ok := err.(*FatalError)
	if !ok {
		t.Fatalf("expected a *FatalError, got %v", err)
	}
	if fatal.Reason != ReasonBadTag {
		t.Errorf("expected ReasonBadTag, got %v", fatal.Reason)
	}
}
