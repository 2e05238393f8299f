// Command skirmishd is the authoritative game server binary: it wires
// together the transport, dispatcher, game core, and every external
// interface (master link, IRC bridge, HTTP status endpoint) around one
// fixed-tempo game loop. The overall shape — flag parse, construct server,
// run in the background, signal-driven graceful shutdown — follows the
// teacher's main.go.
package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/lab1702/skirmishd/internal/clock"
	"github.com/lab1702/skirmishd/internal/config"
	"github.com/lab1702/skirmishd/internal/demo"
	"github.com/lab1702/skirmishd/internal/game"
	"github.com/lab1702/skirmishd/internal/httpapi"
	"github.com/lab1702/skirmishd/internal/irc"
	"github.com/lab1702/skirmishd/internal/master"
	"github.com/lab1702/skirmishd/internal/metrics"
	"github.com/lab1702/skirmishd/internal/modes"
	"github.com/lab1702/skirmishd/internal/protocol"
	"github.com/lab1702/skirmishd/internal/transport"
	"github.com/lab1702/skirmishd/internal/wire"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(f string, a ...interface{}) { log.Debug().Msgf(f, a...) })); err != nil {
		log.Warn().Err(err).Msg("automaxprocs: failed to set GOMAXPROCS")
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("parse config")
	}

	state, err := config.Read(cfg.InitConfigPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.InitConfigPath).Msg("read persisted config")
	}

	srv := newServer(cfg, state, log)
	if err := srv.run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// server owns every long-lived component the game loop and external
// interfaces share.
type server struct {
	cfg *config.Config
	log zerolog.Logger

	reg    *game.Registry
	match  *game.Match
	mapinf *game.MapInfo
	mode   modes.Mode
	edits  game.EditLog

	clk   *clock.Clock
	sched clock.Scheduler
	votes *game.VoteTally
	rng   *rand.Rand

	gameLimitMillis int64

	demos    demo.Library
	recorder *demo.Recorder

	tr      *transport.Transport
	disp    *protocol.Dispatcher
	mc      *master.Client
	ircB    *irc.Bridge
	webhook *httpapi.Webhook
	http    *httpapi.Server
	metrics *metrics.Registry

	started time.Time

	mu       sync.Mutex
	peerByCN map[int]uint64
	cnByPeer map[uint64]int
}

func newServer(cfg *config.Config, state config.PersistedState, log zerolog.Logger) *server {
	reg := game.NewRegistry()
	reg.Bans = state.Bans
	reg.Blacklist = state.Blacklist
	reg.Whitelist = state.Whitelist

	s := &server{
		cfg:      cfg,
		log:      log,
		reg:      reg,
		match:    game.NewMatch(),
		mapinf:   game.LoadMap("complex", nil, nil),
		mode:     modes.NewFFA(),
		clk:      clock.New(),
		votes:    game.NewVoteTally(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		metrics:  metrics.New(),
		started:  time.Now(),
		peerByCN: make(map[int]uint64),
		cnByPeer: make(map[uint64]int),
	}

	s.match.Mode = s.mode

	s.webhook = httpapi.NewWebhook(cfg.Secrets.WebhookURL, log)
	s.http = httpapi.New(s, cfg.AdminPass, s.webhook, log)

	masterHost := cfg.MasterHost
	s.mc = master.New(masterHost, cfg.Port, log)
	s.mc.OnAuthChallenge(func(reqID int, val string) {
		c, ok := game.FindByAuthReq(s.reg, reqID)
		if !ok {
			return
		}
		s.SendTo(c.CN, protocol.EncodeAuthChal(reqID, val))
	})
	s.mc.OnAuthResult(func(reqID int, ok bool) {
		c, found := game.FindByAuthReq(s.reg, reqID)
		if !found {
			return
		}
		granted := game.CompleteAuthChallenge(c, reqID, ok)
		if granted {
			s.SendTo(c.CN, protocol.EncodeServMsg("authentication succeeded"))
		} else {
			s.SendTo(c.CN, protocol.EncodeServMsg("authentication failed"))
		}
	})

	s.ircB = irc.New(cfg.Secrets.IRCServerHost, "skirmishd", "#skirmish", s, log)

	return s
}

// run starts every background component and blocks until a shutdown signal
// arrives, then drains them in reverse order.
func (s *server) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := transport.New(ctx, addrFromConfig(s.cfg), s.log)
	if err != nil {
		return err
	}
	s.tr = tr
	s.disp = protocol.NewDispatcher(s.reg, s, s)
	s.disp.SetMapCRC(s.mapinf.CRC)
	s.disp.SetAuthRelay(s.mc)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); s.mc.Run(ctx) }()
	go func() { defer wg.Done(); s.ircB.Run(ctx) }()
	go func() { defer wg.Done(); s.http.Start(ctx, httpAddr(s.cfg)) }()
	go func() {
		defer wg.Done()
		if err := s.tr.Accept(ctx, s.onConnect); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("transport accept loop exited")
		}
	}()

	go s.gameLoop(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	s.log.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	_ = s.tr.Close()
	wg.Wait()

	return s.persist()
}

func (s *server) persist() error {
	return config.Write(s.cfg.InitConfigPath, config.PersistedState{
		Bans:      s.reg.Bans,
		Blacklist: s.reg.Blacklist,
		Whitelist: s.reg.Whitelist,
	})
}

// onConnect assigns a registry slot to a freshly accepted peer. The
// handshake is simplified relative to the original CONNECT round trip
// (see DESIGN.md's Open Question decision): the client is admitted
// immediately, subject to ban and mastermode checks, and its name
// arrives with the first Text or SwitchName message rather than a
// dedicated login message.
func (s *server) onConnect(peer *transport.Peer) {
	now := time.Now().UnixMilli()
	host := peer.Addr
	if s.reg.IsBanned(host, "", "", now) {
		_ = peer.Close("Banned")
		return
	}
	if s.reg.MasterMode == game.MMPrivate && !s.reg.AllowedUnderPrivate(host) {
		_ = peer.Close("Private")
		return
	}

	c, err := s.reg.BeginConnect()
	if err != nil {
		_ = peer.Close("Full")
		return
	}
	c.IP = host
	s.reg.CompleteConnect(c)
	game.AutoSpectateUnderLocked(s.reg, c)
	s.mode.EnterGame(c)

	s.mu.Lock()
	s.peerByCN[c.CN] = peer.ID
	s.cnByPeer[peer.ID] = c.CN
	s.mu.Unlock()

	s.metrics.ClientsConnected.Inc()
	s.metrics.ClientsTotal.Inc()
	s.webhook.Fire(httpapi.WebhookPayload{Event: httpapi.WebhookConnect, Name: c.Name, CN: c.CN, Map: s.mapinf.Name})
	s.log.Info().Int("cn", c.CN).Str("ip", host).Msg("client connected")
}

// gameLoop drives the fixed-tempo update/worldstate cadence described in
// spec.md §5, consuming transport.Inbound() as it arrives rather than
// blocking on it, so the tick never stalls waiting for network input.
func (s *server) gameLoop(ctx context.Context) {
	ticker := time.NewTicker(clock.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.tr.Inbound():
			s.handleInbound(in)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *server) handleInbound(in transport.Inbound) {
	s.mu.Lock()
	cn, ok := s.cnByPeer[in.PeerID]
	s.mu.Unlock()
	if !ok {
		return
	}
	buf := wire.NewBuffer(in.Data)
	now := s.clk.GameMillis()
	if err := s.disp.Dispatch(cn, buf, now); err != nil {
		s.disconnectPeer(in.PeerID, err.Error())
	}
}

func (s *server) disconnectPeer(peerID uint64, reason string) {
	s.mu.Lock()
	cn, ok := s.cnByPeer[peerID]
	delete(s.cnByPeer, peerID)
	if ok {
		delete(s.peerByCN, cn)
	}
	s.mu.Unlock()

	if peer, found := s.tr.Peer(peerID); found {
		_ = peer.Close(reason)
	}
	if ok {
		if c, active := s.reg.Get(cn); active {
			s.mode.LeaveGame(c)
			s.webhook.Fire(httpapi.WebhookPayload{Event: httpapi.WebhookDisconnect, Name: c.Name, CN: cn})
		}
		s.reg.Disconnect(cn)
		s.metrics.ClientsConnected.Dec()
	}
}

func (s *server) tick() {
	delta := s.clk.Advance()
	s.metrics.TicksTotal.Inc()
	s.mode.Update(delta)

	now := s.clk.GameMillis()
	for _, c := range s.reg.Active() {
		if !c.IsBot {
			c.State.TimePlayed += delta
		}
		for _, ev := range c.DrainEvents() {
			ev.ServerMillis = c.ReconcileServerMillis(now, ev.ClientMillis, false)
			results := game.ProcessEvent(s.reg, c.CN, &ev, now, func(cn int) bool { return false })
			for _, r := range results {
				s.metrics.DamageDealt.Add(float64(r.Damage))
				if r.Died {
					s.metrics.Deaths.Inc()
					s.resolveDeath(r, now)
				}
			}
		}
	}

	if winner, count, _ := s.votes.Winner(s.rng); count > 0 && game.HasMajority(count, s.reg.Count()) {
		s.changeMap(winner, now)
	}

	if s.sched.ShouldBuildWorldstate(now) {
		s.buildAndBroadcast()
	}
}

// changeMap carries out spec.md §4.6's map-change sequence once a vote
// reaches majority: stop recording, swap mode and map, reset scores, rebalance
// teams under the new mode, seed the gamelimit, and respawn every
// non-spectator client. There is no live server-side demo-playback loop to
// stop here (only client-requested GetDemo byte retrieval exists), so only
// recording is halted.
func (s *server) changeMap(winner game.Vote, now int64) {
	s.SetRecording(false)

	s.mode = modes.NewByName(winner.Mode)
	s.mode.Reset()
	s.match.Mode = s.mode

	s.mapinf = game.LoadMap(winner.MapName, nil, nil)
	s.disp.SetMapCRC(s.mapinf.CRC)

	active := s.reg.Active()

	// Snapshot the outgoing match's standing before ResetScores zeroes it:
	// autoteam balances the new map by who performed well on the last one.
	var players []game.Rankable
	if s.mode.TeamMode() {
		players = make([]game.Rankable, 0, len(active))
		for _, c := range active {
			players = append(players, game.Rankable{
				CN:            c.CN,
				Effectiveness: c.State.Effectiveness,
				TimePlayed:    c.State.TimePlayed,
				HideFrags:     s.mode.HideFrags(),
			})
		}
	}

	s.reg.ResetScores()

	if s.mode.TeamMode() {
		for cn, team := range game.Autoteam(players) {
			if c, ok := s.reg.Get(cn); ok {
				s.mode.ChangeTeam(c, team)
			}
		}
	}

	s.gameLimitMillis = game.GameLimitMillis(false)

	for _, c := range active {
		if c.State.State == game.StateSpectator {
			continue
		}
		game.SendSpawn(c, now, 100, 0)
		s.Broadcast(-1, protocol.EncodeSpawnState(c.CN))
	}

	s.votes.Clear()
	s.webhook.Fire(httpapi.WebhookPayload{Event: httpapi.WebhookIntermission, Map: s.mapinf.Name})
	s.log.Info().Str("map", winner.MapName).Str("mode", winner.Mode).Msg("map vote reached majority")
}

// resolveDeath applies frag/spree/effectiveness bookkeeping for one fatal
// DamageResult through the shared Match, then passes the death to the active
// mode's Died hook.
func (s *server) resolveDeath(r game.DamageResult, now int64) {
	target, tok := s.reg.Get(r.Target)
	actor, aok := s.reg.Get(r.Actor)
	if !tok || !aok {
		return
	}
	teamkill := actor.CN != target.CN && actor.Team == target.Team && actor.Team != 0
	s.match.OnDeath(target, actor, teamkill, s.reg.Active(), now)
	s.mode.Died(target, actor)
}

func (s *server) buildAndBroadcast() {
	start := time.Now()
	var playback []byte
	for _, r := range s.edits.Replay() {
		playback = append(playback, r.Payload...)
	}
	ws := game.BuildWorldstate(s.reg.Active(), playback)
	s.metrics.WorldstateBuildMs.Observe(float64(time.Since(start).Milliseconds()))

	s.mu.Lock()
	rec := s.recorder
	s.mu.Unlock()
	if rec != nil {
		now := s.clk.GameMillis()
		if len(ws.Positions) > 0 {
			_ = rec.WriteAt(now, int32(transport.ChannelUnreliable), ws.Positions)
		}
		if len(ws.Messages) > 0 {
			_ = rec.WriteAt(now, int32(transport.ChannelMessages), ws.Messages)
		}
	}

	for _, c := range s.reg.Active() {
		pos, msgs, hasMsgs := ws.OutboundFor(c.CN)
		s.mu.Lock()
		peerID, ok := s.peerByCN[c.CN]
		s.mu.Unlock()
		if !ok {
			continue
		}
		peer, found := s.tr.Peer(peerID)
		if !found {
			continue
		}
		if len(pos) > 0 {
			_ = peer.Send(transport.ChannelUnreliable, pos)
		}
		if hasMsgs && len(msgs) > 0 {
			_ = peer.Send(transport.ChannelMessages, msgs)
		}
	}

	s.http.PublishFeed(httpapi.FeedSnapshot{TickMillis: s.clk.GameMillis(), Clients: s.Clients()})
}

// Sink implementation, consumed by internal/protocol's Dispatcher.

func (s *server) SendTo(cn int, data []byte) {
	s.mu.Lock()
	peerID, ok := s.peerByCN[cn]
	s.mu.Unlock()
	if !ok {
		return
	}
	if peer, found := s.tr.Peer(peerID); found {
		_ = peer.Send(transport.ChannelMessages, data)
	}
}

func (s *server) SendBulk(cn int, data []byte) {
	s.mu.Lock()
	peerID, ok := s.peerByCN[cn]
	s.mu.Unlock()
	if !ok {
		return
	}
	if peer, found := s.tr.Peer(peerID); found {
		_ = peer.Send(transport.ChannelBulk, data)
	}
}

func (s *server) Broadcast(excludeCN int, data []byte) {
	var exclude uint64
	hasExclude := false
	if excludeCN >= 0 {
		s.mu.Lock()
		if pid, ok := s.peerByCN[excludeCN]; ok {
			exclude, hasExclude = pid, true
		}
		s.mu.Unlock()
	}
	if !hasExclude {
		exclude = ^uint64(0)
	}
	s.tr.Broadcast(transport.ChannelMessages, data, exclude)
}

func (s *server) LogDrop(cn int, tag protocol.MsgType, reason string) {
	s.log.Debug().Int("cn", cn).Int("tag", int(tag)).Str("reason", reason).Msg("dropped message")
}

// ChatRelay implementation, consumed by internal/irc's Bridge.

func (s *server) FromGame(name, text string) { s.ircB.Speak("<%s> %s", name, text) }

func (s *server) ToGame(nick, text string) {
	s.Broadcast(-1, encodeIRCChat(nick, wire.StripIRCControl(text)))
}

func (s *server) Command(nick string, cmd irc.Command, args string) {
	switch cmd {
	case irc.CmdWho:
		s.ircB.Speak("%d clients connected", s.reg.Count())
	case irc.CmdInfo:
		s.ircB.Speak("map=%s mode=%s", s.mapinf.Name, s.mode.Name())
	case irc.CmdHelp:
		s.ircB.Speak("commands: who, info, login <pass>, help")
	case irc.CmdLogin:
		s.ircB.Speak("login is only available in-game")
	}
}

// DemoControl implementation, consumed by internal/protocol's Dispatcher.

func (s *server) SetRecording(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		if s.recorder != nil {
			return
		}
		rec, err := demo.NewRecorder(1, s.mapinf.Name, s.mode.Name(), nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("start demo recording")
			return
		}
		s.recorder = rec
		return
	}
	if s.recorder == nil {
		return
	}
	f, err := s.recorder.Finish()
	s.recorder = nil
	if err != nil {
		s.log.Warn().Err(err).Msg("finish demo recording")
		return
	}
	s.demos.Add(f)
	s.metrics.DemoRecordings.Inc()
}

func (s *server) ListDemos() []string { return s.demos.List() }

func (s *server) GetDemo(num int) ([]byte, bool) {
	f, ok := s.demos.Get(num)
	if !ok {
		return nil, false
	}
	return f.Bytes, true
}

func (s *server) ClearDemos(n int) { s.demos.Clear(n) }

// StatusProvider implementation, consumed by internal/httpapi's Server.

func (s *server) MapName() string  { return s.mapinf.Name }
func (s *server) ModeName() string { return s.mode.Name() }
func (s *server) MaxClients() int  { return s.cfg.MaxClients }
func (s *server) Uptime() time.Duration { return time.Since(s.started) }

func (s *server) Clients() []httpapi.ClientSummary {
	active := s.reg.Active()
	out := make([]httpapi.ClientSummary, 0, len(active))
	for _, c := range active {
		out = append(out, httpapi.ClientSummary{Name: c.Name, CN: c.CN, IP: c.IP, Host: c.Hostname})
	}
	return out
}

func (s *server) Kick(cn int, pass string) error {
	if pass != s.cfg.AdminPass {
		return errBadPassword
	}
	if c, ok := s.reg.Get(cn); ok {
		s.disconnectPeerByCN(c.CN, "Kicked")
	}
	return nil
}

func (s *server) Ban(cn int, pass string) error {
	if pass != s.cfg.AdminPass {
		return errBadPassword
	}
	if c, ok := s.reg.Get(cn); ok {
		s.reg.AddBan(c.IP, c.Name, time.Now().UnixMilli(), -1)
		s.disconnectPeerByCN(c.CN, "Banned")
	}
	return nil
}

func (s *server) disconnectPeerByCN(cn int, reason string) {
	s.mu.Lock()
	peerID, ok := s.peerByCN[cn]
	s.mu.Unlock()
	if ok {
		s.disconnectPeer(peerID, reason)
	}
}

func encodeIRCChat(nick, text string) []byte {
	var b wire.Buffer
	b.PutInt(int(protocol.Text))
	b.PutInt(-1)
	b.PutString("[irc] " + nick + ": " + text)
	return b.Bytes()
}

func addrFromConfig(cfg *config.Config) string {
	host := cfg.BindIP
	return host + portSuffix(cfg.Port)
}

func httpAddr(cfg *config.Config) string {
	return cfg.BindIP + portSuffix(cfg.HTTPPort)
}

func portSuffix(port int) string {
	return ":" + strconv.Itoa(port)
}

var errBadPassword = errors.New("bad password")
