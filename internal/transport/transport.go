// Package transport implements spec.md §4.2's reliable+unreliable channeled
// transport over QUIC (github.com/quic-go/quic-go), grounded on
// rustyguts-bken/server/client.go's accept-then-read-loop shape and
// rustyguts-bken/server/tls.go's self-signed certificate generation for a
// UDP-based encrypted transport — the closest corpus analogue to a raw
// datagram+stream game transport.
//
// Channel 0 (unreliable positions) rides QUIC's datagram extension. Channels
// 1 (reliable messages) and 2 (reliable bulk/demo transfer) are two
// long-lived bidirectional streams opened by the client at connect time and
// accepted by the server in a fixed order; the server writes its outbound
// traffic on the same streams.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"
)

// Channel identifies which of the transport's three logical pipes a packet
// belongs to, per spec.md §4.2.
type Channel int

const (
	ChannelUnreliable Channel = 0
	ChannelMessages   Channel = 1
	ChannelBulk       Channel = 2
)

// Inbound is one received packet, tagged with its origin connection and
// channel, handed to the single game-loop goroutine over Transport.Inbound().
type Inbound struct {
	PeerID  uint64
	Channel Channel
	Data    []byte
}

// Peer is one connected client's QUIC session plus its two reliable streams.
// Session is a per-connection UUID distinct from the routing ID, logged with
// the session-accepted and handshake-failed lines; other log lines for the
// connection carry only the peer ID.
type Peer struct {
	ID      uint64
	Session string
	Addr    string

	conn  *quic.Conn
	msgW  *quic.Stream
	bulkW *quic.Stream

	mu     sync.Mutex
	closed bool
}

// Send writes data on the given channel. Channel 0 uses an unreliable QUIC
// datagram; channels 1/2 write length-prefixed frames on their stream.
func (p *Peer) Send(ch Channel, data []byte) error {
	switch ch {
	case ChannelUnreliable:
		return p.conn.SendDatagram(data)
	case ChannelMessages:
		return writeFramed(p.msgW, data)
	case ChannelBulk:
		return writeFramed(p.bulkW, data)
	default:
		return fmt.Errorf("transport: unknown channel %d", ch)
	}
}

func writeFramed(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	n := len(data)
	lenBuf[0] = byte(n)
	lenBuf[1] = byte(n >> 8)
	lenBuf[2] = byte(n >> 16)
	lenBuf[3] = byte(n >> 24)
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFramed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(lenBuf[0]) | int(lenBuf[1])<<8 | int(lenBuf[2])<<16 | int(lenBuf[3])<<24
	if n < 0 || n > 1<<22 {
		return nil, fmt.Errorf("transport: implausible frame length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts down a peer's session, idempotently.
func (p *Peer) Close(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.CloseWithError(0, reason)
}

// Transport owns the QUIC listener and the live peer set.
type Transport struct {
	log zerolog.Logger

	ln *quic.Listener

	mu      sync.RWMutex
	peers   map[uint64]*Peer
	nextID  uint64

	inbound chan Inbound
}

// New creates a Transport bound to addr using a self-signed TLS
// configuration (grounded on rustyguts-bken/server/tls.go), with QUIC
// datagrams enabled for channel 0.
func New(ctx context.Context, addr string, log zerolog.Logger) (*Transport, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("transport: generate tls cert: %w", err)
	}
	quicConf := &quic.Config{EnableDatagrams: true}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Transport{
		log:     log.With().Str("component", "transport").Logger(),
		ln:      ln,
		peers:   make(map[uint64]*Peer),
		inbound: make(chan Inbound, 4096),
	}, nil
}

// Inbound returns the channel the game loop drains parsed packets from — the
// single crossing point between transport goroutines and the cooperative
// game loop, per SPEC_FULL.md §5.
func (t *Transport) Inbound() <-chan Inbound { return t.inbound }

// Accept runs the listener's accept loop until ctx is canceled. Each
// accepted session gets its own read goroutines; they only ever publish
// parsed Inbound values onto t.inbound.
func (t *Transport) Accept(ctx context.Context, onConnect func(*Peer)) error {
	for {
		conn, err := t.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		peer := t.newPeer(conn)
		if err := t.handshake(ctx, peer); err != nil {
			t.log.Warn().Err(err).Uint64("peer", peer.ID).Str("session", peer.Session).Msg("handshake failed")
			_ = peer.Close("handshake failed")
			continue
		}
		t.mu.Lock()
		t.peers[peer.ID] = peer
		t.mu.Unlock()
		t.log.Info().Uint64("peer", peer.ID).Str("session", peer.Session).Str("addr", peer.Addr).Msg("session accepted")
		if onConnect != nil {
			onConnect(peer)
		}
		go t.readDatagrams(ctx, peer)
		go t.readStream(ctx, peer, ChannelMessages, peer.msgW)
		go t.readStream(ctx, peer, ChannelBulk, peer.bulkW)
	}
}

func (t *Transport) newPeer(conn *quic.Conn) *Peer {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.mu.Unlock()
	return &Peer{ID: id, Session: uuid.NewString(), Addr: conn.RemoteAddr().String(), conn: conn}
}

// handshake accepts the client's two reliable streams in the fixed order
// spec.md §4.2 names: messages then bulk.
func (t *Transport) handshake(ctx context.Context, peer *Peer) error {
	msgStream, err := peer.conn.AcceptStream(ctx)
	if err != nil {
		return fmt.Errorf("accept message stream: %w", err)
	}
	bulkStream, err := peer.conn.AcceptStream(ctx)
	if err != nil {
		return fmt.Errorf("accept bulk stream: %w", err)
	}
	peer.msgW = msgStream
	peer.bulkW = bulkStream
	return nil
}

func (t *Transport) readDatagrams(ctx context.Context, peer *Peer) {
	for {
		data, err := peer.conn.ReceiveDatagram(ctx)
		if err != nil {
			t.disconnect(peer, err)
			return
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		t.inbound <- Inbound{PeerID: peer.ID, Channel: ChannelUnreliable, Data: cp}
	}
}

func (t *Transport) readStream(ctx context.Context, peer *Peer, ch Channel, r io.Reader) {
	for {
		data, err := readFramed(r)
		if err != nil {
			t.disconnect(peer, err)
			return
		}
		t.inbound <- Inbound{PeerID: peer.ID, Channel: ch, Data: data}
	}
}

func (t *Transport) disconnect(peer *Peer, cause error) {
	t.mu.Lock()
	_, still := t.peers[peer.ID]
	delete(t.peers, peer.ID)
	t.mu.Unlock()
	if still {
		t.log.Info().Uint64("peer", peer.ID).Err(cause).Msg("peer disconnected")
		_ = peer.Close("disconnected")
	}
}

// Peer looks up a connected peer by ID.
func (t *Transport) Peer(id uint64) (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	return p, ok
}

// Broadcast sends data on ch to every connected peer except excludeID,
// implementing the complement-of-self delivery spec.md §4.7 requires.
func (t *Transport) Broadcast(ch Channel, data []byte, excludeID uint64) {
	t.mu.RLock()
	peers := make([]*Peer, 0, len(t.peers))
	for id, p := range t.peers {
		if id == excludeID {
			continue
		}
		peers = append(peers, p)
	}
	t.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(ch, data); err != nil {
			t.log.Debug().Uint64("peer", p.ID).Err(err).Msg("send failed")
		}
	}
}

// Close shuts down the listener and every live peer.
func (t *Transport) Close() error {
	t.mu.Lock()
	for _, p := range t.peers {
		_ = p.Close("server shutting down")
	}
	t.mu.Unlock()
	return t.ln.Close()
}

func selfSignedTLSConfig() (*tls.Config, error) {
	cert, err := generateSelfSigned()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"skirmishd"},
	}, nil
}
