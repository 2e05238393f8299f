package game

import "github.com/lab1702/skirmishd/internal/wire"

// Worldstate is one tick's accumulated positions and messages, shared
// (conceptually reference-counted by however many outbound packets still
// reference its slices) per spec.md §4.7/§5. In Go, the garbage collector
// plays the role of the teacher's manual refcounting: callers just hold a
// slice into Positions/Messages for as long as they need it.
type Worldstate struct {
	Positions []byte
	Messages  []byte

	posRanges map[int]byteRange // per-client (offset,len) into Positions
	msgRanges map[int]byteRange // per-client (offset,len) into Messages
}

type byteRange struct {
	offset, length int
}

// BuildWorldstate drains every human client's accumulated PosBuf/MsgBuf into
// one shared buffer, merges bot buffers into their owner's range, and
// appends queued edit-playback bytes, per spec.md §4.7 steps 1-4.
func BuildWorldstate(clients []*Client, editPlayback []byte) *Worldstate {
	ws := &Worldstate{
		posRanges: make(map[int]byteRange),
		msgRanges: make(map[int]byteRange),
	}

	// Merge bot buffers into their owner's accumulation first so the range
	// recorded below covers both.
	byOwner := make(map[int]*Client)
	for _, c := range clients {
		if !c.IsBot {
			byOwner[c.CN] = c
		}
	}
	for _, c := range clients {
		if c.IsBot {
			if owner, ok := byOwner[c.Owner]; ok {
				owner.PosBuf = append(owner.PosBuf, c.PosBuf...)
				owner.MsgBuf = append(owner.MsgBuf, c.MsgBuf...)
				c.PosBuf = nil
				c.MsgBuf = nil
			}
		}
	}

	for _, c := range clients {
		if c.IsBot {
			continue
		}
		if len(c.PosBuf) > 0 {
			off := len(ws.Positions)
			ws.Positions = append(ws.Positions, c.PosBuf...)
			ws.posRanges[c.CN] = byteRange{off, len(c.PosBuf)}
			c.PosBuf = nil
		}
		if len(c.MsgBuf) > 0 {
			off := len(ws.Messages)
			ws.Messages = append(ws.Messages, framedClientMsg(c.CN, c.MsgBuf)...)
			ws.msgRanges[c.CN] = byteRange{off, len(ws.Messages) - off}
			c.MsgBuf = nil
		}
	}

	if len(editPlayback) > 0 {
		ws.Messages = append(ws.Messages, editPlayback...)
	}

	return ws
}

// framedClientMsg prefixes a client's message bytes with a Client(cn)+length
// frame, per spec.md §4.7 step 2, using the same PutInt/PutUint codec every
// other tagged wire message uses.
func framedClientMsg(cn int, payload []byte) []byte {
	return wire.PutClientFrame(nil, cn, payload)
}

// OutboundFor implements spec.md §4.7 step 6: the complement of cn's own
// buffer slice — every other client's positions, and every other client's
// messages this tick, excluding self to avoid echo.
func (ws *Worldstate) OutboundFor(cn int) (positions, messages []byte, anyReliable bool) {
	self := ws.posRanges[cn]
	positions = excludeRange(ws.Positions, self)

	selfMsg := ws.msgRanges[cn]
	messages = excludeRange(ws.Messages, selfMsg)
	anyReliable = len(messages) > 0

	return positions, messages, anyReliable
}

// excludeRange returns buf with the [r.offset, r.offset+r.length) span
// removed, preserving the rest of the byte order.
func excludeRange(buf []byte, r byteRange) []byte {
	if r.length == 0 {
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	}
	out := make([]byte, 0, len(buf)-r.length)
	out = append(out, buf[:r.offset]...)
	out = append(out, buf[r.offset+r.length:]...)
	return out
}
