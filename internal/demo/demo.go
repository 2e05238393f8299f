// Package demo implements the gzip-framed demo recording/playback format
// and the ListDemos/GetDemo/SendDemo message trio, grounded directly on
// original_source/gameserver.cpp's demofile/writedemo/enddemorecord/
// listdemos/senddemo functions (SPEC_FULL.md §10 supplement 4).
package demo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// Magic/version constants mirror gameserver.cpp's DEMO_MAGIC/DEMO_VERSION,
// padded out to the wire format's 16-byte magic field (spec.md §6).
var Magic = [16]byte{'C', 'U', 'B', 'E', '_', 'D', 'E', 'M', 'O'}

const DemoVersion = 1

// MaxDemos bounds the in-memory ring, matching gameserver.cpp's MAXDEMOS.
const MaxDemos = 5

// Header is written once at the start of every demo file.
type Header struct {
	Magic    [16]byte
	Version  int32
	Protocol int32
}

// Record is one captured packet: millis since game start, channel, and the
// raw bytes, matching gameserver.cpp's `int stamp[3] = {gamemillis, chan,
// len}` framing.
type Record struct {
	Millis  int32
	Channel int32
	Data    []byte
}

// File is a completed, in-memory recorded demo, kept in the server's
// MaxDemos-deep ring (gameserver.cpp's `vector<demofile> demos`).
type File struct {
	ID    string
	Info  string // human-readable summary line, e.g. "Mon Jan  2 15:04:05 2006: dm_arena, ffa, 1.20MB"
	Bytes []byte
}

// Recorder accumulates gzip-framed records for the currently open demo.
// Grounded on gameserver.cpp's setupdemorecord/writedemo/enddemorecord.
type Recorder struct {
	buf    bytes.Buffer
	gz     *gzip.Writer
	proto  int32
	mapName, modeName string
	started time.Time
}

// NewRecorder opens a new recording, writing the header and an initial
// welcome-equivalent record immediately, per setupdemorecord.
func NewRecorder(protocolVersion int32, mapName, modeName string, welcome []byte) (*Recorder, error) {
	r := &Recorder{proto: protocolVersion, mapName: mapName, modeName: modeName, started: time.Now()}
	r.gz = gzip.NewWriter(&r.buf)
	hdr := Header{Magic: Magic, Version: DemoVersion, Protocol: protocolVersion}
	if err := writeHeader(r.gz, hdr); err != nil {
		return nil, fmt.Errorf("demo: write header: %w", err)
	}
	if err := r.Write(1, welcome); err != nil {
		return nil, err
	}
	return r, nil
}

// Write appends one record with a zero game-millis timestamp; WriteAt sets
// an explicit one.
func (r *Recorder) Write(channel int32, data []byte) error {
	return writeRecord(r.gz, Record{Channel: channel, Data: data})
}

// WriteAt appends one record at an explicit game-millis timestamp, used by
// the worldstate builder (spec.md §4.7 step 5).
func (r *Recorder) WriteAt(gameMillis int64, channel int32, data []byte) error {
	return writeRecord(r.gz, Record{Millis: int32(gameMillis), Channel: channel, Data: data})
}

// Finish closes the gzip stream and returns the completed File, with an
// info line shaped like gameserver.cpp's `formatstring(d.info)`.
func (r *Recorder) Finish() (File, error) {
	if err := r.gz.Close(); err != nil {
		return File{}, fmt.Errorf("demo: close: %w", err)
	}
	sizeKB := float64(r.buf.Len()) / 1024.0
	unit := "kB"
	size := sizeKB
	if sizeKB > 1024 {
		size = sizeKB / 1024
		unit = "MB"
	}
	info := fmt.Sprintf("%s: %s, %s, %.2f%s", r.started.Format(time.ANSIC), r.mapName, r.modeName, size, unit)
	return File{ID: uuid.NewString(), Info: info, Bytes: r.buf.Bytes()}, nil
}

func writeHeader(w io.Writer, h Header) error {
	if err := binary.Write(w, binary.LittleEndian, h.Magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.Version); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.Protocol)
}

func readHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h.Magic); err != nil {
		return h, err
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("demo: bad magic")
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return h, err
	}
	return h, binary.Read(r, binary.LittleEndian, &h.Protocol)
}

func writeRecord(w io.Writer, rec Record) error {
	stamp := [3]int32{rec.Millis, rec.Channel, int32(len(rec.Data))}
	if err := binary.Write(w, binary.LittleEndian, stamp); err != nil {
		return err
	}
	_, err := w.Write(rec.Data)
	return err
}

func readRecord(r io.Reader) (Record, error) {
	var stamp [3]int32
	if err := binary.Read(r, binary.LittleEndian, &stamp); err != nil {
		return Record{}, err
	}
	data := make([]byte, stamp[2])
	if _, err := io.ReadFull(r, data); err != nil {
		return Record{}, err
	}
	return Record{Millis: stamp[0], Channel: stamp[1], Data: data}, nil
}

// Reader plays back a recorded demo's records in order.
type Reader struct {
	gz  *gzip.Reader
	Hdr Header
}

// OpenReader parses the header from raw demo bytes and positions for
// sequential record reads.
func OpenReader(data []byte) (*Reader, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("demo: open: %w", err)
	}
	hdr, err := readHeader(gz)
	if err != nil {
		return nil, fmt.Errorf("demo: read header: %w", err)
	}
	return &Reader{gz: gz, Hdr: hdr}, nil
}

// Next returns the next record, or io.EOF when the demo is exhausted.
func (r *Reader) Next() (Record, error) { return readRecord(r.gz) }

// Close releases the underlying gzip reader.
func (r *Reader) Close() error { return r.gz.Close() }
