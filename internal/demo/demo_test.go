package demo

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestRecorderFinishReaderRoundTrip(t *testing.T) {
	rec, err := NewRecorder(258, "dm_arena", "ffa", []byte("welcome"))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.WriteAt(1000, 0, []byte("pos1")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := rec.Write(1, []byte("chat")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := rec.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if f.ID == "" {
		t.Errorf("expected a non-empty demo ID")
	}
	if f.Info == "" {
		t.Errorf("expected a non-empty info line")
	}

	r, err := OpenReader(f.Bytes)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	if r.Hdr.Magic != Magic {
		t.Errorf("header magic = %v, want %v", r.Hdr.Magic, Magic)
	}
	if r.Hdr.Protocol != 258 {
		t.Errorf("header protocol = %d, want 258", r.Hdr.Protocol)
	}

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next (welcome): %v", err)
	}
	if string(first.Data) != "welcome" {
		t.Errorf("first record = %q, want %q", first.Data, "welcome")
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next (pos1): %v", err)
	}
	if second.Millis != 1000 || string(second.Data) != "pos1" {
		t.Errorf("second record = %+v, want millis=1000 data=pos1", second)
	}

	third, err := r.Next()
	if err != nil {
		t.Fatalf("Next (chat): %v", err)
	}
	if third.Channel != 1 || string(third.Data) != "chat" {
		t.Errorf("third record = %+v, want channel=1 data=chat", third)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after last record, got %v", err)
	}
}

func TestOpenReaderRejectsBadMagic(t *testing.T) {
	var raw bytes.Buffer
	gz := gzip.NewWriter(&raw)
	if err := writeHeader(gz, Header{Magic: [16]byte{'N', 'O', 'T', 'D', 'E', 'M', 'O'}, Version: DemoVersion}); err != nil {
		t.Fatalf("writeHeader: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if _, err := OpenReader(raw.Bytes()); err == nil {
		t.Fatalf("expected an error opening a demo with the wrong magic")
	}
}

func TestLibraryEvictsOldestPastMaxDemos(t *testing.T) {
	var lib Library
	for i := 0; i < MaxDemos+2; i++ {
		lib.Add(File{ID: string(rune('a' + i)), Info: string(rune('a' + i))})
	}
	list := lib.List()
	if len(list) != MaxDemos {
		t.Fatalf("library size = %d, want %d", len(list), MaxDemos)
	}
	// the two oldest ("a","b") should have been evicted, leaving "c".."g"
	if list[0] != "c" {
		t.Errorf("oldest retained = %q, want %q", list[0], "c")
	}
}

func TestLibraryGetDefaultsToMostRecent(t *testing.T) {
	var lib Library
	lib.Add(File{ID: "1", Info: "first"})
	lib.Add(File{ID: "2", Info: "second"})

	f, ok := lib.Get(0)
	if !ok || f.Info != "second" {
		t.Fatalf("Get(0) = %+v, %v, want most recent", f, ok)
	}
	f, ok = lib.Get(1)
	if !ok || f.Info != "first" {
		t.Fatalf("Get(1) = %+v, %v, want first recording", f, ok)
	}
	if _, ok := lib.Get(99); ok {
		t.Errorf("Get with out-of-range index should fail")
	}
}

func TestLibraryClearOneAndAll(t *testing.T) {
	var lib Library
	lib.Add(File{ID: "1", Info: "first"})
	lib.Add(File{ID: "2", Info: "second"})
	lib.Add(File{ID: "3", Info: "third"})

	lib.Clear(2)
	list := lib.List()
	if len(list) != 2 || list[0] != "first" || list[1] != "third" {
		t.Fatalf("after Clear(2), list = %v, want [first third]", list)
	}

	lib.Clear(0)
	if len(lib.List()) != 0 {
		t.Errorf("Clear(0) should empty the library, got %v", lib.List())
	}
}
