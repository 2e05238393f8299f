package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lab1702/skirmishd/internal/game"
)

// PersistedState is the subset of process-wide state that survives a
// restart via config.cfg, per spec.md §6: bans, blacklist/whitelist
// notices, and saved bot names. General var state is written verbatim as
// `var <name> <value>` lines, matching gameserver.cpp's writecfg shape.
type PersistedState struct {
	Bans      []game.Ban
	Blacklist []game.Notice
	Whitelist []game.Notice
	BotNames  []string
	Vars      map[string]string
}

// Write rewrites path with the current state. cmd/skirmishd calls it once,
// at shutdown; ban/notice changes made while running are not written until
// then. Grounded on gameserver.cpp's writecfg
// (`f->printf("pban \"%s\"\n", ...)` style lines).
func Write(path string, s PersistedState) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, b := range s.Bans {
		if b.Expiry.Permanent {
			fmt.Fprintf(w, "pban %q %q -1\n", b.Match, b.Name)
		} else {
			fmt.Fprintf(w, "pban %q %q %d\n", b.Match, b.Name, b.Expiry.At)
		}
	}
	for _, n := range s.Blacklist {
		fmt.Fprintf(w, "blacklist %q %q\n", n.Match, n.Reason)
	}
	for _, n := range s.Whitelist {
		fmt.Fprintf(w, "whitelist %q %q\n", n.Match, n.Reason)
	}
	for _, name := range s.BotNames {
		fmt.Fprintf(w, "botname %q\n", name)
	}
	for k, v := range s.Vars {
		fmt.Fprintf(w, "var %s %q\n", k, v)
	}
	return w.Flush()
}

// Read parses a config.cfg written by Write (or the init config named by
// -f), tolerating unknown directives by skipping them.
func Read(path string) (PersistedState, error) {
	s := PersistedState{Vars: make(map[string]string)}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		fields, err := splitQuoted(line)
		if err != nil || len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "pban":
			if len(fields) < 4 {
				continue
			}
			dur, _ := strconv.ParseInt(fields[3], 10, 64)
			b := game.Ban{Match: fields[1], Name: fields[2]}
			if dur < 0 {
				b.Expiry = game.Expiry{Permanent: true}
			} else {
				b.Expiry = game.Expiry{At: dur}
			}
			s.Bans = append(s.Bans, b)
		case "blacklist":
			if len(fields) < 3 {
				continue
			}
			s.Blacklist = append(s.Blacklist, game.Notice{Match: fields[1], Reason: fields[2]})
		case "whitelist":
			if len(fields) < 3 {
				continue
			}
			s.Whitelist = append(s.Whitelist, game.Notice{Match: fields[1], Reason: fields[2]})
		case "botname":
			if len(fields) < 2 {
				continue
			}
			s.BotNames = append(s.BotNames, fields[1])
		case "var":
			if len(fields) < 3 {
				continue
			}
			s.Vars[fields[1]] = fields[2]
		}
	}
	return s, scanner.Err()
}

// splitQuoted splits a config.cfg line into whitespace-separated fields,
// treating "..." runs as single fields (the format gameserver.cpp's writecfg
// emits).
func splitQuoted(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ' ' && !inQuotes:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	if inQuotes {
		return nil, fmt.Errorf("config: unterminated quote in line %q", line)
	}
	return fields, nil
}
