// Package irc implements the narrow IRC relay bridge spec.md §6 names:
// channel chat relayed to/from in-game chat, and an `@`-prefixed whitelisted
// command set. Line framing (PRIVMSG, PING/PONG keep-alive) follows the
// conventions shown in other_examples' gissleh-irc and jesopo-oragono files;
// the reconnect-with-backoff read loop is shaped like
// rustyguts-bken/server/client.go's session lifecycle. This is a narrow
// hand-rolled client, not a general IRC library, per spec.md's non-goal of
// IRC protocol semantics beyond what the core emits/consumes.
package irc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Command is one `@`-prefixed in-channel request the bridge understands.
type Command string

const (
	CmdWho  Command = "who"
	CmdInfo Command = "info"
	CmdLogin Command = "login"
	CmdHelp Command = "help"
)

var whitelist = map[Command]bool{
	CmdWho: true, CmdInfo: true, CmdLogin: true, CmdHelp: true,
}

// IsWhitelisted reports whether cmd is one of the four commands the bridge
// honors from channel members.
func IsWhitelisted(cmd string) bool { return whitelist[Command(strings.ToLower(cmd))] }

// ChatRelay receives chat lines to forward between the game and IRC.
type ChatRelay interface {
	// FromGame is called with a line of game chat to post into the channel.
	FromGame(name, text string)
	// ToGame is called with a line of channel chat to speak in-game.
	ToGame(nick, text string)
	// Command is called for an @-prefixed whitelisted command from a
	// channel member.
	Command(nick string, cmd Command, args string)
}

// Bridge owns the IRC connection and channel membership.
type Bridge struct {
	addr, nick, channel string
	log                 zerolog.Logger
	relay               ChatRelay

	conn net.Conn
	out  chan string
}

// New creates an IRC bridge. An empty addr disables the bridge entirely.
func New(addr, nick, channel string, relay ChatRelay, log zerolog.Logger) *Bridge {
	return &Bridge{
		addr: addr, nick: nick, channel: channel,
		relay: relay,
		log:   log.With().Str("component", "irc").Logger(),
		out:   make(chan string, 64),
	}
}

// Speak queues a line of text for the channel, used by FromGame relaying and
// by the replies to @-commands.
func (b *Bridge) Speak(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	select {
	case b.out <- fmt.Sprintf("PRIVMSG %s :%s", b.channel, line):
	default:
		b.log.Warn().Msg("irc send queue full, dropping message")
	}
}

// Run connects and relays until ctx is canceled, reconnecting with backoff
// on disconnect — grounded on rustyguts-bken/server/client.go's
// read-loop-with-reconnect shape.
func (b *Bridge) Run(ctx context.Context) {
	if b.addr == "" {
		b.log.Info().Msg("no IRC server configured, skipping bridge")
		return
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := b.connectAndServe(ctx); err != nil {
			b.log.Warn().Err(err).Dur("retry_in", backoff).Msg("irc link down")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			continue
		}
		backoff = time.Second
	}
}

func (b *Bridge) connectAndServe(ctx context.Context) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.addr, err)
	}
	defer conn.Close()
	b.conn = conn

	fmt.Fprintf(conn, "NICK %s\r\n", b.nick)
	fmt.Fprintf(conn, "USER %s 0 * :skirmishd relay\r\n", b.nick)
	fmt.Fprintf(conn, "JOIN %s\r\n", b.channel)

	lines := make(chan string)
	errs := make(chan error, 1)
	go readIRCLines(conn, lines, errs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case ln := <-lines:
			b.handleLine(ln)
		case out := <-b.out:
			if _, err := fmt.Fprintf(conn, "%s\r\n", out); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) handleLine(ln string) {
	if strings.HasPrefix(ln, "PING ") {
		fmt.Fprintf(b.conn, "PONG %s\r\n", strings.TrimPrefix(ln, "PING "))
		return
	}
	nick, cmd, target, text, ok := parsePrivmsg(ln)
	if !ok || cmd != "PRIVMSG" || !strings.EqualFold(target, b.channel) {
		return
	}
	if strings.HasPrefix(text, "@") {
		word, rest, _ := strings.Cut(strings.TrimPrefix(text, "@"), " ")
		if IsWhitelisted(word) {
			b.relay.Command(nick, Command(strings.ToLower(word)), rest)
			return
		}
	}
	b.relay.ToGame(nick, text)
}

// parsePrivmsg extracts (nick, command, target, trailing) from a raw IRC
// line of the form ":nick!user@host PRIVMSG #chan :text".
func parsePrivmsg(ln string) (nick, cmd, target, text string, ok bool) {
	if !strings.HasPrefix(ln, ":") {
		return "", "", "", "", false
	}
	prefix, rest, found := strings.Cut(ln[1:], " ")
	if !found {
		return "", "", "", "", false
	}
	nick, _, _ = strings.Cut(prefix, "!")
	cmd, rest, found = strings.Cut(rest, " ")
	if !found {
		return "", "", "", "", false
	}
	target, trailing, found := strings.Cut(rest, " :")
	if !found {
		return "", "", "", "", false
	}
	return nick, cmd, target, trailing, true
}

func readIRCLines(conn net.Conn, out chan<- string, errs chan<- error) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		out <- strings.TrimRight(scanner.Text(), "\r")
	}
	if err := scanner.Err(); err != nil {
		errs <- err
		return
	}
	errs <- fmt.Errorf("irc server closed connection")
}
