// Package master implements the master-server registration client, a
// line-oriented TCP protocol grounded directly on original_source's
// masterserver.cpp: connect, send "regserv <port>", read back "succreg" or
// "failreg", reregister hourly, reconnect with backoff on disconnect.
package master

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the last-known registration state, read through Client.Status;
// it is not exported to /metrics or the HTTP status endpoint.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusRegistered
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusRegistered:
		return "registered"
	case StatusFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// reregisterInterval matches masterserver.cpp's one_hr timer.
const reregisterInterval = time.Hour

// Client maintains the connection to an external master server.
type Client struct {
	host       string
	serverPort int
	log        zerolog.Logger

	status Status

	connMu sync.Mutex
	conn   net.Conn

	onAuthChallenge func(reqID int, desc string)
	onAuthResult    func(reqID int, ok bool)
}

// New creates a master-server client. host is "host:port" of the master; an
// empty host disables registration entirely (masterserver.cpp's
// `!mastername[0]` short-circuit).
func New(host string, serverPort int, log zerolog.Logger) *Client {
	return &Client{
		host:       host,
		serverPort: serverPort,
		log:        log.With().Str("component", "masterlink").Logger(),
	}
}

// OnAuthChallenge registers a callback for "chalauth <reqid> <desc>" lines.
func (c *Client) OnAuthChallenge(fn func(reqID int, desc string)) { c.onAuthChallenge = fn }

// OnAuthResult registers a callback for "succauth <reqid>"/"failauth <reqid>" lines.
func (c *Client) OnAuthResult(fn func(reqID int, ok bool)) { c.onAuthResult = fn }

// Status returns the current registration state.
func (c *Client) Status() Status { return c.status }

// Run connects, registers, and reregisters hourly until ctx is canceled,
// reconnecting with exponential backoff (capped at 60s) on any disconnect —
// masterserver.cpp's mastereventcb immediate-retry loop, softened with
// backoff since a real TCP connection (unlike libevent's bufferevent) can
// spin hot on a persistently unreachable host.
func (c *Client) Run(ctx context.Context) {
	if c.host == "" {
		c.log.Info().Msg("no master server configured, skipping registration")
		return
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		c.status = StatusConnecting
		if err := c.connectAndServe(ctx); err != nil {
			c.status = StatusFailed
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("master link down")
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

func (c *Client) connectAndServe(ctx context.Context) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.host, err)
	}
	defer conn.Close()

	c.log.Info().Str("master", c.host).Msg("connected to master server")
	c.status = StatusConnecting

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
	}()

	if err := c.register(conn); err != nil {
		return err
	}

	reregister := time.NewTicker(reregisterInterval)
	defer reregister.Stop()

	lines := make(chan string)
	errs := make(chan error, 1)
	go readLines(conn, lines, errs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case <-reregister.C:
			if err := c.register(conn); err != nil {
				return err
			}
		case ln := <-lines:
			c.handleLine(ln)
		}
	}
}

func (c *Client) register(conn net.Conn) error {
	_, err := fmt.Fprintf(conn, "regserv %d\n", c.serverPort)
	return err
}

// RequestAuth forwards "reqauth <id> <name>" to the master, the outbound
// half of masterserver.cpp's tryauth. It reports false if there is no live
// master connection, mirroring gameserver.cpp's requestmasterf failure path
// ("not connected to authentication server").
func (c *Client) RequestAuth(id int, name string) bool {
	return c.writeLine(fmt.Sprintf("reqauth %d %s\n", id, name))
}

// AnswerChallenge forwards "confauth <id> <answer>" to the master, the
// outbound half of masterserver.cpp's answerchallenge.
func (c *Client) AnswerChallenge(id int, answer string) bool {
	return c.writeLine(fmt.Sprintf("confauth %d %s\n", id, answer))
}

func (c *Client) writeLine(line string) bool {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return false
	}
	_, err := fmt.Fprint(conn, line)
	return err == nil
}

func (c *Client) handleLine(ln string) {
	cmd, args, _ := strings.Cut(ln, " ")
	switch cmd {
	case "failreg":
		c.status = StatusFailed
		c.log.Warn().Str("reason", args).Msg("master server registration failed")
	case "succreg":
		c.status = StatusRegistered
		c.log.Info().Msg("master server registration succeeded")
	case "chalauth":
		var reqID int
		var desc string
		if _, err := fmt.Sscanf(args, "%d %s", &reqID, &desc); err == nil && c.onAuthChallenge != nil {
			c.onAuthChallenge(reqID, desc)
		}
	case "succauth":
		if reqID, err := parseInt(args); err == nil && c.onAuthResult != nil {
			c.onAuthResult(reqID, true)
		}
	case "failauth":
		if reqID, err := parseInt(args); err == nil && c.onAuthResult != nil {
			c.onAuthResult(reqID, false)
		}
	default:
		c.log.Debug().Str("line", ln).Msg("unrecognized master server input")
	}
}

func parseInt(s string) (int, error) {
	var v int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v)
	return v, err
}

func readLines(conn net.Conn, out chan<- string, errs chan<- error) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		errs <- err
		return
	}
	errs <- fmt.Errorf("master server closed connection")
}
