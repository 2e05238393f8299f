// Package httpapi implements spec.md §6's HTTP status/control endpoint plus
// the ambient /metrics and /admin/feed surfaces SPEC_FULL.md §6 adds.
// Grounded on rustyguts-bken/server/api.go's echo.New()+middleware+route
// registration shape.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatusProvider is the read-only view the HTTP endpoint needs of the game
// loop's process-wide state, kept narrow so httpapi never mutates game state
// directly — all writes go through the provider's own Kick/Ban methods.
type StatusProvider interface {
	MapName() string
	ModeName() string
	MaxClients() int
	Clients() []ClientSummary
	Uptime() time.Duration
	Kick(cn int, pass string) error
	Ban(cn int, pass string) error
}

// ClientSummary is one row of the status JSON's client list.
type ClientSummary struct {
	Name string `json:"name"`
	CN   int    `json:"cn"`
	IP   string `json:"ip"`
	Host string `json:"host"`
}

// FeedSnapshot is one tick's worth of state pushed to /admin/feed
// subscribers.
type FeedSnapshot struct {
	TickMillis int64           `json:"tick_millis"`
	Clients    []ClientSummary `json:"clients"`
	Chat       []string        `json:"chat,omitempty"`
}

// Server wraps the echo router, the admin feed hub, and an optional webhook.
type Server struct {
	e       *echo.Echo
	status  StatusProvider
	log     zerolog.Logger
	pass    string
	webhook *Webhook

	feedMu   chan struct{}
	feedSubs map[*websocket.Conn]bool
}

// New constructs the HTTP endpoint, registering every route spec.md §6 and
// SPEC_FULL.md §6 name.
func New(status StatusProvider, adminPass string, webhook *Webhook, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true, LogURI: true, LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().Str("component", "httpapi").Str("method", v.Method).
				Str("uri", v.URI).Int("status", v.Status).Msg("request")
			return nil
		},
	}))

	s := &Server{
		e: e, status: status, log: log.With().Str("component", "httpapi").Logger(),
		pass: adminPass, webhook: webhook,
		feedMu:   make(chan struct{}, 1),
		feedSubs: make(map[*websocket.Conn]bool),
	}
	s.feedMu <- struct{}{}

	e.GET("/", s.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/admin/feed", s.handleAdminFeed)
	return s
}

// statusResponse is spec.md §6's `GET /?[pass=…&][kick=…|ban=…]` JSON shape.
type statusResponse struct {
	Map        string          `json:"map"`
	Mode       string          `json:"mode"`
	ModeName   string          `json:"modename"`
	MaxClients int             `json:"maxclients"`
	Clients    []ClientSummary `json:"clients"`
	Uptime     string          `json:"uptime,omitempty"`
}

type actionResponse struct {
	Success string `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleStatus(c echo.Context) error {
	pass := c.QueryParam("pass")
	if kickParam := c.QueryParam("kick"); kickParam != "" {
		return s.handleAction(c, kickParam, pass, s.status.Kick)
	}
	if banParam := c.QueryParam("ban"); banParam != "" {
		return s.handleAction(c, banParam, pass, s.status.Ban)
	}
	resp := statusResponse{
		Map:        s.status.MapName(),
		Mode:       s.status.ModeName(),
		ModeName:   s.status.ModeName(),
		MaxClients: s.status.MaxClients(),
		Clients:    s.status.Clients(),
		Uptime:     humanize.RelTime(time.Now().Add(-s.status.Uptime()), time.Now(), "", ""),
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAction(c echo.Context, cnParam, pass string, action func(cn int, pass string) error) error {
	var cn int
	if _, err := fmt.Sscan(cnParam, &cn); err != nil {
		return c.JSON(http.StatusBadRequest, actionResponse{Error: "invalid client number"})
	}
	if err := action(cn, pass); err != nil {
		return c.JSON(http.StatusOK, actionResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, actionResponse{Success: "ok"})
}

// Start runs the HTTP server on addr until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) {
	go func() {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("http server error")
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutCtx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
	}
}

// PublishFeed pushes one tick's snapshot to every connected admin feed
// subscriber, best-effort.
func (s *Server) PublishFeed(snap FeedSnapshot) {
	<-s.feedMu
	subs := make([]*websocket.Conn, 0, len(s.feedSubs))
	for conn := range s.feedSubs {
		subs = append(subs, conn)
	}
	s.feedMu <- struct{}{}

	for _, conn := range subs {
		if err := conn.WriteJSON(snap); err != nil {
			s.removeFeedSub(conn)
			conn.Close()
		}
	}
}

func (s *Server) removeFeedSub(conn *websocket.Conn) {
	<-s.feedMu
	delete(s.feedSubs, conn)
	s.feedMu <- struct{}{}
}
