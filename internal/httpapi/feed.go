package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// feedUpgrader upgrades GET /admin/feed to a WebSocket connection, reusing
// the teacher's own transport dependency (github.com/gorilla/websocket)
// rather than dropping it — see DESIGN.md.
var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleAdminFeed authenticates with the same admin password query param as
// the kick/ban control path, then registers the connection as a feed
// subscriber until it errors or closes.
func (s *Server) handleAdminFeed(c echo.Context) error {
	if s.pass != "" && c.QueryParam("pass") != s.pass {
		return c.JSON(http.StatusUnauthorized, actionResponse{Error: "bad password"})
	}
	conn, err := feedUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	<-s.feedMu
	s.feedSubs[conn] = true
	s.feedMu <- struct{}{}

	go func() {
		defer func() {
			s.removeFeedSub(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}
