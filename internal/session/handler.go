package session

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin checking is left to an upstream reverse proxy (spec §1 treats
	// the browser-extension UI as an external collaborator); this server
	// accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var nextSessionID uint64

// Handler upgrades inbound HTTP connections to WebSocket and runs one
// Session per connection to completion (spec §4.7, §6 transport).
type Handler struct {
	cfg Config
}

// NewHandler builds the WS upgrade endpoint. cfg is copied into every
// Session spawned from a connection.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id := fmt.Sprintf("sess-%d", atomic.AddUint64(&nextSessionID, 1))
	logrus.WithField("sessionID", id).Info("session connected")
	New(id, conn, h.cfg).Serve()
	logrus.WithField("sessionID", id).Info("session closed")
}
