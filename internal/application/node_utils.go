package application

import (
	"time"

	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/realtime"
	"github.com/planline/planline/internal/storage"
)

// DB returns the node's database handle.
func (n *Node) DB() *storage.DB {
	return n.db
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.config
}

// Hub returns the realtime broadcast hub.
func (n *Node) Hub() *realtime.Hub {
	return n.hub
}

// ConnectionCount reports live websocket connections.
func (n *Node) ConnectionCount() int {
	return n.hub.ConnectionCount()
}

// StartTime reports when the node started.
func (n *Node) StartTime() time.Time {
	return n.startTime
}
