package realtime

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/planline/planline/internal/config"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/metrics"
	"go.uber.org/zap"
)

// Server upgrades HTTP requests to websocket connections and hands them to
// the hub.
type Server struct {
	hub      *Hub
	cfg      config.ServerConfig
	upgrader websocket.Upgrader
}

// NewServer constructs the websocket endpoint for the given hub.
func NewServer(hub *Hub, cfg config.ServerConfig) *Server {
	return &Server{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.SendBufferSize,
			WriteBufferSize:   cfg.SendBufferSize,
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
			HandshakeTimeout:  10 * time.Second,
		},
	}
}

// Handler returns the HTTP handler for the websocket endpoint. The context
// bounds the lifetime of every connection accepted through it.
func (s *Server) Handler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.handleUpgrade(ctx, w, r)
	}
}

func (s *Server) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	clientIP := extractRealClientIP(r)

	logger.Debug("New WebSocket connection attempt",
		zap.String("client_ip", clientIP),
		zap.String("user_agent", r.Header.Get("User-Agent")),
		zap.String("origin", r.Header.Get("Origin")))

	if metrics.GetActiveConnectionsCount() >= int64(s.cfg.Throttling.MaxConnections) {
		limitErr := apperrors.ConnectionLimitError(
			int(metrics.GetActiveConnectionsCount()),
			s.cfg.Throttling.MaxConnections)
		apperrors.HandleHTTPError(w, r, limitErr)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		upgradeErr := apperrors.WebSocketError("connection upgrade", err)
		logger.Warn("WebSocket upgrade failed",
			zap.String("client_ip", clientIP),
			zap.Error(upgradeErr))
		return
	}

	conn := NewWsConnection(ctx, wsConn, s.hub, s.cfg, clientIP)

	logger.Debug("WebSocket connection established",
		zap.String("client_ip", clientIP),
		zap.String("conn_id", conn.ID()),
		zap.Int64("active_connections", metrics.GetActiveConnectionsCount()))

	go conn.HandleMessages(ctx)
}

// extractRealClientIP extracts the real client IP from request headers when behind a proxy
func extractRealClientIP(r *http.Request) string {
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		// First IP in the chain is the original client
		parts := strings.Split(forwardedFor, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	return normalizeIP(r.RemoteAddr)
}

// normalizeIP converts a network address to a normalized IP string
func normalizeIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ip := net.ParseIP(host)
	if ip != nil {
		if ipv4 := ip.To4(); ipv4 != nil {
			return ipv4.String()
		}
		return ip.String()
	}

	return host
}
