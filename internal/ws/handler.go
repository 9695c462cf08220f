package ws

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development (use proper CORS in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler terminates WebSocket connections for the notification gateway.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// SetupRoutes configures the gateway's HTTP routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws", h.HandleWebSocket)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/stats/connections", h.GetConnectionStats).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// HandleWebSocket upgrades the HTTP connection and registers the client.
// Clients receive broadcasts immediately; an AUTH frame with their user ID
// additionally routes personal notifications to them.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
	}

	// Queue the welcome before the manager learns of the connection; until
	// registration, nothing can close Send.
	welcome := fmt.Sprintf(`{"type":"CONNECTED","clientId":"%s"}`, client.ID)
	client.Send <- []byte(welcome)

	h.manager.RegisterClient(client)
	client.StartReadPump(h.manager)
}

// HealthCheck returns service health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"notify-gateway"}`)
}

// GetConnectionStats reports connection counts.
func (h *Handler) GetConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, identified := h.manager.ClientCount()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"connections":%d,"identified":%d}`, total, identified)
}
