package ws

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; front with proper CORS in prod.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves WebSocket subscriptions.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// SetupRoutes configures the relay's HTTP surface.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws/listings/{id}", h.HandleWebSocket)
	router.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	router.HandleFunc("/stats/listings/{id}", h.GetStats).Methods("GET")

	return router
}

// HandleWebSocket upgrades the connection and subscribes it to one
// listing's event feed.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]
	if listingID == "" {
		http.Error(w, "listing id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		ListingID: listingID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
	}

	h.manager.RegisterClient(client)
	client.StartReadPump(h.manager.unregister)

	welcome := fmt.Sprintf(`{"type":"connected","listing_id":%q,"client_id":%q}`, listingID, client.ID)
	client.Send <- []byte(welcome)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]
	count := h.manager.SubscriberCount(listingID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"listing_id":%q,"subscribers":%d}`, listingID, count)
}
