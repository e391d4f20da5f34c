package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Dashboard pushes scheduler status snapshots to connected websocket
// clients, adapted from
// _examples/Kunal1522-GPU-Aware-Batch-Router/pkg/router/broadcast.go's
// Broadcaster (ClusterState -> per-GPU scheduler status instead of
// per-worker routing scores).
type Dashboard struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewDashboard() *Dashboard {
	return &Dashboard{clients: make(map[*websocket.Conn]bool)}
}

// GPUStatus is one GPU's snapshot in the dashboard feed.
type GPUStatus struct {
	GPUID          int   `json:"gpu_id"`
	WorkerID       int   `json:"worker_id"`
	FreePages      int   `json:"free_pages"`
	TotalPages     int   `json:"total_pages"`
	ResidentModels []int `json:"resident_models"`
	LoadingModels  []int `json:"loading_models,omitempty"`
	ExecQueueDepth int   `json:"exec_queue_depth"`
	ClockRate      int   `json:"clock_rate"`

	// ModelPreferences is the WorkTracker's read-only tie-break preference
	// hint per resident model id (spec section 4.3's ModelPriority.preference).
	ModelPreferences map[int]int64 `json:"model_preferences,omitempty"`
}

// Status is the full snapshot pushed to every connected dashboard client.
type Status struct {
	Time               int64       `json:"t"`
	GPUs               []GPUStatus `json:"gpus"`
	OutstandingActions int         `json:"outstanding_actions"`
}

// HandleWS is the websocket upgrade handler, mounted at /ws.
func (d *Dashboard) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("telemetry: websocket upgrade failed: %v", err)
		return
	}

	d.mu.Lock()
	d.clients[conn] = true
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.clients, conn)
			d.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes status to every connected client, dropping any that
// error (the read goroutine above will clean up the map entry).
func (d *Dashboard) Broadcast(status Status) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for conn := range d.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
		}
	}
}
