package api

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"goequity/internal"

	"github.com/gin-gonic/gin"
)

// Run outcomes carried by the terminal progress event
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// finalSendTimeout bounds how long the terminal event waits for queue space
const finalSendTimeout = 2 * time.Second

// ProgressEvent reports how far a probabilistic run has got. Exactly one
// event per run has Finished set, sent by Complete whatever the outcome.
type ProgressEvent struct {
	Key       string    `json:"key"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Progress  float64   `json:"progress"`
	Finished  bool      `json:"finished"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type progressClient struct {
	key     string
	channel chan ProgressEvent
}

// ProgressHub fans run progress out to Server-Sent Events subscribers,
// keyed by a client-chosen progress key
type ProgressHub struct {
	clients    map[string]map[chan ProgressEvent]bool
	clientsMu  sync.RWMutex
	register   chan progressClient
	unregister chan progressClient
	broadcast  chan ProgressEvent
	logger     *internal.Logger
}

// NewProgressHub creates a hub and starts its dispatch loop
func NewProgressHub(logger *internal.Logger) *ProgressHub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	hub := &ProgressHub{
		clients:    make(map[string]map[chan ProgressEvent]bool),
		register:   make(chan progressClient, 10),
		unregister: make(chan progressClient, 10),
		broadcast:  make(chan ProgressEvent, 100),
		logger:     logger,
	}

	go hub.run()
	return hub
}

func (h *ProgressHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.key] == nil {
				h.clients[client.key] = make(map[chan ProgressEvent]bool)
			}
			h.clients[client.key][client.channel] = true
			h.logger.Debug("[progress] client registered for %s (total clients: %d)", client.key, len(h.clients[client.key]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.key]; exists {
				delete(clients, client.channel)
				close(client.channel)
				if len(clients) == 0 {
					delete(h.clients, client.key)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.Key] {
				if event.Finished {
					// a slow client may drop ticks but not the terminal event
					select {
					case clientChan <- event:
					case <-time.After(finalSendTimeout):
						h.logger.Warn("[progress] client for %s did not take the final event", event.Key)
					}
					continue
				}
				select {
				case clientChan <- event:
				default:
					h.logger.Debug("[progress] client channel full for %s, skipping event", event.Key)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Broadcast queues an event; it never blocks the caller
func (h *ProgressHub) Broadcast(event ProgressEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Debug("[progress] broadcast channel full, dropping event for %s", event.Key)
	}
}

// Reporter returns an engine progress callback that publishes under key.
// Events are throttled to roughly one per percent. The run's end is
// signalled separately by Complete.
func (h *ProgressHub) Reporter(key string) func(done, total int) {
	return func(done, total int) {
		step := total / 100
		if step < 1 {
			step = 1
		}
		if done%step != 0 && done != total {
			return
		}
		h.Broadcast(ProgressEvent{
			Key:       key,
			Done:      done,
			Total:     total,
			Progress:  float64(done) / float64(total),
			Timestamp: time.Now().UTC(),
		})
	}
}

// Complete publishes the terminal event for key. runErr is nil for a run
// that succeeded; otherwise it is reported with StatusFailed.
func (h *ProgressHub) Complete(key string, done, total int, runErr error) {
	event := ProgressEvent{
		Key:       key,
		Done:      done,
		Total:     total,
		Finished:  true,
		Status:    StatusSucceeded,
		Timestamp: time.Now().UTC(),
	}
	if total > 0 {
		event.Progress = float64(done) / float64(total)
	}
	if runErr != nil {
		event.Status = StatusFailed
		event.Error = runErr.Error()
	}

	select {
	case h.broadcast <- event:
	case <-time.After(finalSendTimeout):
		h.logger.Warn("[progress] broadcast channel full, final event for %s lost", key)
	}
}

// ClientCount returns the number of subscribers for key
func (h *ProgressHub) ClientCount(key string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[key])
}

// HandleSSE streams progress events for ?key= until the client leaves
func (h *ProgressHub) HandleSSE(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(400, gin.H{"error": "key parameter required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan ProgressEvent, 10)
	select {
	case h.register <- progressClient{key: key, channel: clientChan}:
	default:
		c.JSON(500, gin.H{"error": "progress hub registration failed"})
		return
	}
	defer func() {
		h.unregister <- progressClient{key: key, channel: clientChan}
	}()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-clientChan:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("[progress] failed to marshal event: %v", err)
				return true
			}
			c.SSEvent("progress", string(data))
			return !event.Finished

		case <-time.After(30 * time.Second):
			c.SSEvent("ping", `{"status": "alive"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}
