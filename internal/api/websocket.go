package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// bulletinBroadcast is one fanned-out PublishBulletin call: the encoded
// message plus the enterprise_id it concerns, so Run can skip clients that
// subscribed to a different enterprise_id.
type bulletinBroadcast struct {
	data         []byte
	enterpriseID int64
	all          bool // true for Broadcast calls, which ignore every client's filter
}

// Hub maintains the set of subscribed bulletin-feed clients and fans out
// every graph.Notifier.PublishBulletin call to them. A client may narrow its
// feed to a single enterprise_id via Subscribe's ?enterprise_id= query
// param; without it, the client receives every bulletin.
type Hub struct {
	clients   map[*websocket.Conn]*int64 // nil filter = all enterprise_ids
	broadcast chan bulletinBroadcast
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan bulletinBroadcast, 256),
		clients:   make(map[*websocket.Conn]*int64),
	}
}

func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.mutex.Lock()
		for client, filter := range h.clients {
			if !msg.all && filter != nil && *filter != msg.enterpriseID {
				continue
			}
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				log.Printf("bulletin websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the connection and registers it for the bulletin feed,
// optionally narrowed to one enterprise_id.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("failed to upgrade bulletin websocket: %v", err)
		return
	}

	var filter *int64
	if raw := c.Query("enterprise_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter = &id
		} else {
			log.Printf("bulletin subscribe: ignoring invalid enterprise_id %q", raw)
		}
	}

	h.mutex.Lock()
	h.clients[conn] = filter
	h.mutex.Unlock()

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("bulletin websocket error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast sends a pre-encoded payload to every subscribed client,
// regardless of enterprise_id filter — used for feed-wide notices rather
// than a specific bulletin row.
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- bulletinBroadcast{data: data, all: true}
}

type bulletinMessage struct {
	BatchID      int64     `json:"batch_id"`
	ProcID       int64     `json:"proc_id"`
	RecordID     int64     `json:"record_id"`
	EnterpriseID int64     `json:"enterprise_id"`
	TouchedTS    time.Time `json:"touched_ts"`
}

// PublishBulletin implements graph.Notifier by broadcasting every bulletin
// row the cursor writes to the live feed, routed to subscribers whose
// enterprise_id filter matches (or who have none). The interface has no
// error return, so a marshal failure (which should never happen for this
// fixed shape) is only logged.
func (h *Hub) PublishBulletin(batchID, procID, recordID, enterpriseID int64, ts time.Time) {
	data, err := json.Marshal(bulletinMessage{
		BatchID:      batchID,
		ProcID:       procID,
		RecordID:     recordID,
		EnterpriseID: enterpriseID,
		TouchedTS:    ts,
	})
	if err != nil {
		log.Printf("marshal bulletin message: %v", err)
		return
	}
	h.broadcast <- bulletinBroadcast{data: data, enterpriseID: enterpriseID}
}
