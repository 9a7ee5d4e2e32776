package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"codeberg.org/graphroom/server/graph/rooms"
)

// inbound message type constants; anything else is an explicit
// pass-through relayed verbatim to the rest of the room
const (
	// binds a user address to the sender's connection
	TypeSyncUser = "sync-user"

	// replaces or clears the sender's node selection
	TypeSelection = "selection"

	// position churn; appended for bookkeeping but never conflict-checked
	TypeNodeMove = "node-move"

	// application-level keep-alive, answered with pong
	TypePing = "ping"
)

// outbound message type constants
const (
	// presence snapshot; carries the recent event tail on connect
	TypeSync = "sync"

	// an accepted mutation relayed to the rest of the room
	TypeDataSync = "data-sync"

	// per-sender acknowledgement of a mutation
	TypeDataAck = "data-ack"

	// broadcast to every connection when a conflict is resolved
	TypeConflictResolution = "conflict-resolution"

	// reply to an application-level ping
	TypePong = "pong"

	// sent to all clients before graceful shutdown
	TypeServerShutdown = "server_shutdown"
)

// data-ack status values
const (
	AckStatusSuccess          = "success"
	AckStatusConflictResolved = "conflict-resolved"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512 KB

	// inbound message rate limit per client (sustained / burst)
	inboundRateLimit = rate.Limit(20)
	inboundRateBurst = 40
)

// hub connection limit constants
const maxConnectionsPerIP = 10

// how many log events a connecting client receives in its sync snapshot
const syncEventTail = 50

// errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrRoomNotFound     = errors.New("room not found")
	ErrClientNotFound   = errors.New("client not found")
)

// one message read off a client connection. Raw keeps the original frame
// so handlers can decode their own shape and the pass-through variant can
// relay it byte-for-byte.
type Inbound struct {
	Type       string
	Raw        []byte
	RoomID     string
	ClientID   string
	ReceivedAt time.Time
}

// inbound payload shapes

type SyncUserPayload struct {
	Address string `json:"address"`
}

type SelectionPayload struct {
	NodeID *string `json:"nodeId"`
}

type NodeMovePayload struct {
	Payload struct {
		NodeID   string `json:"nodeId"`
		Position struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"position"`
	} `json:"payload"`
}

// outbound message shapes

// presence snapshot; RecentEvents is non-nil only on the connect snapshot
type SyncMessage struct {
	Type         string                 `json:"type"`
	Users        []rooms.PresenceRecord `json:"users"`
	RecentEvents []*rooms.MutationEvent `json:"recentEvents,omitempty"`
}

type SelectionBroadcast struct {
	Type    string  `json:"type"`
	Address string  `json:"address"`
	NodeID  *string `json:"nodeId"`
}

type DataSyncMessage struct {
	Type            string               `json:"type"`
	Event           *rooms.MutationEvent `json:"event"`
	ServerTimestamp int64                `json:"serverTimestamp"`
}

type DataAckMessage struct {
	Type            string                    `json:"type"`
	EventID         string                    `json:"eventId"`
	ServerTimestamp int64                     `json:"serverTimestamp,omitempty"`
	Status          string                    `json:"status"`
	Resolution      *rooms.ConflictResolution `json:"resolution,omitempty"`
}

type ConflictResolutionMessage struct {
	Type       string                    `json:"type"`
	Resolution *rooms.ConflictResolution `json:"resolution"`
	Timestamp  int64                     `json:"timestamp"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ServerShutdownMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// stats for the REST introspection surface
type RoomStats struct {
	RoomID      string `json:"roomId"`
	Connections int    `json:"connections"`
	Presence    int    `json:"presence"`
	Events      int    `json:"events"`
	Conflicts   int    `json:"conflicts"`
}

// represents a websocket client connection
type Client struct {
	// unique identifier for this connection
	ID string

	// room this client is connected to (an opaque caller-supplied string)
	RoomID string

	// user address bound to this connection; first value wins, written by
	// the hub under its lock and never overwritten
	Address string

	// IP address of the client (for connection tracking)
	IPAddress string

	// websocket connection
	conn *websocket.Conn

	// hub reference for message routing
	hub *Hub

	// buffered channel of outbound frames
	send chan []byte

	// inbound frame rate limiter; excess frames are dropped silently
	limiter *rate.Limiter

	// mutex for thread-safe close
	mu sync.RWMutex

	// flag indicating if client is closed
	closed bool
}

// per-room state owned by the hub: the connected clients plus the room's
// presence/log/conflict state machine
type roomEntry struct {
	clients map[string]*Client
	state   *rooms.Room
}

// Hub is the room session manager: the single mutation point for all
// per-room state. Every connect, disconnect, message pipeline, and idle
// sweep runs to completion under the hub mutex, which is what keeps the
// conflict window race-free.
type Hub struct {
	// registered rooms by room id, created lazily on first connect
	rooms map[string]*roomEntry

	// register requests from connections
	Register chan *Client

	// unregister requests from connections
	Unregister chan *Client

	// messages read off client connections
	Inbound chan *Inbound

	// mutex guarding rooms and all state reachable from them
	mu sync.RWMutex

	// message handlers by inbound type
	handlers map[string]MessageHandler

	// handler for unrecognized-but-well-formed types (verbatim relay)
	passthrough MessageHandler

	// flag indicating if hub is running
	running bool

	// channel to signal shutdown
	shutdown chan struct{}

	// connection tracking: IP address -> count of connections
	ipConnections map[string]int

	// per-room limits applied to lazily created rooms
	opts rooms.Options
}

// processes a specific inbound message type
type MessageHandler func(hub *Hub, client *Client, in *Inbound) error
