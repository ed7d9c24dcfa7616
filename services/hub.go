package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub fans game events out to every client subscribed to a session and feeds
// client commands into the game service. Commands arrive as tagged JSON
// frames and are decoded into typed payloads before they reach the engine.
type Hub struct {
	clients     map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex
	gameService *GameService
}

type Client struct {
	hub        *Hub
	id         string
	socket     *websocket.Conn
	send       chan []byte
	sessionID  uint
	playerID   uint
	playerName string
}

// Message is the wire frame in both directions. Inbound payloads stay raw
// until the command type is known.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type guessPayload struct {
	Position string           `json:"position"`
	Details  *DetailedGuesses `json:"detailed_guesses,omitempty"`
}

type selectPackagePayload struct {
	PackageID uint `json:"package_id"`
}

type selectPlaylistPayload struct {
	PlaylistID string `json:"playlist_id"`
}

func NewHub(gameService *GameService) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		gameService: gameService,
	}
	// The game service publishes through the hub while holding the session
	// lock; that keeps the per-session frame order equal to commit order.
	gameService.SetBroadcaster(h)
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client %s registered for session %d (player %d: %s)", client.id, client.sessionID, client.playerID, client.playerName)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Client %s unregistered from session %d (player %d: %s)", client.id, client.sessionID, client.playerID, client.playerName)
			}
			h.mutex.Unlock()
		}
	}
}

// BroadcastToSession sends an event frame to every client subscribed to the
// session. Per-session ordering holds because commands are serialized before
// they reach here.
func (h *Hub) BroadcastToSession(sessionID uint, messageType string, payload interface{}) {
	data, err := json.Marshal(outMessage{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}

	h.mutex.Lock()
	for client := range h.clients {
		if client.sessionID != sessionID {
			continue
		}
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mutex.Unlock()
}

// ConnectedPlayers returns the player ids currently subscribed to a session.
func (h *Hub) ConnectedPlayers(sessionID uint) []uint {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var playerIDs []uint
	for client := range h.clients {
		if client.sessionID == sessionID {
			playerIDs = append(playerIDs, client.playerID)
		}
	}
	return playerIDs
}

func (h *Hub) RegisterClient(conn *websocket.Conn, sessionID, playerID uint, playerName string) *Client {
	client := &Client{
		hub:        h,
		id:         uuid.NewString(),
		socket:     conn,
		send:       make(chan []byte, 256),
		sessionID:  sessionID,
		playerID:   playerID,
		playerName: playerName,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Error unmarshaling message from client %s: %v", c.id, err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.socket.Close()
	}()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

// handleMessage dispatches one decoded client command. Failed commands reply
// only to the sender; nothing is broadcast unless state actually changed.
func (c *Client) handleMessage(msg Message) {
	hub := c.hub
	game := hub.gameService

	switch msg.Type {
	case "ping":
		c.reply("pong", nil)

	case "joinSession":
		// Subscription sync: send the current snapshot to this client only.
		state, err := game.GetGameState(c.sessionID)
		if err != nil {
			log.Printf("Error getting state for session %d: %v", c.sessionID, err)
			c.replyError(err)
			return
		}
		c.reply("gameStateUpdate", state)

	case "startGame":
		if _, err := game.StartGame(context.Background(), c.sessionID); err != nil {
			log.Printf("Error starting session %d: %v", c.sessionID, err)
			c.replyError(err)
			return
		}

	case "makeGuess":
		var payload guessPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Position == "" {
			log.Printf("Invalid makeGuess payload from client %s", c.id)
			c.replyError(ErrInvalidTransition)
			return
		}
		if _, err := game.MakeGuess(c.sessionID, c.playerID, payload.Position, payload.Details); err != nil {
			log.Printf("Error processing guess in session %d: %v", c.sessionID, err)
			c.replyError(err)
			return
		}

	case "selectPackage":
		var payload selectPackagePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.PackageID == 0 {
			log.Printf("Invalid selectPackage payload from client %s", c.id)
			c.replyError(ErrPackageNotFound)
			return
		}
		if err := game.SelectPackage(c.sessionID, payload.PackageID); err != nil {
			log.Printf("Error selecting package in session %d: %v", c.sessionID, err)
			c.replyError(err)
			return
		}

	case "selectPlaylist":
		var payload selectPlaylistPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.PlaylistID == "" {
			log.Printf("Invalid selectPlaylist payload from client %s", c.id)
			c.replyError(ErrInvalidTransition)
			return
		}
		if err := game.SelectPlaylist(c.sessionID, c.playerID, payload.PlaylistID); err != nil {
			log.Printf("Error selecting playlist in session %d: %v", c.sessionID, err)
			c.replyError(err)
			return
		}

	default:
		log.Printf("Unknown message type %q from player %d in session %d", msg.Type, c.playerID, c.sessionID)
	}
}

func (c *Client) reply(messageType string, payload interface{}) {
	data, err := json.Marshal(outMessage{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s reply: %v", messageType, err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) replyError(err error) {
	c.reply("error", map[string]string{"message": err.Error()})
}
