// Package web provides an optional fiber-backed status dashboard for
// cairofuzz, adapted from the teacher project's internal/web/server.go:
// the same fiber.App + websocket broadcast-channel shape, but serving a
// coordinator.Monitor snapshot instead of an HTTP-fuzzing FuzzerStats
// struct.
package web

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/cairo-fuzz/cairofuzz/internal/coordinator"
)

// Server serves /api/stats (the latest monitor snapshot as JSON) and
// /ws (a websocket that pushes every new snapshot as it arrives).
type Server struct {
	app *fiber.App

	mu     sync.RWMutex
	latest coordinator.Monitor

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	feed <-chan coordinator.Monitor
}

// NewServer builds a Server that mirrors every snapshot received on feed
// into /api/stats and broadcasts it to any connected /ws client.
func NewServer(feed <-chan coordinator.Monitor) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{
		app:     app,
		clients: make(map[*websocket.Conn]bool),
		feed:    feed,
	}
	s.setupRoutes()
	go s.consumeFeed()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/api/stats", func(c *fiber.Ctx) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return c.JSON(s.latest)
	})

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		s.clientsMu.Lock()
		s.clients[conn] = true
		s.clientsMu.Unlock()

		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, conn)
			s.clientsMu.Unlock()
			conn.Close()
		}()

		// Block on reads purely to detect client disconnect; the dashboard
		// never sends anything meaningful back to the server.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func (s *Server) consumeFeed() {
	for m := range s.feed {
		s.mu.Lock()
		s.latest = m
		s.mu.Unlock()
		s.broadcast(m)
	}
}

func (s *Server) broadcast(m coordinator.Monitor) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// Start blocks, listening on addr. It logs and returns the listen error,
// matching the teacher's own Server.Start signature.
func (s *Server) Start(addr string) error {
	log.Printf("web dashboard listening on %s", addr)
	err := s.app.Listen(addr)
	if err != nil {
		log.Printf("web dashboard: %v", err)
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	return s.app.Shutdown()
}
