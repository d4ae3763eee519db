package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/storage/sqlite"
	"github.com/family-profiler/backend/pkg/logger"
)

// WebSocketHandler replays stored narratives word by word.
type WebSocketHandler struct {
	profiles ProfileReader
	timeout  time.Duration
}

func NewWebSocketHandler(profiles ProfileReader) *WebSocketHandler {
	return &WebSocketHandler{
		profiles: profiles,
		timeout:  10 * time.Second,
	}
}

// Upgrade rejects plain HTTP requests on the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

type narrativeRequest struct {
	Type      string `json:"type"`
	ProfileID string `json:"profile_id"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg narrativeRequest
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "narrative" {
			continue
		}

		if err := h.streamNarrative(c, msg.ProfileID); err != nil {
			logger.Error("Failed to stream narrative", zap.String("profile_id", msg.ProfileID), zap.Error(err))
			h.sendError(c, "Failed to stream narrative")
		}
	}
}

func (h *WebSocketHandler) streamNarrative(c *websocket.Conn, profileID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	profile, err := h.profiles.GetProfile(ctx, profileID)
	if errors.Is(err, sqlite.ErrNotFound) {
		h.sendError(c, "Family profile not found")
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.sendChunk(c, "status", "Streaming narrative..."); err != nil {
		return err
	}

	words := splitIntoWords(profile.RawAnalysis)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":        "complete",
		"profile_id":  profile.ID,
		"family_name": profile.FamilyName,
		"tags":        profile.NarrativeTags,
	})
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	_ = c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

// splitIntoWords splits on spaces and keeps line breaks as their own tokens.
func splitIntoWords(text string) []string {
	words := []string{}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			words = append(words, "\n")
		}
		words = append(words, strings.Fields(line)...)
	}
	return words
}
