// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the gateway over HTTP. The chat endpoint supports
// non-streamed JSON replies and line-framed streamed events; the tool
// endpoints serve the structured content generators.
package api

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/thrivecoach/safegate/internal/gateway"
	"github.com/thrivecoach/safegate/internal/provider"
	"github.com/thrivecoach/safegate/internal/router"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	// Message is the current user message.
	Message string `json:"message" binding:"required"`

	// History is the ordered prior conversation.
	History []ChatTurn `json:"history"`

	// Stream selects line-framed streamed delivery.
	Stream bool `json:"stream"`
}

// ChatTurn mirrors provider.Turn on the wire.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// tokenEvent is one streamed fragment line.
type tokenEvent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// replyEvent is the terminal streamed line.
type replyEvent struct {
	Reply string `json:"reply"`
}

// Server wires the gateway into a gin engine. The gateway reference is
// swappable so a config reload can rebuild the pipeline without restarting
// the listener.
type Server struct {
	gw atomic.Pointer[gateway.Gateway]
}

// NewServer creates the HTTP server over a gateway.
func NewServer(gw *gateway.Gateway) *Server {
	s := &Server{}
	s.gw.Store(gw)
	return s
}

// SetGateway atomically replaces the active gateway. In-flight requests keep
// the pipeline they started with.
func (s *Server) SetGateway(gw *gateway.Gateway) {
	s.gw.Store(gw)
}

func (s *Server) gateway() *gateway.Gateway {
	return s.gw.Load()
}

// Engine builds the gin engine with all routes registered.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.POST("/v1/chat", s.handleChat)
	engine.POST("/v1/tools/meal-plan", s.handleMealPlan)
	engine.POST("/v1/tools/macros", s.handleMacros)
	return engine
}

// Run starts the server on addr, blocking until it exits.
func (s *Server) Run(addr string) error {
	return s.Engine().Run(addr)
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	history := make([]provider.Turn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, provider.Turn{Role: turn.Role, Content: turn.Content})
	}

	if req.Stream {
		s.chatStream(c, req.Message, history)
		return
	}

	reply, err := s.gateway().Handle(c.Request.Context(), req.Message, history)
	if err != nil {
		s.writeGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply.Text})
}

// chatStream writes line-framed events: zero or more {"type":"token",...}
// lines followed by a terminal {"reply": ...} line. The final reply is the
// post-review text and supersedes the streamed fragments.
func (s *Server) chatStream(c *gin.Context, message string, history []provider.Turn) {
	events, err := s.gateway().HandleStream(c.Request.Context(), message, history)
	if err != nil {
		s.writeGenerationError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	writeLine := func(v any) bool {
		line, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err = c.Writer.Write(append(line, '\n')); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for event := range events {
		switch event.Type {
		case "token":
			if !writeLine(tokenEvent{Type: "token", Value: event.Value}) {
				return
			}
		case "reply":
			writeLine(replyEvent{Reply: event.Reply.Text})
			return
		}
	}
}

// writeGenerationError maps pipeline failures to calm user-facing responses.
// Raw provider errors never reach the wire.
func (s *Server) writeGenerationError(c *gin.Context, err error) {
	var exhausted *router.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		log.WithField("error", err).Error("all providers exhausted")
		c.JSON(http.StatusServiceUnavailable, gin.H{"reply": gateway.UnavailableMessage})
	case provider.ClassOf(err) == provider.ErrClassAuth:
		log.WithField("error", err).Error("provider credentials rejected")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "service configuration problem"})
	default:
		log.WithField("error", err).Error("chat handling failed")
		c.JSON(http.StatusInternalServerError, gin.H{"reply": gateway.UnavailableMessage})
	}
}

// mealPlanRequest is the inbound meal planner payload.
type mealPlanRequest struct {
	Days        int    `json:"days"`
	Preferences string `json:"preferences"`
}

func (s *Server) handleMealPlan(c *gin.Context) {
	var req mealPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	plan, err := s.gateway().Tools().MealPlan(c.Request.Context(), req.Days, req.Preferences)
	if err != nil {
		s.writeGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// macrosRequest is the inbound macro calculator payload.
type macrosRequest struct {
	Stats string `json:"stats" binding:"required"`
	Goal  string `json:"goal" binding:"required"`
}

func (s *Server) handleMacros(c *gin.Context) {
	var req macrosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: stats and goal are required"})
		return
	}
	targets, err := s.gateway().Tools().Macros(c.Request.Context(), req.Stats, req.Goal)
	if err != nil {
		s.writeGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, targets)
}
