// Package server exposes the memory service over HTTP.
package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	recall "github.com/becomeliminal/recall"
	"github.com/becomeliminal/recall/core"
)

// Server is the HTTP front end over a recall.Service.
type Server struct {
	svc     *recall.Service
	engine  *gin.Engine
	started time.Time
}

// New builds the router.
func New(svc *recall.Service) *Server {
	s := &Server{
		svc:     svc,
		engine:  gin.New(),
		started: time.Now(),
	}
	s.engine.Use(gin.Recovery(), requestLog())
	s.routes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	log.Printf("[SERVER] Listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/memories", s.handleAdd)
		v1.GET("/memories", s.handleList)
		v1.DELETE("/memories", s.handleDeleteAll)
		v1.POST("/memories/search", s.handleSearch)
		v1.POST("/memories/cleanup-contradictions", s.handleCleanup)
		v1.GET("/memories/:id", s.handleGet)
		v1.PUT("/memories/:id", s.handleUpdate)
		v1.DELETE("/memories/:id", s.handleDelete)
		v1.GET("/stats", s.handleStats)
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[SERVER] %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func ok(c *gin.Context, message string, data any) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, status int, err string) {
	c.JSON(status, gin.H{"success": false, "error": err})
}

type messageBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type addRequest struct {
	UserID   string         `json:"user_id" binding:"required"`
	Messages []messageBody  `json:"messages" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleAdd(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	messages := make([]core.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, core.Message{Role: m.Role, Content: m.Content})
	}

	ops, err := s.svc.AddConversation(c.Request.Context(), req.UserID, messages, req.Metadata)
	if errors.Is(err, core.ErrMalformedOperations) {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, "Conversation processed", gin.H{"results": ops})
}

type searchRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		fail(c, http.StatusBadRequest, "query is required")
		return
	}

	results, err := s.svc.Search(c.Request.Context(), req.UserID, req.Query, req.Limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, "", gin.H{"results": results, "count": len(results)})
}

func (s *Server) handleList(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		fail(c, http.StatusBadRequest, "user_id is required")
		return
	}

	memories, err := s.svc.ListAll(c.Request.Context(), userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	total := len(memories)
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && offset > 0 {
		if offset > len(memories) {
			offset = len(memories)
		}
		memories = memories[offset:]
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil && limit > 0 && limit < len(memories) {
		memories = memories[:limit]
	}

	ok(c, "", gin.H{"results": memories, "count": len(memories), "total": total})
}

func (s *Server) handleGet(c *gin.Context) {
	mem, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, core.ErrNotFound) {
		fail(c, http.StatusNotFound, "memory not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, "", mem)
}

type updateRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	mem, err := s.svc.Update(c.Request.Context(), c.Param("id"), req.Text)
	if errors.Is(err, core.ErrNotFound) {
		fail(c, http.StatusNotFound, "memory not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, "Memory updated", mem)
}

func (s *Server) handleDelete(c *gin.Context) {
	deleted, err := s.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, "memory not found")
		return
	}

	ok(c, "Memory deleted", nil)
}

func (s *Server) handleDeleteAll(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		fail(c, http.StatusBadRequest, "user_id is required")
		return
	}

	n, err := s.svc.DeleteAll(c.Request.Context(), userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, "All memories deleted", gin.H{"deleted": n})
}

func (s *Server) handleCleanup(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		fail(c, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := c.Request.Context()
	before, err := s.svc.ListAll(ctx, userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	resolved, err := s.svc.Sweep(ctx, userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	after, err := s.svc.ListAll(ctx, userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, "Cleanup complete", gin.H{
		"contradictions_resolved": resolved,
		"memories_before":         len(before),
		"memories_after":          len(after),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, "", gin.H{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"users":          stats.Users,
		"memories":       stats.Memories,
	})
}
