package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshino/questlog/server/audit"
	"github.com/hoshino/questlog/server/game/progression"
	mw "github.com/hoshino/questlog/server/middleware"
)

// CharacterHandler handles character REST endpoints.
type CharacterHandler struct {
	prog  *progression.Service
	audit *audit.Service
}

// NewCharacterHandler creates a new CharacterHandler. audit may be nil.
func NewCharacterHandler(prog *progression.Service, auditSvc *audit.Service) *CharacterHandler {
	return &CharacterHandler{prog: prog, audit: auditSvc}
}

type createCharacterRequest struct {
	Name string `json:"name" binding:"required,min=1,max=32"`
}

// Create handles POST /api/characters.
func (h *CharacterHandler) Create(c *gin.Context) {
	start := time.Now()

	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	char, err := h.prog.Register(c.Request.Context(), req.Name)
	if h.audit != nil {
		entry := audit.Entry{
			TraceID:    mw.GetTraceID(c),
			Action:     "character_create",
			Request:    req,
			Response:   char,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if char != nil {
			entry.CharID = &char.ID
		}
		if err != nil {
			entry.Error = err.Error()
		}
		h.audit.Log(entry)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, char)
}

// List handles GET /api/characters.
func (h *CharacterHandler) List(c *gin.Context) {
	chars, err := h.prog.ListCharacters(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}
