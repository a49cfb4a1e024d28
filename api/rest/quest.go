package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshino/questlog/server/audit"
	"github.com/hoshino/questlog/server/game/catalog"
	mw "github.com/hoshino/questlog/server/middleware"
)

// QuestHandler handles quest catalog REST endpoints.
type QuestHandler struct {
	catalog *catalog.Service
	audit   *audit.Service
}

// NewQuestHandler creates a new QuestHandler. audit may be nil.
func NewQuestHandler(cat *catalog.Service, auditSvc *audit.Service) *QuestHandler {
	return &QuestHandler{catalog: cat, audit: auditSvc}
}

type createQuestRequest struct {
	Title    string `json:"title"     binding:"required"`
	RewardXP int    `json:"reward_xp" binding:"required"`
}

// Create handles POST /api/quests.
func (h *QuestHandler) Create(c *gin.Context) {
	start := time.Now()

	var req createQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quest, err := h.catalog.Create(c.Request.Context(), req.Title, req.RewardXP)
	h.record(c, "quest_create", req, quest, err, start)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quest)
}

// List handles GET /api/quests.
func (h *QuestHandler) List(c *gin.Context) {
	quests, err := h.catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": quests})
}

func (h *QuestHandler) record(c *gin.Context, action string, req, resp interface{}, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}
