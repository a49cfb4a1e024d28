package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshino/questlog/server/audit"
	"github.com/hoshino/questlog/server/cache"
	"github.com/hoshino/questlog/server/game/progression"
	mw "github.com/hoshino/questlog/server/middleware"
)

// EventChannel is the pub/sub channel quest lifecycle events are published to.
const EventChannel = "quest_events"

// ProgressionHandler handles quest assignment and completion endpoints.
type ProgressionHandler struct {
	prog   *progression.Service
	audit  *audit.Service
	events cache.PubSub
}

// NewProgressionHandler creates a new ProgressionHandler.
// audit and events may be nil.
func NewProgressionHandler(prog *progression.Service, auditSvc *audit.Service, events cache.PubSub) *ProgressionHandler {
	return &ProgressionHandler{prog: prog, audit: auditSvc, events: events}
}

// Assign handles POST /api/characters/:id/quests/:quest_id.
func (h *ProgressionHandler) Assign(c *gin.Context) {
	start := time.Now()

	charID, ok := parseID(c, "id")
	if !ok {
		return
	}
	questID, ok := parseID(c, "quest_id")
	if !ok {
		return
	}

	activated, err := h.prog.Assign(c.Request.Context(), charID, questID)
	resp := gin.H{"activated": activated, "queued": !activated && err == nil}
	h.record(c, "quest_assign", charID, gin.H{"quest_id": questID}, resp, err, start)
	if err != nil {
		writeError(c, err)
		return
	}
	h.publish(c, "assigned", gin.H{
		"character_id": charID,
		"quest_id":     questID,
		"activated":    activated,
	})
	c.JSON(http.StatusOK, resp)
}

// Complete handles POST /api/characters/:id/complete.
func (h *ProgressionHandler) Complete(c *gin.Context) {
	start := time.Now()

	charID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.prog.Complete(c.Request.Context(), charID)
	h.record(c, "quest_complete", charID, nil, result, err, start)
	if err != nil {
		writeError(c, err)
		return
	}
	h.publish(c, "completed", gin.H{
		"character_id": charID,
		"xp_gained":    result.XPGained,
		"xp_total":     result.XPTotal,
	})
	c.JSON(http.StatusOK, result)
}

// Status handles GET /api/characters/:id/quests.
// It returns the full progression record plus the assignable quests,
// mirroring what a quest journal screen needs in one request.
func (h *ProgressionHandler) Status(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}

	status, err := h.prog.Status(c.Request.Context(), charID)
	if err != nil {
		writeError(c, err)
		return
	}
	available, err := h.prog.ListAvailable(c.Request.Context(), charID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"character_id":     status.CharacterID,
		"xp_total":         status.XPTotal,
		"active_quest":     status.Active,
		"pending_quests":   status.Pending,
		"completed_quests": status.Completed,
		"available_quests": available,
	})
}

// Available handles GET /api/characters/:id/quests/available.
func (h *ProgressionHandler) Available(c *gin.Context) {
	charID, ok := parseID(c, "id")
	if !ok {
		return
	}

	quests, err := h.prog.ListAvailable(c.Request.Context(), charID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": quests})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}

func (h *ProgressionHandler) record(c *gin.Context, action string, charID int64, req, resp interface{}, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		CharID:     &charID,
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

func (h *ProgressionHandler) publish(c *gin.Context, eventType string, payload gin.H) {
	if h.events == nil {
		return
	}
	payload["type"] = eventType
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = h.events.Publish(c.Request.Context(), EventChannel, string(data))
}
