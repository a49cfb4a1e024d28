package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshino/questlog/server/cache"
	"github.com/hoshino/questlog/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rankingZKey = "ranking:xp"
const rankingTop = 100

// RankingHandler handles the xp leaderboard endpoint.
type RankingHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{db: db, cache: c, logger: logger}
}

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank     int    `json:"rank"`
	CharID   int64  `json:"char_id"`
	CharName string `json:"char_name"`
	XP       int64  `json:"xp"`
}

// TopXP returns the top characters sorted by accumulated experience.
// GET /api/ranking/xp?limit=20
func (h *RankingHandler) TopXP(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	// Try the cached sorted set first.
	ctx := c.Request.Context()
	members, err := h.cache.ZRevRange(ctx, rankingZKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]RankEntry, 0, len(members))
		for i, m := range members {
			charID, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			score, _ := h.cache.ZScore(ctx, rankingZKey, m)
			entries = append(entries, RankEntry{
				Rank:   i + 1,
				CharID: charID,
				XP:     int64(score),
			})
		}
		h.enrichNames(entries)
		c.JSON(http.StatusOK, gin.H{"ranking": entries})
		return
	}

	// Fall back to a DB query and warm the cache on the way out.
	var chars []model.Character
	h.db.Select("id, name, xp").
		Order("xp DESC").
		Limit(limit).
		Find(&chars)

	entries := make([]RankEntry, len(chars))
	for i, ch := range chars {
		entries[i] = RankEntry{
			Rank:     i + 1,
			CharID:   ch.ID,
			CharName: ch.Name,
			XP:       ch.XP,
		}
		_ = h.cache.ZAdd(ctx, rankingZKey, float64(ch.XP), strconv.FormatInt(ch.ID, 10))
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}

// Refresh rebuilds the ranking sorted set from the DB. It is called
// periodically by the scheduler; the SetNX lock keeps multiple instances
// from rebuilding at the same time.
func (h *RankingHandler) Refresh(ctx context.Context) (int, error) {
	ok, err := h.cache.SetNX(ctx, "lock:ranking_refresh", "1", 30*time.Second)
	if err != nil || !ok {
		return 0, err
	}
	defer func() { _ = h.cache.Del(ctx, "lock:ranking_refresh") }()

	var chars []model.Character
	if err := h.db.Select("id, xp").Order("xp DESC").Limit(rankingTop).Find(&chars).Error; err != nil {
		return 0, err
	}
	for _, ch := range chars {
		if err := h.cache.ZAdd(ctx, rankingZKey, float64(ch.XP), strconv.FormatInt(ch.ID, 10)); err != nil {
			return 0, err
		}
	}
	h.logger.Debug("ranking refreshed", zap.Int("entries", len(chars)))
	return len(chars), nil
}

func (h *RankingHandler) enrichNames(entries []RankEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.CharID
	}
	var chars []model.Character
	h.db.Select("id, name, xp").Where("id IN ?", ids).Find(&chars)
	nameMap := make(map[int64]model.Character, len(chars))
	for _, ch := range chars {
		nameMap[ch.ID] = ch
	}
	for i := range entries {
		if ch, ok := nameMap[entries[i].CharID]; ok {
			entries[i].CharName = ch.Name
			entries[i].XP = ch.XP
		}
	}
}
