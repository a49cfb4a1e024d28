package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoshino/questlog/server/game/catalog"
	"github.com/hoshino/questlog/server/game/progression"
)

// writeError maps engine errors to HTTP responses. Unknown errors become a
// generic 500 so internal details never leak to clients.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, progression.ErrCharacterNotFound),
		errors.Is(err, catalog.ErrQuestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrDuplicateTitle),
		errors.Is(err, progression.ErrNameTaken),
		errors.Is(err, progression.ErrAlreadyHeldOrCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrTitleTooShort),
		errors.Is(err, catalog.ErrRewardNotPositive),
		errors.Is(err, progression.ErrNameRequired),
		errors.Is(err, progression.ErrNoActiveQuest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
