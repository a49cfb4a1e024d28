package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hoshino/questlog/server/cache"
	"github.com/hoshino/questlog/server/model"
	"gorm.io/gorm"
)

// minTitleLen is the minimum quest title length in runes.
const minTitleLen = 3

var (
	// ErrTitleTooShort is returned when a quest title has fewer than three characters.
	ErrTitleTooShort = errors.New("catalog: title must be at least 3 characters")
	// ErrRewardNotPositive is returned when the xp reward is zero or negative.
	ErrRewardNotPositive = errors.New("catalog: reward xp must be positive")
	// ErrDuplicateTitle is returned when a quest with the same title already exists.
	ErrDuplicateTitle = errors.New("catalog: quest title already exists")
	// ErrQuestNotFound is returned when no quest has the requested id.
	ErrQuestNotFound = errors.New("catalog: quest not found")
)

// Service is the quest catalog: the global registry of defined quests.
// Quests are immutable after creation, which makes the read-through cache
// safe — a cached row can never go stale.
type Service struct {
	db    *gorm.DB
	cache cache.Cache
}

// NewService creates a catalog Service. cache may be nil to disable caching.
func NewService(db *gorm.DB, c cache.Cache) *Service {
	return &Service{db: db, cache: c}
}

// Create inserts a new quest. Title uniqueness is enforced by the DB unique
// index; a concurrent duplicate insert surfaces as ErrDuplicateTitle rather
// than being prevented by a racy pre-check.
func (svc *Service) Create(ctx context.Context, title string, rewardXP int) (*model.Quest, error) {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < minTitleLen {
		return nil, ErrTitleTooShort
	}
	if rewardXP <= 0 {
		return nil, ErrRewardNotPositive
	}

	quest := &model.Quest{Title: title, RewardXP: rewardXP}
	if err := svc.db.WithContext(ctx).Create(quest).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTitle
		}
		return nil, err
	}
	svc.cachePut(ctx, quest)
	return quest, nil
}

// Get returns the quest with the given id.
func (svc *Service) Get(ctx context.Context, questID int64) (*model.Quest, error) {
	if quest := svc.cacheGet(ctx, questID); quest != nil {
		return quest, nil
	}

	var quest model.Quest
	if err := svc.db.WithContext(ctx).First(&quest, questID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	svc.cachePut(ctx, &quest)
	return &quest, nil
}

// Exists reports whether a quest with the given id is in the catalog.
func (svc *Service) Exists(ctx context.Context, questID int64) (bool, error) {
	_, err := svc.Get(ctx, questID)
	if errors.Is(err, ErrQuestNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns all quests in catalog insertion order.
func (svc *Service) List(ctx context.Context) ([]model.Quest, error) {
	var quests []model.Quest
	err := svc.db.WithContext(ctx).Order("id ASC").Find(&quests).Error
	return quests, err
}

func questKey(questID int64) string {
	return fmt.Sprintf("quest:%d", questID)
}

func (svc *Service) cachePut(ctx context.Context, quest *model.Quest) {
	if svc.cache == nil {
		return
	}
	data, err := json.Marshal(quest)
	if err != nil {
		return
	}
	// Best-effort: a cache failure only costs a DB read later.
	_ = svc.cache.Set(ctx, questKey(quest.ID), string(data), 0)
}

func (svc *Service) cacheGet(ctx context.Context, questID int64) *model.Quest {
	if svc.cache == nil {
		return nil
	}
	data, err := svc.cache.Get(ctx, questKey(questID))
	if err != nil {
		return nil
	}
	var quest model.Quest
	if err := json.Unmarshal([]byte(data), &quest); err != nil {
		return nil
	}
	return &quest
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
