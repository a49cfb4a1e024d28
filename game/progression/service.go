package progression

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hoshino/questlog/server/game/catalog"
	"github.com/hoshino/questlog/server/model"
	"gorm.io/gorm"
)

var (
	// ErrCharacterNotFound is returned when no character has the requested id.
	ErrCharacterNotFound = errors.New("progression: character not found")
	// ErrNameRequired is returned when a character is registered without a name.
	ErrNameRequired = errors.New("progression: character name is required")
	// ErrNameTaken is returned when the character name is already in use.
	ErrNameTaken = errors.New("progression: character name already taken")
	// ErrAlreadyHeldOrCompleted is returned when a quest is assigned that the
	// character already holds (active or queued) or has already finished.
	ErrAlreadyHeldOrCompleted = errors.New("progression: quest already held or completed")
	// ErrNoActiveQuest is returned when Complete is called on an idle character.
	ErrNoActiveQuest = errors.New("progression: character has no active quest")
)

// CompleteResult reports the outcome of finishing the active quest.
type CompleteResult struct {
	XPGained int   `json:"xp_gained"`
	XPTotal  int64 `json:"xp_total"`
}

// Service is the quest assignment engine. It owns every mutation of a
// character's progression record: the active quest slot, the FIFO backlog
// and the completed set. Operations on the same character are serialized
// by a per-character lock; operations on different characters run in
// parallel. The engine returns errors instead of logging them — mapping
// to user-facing output is the caller's job.
type Service struct {
	db      *gorm.DB
	catalog *catalog.Service
	locks   sync.Map // charID → *sync.RWMutex
}

// NewService creates a progression Service backed by the given catalog.
func NewService(db *gorm.DB, cat *catalog.Service) *Service {
	return &Service{db: db, catalog: cat}
}

// lockFor returns the lock guarding one character's progression record.
func (svc *Service) lockFor(charID int64) *sync.RWMutex {
	v, _ := svc.locks.LoadOrStore(charID, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

// Register creates a character with zero xp, no active quest and an empty
// backlog. Name uniqueness is enforced by the DB unique index.
func (svc *Service) Register(ctx context.Context, name string) (*model.Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	char := &model.Character{Name: name}
	if err := svc.db.WithContext(ctx).Create(char).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, err
	}
	return char, nil
}

// Assign gives the quest to the character: directly into the active slot if
// the character is idle, otherwise onto the tail of the backlog. It reports
// whether the quest became active immediately. A quest the character already
// holds or has completed is rejected with ErrAlreadyHeldOrCompleted.
func (svc *Service) Assign(ctx context.Context, charID, questID int64) (bool, error) {
	quest, err := svc.catalog.Get(ctx, questID)
	if err != nil {
		return false, err
	}

	mu := svc.lockFor(charID)
	mu.Lock()
	defer mu.Unlock()

	activated := false
	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var char model.Character
		if err := tx.First(&char, charID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCharacterNotFound
			}
			return err
		}

		if char.ActiveQuestID != nil && *char.ActiveQuestID == quest.ID {
			return ErrAlreadyHeldOrCompleted
		}
		held, err := questHeld(tx, charID, quest.ID)
		if err != nil {
			return err
		}
		if held {
			return ErrAlreadyHeldOrCompleted
		}

		if char.ActiveQuestID == nil {
			activated = true
			return tx.Model(&char).Update("active_quest_id", quest.ID).Error
		}

		seq := char.QueueSeq + 1
		if err := tx.Model(&char).Update("queue_seq", seq).Error; err != nil {
			return err
		}
		return tx.Create(&model.PendingQuest{CharID: charID, QuestID: quest.ID, Seq: seq}).Error
	})
	if err != nil {
		return false, err
	}
	return activated, nil
}

// Complete finishes the character's active quest: the quest moves to the
// completed set, its reward is credited, and the backlog head (lowest seq)
// is promoted into the active slot. The whole transition is one DB
// transaction, so a partially applied completion is never observable.
func (svc *Service) Complete(ctx context.Context, charID int64) (*CompleteResult, error) {
	mu := svc.lockFor(charID)
	mu.Lock()
	defer mu.Unlock()

	var result CompleteResult
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var char model.Character
		if err := tx.First(&char, charID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCharacterNotFound
			}
			return err
		}
		if char.ActiveQuestID == nil {
			return ErrNoActiveQuest
		}

		var quest model.Quest
		if err := tx.First(&quest, *char.ActiveQuestID).Error; err != nil {
			return err
		}

		if err := tx.Create(&model.CompletedQuest{CharID: charID, QuestID: quest.ID}).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"xp": char.XP + int64(quest.RewardXP),
		}

		var next model.PendingQuest
		err := tx.Where("char_id = ?", charID).Order("seq ASC").First(&next).Error
		switch {
		case err == nil:
			updates["active_quest_id"] = next.QuestID
			if err := tx.Delete(&model.PendingQuest{}, next.ID).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			updates["active_quest_id"] = nil
		default:
			return err
		}

		if err := tx.Model(&char).Updates(updates).Error; err != nil {
			return err
		}
		result = CompleteResult{
			XPGained: quest.RewardXP,
			XPTotal:  char.XP + int64(quest.RewardXP),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// questHeld reports whether the quest is in the character's backlog or
// completed set.
func questHeld(tx *gorm.DB, charID, questID int64) (bool, error) {
	var pending model.PendingQuest
	err := tx.Where("char_id = ? AND quest_id = ?", charID, questID).First(&pending).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	var completed model.CompletedQuest
	err = tx.Where("char_id = ? AND quest_id = ?", charID, questID).First(&completed).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return false, nil
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
