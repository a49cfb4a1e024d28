package progression

import (
	"context"
	"errors"

	"github.com/hoshino/questlog/server/model"
	"gorm.io/gorm"
)

// QuestInfo is a quest resolved for presentation.
type QuestInfo struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	RewardXP int    `json:"reward_xp"`
}

// Status is a character's full progression view: the active quest, the
// backlog in FIFO order, and the completed set.
type Status struct {
	CharacterID int64       `json:"character_id"`
	XPTotal     int64       `json:"xp_total"`
	Active      *QuestInfo  `json:"active_quest"`
	Pending     []QuestInfo `json:"pending_quests"`
	Completed   []QuestInfo `json:"completed_quests"`
}

// CharacterSummary is one row of the character listing, with the active
// quest resolved.
type CharacterSummary struct {
	ID     int64      `json:"id"`
	Name   string     `json:"name"`
	XP     int64      `json:"xp"`
	Active *QuestInfo `json:"active_quest"`
}

// Status returns the character's progression record with every quest
// reference resolved to {id, title, reward_xp}.
func (svc *Service) Status(ctx context.Context, charID int64) (*Status, error) {
	mu := svc.lockFor(charID)
	mu.RLock()
	defer mu.RUnlock()

	db := svc.db.WithContext(ctx)

	var char model.Character
	if err := db.First(&char, charID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}

	var pending []model.PendingQuest
	if err := db.Where("char_id = ?", charID).Order("seq ASC").Find(&pending).Error; err != nil {
		return nil, err
	}
	var completed []model.CompletedQuest
	if err := db.Where("char_id = ?", charID).Find(&completed).Error; err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(pending)+len(completed)+1)
	if char.ActiveQuestID != nil {
		ids = append(ids, *char.ActiveQuestID)
	}
	for _, p := range pending {
		ids = append(ids, p.QuestID)
	}
	for _, c := range completed {
		ids = append(ids, c.QuestID)
	}
	quests, err := svc.resolveQuests(db, ids)
	if err != nil {
		return nil, err
	}

	st := &Status{
		CharacterID: char.ID,
		XPTotal:     char.XP,
		Pending:     make([]QuestInfo, 0, len(pending)),
		Completed:   make([]QuestInfo, 0, len(completed)),
	}
	if char.ActiveQuestID != nil {
		if q, ok := quests[*char.ActiveQuestID]; ok {
			st.Active = &q
		}
	}
	for _, p := range pending {
		if q, ok := quests[p.QuestID]; ok {
			st.Pending = append(st.Pending, q)
		}
	}
	for _, c := range completed {
		if q, ok := quests[c.QuestID]; ok {
			st.Completed = append(st.Completed, q)
		}
	}
	return st, nil
}

// ListAvailable returns the catalog minus the character's active quest,
// backlog and completed set, in catalog insertion order.
func (svc *Service) ListAvailable(ctx context.Context, charID int64) ([]model.Quest, error) {
	mu := svc.lockFor(charID)
	mu.RLock()
	defer mu.RUnlock()

	db := svc.db.WithContext(ctx)

	var char model.Character
	if err := db.First(&char, charID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}

	excluded := make([]int64, 0, 8)
	if char.ActiveQuestID != nil {
		excluded = append(excluded, *char.ActiveQuestID)
	}
	var pending []model.PendingQuest
	if err := db.Where("char_id = ?", charID).Find(&pending).Error; err != nil {
		return nil, err
	}
	for _, p := range pending {
		excluded = append(excluded, p.QuestID)
	}
	var completed []model.CompletedQuest
	if err := db.Where("char_id = ?", charID).Find(&completed).Error; err != nil {
		return nil, err
	}
	for _, c := range completed {
		excluded = append(excluded, c.QuestID)
	}

	q := db.Order("id ASC")
	if len(excluded) > 0 {
		q = q.Where("id NOT IN ?", excluded)
	}
	var quests []model.Quest
	if err := q.Find(&quests).Error; err != nil {
		return nil, err
	}
	return quests, nil
}

// ListCharacters returns all characters with their active quest resolved.
func (svc *Service) ListCharacters(ctx context.Context) ([]CharacterSummary, error) {
	db := svc.db.WithContext(ctx)

	var chars []model.Character
	if err := db.Order("id ASC").Find(&chars).Error; err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(chars))
	for _, ch := range chars {
		if ch.ActiveQuestID != nil {
			ids = append(ids, *ch.ActiveQuestID)
		}
	}
	quests, err := svc.resolveQuests(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]CharacterSummary, len(chars))
	for i, ch := range chars {
		out[i] = CharacterSummary{ID: ch.ID, Name: ch.Name, XP: ch.XP}
		if ch.ActiveQuestID != nil {
			if q, ok := quests[*ch.ActiveQuestID]; ok {
				out[i].Active = &q
			}
		}
	}
	return out, nil
}

func (svc *Service) resolveQuests(db *gorm.DB, ids []int64) (map[int64]QuestInfo, error) {
	result := make(map[int64]QuestInfo, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var quests []model.Quest
	if err := db.Where("id IN ?", ids).Find(&quests).Error; err != nil {
		return nil, err
	}
	for _, q := range quests {
		result[q.ID] = QuestInfo{ID: q.ID, Title: q.Title, RewardXP: q.RewardXP}
	}
	return result, nil
}
