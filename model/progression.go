package model

import "time"

// PendingQuest is one backlog entry. Seq is per-character and strictly
// increasing; the queue head is the row with the lowest Seq. The unique
// index on (char_id, quest_id) rejects duplicate backlog entries at the
// storage layer.
type PendingQuest struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID    int64     `gorm:"uniqueIndex:idx_pending_char_quest;index:idx_pending_char;not null" json:"char_id"`
	QuestID   int64     `gorm:"uniqueIndex:idx_pending_char_quest;not null" json:"quest_id"`
	Seq       int64     `gorm:"not null" json:"seq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CompletedQuest records a quest a character has finished. Rows are
// append-only; once here a quest can never become active or pending again
// for that character.
type CompletedQuest struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID      int64     `gorm:"uniqueIndex:idx_completed_char_quest;index:idx_completed_char;not null" json:"char_id"`
	QuestID     int64     `gorm:"uniqueIndex:idx_completed_char_quest;not null" json:"quest_id"`
	CompletedAt time.Time `gorm:"autoCreateTime" json:"completed_at"`
}
