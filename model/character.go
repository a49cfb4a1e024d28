package model

import "time"

// Character is a playable character and the root of its progression record.
// ActiveQuestID is nil while the character is idle. QueueSeq is the last
// sequence number handed out for this character's pending queue; it only
// ever grows, so dequeued numbers are never reused.
type Character struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"uniqueIndex;size:32;not null" json:"name"`
	XP            int64     `gorm:"default:0" json:"xp"`
	ActiveQuestID *int64    `json:"active_quest_id"`
	QueueSeq      int64     `gorm:"default:0" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
