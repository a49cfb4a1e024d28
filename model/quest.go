package model

import "time"

// Quest is a catalog entry. Titles are globally unique and quests are
// immutable once created; many characters may reference the same quest.
type Quest struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"uniqueIndex;size:128;not null" json:"title"`
	RewardXP  int       `gorm:"not null" json:"reward_xp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
