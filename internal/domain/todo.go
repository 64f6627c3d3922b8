package domain

import "time"

// Todo is an active task. ID and CreatedAt are assigned by the store.
type Todo struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Title     string    `gorm:"type:text;not null"`
	Priority  int64     `gorm:"not null;default:0"`
	Completed bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime:false"`
}

func (Todo) TableName() string { return "todos" }

// ArchivedTodo is a terminal copy of a completed Todo. It has its own id
// sequence and is never updated after insertion.
type ArchivedTodo struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Title      string    `gorm:"type:text;not null"`
	Priority   int64     `gorm:"not null"`
	Completed  bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;autoCreateTime:false"`
	ArchivedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (ArchivedTodo) TableName() string { return "archived" }
