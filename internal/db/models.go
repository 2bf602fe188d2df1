package db

import (
	"time"

	"gorm.io/gorm"
)

// PollRecord: активный опрос комнаты. Payload: статус-запись в JSON,
// остальные поля дублируют её для запросов и восстановления.
type PollRecord struct {
	gorm.Model
	RoomID      string `gorm:"uniqueIndex"`
	Title       string
	PollMsgID   string
	StatusMsgID string
	CreatedOn   time.Time `gorm:"index"`
	Payload     string
}
