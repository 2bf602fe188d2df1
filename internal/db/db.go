package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fachschaft/rocketbot/internal/poll"
)

// Store хранит активные опросы в sqlite.
type Store struct {
	db *gorm.DB
}

// Open открывает базу по пути path и прогоняет миграции.
func Open(path string) (*Store, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	if err := gdb.AutoMigrate(&PollRecord{}); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}
	return &Store{db: gdb}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SavePoll создаёт или перезаписывает запись комнаты.
func (s *Store) SavePoll(roomID string, p *poll.Poll) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("db: encode poll: %w", err)
	}
	record := PollRecord{
		RoomID:      roomID,
		Title:       p.Title,
		PollMsgID:   p.PollMsgID,
		StatusMsgID: p.StatusMsgID,
		CreatedOn:   p.CreatedOn,
		Payload:     string(payload),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "poll_msg_id", "status_msg_id", "created_on", "payload", "updated_at", "deleted_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("db: save poll %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) DeletePoll(roomID string) error {
	if err := s.db.Unscoped().Where("room_id = ?", roomID).Delete(&PollRecord{}).Error; err != nil {
		return fmt.Errorf("db: delete poll %s: %w", roomID, err)
	}
	return nil
}

// LoadPolls поднимает все записи. Битые записи пропускаются с ошибкой
// в итоговом errors.Join, остальные возвращаются.
func (s *Store) LoadPolls() ([]poll.StoredPoll, error) {
	var records []PollRecord
	if err := s.db.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("db: load polls: %w", err)
	}

	var errs []error
	stored := make([]poll.StoredPoll, 0, len(records))
	for _, r := range records {
		p, err := poll.DecodeStatus([]byte(r.Payload))
		if err != nil {
			errs = append(errs, fmt.Errorf("db: poll %s: %w", r.RoomID, err))
			continue
		}
		p.CreatedOn = r.CreatedOn
		p.StatusMsgID = r.StatusMsgID
		stored = append(stored, poll.StoredPoll{RoomID: r.RoomID, Poll: p})
	}
	return stored, errors.Join(errs...)
}

// CleanupOldPolls удаляет записи, созданные раньше before.
func (s *Store) CleanupOldPolls(before time.Time) (int64, error) {
	res := s.db.Unscoped().Where("created_on < ?", before).Delete(&PollRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("db: cleanup: %w", res.Error)
	}
	return res.RowsAffected, nil
}
