package bot

import (
	"context"
	"sync"

	"github.com/fachschaft/rocketbot/internal/chat"
)

// RoomSet: динамический белый список комнат с опросами. Ключ: имя
// комнаты или id для личек.
type RoomSet struct {
	mu    sync.RWMutex
	rooms map[string]struct{}
}

func NewRoomSet(rooms ...string) *RoomSet {
	s := &RoomSet{rooms: make(map[string]struct{}, len(rooms))}
	for _, r := range rooms {
		if r != "" {
			s.rooms[r] = struct{}{}
		}
	}
	return s
}

func (s *RoomSet) Add(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = struct{}{}
}

func (s *RoomSet) Remove(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

// Has: есть ли комната в списке по имени или по id.
func (s *RoomSet) Has(room chat.Room) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[room.ID]; ok {
		return true
	}
	if room.Name == "" {
		return false
	}
	_, ok := s.rooms[room.Name]
	return ok
}

func (s *RoomSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// PollFeed: то, что диспетчер отдаёт менеджеру опросов.
type PollFeed interface {
	HandlePollEvent(ctx context.Context, ev chat.Event) error
	HandleStatusEvent(ctx context.Context, ev chat.Event) error
}

// handlePollFeeds отдаёт событие в ленту реакций и в ленту статусов.
// Вызывается прямо в потоке диспетчера, по порядку событий.
func (d *Dispatcher) handlePollFeeds(ctx context.Context, ev chat.Event) {
	if d.statusRoomID != "" && ev.Message.RoomID == d.statusRoomID {
		if err := d.feed.HandleStatusEvent(ctx, ev); err != nil {
			d.log.Warnf("⚠️ Не удалось разобрать статус %s: %v", ev.Message.ID, err)
		}
		return
	}
	if !d.pollRooms.Has(ev.Room) {
		return
	}
	if err := d.feed.HandlePollEvent(ctx, ev); err != nil {
		d.log.Errorf("❌ Ошибка обработки опроса в %s: %v", ev.Message.RoomID, err)
	}
}
