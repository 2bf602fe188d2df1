// Package testutil содержит фейки транспорта, справочника и хранилища для тестов.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/fachschaft/rocketbot/internal/chat"
	"github.com/fachschaft/rocketbot/internal/poll"
)

type SentMessage struct {
	RoomID string
	Text   string
	ID     string
}

// Transport пишет все вызовы и выдаёт id вида msg-1, msg-2...
type Transport struct {
	mu      sync.Mutex
	next    int
	Sent    []SentMessage
	Updates []chat.MessageUpdate
	Deleted []string

	// SendErr, если задан, возвращается из SendMessage
	SendErr error
	// Hook вызывается перед каждым SendMessage
	Hook func(roomID, text string)
}

func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) SendMessage(_ context.Context, roomID, text string) (string, error) {
	if t.Hook != nil {
		t.Hook(roomID, text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return "", t.SendErr
	}
	t.next++
	id := fmt.Sprintf("msg-%d", t.next)
	t.Sent = append(t.Sent, SentMessage{RoomID: roomID, Text: text, ID: id})
	return id, nil
}

func (t *Transport) UpdateMessage(_ context.Context, update chat.MessageUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Updates = append(t.Updates, update)
	return nil
}

func (t *Transport) DeleteMessage(_ context.Context, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Deleted = append(t.Deleted, messageID)
	return nil
}

// SentTo: тексты, отправленные в комнату, по порядку.
func (t *Transport) SentTo(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var texts []string
	for _, s := range t.Sent {
		if s.RoomID == roomID {
			texts = append(texts, s.Text)
		}
	}
	return texts
}

// UpdatesSnapshot: копия правок под мьютексом.
func (t *Transport) UpdatesSnapshot() []chat.MessageUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]chat.MessageUpdate(nil), t.Updates...)
}

// DeletedSnapshot: копия удалённых id под мьютексом.
func (t *Transport) DeletedSnapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.Deleted...)
}

// SentSnapshot: копия отправленных сообщений под мьютексом.
func (t *Transport) SentSnapshot() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.Sent...)
}

// Writes: общее число отправок, правок и удалений.
func (t *Transport) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Sent) + len(t.Updates) + len(t.Deleted)
}

// Directory: комнаты и имена из map. Неизвестный логин: ошибка.
type Directory struct {
	mu    sync.Mutex
	Rooms map[string]chat.Room
	Names map[string]string
}

func NewDirectory(rooms ...chat.Room) *Directory {
	d := &Directory{Rooms: make(map[string]chat.Room), Names: make(map[string]string)}
	for _, r := range rooms {
		d.Rooms[r.ID] = r
	}
	return d
}

func (d *Directory) Room(_ context.Context, roomID string) (chat.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.Rooms[roomID]
	if !ok {
		return chat.Room{}, fmt.Errorf("room %s not found", roomID)
	}
	return r, nil
}

func (d *Directory) RoomByName(_ context.Context, name string) (chat.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.Rooms {
		if r.Name == name {
			return r, nil
		}
	}
	return chat.Room{}, fmt.Errorf("room %q not found", name)
}

func (d *Directory) DisplayName(_ context.Context, username string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.Names[username]
	if !ok {
		return "", fmt.Errorf("user %s not found", username)
	}
	return n, nil
}

// Whitelist: множество ключей комнат.
type Whitelist struct {
	mu    sync.Mutex
	Rooms map[string]bool
}

func NewWhitelist() *Whitelist {
	return &Whitelist{Rooms: make(map[string]bool)}
}

func (w *Whitelist) Add(room string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Rooms[room] = true
}

func (w *Whitelist) Remove(room string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.Rooms, room)
}

func (w *Whitelist) Has(room string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Rooms[room]
}

// Store хранит опросы в памяти.
type Store struct {
	mu    sync.Mutex
	Polls map[string]*poll.Poll
}

func NewStore() *Store {
	return &Store{Polls: make(map[string]*poll.Poll)}
}

func (s *Store) SavePoll(roomID string, p *poll.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Polls[roomID] = p
	return nil
}

func (s *Store) DeletePoll(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Polls, roomID)
	return nil
}

func (s *Store) LoadPolls() ([]poll.StoredPoll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stored []poll.StoredPoll
	for roomID, p := range s.Polls {
		stored = append(stored, poll.StoredPoll{RoomID: roomID, Poll: p})
	}
	return stored, nil
}
