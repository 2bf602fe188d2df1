// Package chat описывает то, что бот ожидает от чат-платформы:
// отправку, правку и удаление сообщений, поиск комнат и имён и поток событий.
package chat

import "context"

// Reactions: реакция (эмодзи) → логины поставивших её пользователей.
type Reactions map[string][]string

// RoomRef: ссылка на публичную комнату внутри сообщения (#room).
type RoomRef struct {
	ID   string
	Name string
}

// Типы комнат Rocket.Chat.
const (
	RoomDirect  = "d"
	RoomChannel = "c"
	RoomPrivate = "p"
)

type Room struct {
	ID   string
	Name string
	Type string
}

// Key: ключ комнаты для белых списков: имя, а для личек без имени: id.
func (r Room) Key() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

type User struct {
	ID       string
	Username string
	Name     string
}

type Message struct {
	ID     string
	RoomID string
	// Text пустой, если сообщение удалили или стёрли правкой
	Text      string
	Author    User
	EditedBy  *User
	Reactions Reactions
	Channels  []RoomRef
}

// Event: новое или изменённое сообщение из подписки.
type Event struct {
	Message Message
	Room    Room
}

// MessageUpdate: частичная правка. Reactions, если задан, заменяет
// весь набор реакций сообщения.
type MessageUpdate struct {
	ID        string
	RoomID    string
	Text      *string
	Reactions Reactions
}

type Transport interface {
	SendMessage(ctx context.Context, roomID, text string) (string, error)
	UpdateMessage(ctx context.Context, update MessageUpdate) error
	DeleteMessage(ctx context.Context, messageID string) error
}

type Directory interface {
	Room(ctx context.Context, roomID string) (Room, error)
	RoomByName(ctx context.Context, name string) (Room, error)
	DisplayName(ctx context.Context, username string) (string, error)
}

// Text возвращает указатель на строку для MessageUpdate.
func Text(s string) *string {
	return &s
}
