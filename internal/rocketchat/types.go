package rocketchat

import (
	"encoding/json"

	"github.com/fachschaft/rocketbot/internal/chat"
)

// ddpMessage: кадр протокола DDP в обе стороны.
type ddpMessage struct {
	Msg        string          `json:"msg"`
	ID         string          `json:"id,omitempty"`
	Method     string          `json:"method,omitempty"`
	Name       string          `json:"name,omitempty"`
	Params     []any           `json:"params,omitempty"`
	Version    string          `json:"version,omitempty"`
	Support    []string        `json:"support,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ddpError       `json:"error,omitempty"`
	Subs       []string        `json:"subs,omitempty"`
	Session    string          `json:"session,omitempty"`
}

type wireUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type wireReaction struct {
	Usernames []string `json:"usernames"`
}

type wireRoomRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type wireMessage struct {
	ID        string                  `json:"_id"`
	RoomID    string                  `json:"rid"`
	Msg       string                  `json:"msg"`
	Type      string                  `json:"t,omitempty"`
	User      wireUser                `json:"u"`
	EditedBy  *wireUser               `json:"editedBy,omitempty"`
	Reactions map[string]wireReaction `json:"reactions,omitempty"`
	Channels  []wireRoomRef           `json:"channels,omitempty"`
}

// roomMeta: второй аргумент события stream-room-messages.
type roomMeta struct {
	RoomType        string `json:"roomType"`
	RoomName        string `json:"roomName"`
	RoomParticipant bool   `json:"roomParticipant"`
}

type streamFields struct {
	EventName string            `json:"eventName"`
	Args      []json.RawMessage `json:"args"`
}

type loginResult struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

func (m wireMessage) toChat() chat.Message {
	msg := chat.Message{
		ID:     m.ID,
		RoomID: m.RoomID,
		Text:   m.Msg,
		Author: chat.User{ID: m.User.ID, Username: m.User.Username, Name: m.User.Name},
	}
	// удалённое сообщение приходит с t=rm
	if m.Type == "rm" {
		msg.Text = ""
	}
	if m.EditedBy != nil {
		msg.EditedBy = &chat.User{ID: m.EditedBy.ID, Username: m.EditedBy.Username}
	}
	if len(m.Reactions) > 0 {
		msg.Reactions = make(chat.Reactions, len(m.Reactions))
		for emoji, r := range m.Reactions {
			msg.Reactions[emoji] = r.Usernames
		}
	}
	for _, ref := range m.Channels {
		msg.Channels = append(msg.Channels, chat.RoomRef{ID: ref.ID, Name: ref.Name})
	}
	return msg
}

func wireReactions(reactions chat.Reactions) map[string]wireReaction {
	out := make(map[string]wireReaction, len(reactions))
	for emoji, users := range reactions {
		if users == nil {
			users = []string{}
		}
		out[emoji] = wireReaction{Usernames: users}
	}
	return out
}

// REST

type restStatus struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
}

type restRoom struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Type string `json:"t"`
}

type roomInfoResponse struct {
	restStatus
	Room restRoom `json:"room"`
}

type userInfoResponse struct {
	restStatus
	User wireUser `json:"user"`
}

func (r restRoom) toChat() chat.Room {
	return chat.Room{ID: r.ID, Name: r.Name, Type: r.Type}
}
