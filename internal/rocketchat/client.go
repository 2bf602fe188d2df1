// Package rocketchat реализует клиент Rocket.Chat. DDP по websocket для сообщений
// и подписок, REST для поиска комнат и пользователей.
package rocketchat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fachschaft/rocketbot/internal/chat"
)

const (
	streamRoomMessages = "stream-room-messages"
	myMessages         = "__my_messages__"
)

type Config struct {
	// URL сервера, например https://chat.example.org
	URL      string
	Username string
	Password string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *zap.SugaredLogger
}

// Client реализует chat.Transport и chat.Directory.
type Client struct {
	username string
	password string
	wsURL    string
	dialer   *websocket.Dialer
	rest     *restClient
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	conn    *ddpConn
	userID  string
	onEvent func(chat.Event)

	lookups singleflight.Group

	cacheMu     sync.RWMutex
	rooms       map[string]chat.Room
	roomsByName map[string]chat.Room
	names       map[string]string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rocketchat: URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rocketchat: invalid URL %q: %w", cfg.URL, err)
	}
	wsURL := *u
	switch u.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	case "http":
		wsURL.Scheme = "ws"
	default:
		return nil, fmt.Errorf("rocketchat: unsupported URL scheme %q", u.Scheme)
	}
	wsURL.Path = strings.TrimRight(u.Path, "/") + "/websocket"

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		username:    cfg.Username,
		password:    cfg.Password,
		wsURL:       wsURL.String(),
		dialer:      dialer,
		rest:        newRESTClient(cfg.URL, cfg.HTTPClient),
		log:         logger,
		rooms:       make(map[string]chat.Room),
		roomsByName: make(map[string]chat.Room),
		names:       make(map[string]string),
	}, nil
}

// Connect открывает соединение и входит под пользователем бота.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := dialDDP(ctx, c.dialer, c.wsURL, c.handleChanged, c.log)
	if err != nil {
		return err
	}

	digest := sha256.Sum256([]byte(c.password))
	raw, err := conn.call(ctx, "login", map[string]any{
		"user": map[string]string{"username": c.username},
		"password": map[string]string{
			"digest":    hex.EncodeToString(digest[:]),
			"algorithm": "sha-256",
		},
	})
	if err != nil {
		conn.close()
		return fmt.Errorf("rocketchat: login as %s: %w", c.username, err)
	}
	var login loginResult
	if err := json.Unmarshal(raw, &login); err != nil {
		conn.close()
		return fmt.Errorf("rocketchat: decode login: %w", err)
	}
	c.rest.setAuth(login.ID, login.Token)

	c.mu.Lock()
	c.conn = conn
	c.userID = login.ID
	c.mu.Unlock()

	c.log.Infof("✅ Вошли в Rocket.Chat как %s (id=%s)", c.username, login.ID)
	return nil
}

// Run держит соединение до отмены ctx или обрыва. Обрыв: ошибка.
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		conn.close()
		return nil
	case <-conn.done:
		return conn.closeErr()
	}
}

// SubscribeMyMessages подписывает handler на все новые и изменённые
// сообщения в комнатах бота. handler вызывается из читающей горутины
// и не должен блокировать.
func (c *Client) SubscribeMyMessages(ctx context.Context, handler func(chat.Event)) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.onEvent = handler
	c.mu.Unlock()

	if err := conn.subscribe(ctx, streamRoomMessages, myMessages, false); err != nil {
		return fmt.Errorf("rocketchat: subscribe: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.close()
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) current() (*ddpConn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	return conn.call(ctx, method, params...)
}

func (c *Client) handleChanged(m ddpMessage) {
	if m.Collection != streamRoomMessages {
		return
	}
	var fields streamFields
	if err := json.Unmarshal(m.Fields, &fields); err != nil {
		c.log.Warnf("⚠️ Не удалось разобрать событие: %v", err)
		return
	}
	if len(fields.Args) == 0 {
		return
	}
	var msg wireMessage
	if err := json.Unmarshal(fields.Args[0], &msg); err != nil {
		c.log.Warnf("⚠️ Не удалось разобрать сообщение: %v", err)
		return
	}
	var meta roomMeta
	if len(fields.Args) > 1 {
		_ = json.Unmarshal(fields.Args[1], &meta)
	}

	c.mu.RLock()
	handler := c.onEvent
	c.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(chat.Event{
		Message: msg.toChat(),
		Room:    chat.Room{ID: msg.RoomID, Name: meta.RoomName, Type: meta.RoomType},
	})
}

// Transport

func (c *Client) SendMessage(ctx context.Context, roomID, text string) (string, error) {
	raw, err := c.call(ctx, "sendMessage", map[string]string{"rid": roomID, "msg": text})
	if err != nil {
		return "", fmt.Errorf("rocketchat: send to %s: %w", roomID, err)
	}
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("rocketchat: decode sent message: %w", err)
	}
	return msg.ID, nil
}

func (c *Client) UpdateMessage(ctx context.Context, update chat.MessageUpdate) error {
	params := map[string]any{"_id": update.ID}
	if update.RoomID != "" {
		params["rid"] = update.RoomID
	}
	if update.Text != nil {
		params["msg"] = *update.Text
	}
	if update.Reactions != nil {
		params["reactions"] = wireReactions(update.Reactions)
	}
	if _, err := c.call(ctx, "updateMessage", params); err != nil {
		return fmt.Errorf("rocketchat: update %s: %w", update.ID, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if _, err := c.call(ctx, "deleteMessage", map[string]string{"_id": messageID}); err != nil {
		return fmt.Errorf("rocketchat: delete %s: %w", messageID, err)
	}
	return nil
}

// Directory

func (c *Client) Room(ctx context.Context, roomID string) (chat.Room, error) {
	c.cacheMu.RLock()
	room, ok := c.rooms[roomID]
	c.cacheMu.RUnlock()
	if ok {
		return room, nil
	}
	return c.lookupRoom(ctx, "id:"+roomID, url.Values{"roomId": {roomID}})
}

func (c *Client) RoomByName(ctx context.Context, name string) (chat.Room, error) {
	c.cacheMu.RLock()
	room, ok := c.roomsByName[name]
	c.cacheMu.RUnlock()
	if ok {
		return room, nil
	}
	return c.lookupRoom(ctx, "name:"+name, url.Values{"roomName": {name}})
}

func (c *Client) lookupRoom(ctx context.Context, key string, query url.Values) (chat.Room, error) {
	v, err, _ := c.lookups.Do("room:"+key, func() (any, error) {
		r, err := c.rest.roomInfo(ctx, query)
		if err != nil {
			return chat.Room{}, err
		}
		room := r.toChat()
		c.cacheMu.Lock()
		c.rooms[room.ID] = room
		if room.Name != "" {
			c.roomsByName[room.Name] = room
		}
		c.cacheMu.Unlock()
		return room, nil
	})
	if err != nil {
		return chat.Room{}, err
	}
	return v.(chat.Room), nil
}

// DisplayName: имя пользователя для вывода. Неудачи не кэшируются.
func (c *Client) DisplayName(ctx context.Context, username string) (string, error) {
	c.cacheMu.RLock()
	name, ok := c.names[username]
	c.cacheMu.RUnlock()
	if ok {
		return name, nil
	}
	v, err, _ := c.lookups.Do("user:"+username, func() (any, error) {
		u, err := c.rest.userInfo(ctx, username)
		if err != nil {
			return "", err
		}
		name := u.Name
		if name == "" {
			name = username
		}
		c.cacheMu.Lock()
		c.names[username] = name
		c.cacheMu.Unlock()
		return name, nil
	})
	if err != nil {
		c.log.Debugf("Имя %s не найдено: %v", username, err)
		return "", err
	}
	return v.(string), nil
}

var (
	_ chat.Transport = (*Client)(nil)
	_ chat.Directory = (*Client)(nil)
)
