package rocketchat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type rawFrame struct {
	Msg    string            `json:"msg"`
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Name   string            `json:"name"`
	Params []json.RawMessage `json:"params"`
}

// methodFunc отвечает на вызов: результат или объект ошибки DDP.
type methodFunc func(params []json.RawMessage) (result any, ddpErr map[string]any)

// fakeServer изображает Rocket.Chat в миниатюре. DDP на /websocket и два REST-метода.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	calls   []rawFrame
	pongs   int
	methods map[string]methodFunc
	conn    *websocket.Conn
	writeMu sync.Mutex

	rooms     map[string]restRoom
	users     map[string]wireUser
	roomHits  atomic.Int32
	userHits  atomic.Int32
	lastToken atomic.Value
	// подписки остаются без ответа
	muteSubs atomic.Bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:     t,
		rooms: make(map[string]restRoom),
		users: make(map[string]wireUser),
	}
	fs.methods = map[string]methodFunc{
		"login": func([]json.RawMessage) (any, map[string]any) {
			return map[string]string{"id": "bot-id", "token": "bot-token"}, nil
		},
		"sendMessage": func(params []json.RawMessage) (any, map[string]any) {
			var p struct {
				RoomID string `json:"rid"`
				Msg    string `json:"msg"`
			}
			_ = json.Unmarshal(params[0], &p)
			return map[string]string{"_id": "m1", "rid": p.RoomID, "msg": p.Msg}, nil
		},
		"updateMessage": func([]json.RawMessage) (any, map[string]any) { return nil, nil },
		"deleteMessage": func([]json.RawMessage) (any, map[string]any) { return map[string]string{"_id": "m1"}, nil },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", fs.serveDDP)
	mux.HandleFunc("/api/v1/rooms.info", fs.serveRoomInfo)
	mux.HandleFunc("/api/v1/users.info", fs.serveUserInfo)
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:      fs.srv.URL,
		Username: "pollbot",
		Password: "secret",
		Logger:   zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (fs *fakeServer) write(v any) error {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (fs *fakeServer) serveDDP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	fs.mu.Lock()
	fs.conn = conn
	fs.mu.Unlock()

	for {
		var f rawFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Msg {
		case "connect":
			_ = fs.write(map[string]any{"msg": "connected", "session": "s1"})
			_ = fs.write(map[string]any{"msg": "ping", "id": "p1"})
		case "pong":
			fs.mu.Lock()
			fs.pongs++
			fs.mu.Unlock()
		case "method":
			fs.mu.Lock()
			fs.calls = append(fs.calls, f)
			handler := fs.methods[f.Method]
			fs.mu.Unlock()
			reply := map[string]any{"msg": "result", "id": f.ID}
			if handler == nil {
				reply["error"] = map[string]any{"error": 404, "reason": "Method not found"}
			} else {
				result, ddpErr := handler(f.Params)
				if ddpErr != nil {
					reply["error"] = ddpErr
				} else {
					reply["result"] = result
				}
			}
			_ = fs.write(reply)
		case "sub":
			if fs.muteSubs.Load() {
				continue
			}
			if f.Name != streamRoomMessages {
				_ = fs.write(map[string]any{"msg": "nosub", "id": f.ID, "error": map[string]any{"error": "not-allowed", "reason": "no such stream"}})
				continue
			}
			_ = fs.write(map[string]any{"msg": "ready", "subs": []string{f.ID}})
		}
	}
}

// emit отправляет событие stream-room-messages.
func (fs *fakeServer) emit(msg map[string]any, meta map[string]any) {
	fs.t.Helper()
	err := fs.write(map[string]any{
		"msg":        "changed",
		"collection": streamRoomMessages,
		"id":         "id",
		"fields": map[string]any{
			"eventName": myMessages,
			"args":      []any{msg, meta},
		},
	})
	require.NoError(fs.t, err)
}

func (fs *fakeServer) dropConnection() {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	conn.Close()
}

func (fs *fakeServer) callsTo(method string) []rawFrame {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []rawFrame
	for _, c := range fs.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (fs *fakeServer) pongCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.pongs
}

func (fs *fakeServer) serveRoomInfo(w http.ResponseWriter, r *http.Request) {
	fs.roomHits.Add(1)
	fs.lastToken.Store(r.Header.Get("X-Auth-Token"))
	if r.Header.Get("X-Auth-Token") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "You must be logged in to do this."})
		return
	}
	q := r.URL.Query()
	for _, room := range fs.rooms {
		if room.ID == q.Get("roomId") || (q.Get("roomName") != "" && room.Name == q.Get("roomName")) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "room": room})
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false, "error": "The required \"roomId\" or \"roomName\" param provided does not match any channel [error-room-not-found]",
		"errorType": ErrCodeRoomNotFound,
	})
}

func (fs *fakeServer) serveUserInfo(w http.ResponseWriter, r *http.Request) {
	fs.userHits.Add(1)
	u, ok := fs.users[r.URL.Query().Get("username")]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "User not found.", "errorType": ErrCodeUserNotFound})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}
