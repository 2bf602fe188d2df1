package rocketchat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotConnected = errors.New("rocketchat: not connected")
	ErrClosed       = errors.New("rocketchat: connection closed")
)

// Error: ошибка, которую вернул сервер: по REST (errorType) или по DDP
// (error/reason). Достаётся через errors.As или IsError.
type Error struct {
	// Code: errorType REST или поле error DDP ("error-room-not-found", "403")
	Code    string
	Message string
	// StatusCode: HTTP-код, для DDP 0
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rocketchat: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("rocketchat: %s: %s", e.Code, e.Message)
}

// Коды, которые бот проверяет явно.
const (
	ErrCodeRoomNotFound = "error-room-not-found"
	ErrCodeUserNotFound = "error-invalid-user"
	ErrCodeUnauthorized = "unauthorized"
)

// IsError: err является *Error с кодом code.
func IsError(err error, code string) bool {
	var rcErr *Error
	if errors.As(err, &rcErr) {
		return rcErr.Code == code
	}
	return false
}

// ddpError: поле error в ответе на вызов метода. Код бывает и числом,
// и строкой.
type ddpError struct {
	Code    string
	Reason  string
	Message string
}

func (e *ddpError) UnmarshalJSON(data []byte) error {
	var raw struct {
		Error   json.RawMessage `json:"error"`
		Reason  string          `json:"reason"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Reason = raw.Reason
	e.Message = raw.Message

	var code string
	if err := json.Unmarshal(raw.Error, &code); err == nil {
		e.Code = code
		return nil
	}
	var num float64
	if err := json.Unmarshal(raw.Error, &num); err == nil {
		e.Code = strconv.FormatFloat(num, 'f', -1, 64)
	}
	return nil
}

func (e *ddpError) toError() *Error {
	msg := e.Reason
	if msg == "" {
		msg = e.Message
	}
	return &Error{Code: e.Code, Message: msg}
}
