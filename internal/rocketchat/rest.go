package rocketchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// restClient ходит в /api/v1 с токеном, полученным при входе по DDP.
type restClient struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.RWMutex
	userID string
	token  string
}

func newRESTClient(baseURL string, httpClient *http.Client) *restClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &restClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (r *restClient) setAuth(userID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
	r.token = token
}

func (r *restClient) roomInfo(ctx context.Context, query url.Values) (restRoom, error) {
	var resp roomInfoResponse
	if err := r.get(ctx, "/api/v1/rooms.info", query, &resp); err != nil {
		return restRoom{}, err
	}
	return resp.Room, nil
}

func (r *restClient) userInfo(ctx context.Context, username string) (wireUser, error) {
	var resp userInfoResponse
	if err := r.get(ctx, "/api/v1/users.info", url.Values{"username": {username}}, &resp); err != nil {
		return wireUser{}, err
	}
	return resp.User, nil
}

// get выполняет запрос и разбирает ответ в out. Ответ с success=false
// или не-2xx превращается в *Error.
func (r *restClient) get(ctx context.Context, path string, query url.Values, out any) error {
	requestURL := r.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("rocketchat: build request: %w", err)
	}

	r.mu.RLock()
	if r.token != "" {
		req.Header.Set("X-User-Id", r.userID)
		req.Header.Set("X-Auth-Token", r.token)
	}
	r.mu.RUnlock()

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rocketchat: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("rocketchat: read %s: %w", path, err)
	}

	var status restStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("rocketchat: unexpected %d response from %s: %s", resp.StatusCode, path, string(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !status.Success {
		code := status.ErrorType
		if code == "" && resp.StatusCode == http.StatusUnauthorized {
			code = ErrCodeUnauthorized
		}
		return &Error{Code: code, Message: status.Error, StatusCode: resp.StatusCode}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("rocketchat: decode %s: %w", path, err)
	}
	return nil
}
