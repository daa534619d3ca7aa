package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides REST access to the chat server. Authentication is a
// session cookie set by Login/Register and held in the client's jar, so
// one Client per logged-in user.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client. baseURL is the API base, e.g.
// "http://localhost:8000/api".
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// SetHTTPClient swaps the underlying HTTP client (tests, custom jars).
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// Stream session endpoints

// ActiveUsers returns the ids of participants currently connected to a
// room: the authoritative presence snapshot.
func (c *Client) ActiveUsers(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	if err := c.get(ctx, "/ws/get-active-user-ids/"+url.PathEscape(roomID), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DisconnectUser forcibly terminates a participant's stream session in a
// room. Privileged; idempotent against an already-disconnected target.
func (c *Client) DisconnectUser(ctx context.Context, roomID, userID string) error {
	return c.del(ctx, "/ws/disconnect-user/"+url.PathEscape(roomID)+"/"+url.PathEscape(userID))
}

// Auth endpoints

// Register creates a new account and starts a session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserInfo, error) {
	var resp UserInfo
	if err := c.post(ctx, "/users/register-user", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates and starts a session.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*UserInfo, error) {
	var resp UserInfo
	if err := c.post(ctx, "/users/login-user", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/users/logout-user", nil, nil)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*UserInfo, error) {
	var resp UserInfo
	if err := c.get(ctx, "/users/get-me", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Room endpoints

// CreateRoom creates a room.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomInfo, error) {
	var resp RoomInfo
	if err := c.post(ctx, "/rooms/create-room", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateRoom updates room settings.
func (c *Client) UpdateRoom(ctx context.Context, roomID string, req UpdateRoomRequest) (*RoomInfo, error) {
	var resp RoomInfo
	if err := c.put(ctx, "/rooms/update-room/"+url.PathEscape(roomID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteRoom deletes a room.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.del(ctx, "/rooms/delete-room/"+url.PathEscape(roomID))
}

// Room fetches one room.
func (c *Client) Room(ctx context.Context, roomID string) (*RoomInfo, error) {
	var resp RoomInfo
	if err := c.get(ctx, "/rooms/get-room/"+url.PathEscape(roomID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rooms lists the rooms visible to the authenticated user.
func (c *Client) Rooms(ctx context.Context) ([]RoomInfo, error) {
	var resp []RoomInfo
	if err := c.get(ctx, "/rooms/get-rooms", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// TopRooms lists the most active rooms.
func (c *Client) TopRooms(ctx context.Context, limit int, onlyPublic bool) ([]RoomInfo, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("only_public", strconv.FormatBool(onlyPublic))
	var resp []RoomInfo
	if err := c.get(ctx, "/rooms/get-top-rooms?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SearchRooms searches rooms by name.
func (c *Client) SearchRooms(ctx context.Context, text string, limit int) ([]RoomInfo, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("limit", strconv.Itoa(limit))
	var resp []RoomInfo
	if err := c.get(ctx, "/rooms/get-search-rooms?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RoomUsers lists the members of a room.
func (c *Client) RoomUsers(ctx context.Context, roomID string) ([]UserInfo, error) {
	var resp []UserInfo
	if err := c.get(ctx, "/rooms/get-users/"+url.PathEscape(roomID), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendJoinRequest asks to join a private room.
func (c *Client) SendJoinRequest(ctx context.Context, roomID string) error {
	body := map[string]string{"room_id": roomID}
	return c.post(ctx, "/rooms/create-join-request", body, nil)
}

// HandleJoinRequest accepts or rejects a pending join request.
func (c *Client) HandleJoinRequest(ctx context.Context, requestID string, accept bool) error {
	q := url.Values{}
	q.Set("accept", strconv.FormatBool(accept))
	return c.post(ctx, "/rooms/handle-join-request/"+url.PathEscape(requestID)+"?"+q.Encode(), nil, nil)
}

// JoinRequestsByRoom lists pending join requests for a room the caller owns.
func (c *Client) JoinRequestsByRoom(ctx context.Context, roomID string) ([]JoinRequestInfo, error) {
	var resp []JoinRequestInfo
	if err := c.get(ctx, "/rooms/get-join-requests-by-room/"+url.PathEscape(roomID), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// JoinRequestsByUser lists the caller's own pending join requests.
func (c *Client) JoinRequestsByUser(ctx context.Context) ([]JoinRequestInfo, error) {
	var resp []JoinRequestInfo
	if err := c.get(ctx, "/rooms/get-join-requests-by-user", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RemoveUser removes a member from a room.
func (c *Client) RemoveUser(ctx context.Context, roomID, userID string) error {
	return c.del(ctx, "/rooms/remove-user/"+url.PathEscape(roomID)+"/"+url.PathEscape(userID))
}

// LeaveRoom removes the caller from a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	return c.del(ctx, "/rooms/leave-room/"+url.PathEscape(roomID))
}

// Message endpoints

// RecentMessages returns up to limit recent messages for a room.
func (c *Client) RecentMessages(ctx context.Context, roomID string, limit int) ([]MessageInfo, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	var resp []MessageInfo
	if err := c.get(ctx, "/messages/get-recent-messages/"+url.PathEscape(roomID)+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendMessage posts a message to a room.
func (c *Client) SendMessage(ctx context.Context, roomID, content string) (*MessageInfo, error) {
	body := map[string]string{"content": content}
	var resp MessageInfo
	if err := c.post(ctx, "/messages/create-message/"+url.PathEscape(roomID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EditMessage replaces a message's content.
func (c *Client) EditMessage(ctx context.Context, messageID, newContent string) error {
	body := map[string]string{"new_content": newContent}
	return c.put(ctx, "/messages/update-message/"+url.PathEscape(messageID), body, nil)
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.del(ctx, "/messages/delete-message/"+url.PathEscape(messageID))
}

// Notification endpoints

// Notifications lists notifications for the authenticated user.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int) ([]NotificationInfo, error) {
	q := url.Values{}
	q.Set("unread_only", strconv.FormatBool(unreadOnly))
	q.Set("limit", strconv.Itoa(limit))
	var resp []NotificationInfo
	if err := c.get(ctx, "/notifications/get-notifications?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return c.put(ctx, "/notifications/update-notification/"+url.PathEscape(notificationID), nil, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.put(ctx, "/notifications/update-notifications/read-all", nil, nil)
}

// UnreadNotificationCount returns the number of unread notifications.
func (c *Client) UnreadNotificationCount(ctx context.Context) (int, error) {
	var count int
	if err := c.get(ctx, "/notifications/get-notifications-count-unread", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteNotification deletes one notification.
func (c *Client) DeleteNotification(ctx context.Context, notificationID string) error {
	return c.del(ctx, "/notifications/delete-notification/"+url.PathEscape(notificationID))
}

// Helpers

func (c *Client) get(ctx context.Context, path string, dest any) error {
	return c.request(ctx, http.MethodGet, path, nil, dest)
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	return c.request(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) put(ctx context.Context, path string, body, dest any) error {
	return c.request(ctx, http.MethodPut, path, body, dest)
}

func (c *Client) del(ctx context.Context, path string) error {
	return c.request(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body, dest any) error {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp.StatusCode, data)
	}

	if dest != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
