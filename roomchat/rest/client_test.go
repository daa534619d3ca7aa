package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestActiveUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/ws/get-active-user-ids/room-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]string{"u1", "u2"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ids, err := c.ActiveUsers(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("active users: %v", err)
	}
	if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestDisconnectUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/ws/disconnect-user/room-1/u2" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.DisconnectUser(context.Background(), "room-1", "u2"); err != nil {
		t.Fatalf("disconnect user: %v", err)
	}
}

func TestErrorDetailString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail": "not an admin"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.DisconnectUser(context.Background(), "r1", "u1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Detail != "not an admin" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestErrorValidationArrayFlattened(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail": [
			{"loc": ["body", "name"], "msg": "required"},
			{"loc": ["query", "limit"], "msg": "must be positive"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreateRoom(context.Background(), CreateRoomRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T", err)
	}
	want := "body.name: required; query.limit: must be positive"
	if apiErr.Detail != want {
		t.Fatalf("detail = %q, want %q", apiErr.Detail, want)
	}
}

func TestErrorNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Me(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T", err)
	}
	if apiErr.Detail != "upstream down" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestSendMessageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/create-message/r1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("body: %v", err)
		}
		if body["content"] != "hello" {
			t.Errorf("content = %q", body["content"])
		}
		_ = json.NewEncoder(w).Encode(MessageInfo{ID: "m1", RoomID: "r1", Content: "hello"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msg, err := c.SendMessage(context.Background(), "r1", "hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.ID != "m1" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestEditMessageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/messages/update-message/m1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		_ = json.Unmarshal(data, &body)
		if body["new_content"] != "fixed" {
			t.Errorf("new_content = %q", body["new_content"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.EditMessage(context.Background(), "m1", "fixed"); err != nil {
		t.Fatalf("edit message: %v", err)
	}
}

func TestSessionCookiePersistsAcrossRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/login-user":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok-1"})
			_ = json.NewEncoder(w).Encode(UserInfo{ID: "u1", Username: "alice"})
		case "/users/get-me":
			cookie, err := r.Cookie("session")
			if err != nil || cookie.Value != "tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail": "not authenticated"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(UserInfo{ID: "u1", Username: "alice"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Login(context.Background(), LoginRequest{Username: "alice", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	me, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("me after login: %v", err)
	}
	if me.Username != "alice" {
		t.Fatalf("me = %+v", me)
	}
}

func TestRecentMessagesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/get-recent-messages/r1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]MessageInfo{{ID: "m1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msgs, err := c.RecentMessages(context.Background(), "r1", 50)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("messages = %v", msgs)
	}
}
