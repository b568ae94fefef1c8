package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/54b3r/learnbot-go/internal/store"
)

// TestHandleConversations_List verifies the listing response shape.
func TestHandleConversations_List(t *testing.T) {
	t.Parallel()

	now := time.Now()
	earlier := now.Add(-100 * time.Second)
	convs := &fakeConversations{conversations: []store.Conversation{
		{ID: "conv-2", Title: "newer", CreatedAt: now, UpdatedAt: now},
		{ID: "conv-1", Title: "older", CreatedAt: earlier, UpdatedAt: earlier},
	}}
	s := newTestServerWith(&fakeResponder{}, &fakeIngester{}, convs)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w := httptest.NewRecorder()

	s.handleConversations(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp map[string][]store.Conversation
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := resp["conversations"]
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(got))
	}
	if got[0].ID != "conv-2" || got[1].ID != "conv-1" {
		t.Errorf("order: got %q then %q", got[0].ID, got[1].ID)
	}
}

// TestHandleConversations_Empty verifies an empty store yields an empty
// array, not null.
func TestHandleConversations_Empty(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w := httptest.NewRecorder()

	s.handleConversations(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	var resp struct {
		Conversations []store.Conversation `json:"conversations"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Conversations == nil {
		t.Errorf("expected [] not null — body: %s", body)
	}
}

// TestHandleConversations_StoreError verifies the 500 mapping.
func TestHandleConversations_StoreError(t *testing.T) {
	t.Parallel()

	convs := &fakeConversations{err: errors.New("disk gone")}
	s := newTestServerWith(&fakeResponder{}, &fakeIngester{}, convs)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w := httptest.NewRecorder()

	s.handleConversations(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// messagesRequest builds a GET request routed with the {id} path value set,
// as the mux would.
func messagesRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+id+"/messages", nil)
	req.SetPathValue("id", id)
	return req
}

// TestHandleConversationMessages_OK verifies the message history response.
func TestHandleConversationMessages_OK(t *testing.T) {
	t.Parallel()

	convs := &fakeConversations{
		conversations: []store.Conversation{{ID: "conv-1", Title: "t"}},
		messages: map[string][]store.Message{
			"conv-1": {
				{ID: "m1", ConversationID: "conv-1", Role: store.RoleUser, Content: "hi"},
				{ID: "m2", ConversationID: "conv-1", Role: store.RoleAssistant, Content: "hello", ResponseID: "resp-1", ParentMessageID: "m1"},
			},
		},
	}
	s := newTestServerWith(&fakeResponder{}, &fakeIngester{}, convs)

	w := httptest.NewRecorder()
	s.handleConversationMessages(w, messagesRequest("conv-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp map[string][]store.Message
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	msgs := resp["messages"]
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[1].Role != store.RoleAssistant {
		t.Errorf("roles: got %q then %q", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].ParentMessageID != "m1" {
		t.Errorf("parent link: got %q", msgs[1].ParentMessageID)
	}
}

// TestHandleConversationMessages_NotFound verifies the 404 for an unknown id.
func TestHandleConversationMessages_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()

	s.handleConversationMessages(w, messagesRequest("nope"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// TestHandleConversationMessages_EmptyHistory verifies an existing
// conversation with no messages yields an empty array.
func TestHandleConversationMessages_EmptyHistory(t *testing.T) {
	t.Parallel()

	convs := &fakeConversations{conversations: []store.Conversation{{ID: "conv-1"}}}
	s := newTestServerWith(&fakeResponder{}, &fakeIngester{}, convs)

	w := httptest.NewRecorder()
	s.handleConversationMessages(w, messagesRequest("conv-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Messages == nil {
		t.Errorf("expected [] not null — body: %s", w.Body.String())
	}
}
