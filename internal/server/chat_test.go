package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/learnbot-go/internal/assistant"
)

// TestHandleChat_OK verifies the happy path: the request fields reach the
// responder and the result comes back as JSON.
func TestHandleChat_OK(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{result: assistant.Result{
		Answer:         "paris is the capital of france",
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		ResponseID:     "resp-1",
	}}
	s := newTestServerWith(resp, &fakeIngester{}, &fakeConversations{})

	body := `{"query": "capital of france?", "top_k": 3, "conversation_id": "conv-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if resp.lastReq.Query != "capital of france?" {
		t.Errorf("query: expected %q, got %q", "capital of france?", resp.lastReq.Query)
	}
	if resp.lastReq.TopK != 3 {
		t.Errorf("top_k: expected 3, got %d", resp.lastReq.TopK)
	}
	if resp.lastReq.ConversationID != "conv-1" {
		t.Errorf("conversation_id: expected %q, got %q", "conv-1", resp.lastReq.ConversationID)
	}

	var got chatResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Answer != "paris is the capital of france" {
		t.Errorf("answer: got %q", got.Answer)
	}
	if got.MessageID != "msg-1" || got.ConversationID != "conv-1" || got.ResponseID != "resp-1" {
		t.Errorf("identifiers: got %+v", got)
	}
}

// TestHandleChat_BlockedIsOK verifies that a moderated turn is still a 200
// whose answer is the advisory and whose response_id is empty.
func TestHandleChat_BlockedIsOK(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{result: assistant.Result{
		Answer:         "advisory text",
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		Blocked:        true,
	}}
	s := newTestServerWith(resp, &fakeIngester{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query": "bad"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got chatResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Answer != "advisory text" {
		t.Errorf("answer: got %q", got.Answer)
	}
	if got.ResponseID != "" {
		t.Errorf("expected empty response_id on blocked turn, got %q", got.ResponseID)
	}
}

// TestHandleChat_UnknownConversation verifies the 404 mapping.
func TestHandleChat_UnknownConversation(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{err: assistant.ErrNotFound}
	s := newTestServerWith(resp, &fakeIngester{}, &fakeConversations{})

	body := `{"query": "hi", "conversation_id": "nope"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// TestHandleChat_PipelineError verifies that other failures map to 500.
func TestHandleChat_PipelineError(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{err: errors.New("embedder unreachable")}
	s := newTestServerWith(resp, &fakeIngester{}, &fakeConversations{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query": "hi"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// TestHandleChat_BadRequests verifies input validation happens before the
// responder is called.
func TestHandleChat_BadRequests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"query": `},
		{"empty query", `{"query": ""}`},
		{"missing query", `{"top_k": 5}`},
	}

	for _, tc := range cases {
		resp := &fakeResponder{}
		s := newTestServerWith(resp, &fakeIngester{}, &fakeConversations{})

		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tc.body))
		w := httptest.NewRecorder()

		s.handleChat(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
		if resp.calls != 0 {
			t.Errorf("%s: responder called %d times, expected 0", tc.name, resp.calls)
		}
	}
}
