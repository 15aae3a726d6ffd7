package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIClient_Chat_Text(t *testing.T) {
	var gotReq openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"created": 1700000000,
			"choices": [{"message": {"role": "assistant", "content": "Hello there!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, nil)
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "Hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}

	if resp.Message.Content != "Hello there!" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "Hello there!")
	}
	if resp.HasToolCalls() {
		t.Error("expected no tool calls")
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 4 {
		t.Errorf("usage = %d/%d, want 12/4", resp.InputTokens, resp.OutputTokens)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("request messages malformed: %+v", gotReq.Messages)
	}
	if gotReq.ToolChoice != "" {
		t.Errorf("tool_choice = %q, want empty without tools", gotReq.ToolChoice)
	}
}

func TestOpenAIClient_Chat_ToolCalls(t *testing.T) {
	var gotReq openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-2",
			"model": "gpt-4o-mini",
			"created": 1700000000,
			"choices": [{"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id": "tc_1", "type": "function",
					"function": {"name": "retrieve_docs", "arguments": "{\"query\":\"schedule\"}"}}]
			}, "finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 9}
		}`))
	}))
	defer srv.Close()

	tools := []map[string]any{
		{"type": "function", "function": map[string]any{"name": "retrieve_docs"}},
	}

	c := NewOpenAIClient("test-key", srv.URL, nil)
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "when?"}}, tools)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}

	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "tc_1" || tc.Name != "retrieve_docs" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments != `{"query":"schedule"}` {
		t.Errorf("arguments = %q", tc.Arguments)
	}
	if gotReq.ToolChoice != "auto" {
		t.Errorf("tool_choice = %q, want auto", gotReq.ToolChoice)
	}
	if len(gotReq.Tools) != 1 {
		t.Errorf("tools sent = %d, want 1", len(gotReq.Tools))
	}
}

func TestOpenAIClient_Chat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, nil)
	_, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "Hi"}}, nil)
	if err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestConvertToOpenAI_ToolResult(t *testing.T) {
	msgs := convertToOpenAI([]Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "tc_1", Name: "retrieve_docs", Arguments: `{"query":"x"}`}}},
		{Role: "tool", Content: "the answer", ToolCallID: "tc_1"},
	})

	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Name != "retrieve_docs" {
		t.Errorf("assistant tool calls malformed: %+v", msgs[0].ToolCalls)
	}
	if msgs[0].ToolCalls[0].Type != "function" {
		t.Errorf("tool call type = %q, want function", msgs[0].ToolCalls[0].Type)
	}
	if msgs[1].ToolCallID != "tc_1" {
		t.Errorf("tool_call_id = %q, want tc_1", msgs[1].ToolCallID)
	}
}
