package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/m2tx/research_agent/internal/agent"
	"github.com/m2tx/research_agent/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResearcher struct {
	questions []string
	deadline  bool
	result    *agent.Result
	err       error
}

func (f *fakeResearcher) Run(ctx context.Context, question string) (*agent.Result, error) {
	f.questions = append(f.questions, question)
	_, f.deadline = ctx.Deadline()
	return f.result, f.err
}

func answeredResult() *agent.Result {
	call := model.ToolCall{ID: "c1", Name: "paper_search", Args: map[string]any{"query": "RAG"}}
	return &agent.Result{
		State:  agent.StateDone,
		Rounds: 1,
		Messages: []model.Message{
			model.UserMessage("What is RAG?"),
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{call}},
			model.ToolResult(call, "Published: 2020-05-22\nTitle: Retrieval-Augmented Generation"),
		},
	}
}

func newTestServer(t *testing.T, r Researcher) *Server {
	t.Helper()
	s, err := New(r, time.Minute)
	require.NoError(t, err)
	return s
}

func postForm(s *Server, query string) *httptest.ResponseRecorder {
	form := url.Values{"query": {query}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, &fakeResearcher{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AI Research Agent")
	assert.Contains(t, rec.Body.String(), `name="query"`)
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	for _, query := range []string{"", "   ", "\t\n"} {
		r := &fakeResearcher{}
		s := newTestServer(t, r)

		rec := postForm(s, query)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), warningEmptyQuery)
		assert.Empty(t, r.questions)
	}
}

func TestSearchRendersMessagesInOrder(t *testing.T) {
	r := &fakeResearcher{result: answeredResult()}
	s := newTestServer(t, r)

	rec := postForm(s, "What is RAG?")
	body := rec.Body.String()

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"What is RAG?"}, r.questions)
	assert.True(t, r.deadline)

	user := strings.Index(body, "User Message")
	assistant := strings.Index(body, "Assistant Message")
	tool := strings.Index(body, "Tool Message")
	require.True(t, user > 0 && assistant > 0 && tool > 0)
	assert.Less(t, user, assistant)
	assert.Less(t, assistant, tool)

	assert.Contains(t, body, "paper_search")
	assert.Contains(t, body, "Retrieval-Augmented Generation")
	assert.NotContains(t, body, warningEmptyQuery)
}

func TestSearchEscapesRawHTML(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		contains []string
	}{
		{
			name:     "script block",
			content:  "<script>alert(1)</script>\n\n**bold**",
			contains: []string{"&lt;script&gt;alert(1)&lt;/script&gt;", "<strong>bold</strong>"},
		},
		{
			name:     "leading tag keeps following text",
			content:  "<br>\nThe answer is 42.",
			contains: []string{"&lt;br&gt;", "The answer is 42."},
		},
		{
			name:     "inline tag",
			content:  "See <ref>Smith 2020</ref> for **details**",
			contains: []string{"&lt;ref&gt;Smith 2020&lt;/ref&gt;", "<strong>details</strong>"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeResearcher{result: &agent.Result{
				State: agent.StateDone,
				Messages: []model.Message{
					model.UserMessage("x"),
					{Role: model.RoleAssistant, Content: tt.content},
				},
			}}
			s := newTestServer(t, r)

			body := postForm(s, "x").Body.String()

			assert.NotContains(t, body, "<script>alert(1)</script>")
			assert.NotContains(t, body, "raw HTML omitted")
			for _, want := range tt.contains {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestSearchShowsGenerationFailure(t *testing.T) {
	r := &fakeResearcher{
		result: &agent.Result{State: agent.StateGenerate, Messages: []model.Message{model.UserMessage("What is RAG?")}},
		err:    &agent.GenerationError{Err: errors.New("quota exceeded")},
	}
	s := newTestServer(t, r)

	body := postForm(s, "What is RAG?").Body.String()

	assert.Contains(t, body, failureGeneration)
	assert.Contains(t, body, "User Message")
	assert.NotContains(t, body, "Assistant Message")
}

func TestAsk(t *testing.T) {
	r := &fakeResearcher{result: answeredResult()}
	s := newTestServer(t, r)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"What is RAG?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		State    string          `json:"state"`
		Rounds   int             `json:"rounds"`
		Messages []model.Message `json:"messages"`
		Error    string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "DONE", resp.State)
	assert.Equal(t, 1, resp.Rounds)
	assert.Len(t, resp.Messages, 3)
	assert.Empty(t, resp.Error)
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "blank", body: `{"query":"  "}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{"query":`, status: http.StatusBadRequest},
		{name: "generation", body: `{"query":"q"}`, err: &agent.GenerationError{Err: errors.New("down")}, status: http.StatusBadGateway},
		{name: "other", body: `{"query":"q"}`, err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeResearcher{result: &agent.Result{State: agent.StateGenerate}, err: tt.err}
			s := newTestServer(t, r)

			req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.err == nil {
				assert.Empty(t, r.questions)
			} else {
				assert.Contains(t, rec.Body.String(), tt.err.Error())
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeResearcher{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "User Message", roleLabel(model.RoleUser))
	assert.Equal(t, "Assistant Message", roleLabel(model.RoleAssistant))
	assert.Equal(t, "Tool Message", roleLabel(model.RoleTool))
}

func TestListenAndServeReturnsListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	s := newTestServer(t, &fakeResearcher{})

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(context.Background(), l.Addr().String()) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "listen")
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after the listener failed")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := newTestServer(t, &fakeResearcher{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
