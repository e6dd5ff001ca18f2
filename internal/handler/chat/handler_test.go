package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	chatservice "github.com/zhouzirui/janvani/backend/internal/service/chat"
	"github.com/zhouzirui/janvani/backend/internal/service/conversation"
	"github.com/zhouzirui/janvani/backend/internal/session"
)

type stubTranslator struct {
	mu   sync.Mutex
	fail bool
}

func (s *stubTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errs.New(errs.KindTranslationUnavailable, "stub", "provider down")
	}
	if source == target {
		return text, nil
	}
	return "[" + target + "] " + text, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateReply(_ context.Context, prompt string, _ []chat.Turn) (string, error) {
	return "answer to " + prompt, nil
}

// stubDetector 把任何消息都识别为同一种语言。
type stubDetector struct{ code string }

func (d stubDetector) DetectLanguage(context.Context, string, []string) (string, error) {
	return d.code, nil
}

type fixture struct {
	router     *chi.Mux
	sessions   *chatservice.Service
	translator *stubTranslator
	manager    *session.Manager
}

func setupRouter(t *testing.T) fixture {
	t.Helper()
	catalog := language.NewMemoryStore(language.Seed())
	sessions := chatservice.NewService(chatservice.DefaultOptions())
	tr := &stubTranslator{}
	orch := conversation.New(tr, stubGenerator{}, sessions, catalog, conversation.Config{PivotLanguage: "en", HistoryLimit: 10},
		conversation.WithDetector(stubDetector{code: "ta"}))
	manager := session.NewManager("test-secret", time.Hour, false)

	r := chi.NewRouter()
	New(orch, tr, catalog, manager).RegisterRoutes(r)
	return fixture{router: r, sessions: sessions, translator: tr, manager: manager}
}

func postJSON(t *testing.T, r http.Handler, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatReturnsTranslatedReply(t *testing.T) {
	f := setupRouter(t)

	resp := postJSON(t, f.router, "/chat", map[string]string{
		"message":   "RTI कैसे दाखिल करें?",
		"language":  "hi",
		"sessionId": "s1",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body chatResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.SessionID)
	assert.Equal(t, "hi", body.Language)
	assert.Equal(t, "[hi] answer to [en] RTI कैसे दाखिल करें?", body.Reply)

	turns, err := f.sessions.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestChatIssuesCookieWhenNoSessionGiven(t *testing.T) {
	f := setupRouter(t)

	first := postJSON(t, f.router, "/chat", map[string]string{"message": "hello", "language": "en"})
	require.Equal(t, http.StatusOK, first.Code)

	var body chatResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	require.NotEmpty(t, body.SessionID)

	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)

	second := postJSON(t, f.router, "/chat", map[string]string{"message": "again", "language": "en"}, cookies[0])
	require.Equal(t, http.StatusOK, second.Code)

	var next chatResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &next))
	assert.Equal(t, body.SessionID, next.SessionID, "cookie keeps the session")
	assert.Empty(t, second.Result().Cookies(), "no new cookie for an unchanged session")
}

func TestChatDetectsMissingLanguage(t *testing.T) {
	f := setupRouter(t)

	resp := postJSON(t, f.router, "/chat", map[string]string{"message": "வணக்கம்", "sessionId": "d1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body chatResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "ta", body.Language, "reply is given in the detected language")
	assert.Equal(t, "[ta] answer to [en] வணக்கம்", body.Reply)

	turns, err := f.sessions.Transcript(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "ta", turns[0].Language)
}

func TestChatValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"message":`, http.StatusBadRequest},
		{"missing message", `{"language":"hi"}`, http.StatusBadRequest},
		{"blank message", `{"message":"   ","language":"hi"}`, http.StatusBadRequest},
		{"unknown language", `{"message":"hi","language":"xx"}`, http.StatusBadRequest},
		{"bad session id", `{"message":"hi","language":"en","sessionId":"../etc"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupRouter(t)
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tc.body))
			resp := httptest.NewRecorder()
			f.router.ServeHTTP(resp, req)
			assert.Equal(t, tc.want, resp.Code)
			assert.Equal(t, 0, f.sessions.Len())
		})
	}
}

func TestChatTranslationFailureIsBadGateway(t *testing.T) {
	f := setupRouter(t)

	ok := postJSON(t, f.router, "/chat", map[string]string{"message": "first", "language": "ta", "sessionId": "s9"})
	require.Equal(t, http.StatusOK, ok.Code)

	f.translator.mu.Lock()
	f.translator.fail = true
	f.translator.mu.Unlock()

	resp := postJSON(t, f.router, "/chat", map[string]string{"message": "second", "language": "ta", "sessionId": "s9"})
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "translation service unavailable")
	assert.NotContains(t, resp.Body.String(), "provider down")

	turns, err := f.sessions.Transcript(context.Background(), "s9")
	require.NoError(t, err)
	assert.Len(t, turns, 2, "failed turn leaves the transcript unchanged")
}

func TestChatRejectsOversizedBody(t *testing.T) {
	f := setupRouter(t)
	big := strings.Repeat("a", maxBodyBytes+1)

	resp := postJSON(t, f.router, "/chat", map[string]string{"message": big, "language": "en"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestTranslateEndpoint(t *testing.T) {
	f := setupRouter(t)

	resp := postJSON(t, f.router, "/translate", map[string]string{
		"text":           "Where is the ration office?",
		"sourceLanguage": "en",
		"targetLanguage": "BN",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var body translateResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "[bn] Where is the ration office?", body.TranslatedText)
	assert.Equal(t, "bn", body.TargetLanguage)

	bad := postJSON(t, f.router, "/translate", map[string]string{"text": "x", "sourceLanguage": "en", "targetLanguage": "zz"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHistoryLifecycle(t *testing.T) {
	f := setupRouter(t)

	require.Equal(t, http.StatusOK, postJSON(t, f.router, "/chat", map[string]string{"message": "hi", "language": "en", "sessionId": "h1"}).Code)

	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history?sessionId=h1", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body historyResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Turns, 2)
	assert.Equal(t, chat.RoleUser, body.Turns[0].Role)
	assert.Equal(t, chat.RoleAssistant, body.Turns[1].Role)

	resp = httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/history?sessionId=h1", nil))
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history?sessionId=h1", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHistoryRequiresSession(t *testing.T) {
	f := setupRouter(t)

	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history?sessionId=a%20b", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
