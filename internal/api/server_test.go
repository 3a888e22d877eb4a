// ABOUTME: Tests for the HTTP API endpoints
// ABOUTME: Covers auth, website provisioning, conversation ops, and error mapping

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visitly/chat-gateway/internal/auth"
	"github.com/visitly/chat-gateway/internal/chat"
	"github.com/visitly/chat-gateway/internal/dispatch"
	"github.com/visitly/chat-gateway/internal/store"
)

const testSecret = "api-test-secret"

// nullBroadcaster drops all frames; these tests assert HTTP behavior only.
type nullBroadcaster struct{}

func (nullBroadcaster) Broadcast(topic string, frame []byte) {}

type testEnv struct {
	server   *httptest.Server
	store    *store.MockStore
	service  *chat.Service
	verifier *auth.JWTVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mockStore := store.NewMockStore()
	service := chat.New(mockStore, auth.NewStoreChecker(mockStore), dispatch.New(nullBroadcaster{}, nil), nil)
	verifier := auth.NewJWTVerifier([]byte(testSecret))

	router := mux.NewRouter()
	NewServer(service, mockStore, verifier, nil).Register(router, true)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: mockStore, service: service, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (e *testEnv) seedConversation(t *testing.T, websiteID, ownerID string) *store.Conversation {
	t.Helper()
	require.NoError(t, e.store.CreateWebsite(context.Background(), &store.Website{
		ID:        websiteID,
		Name:      "Example",
		URL:       "https://example.com",
		OwnerID:   ownerID,
		Active:    true,
		CreatedAt: time.Now(),
	}))
	conv, err := e.service.EnsureConversation(context.Background(), websiteID, "", "alice", nil)
	require.NoError(t, err)
	return conv
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/websites", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/websites", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndListWebsites(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	resp := env.request(t, http.MethodPost, "/api/websites", token, map[string]string{
		"name":     "Example",
		"url":      "https://example.com",
		"bot_name": "Helper",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "user-1", created["owner_id"])
	assert.Equal(t, true, created["active"])

	resp = env.request(t, http.MethodGet, "/api/websites", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody(t, resp)["websites"].([]any)
	assert.Len(t, list, 1)

	// Another user sees nothing.
	resp = env.request(t, http.MethodGet, "/api/websites", env.token(t, "user-2"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody(t, resp)["websites"])
}

func TestCreateWebsite_Validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	resp := env.request(t, http.MethodPost, "/api/websites", token, map[string]string{"name": "No URL"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRespond_RecordsManualMessage(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t, "site-1", "user-1")
	token := env.token(t, "user-1")

	resp := env.request(t, http.MethodPost, "/api/conversations/"+conv.ID+"/respond", token,
		map[string]string{"message": "manual reply"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["message_id"])
	assert.Equal(t, conv.ID, body["conversation_id"])

	msgs, err := env.service.History(context.Background(), "user-1", conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Manual)
	assert.Equal(t, "user-1", msgs[0].AgentID)
}

func TestRespond_ForeignConversationForbidden(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t, "site-1", "user-1")

	resp := env.request(t, http.MethodPost, "/api/conversations/"+conv.ID+"/respond",
		env.token(t, "intruder"), map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A missing conversation answers identically.
	resp = env.request(t, http.MethodPost, "/api/conversations/ghost/respond",
		env.token(t, "intruder"), map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEndConversation_ThenRespondConflicts(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t, "site-1", "user-1")
	token := env.token(t, "user-1")

	resp := env.request(t, http.MethodPost, "/api/conversations/"+conv.ID+"/end", token,
		map[string]string{"reason": "resolved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ended", body["status"])
	assert.NotNil(t, body["ended_at"])

	// Ending twice stays OK.
	resp = env.request(t, http.MethodPost, "/api/conversations/"+conv.ID+"/end", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/conversations/"+conv.ID+"/respond", token,
		map[string]string{"message": "too late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetConversationAndMessages(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t, "site-1", "user-1")
	token := env.token(t, "user-1")

	_, _, err := env.service.VisitorMessage(context.Background(), conv.ID, "hello")
	require.NoError(t, err)

	resp := env.request(t, http.MethodGet, "/api/conversations/"+conv.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "alice", body["user_identifier"])
	assert.Equal(t, float64(2), body["total_messages"])
	assert.Equal(t, true, body["requires_attention"])

	resp = env.request(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decodeBody(t, resp)["messages"].([]any)
	require.Len(t, msgs, 1)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "visitor", first["role"])
	assert.Equal(t, "hello", first["content"])
}

func TestMessages_BadLimit(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t, "site-1", "user-1")

	resp := env.request(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=-1",
		env.token(t, "user-1"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
