package webhookhandler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chat-server/internal/domain/user"
	"chat-server/internal/interfaces/httpserver/handlers/webhookhandler"
)

const testSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

// mockUserRepository records applied lifecycle mutations.
type mockUserRepository struct {
	users   map[string]*user.User
	deletes int
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*user.User)}
}

func (m *mockUserRepository) Upsert(ctx context.Context, u *user.User) error {
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	delete(m.users, id)
	m.deletes++
	return nil
}

func newTestRouter(t *testing.T, repo user.UserRepository) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sync := user.NewSyncService(repo, zerolog.Nop())
	handler, err := webhookhandler.NewWebhookHandler(testSecret, sync, zerolog.Nop())
	require.NoError(t, err)

	engine := gin.New()
	engine.POST("/webhooks/identity", handler.HandleIdentityEvent)
	return engine
}

// sign computes a svix v1 signature for the given payload and headers.
func sign(t *testing.T, msgID, timestamp string, payload []byte) string {
	t.Helper()
	secret, err := base64.StdEncoding.DecodeString(testSecret[len("whsec_"):])
	require.NoError(t, err)

	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, payload)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	msgID := "msg_test"
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", timestamp)
	req.Header.Set("svix-signature", sign(t, msgID, timestamp, payload))
	return req
}

func TestUserCreatedEventSyncsRecord(t *testing.T) {
	repo := newMockUserRepository()
	router := newTestRouter(t, repo)

	payload := []byte(`{
		"type": "user.created",
		"data": {
			"id": "user_2abc",
			"email_addresses": [{"email_address": "ada@example.com"}],
			"first_name": "Ada",
			"last_name": "Lovelace",
			"image_url": "https://img.example.com/ada.png"
		}
	}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	stored := repo.users["user_2abc"]
	require.NotNil(t, stored)
	require.Equal(t, "ada@example.com", stored.Email)
	require.Equal(t, "Ada Lovelace", stored.Name)
	require.Equal(t, "https://img.example.com/ada.png", stored.Picture)
}

func TestUserUpdatedEventOverwritesRecord(t *testing.T) {
	repo := newMockUserRepository()
	repo.users["user_2abc"] = &user.User{ID: "user_2abc", Email: "old@example.com"}
	router := newTestRouter(t, repo)

	payload := []byte(`{
		"type": "user.updated",
		"data": {
			"id": "user_2abc",
			"email_addresses": [{"email_address": "new@example.com"}],
			"first_name": "Ada",
			"last_name": ""
		}
	}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "new@example.com", repo.users["user_2abc"].Email)
	require.Equal(t, "Ada", repo.users["user_2abc"].Name)
}

func TestUserDeletedEventRemovesRecord(t *testing.T) {
	repo := newMockUserRepository()
	repo.users["user_2abc"] = &user.User{ID: "user_2abc"}
	router := newTestRouter(t, repo)

	payload := []byte(`{"type": "user.deleted", "data": {"id": "user_2abc"}}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, repo.users, "user_2abc")
	require.Equal(t, 1, repo.deletes)
}

func TestMissingHeadersRejected(t *testing.T) {
	repo := newMockUserRepository()
	router := newTestRouter(t, repo)

	payload := []byte(`{"type": "user.created", "data": {"id": "user_2abc"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, repo.users)
}

func TestInvalidSignatureRejected(t *testing.T) {
	repo := newMockUserRepository()
	router := newTestRouter(t, repo)

	payload := []byte(`{"type": "user.created", "data": {"id": "user_2abc"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))
	req.Header.Set("svix-id", "msg_test")
	req.Header.Set("svix-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("svix-signature", "v1,aW52YWxpZC1zaWduYXR1cmU=")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, repo.users)
}

func TestTamperedPayloadRejected(t *testing.T) {
	repo := newMockUserRepository()
	router := newTestRouter(t, repo)

	payload := []byte(`{"type": "user.created", "data": {"id": "user_2abc"}}`)
	tampered := []byte(`{"type": "user.deleted", "data": {"id": "user_other"}}`)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(tampered))
	req.Header.Set("svix-id", "msg_test")
	req.Header.Set("svix-timestamp", timestamp)
	req.Header.Set("svix-signature", sign(t, "msg_test", timestamp, payload))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, repo.users)
}

func TestUnknownEventTypeAcknowledged(t *testing.T) {
	repo := newMockUserRepository()
	router := newTestRouter(t, repo)

	payload := []byte(`{"type": "session.created", "data": {"id": "sess_1"}}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, repo.users)
}
