package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
	"tipsterarena/backend/internal/reconciler"
	"tipsterarena/backend/internal/repository"
	"tipsterarena/backend/internal/tipsters"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTipsters struct {
	mu    sync.Mutex
	liked     map[[2]int64]bool
	lastLimit int
	err       error
}

func (f *fakeTipsters) Register(ctx context.Context, username string) (*models.User, *models.TipsterProfile, error) {
	if username == "taken" {
		return nil, nil, fmt.Errorf("user taken: %w", repository.ErrConflict)
	}
	return &models.User{ID: 1, Username: username}, &models.TipsterProfile{UserID: 1}, nil
}

func (f *fakeTipsters) Tipster(ctx context.Context, username string) (*tipsters.Tipster, error) {
	if username != "sharp_sam" {
		return nil, fmt.Errorf("user %s: %w", username, repository.ErrNotFound)
	}
	return &tipsters.Tipster{
		User:    &models.User{ID: 1, Username: username},
		Profile: &models.TipsterProfile{UserID: 1, Wins: 1, Losses: 1},
		WinRate: 0.5,
		Badges:  []string{models.BadgeTitan},
	}, nil
}

func (f *fakeTipsters) Tips(ctx context.Context, userID int64, limit int) ([]*models.Tip, error) {
	f.mu.Lock()
	f.lastLimit = limit
	f.mu.Unlock()
	return []*models.Tip{{ID: 7, UserID: userID, Status: models.TipWon}}, nil
}

func (f *fakeTipsters) SubmitTip(ctx context.Context, in *models.TipInput) (*models.Tip, error) {
	if _, err := tipsters.ValidateTip(in); err != nil {
		return nil, err
	}
	return &models.Tip{ID: 10, UserID: in.UserID, Status: models.TipPending}, nil
}

func (f *fakeTipsters) VerifyTip(ctx context.Context, tipID int64, status models.TipStatus) (*models.Tip, []string, error) {
	if tipID == 404 {
		return nil, nil, fmt.Errorf("tip 404: %w", repository.ErrNotFound)
	}
	if tipID == 409 {
		return nil, nil, fmt.Errorf("%w: tip not pending", tipsters.ErrInvalidTransition)
	}
	return &models.Tip{ID: tipID, Status: status}, []string{models.BadgeHotStreak}, nil
}

func (f *fakeTipsters) Like(ctx context.Context, tipID, userID int64) (bool, error) {
	if tipID == 404 {
		return false, fmt.Errorf("tip 404: %w", repository.ErrNotFound)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int64{tipID, userID}
	if f.liked[key] {
		return false, nil
	}
	f.liked[key] = true
	return true, nil
}

func (f *fakeTipsters) Share(ctx context.Context, tipID, userID int64) (*models.Share, error) {
	return &models.Share{ID: 1, TipID: tipID, UserID: userID}, nil
}

func (f *fakeTipsters) Comment(ctx context.Context, tipID, userID int64, body string) (*models.Comment, error) {
	return &models.Comment{ID: 1, TipID: tipID, UserID: userID, Body: body}, nil
}

func (f *fakeTipsters) Subscribe(ctx context.Context, subscriberID, tipsterID int64) (bool, error) {
	if subscriberID == tipsterID {
		return false, fmt.Errorf("self: %w", repository.ErrConflict)
	}
	return true, nil
}

type reconcileCall struct {
	sports []models.Sport
	opts   reconciler.Options
}

type fakeReconciler struct {
	calls chan reconcileCall
}

func (f *fakeReconciler) Run(ctx context.Context, sports []models.Sport, opts reconciler.Options) []*reconciler.Result {
	f.calls <- reconcileCall{sports: sports, opts: opts}
	return nil
}

type fakeEvaluator struct{}

func (fakeEvaluator) Evaluate(ctx context.Context, userID int64) ([]string, error) {
	if userID == 404 {
		return nil, fmt.Errorf("profile: %w", repository.ErrNotFound)
	}
	return []string{models.BadgeMentor}, nil
}

type fakeEvents struct{}

func (fakeEvents) ListByState(ctx context.Context, sport models.Sport, state models.EventState) ([]*models.Event, error) {
	if sport != models.Football || state != models.StateIn {
		return nil, nil
	}
	return []*models.Event{{ID: 3, Sport: sport, EventID: "401", State: state}}, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(ctx context.Context) error { return f.err }

type testEnv struct {
	router     *gin.Engine
	tipsters   *fakeTipsters
	reconciler *fakeReconciler
	bus        *notify.MemoryBus
}

func newTestEnv(t *testing.T, health HealthChecker) *testEnv {
	t.Helper()
	bus := notify.NewMemoryBus(10)
	t.Cleanup(func() { bus.Close() })

	rec := &fakeReconciler{calls: make(chan reconcileCall, 1)}
	tips := &fakeTipsters{liked: make(map[[2]int64]bool)}
	srv := NewServer(context.Background(), tips, fakeEvents{}, rec, fakeEvaluator{}, bus, health, testSecret)
	return &testEnv{router: srv.Router(), tipsters: tips, reconciler: rec, bus: bus}
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := NewToken(testSecret, "ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, fakeHealth{})
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", nil, "").Code)

	env = newTestEnv(t, fakeHealth{err: errors.New("db down")})
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/health", nil, "").Code)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/users", gin.H{"username": "sharp_sam"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "sharp_sam")

	w = env.do(http.MethodPost, "/api/users", gin.H{"username": "taken"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/users", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTipster(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/users/sharp_sam", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		WinRate float64  `json:"win_rate"`
		Badges  []string `json:"badges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.InDelta(t, 0.5, body.WinRate, 1e-9)
	assert.Equal(t, []string{models.BadgeTitan}, body.Badges)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/users/ghost", nil, "").Code)
}

func TestListTips(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/tipsters/4/tips?limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"UserID":4`)
	assert.Equal(t, 5, env.tipsters.lastLimit)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/tipsters/4/tips?limit=x", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/tipsters/abc/tips", nil, "").Code)
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/events?sport=football", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"401"`)

	w = env.do(http.MethodGet, "/api/events?sport=football&state=post", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/events?sport=football&state=live", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/events?sport=curling", nil, "").Code)
}

func TestSubmitTip(t *testing.T) {
	env := newTestEnv(t, nil)
	tip := gin.H{"user_id": 1, "sport": "golf", "selection": "Scheffler", "odds": "9/2", "confidence": 3}

	w := env.do(http.MethodPost, "/api/tips", tip, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	tip["odds"] = "1.0"
	w = env.do(http.MethodPost, "/api/tips", tip, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tip["odds"] = "2.0"
	tip["sport"] = "curling"
	w = env.do(http.MethodPost, "/api/tips", tip, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEngagementRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/tips/5/likes", gin.H{"user_id": 2}, "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/tips/5/likes", gin.H{"user_id": 2}, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/tips/404/likes", gin.H{"user_id": 2}, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/tips/abc/likes", gin.H{"user_id": 2}, "").Code)

	assert.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/tips/5/shares", gin.H{"user_id": 2}, "").Code)
	assert.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/tips/5/comments", gin.H{"user_id": 2, "body": "nice"}, "").Code)

	assert.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/tipsters/1/subscribe", gin.H{"subscriber_id": 2}, "").Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/tipsters/2/subscribe", gin.H{"subscriber_id": 2}, "").Code)
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	path := "/admin/badges/1/evaluate"

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, path, nil, "").Code)

	wrongKey, err := NewToken("other-secret", "ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, path, nil, wrongKey).Code)

	expired, err := NewToken(testSecret, "ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, path, nil, expired).Code)

	user, err := NewToken(testSecret, "sam", "tipster", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, path, nil, user).Code)

	w := env.do(http.MethodPost, path, nil, adminToken(t))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.BadgeMentor)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/admin/badges/404/evaluate", nil, adminToken(t)).Code)
}

func TestAdminReconcile(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/admin/reconcile?sport=racing&date=2024-06-18&force=true", nil, adminToken(t))
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case call := <-env.reconciler.calls:
		assert.Equal(t, []models.Sport{models.HorseRacing}, call.sports)
		assert.True(t, call.opts.Force)
		assert.Equal(t, time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC), call.opts.Date)
	case <-time.After(time.Second):
		t.Fatal("reconcile was not started")
	}

	w = env.do(http.MethodPost, "/admin/reconcile", nil, adminToken(t))
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case call := <-env.reconciler.calls:
		assert.Empty(t, call.sports, "no sport means every sport")
	case <-time.After(time.Second):
		t.Fatal("reconcile was not started")
	}

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/admin/reconcile?date=18/06/2024", nil, adminToken(t)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/admin/reconcile?sport=cricket", nil, adminToken(t)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/admin/reconcile?force=maybe", nil, adminToken(t)).Code)
}

func TestAdminVerifyTip(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/admin/tips/7/verify", gin.H{"status": "won"}, adminToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.BadgeHotStreak)

	w = env.do(http.MethodPost, "/admin/tips/409/verify", gin.H{"status": "lost"}, adminToken(t))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/admin/tips/404/verify", gin.H{"status": "lost"}, adminToken(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx := context.Background()
	first, err := env.bus.Publish(ctx, notify.BadgeTopic(1), notify.KindBadgeAwarded, gin.H{"badge": "hot_streak"})
	require.NoError(t, err)
	second, err := env.bus.Publish(ctx, notify.BadgeTopic(1), notify.KindBadgeAwarded, gin.H{"badge": "blazing"})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications/badges.1?last_id=" + first.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var got notify.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, second.ID, got.ID, "only notifications after last_id are replayed")

	live, err := env.bus.Publish(ctx, notify.BadgeTopic(1), notify.KindBadgeAwarded, gin.H{"badge": "titan"})
	require.NoError(t, err)
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, live.ID, got.ID)
}

func TestNotificationsRejectsUnknownTopic(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodGet, "/ws/notifications/secrets.1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
