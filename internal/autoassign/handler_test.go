package autoassign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerStore struct {
	*fakeStore
	replaced []ConfigEntry
	reset    []int64
	purged   int
	paged    [2]int
}

func (h *handlerStore) PurgeHistory(context.Context, int) (int, error) {
	h.purged++
	return 12, nil
}

func (h *handlerStore) ListHistory(_ context.Context, _ string, limit, offset int) ([]HistoryRecord, error) {
	h.paged = [2]int{limit, offset}
	return []HistoryRecord{}, nil
}

func (h *handlerStore) ReplaceSourceConfig(_ context.Context, _ string, entries []ConfigEntry, _ bool) error {
	h.replaced = entries
	return nil
}

func (h *handlerStore) ResetCounts(_ context.Context, ids []int64) (int64, error) {
	h.reset = ids
	return int64(len(ids)), nil
}

func newTestEngine(t *testing.T, store Store, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tracker := NewTracker(NewMemoryStatusStore(), 5*time.Minute)
	svc := NewService(store, tracker, nil, nil, logger.Discard(), Options{BatchSize: 10})
	mod := NewModule(svc, validator.New(), token, logger.Discard())

	engine := gin.New()
	api := engine.Group("/api")
	mod.RegisterRoutes(&apphttp.RouterContext{
		Engine:    engine,
		API:       api,
		Protected: api.Group(""),
		Admin:     api.Group("/admin"),
	})
	return engine
}

func TestHandleTrigger(t *testing.T) {
	store := newFakeStore()
	store.agents = []*fakeAgent{{Agent: Agent{ID: 1, Name: "Asha"}, priority: 1, active: true, sources: []string{"web"}}}
	store.addLeads("web", "W1")
	engine := newTestEngine(t, store, "")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auto_assign_trigger", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var res PassResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.TotalAssigned)
	assert.Equal(t, TriggerHTTP, res.Trigger)

	// A second call finds nothing left and still succeeds.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auto_assign_trigger", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 0, res.TotalAssigned)
	assert.Equal(t, StatusNoUnassigned, res.Results[0].Status)
}

func TestHandleTriggerRequiresToken(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), "s3cret")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auto_assign_trigger", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auto_assign_trigger", nil)
	req.Header.Set(TriggerHeader, "s3cret")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auto_assign_trigger?token=s3cret", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleTriggerFailedSourceReturns500(t *testing.T) {
	store := newFakeStore()
	store.agents = []*fakeAgent{{Agent: Agent{ID: 1, Name: "Asha"}, priority: 1, active: true, sources: []string{"web"}}}
	store.failOn = "web"
	engine := newTestEngine(t, store, "")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auto_assign_trigger", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}

func TestHandleReplaceConfigDefaultsPriority(t *testing.T) {
	store := &handlerStore{fakeStore: newFakeStore()}
	engine := newTestEngine(t, store, "")

	body := `{"agents":[{"cre_id":3},{"cre_id":4,"priority":2}],"reset_counts":true}`
	req := httptest.NewRequest(http.MethodPut, "/api/admin/auto_assign/configs/web", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, store.replaced, 2)
	assert.Equal(t, 1, store.replaced[0].Priority)
	assert.Equal(t, 2, store.replaced[1].Priority)
}

func TestHandleReplaceConfigValidation(t *testing.T) {
	engine := newTestEngine(t, &handlerStore{fakeStore: newFakeStore()}, "")

	req := httptest.NewRequest(http.MethodPut, "/api/admin/auto_assign/configs/web", strings.NewReader(`{"agents":[{"cre_id":0}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleResetCountsEmptyBody(t *testing.T) {
	store := &handlerStore{fakeStore: newFakeStore()}
	engine := newTestEngine(t, store, "")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/auto_assign/reset_counts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, store.reset)
}

func TestHandleSystemHealthAfterPass(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), "")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auto_assign_trigger", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/auto_assign/system/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var h Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	// Never marked started: not running, but a fresh run.
	assert.Equal(t, 70, h.Score)
	assert.Equal(t, HealthWarning, h.Status)
}

func TestHandlePurgeHistory(t *testing.T) {
	store := &handlerStore{fakeStore: newFakeStore()}
	engine := newTestEngine(t, store, "")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/auto_assign/history/purge", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.purged)
	assert.JSONEq(t, `{"success":true,"deleted":12}`, w.Body.String())
}

func TestHandleHistoryEchoesClampedPaging(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 100, 0},
		{"in range", "?limit=25&offset=50", 25, 50},
		{"zero limit", "?limit=0", 100, 0},
		{"limit too large", "?limit=9000&offset=5", 100, 5},
		{"negative offset", "?limit=10&offset=-3", 10, 0},
		{"garbage", "?limit=abc&offset=xyz", 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &handlerStore{fakeStore: newFakeStore()}
			engine := newTestEngine(t, store, "")

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/auto_assign/history"+tt.query, nil))
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Limit  int `json:"limit"`
				Offset int `json:"offset"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantLimit, body.Limit)
			assert.Equal(t, tt.wantOffset, body.Offset)
			assert.Equal(t, [2]int{tt.wantLimit, tt.wantOffset}, store.paged)
		})
	}
}
