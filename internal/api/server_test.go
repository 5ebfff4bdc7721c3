package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanqi-assessment-server/internal/catalog"
	"github.com/yuanqi-assessment-server/internal/database"
	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/metrics"
	"github.com/yuanqi-assessment-server/internal/repository"
	"github.com/yuanqi-assessment-server/internal/service"
)

const adminToken = "test-admin-token"

type staticConfig struct {
	cfg *domain.Config
}

func (s staticConfig) GetConfig() *domain.Config                 { return s.cfg }
func (s staticConfig) GetServerConfig() *domain.ServerConfig     { return &s.cfg.Server }
func (s staticConfig) GetStorageConfig() *domain.StorageConfig   { return &s.cfg.Storage }
func (s staticConfig) GetDatabaseConfig() *domain.DatabaseConfig { return &s.cfg.Database }
func (s staticConfig) GetCacheConfig() *domain.CacheConfig       { return &s.cfg.Cache }
func (s staticConfig) Reload() error                             { return nil }
func (s staticConfig) Validate() error                           { return nil }
func (s staticConfig) GetDatabaseConnectionString() string       { return "" }
func (s staticConfig) IsProduction() bool                        { return false }
func (s staticConfig) IsDevelopment() bool                       { return true }

type testEnv struct {
	server  *Server
	hub     *EventHub
	symptom *domain.SymptomDefinition
}

func newTestEnv(t *testing.T, rps float64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	store, err := catalog.NewSQLiteStore(db, logger)
	require.NoError(t, err)
	repo, err := repository.NewSQLiteRepository(db, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	symptom := &domain.SymptomDefinition{
		Name:     "头晕",
		Organ:    "肝",
		Causes:   []domain.CauseRef{{Label: "气血"}},
		Warnings: []string{"注意休息"},
		IsActive: true,
	}
	require.NoError(t, store.Save(context.Background(), symptom))

	m := metrics.New()
	hub := NewEventHub(logger, m.SetSubscribers)
	lookup := catalog.NewCachedLookup(store, logger)
	assessments := service.NewAssessmentService(repo, lookup, logger,
		service.WithEventPublisher(hub), service.WithMetrics(m))
	catalogSvc := service.NewCatalogService(store, lookup)

	cfg := &domain.Config{
		RateLimit: domain.RateLimitConfig{RequestsPerSecond: rps, Burst: 5},
		Admin:     domain.AdminConfig{Token: adminToken},
		Logging:   domain.LoggingConfig{Level: "error"},
	}
	server := NewServer(staticConfig{cfg: cfg}, assessments, catalogSvc, logger,
		WithEventHub(hub), WithMetrics(m), WithVersion("test"))
	return &testEnv{server: server, hub: hub, symptom: symptom}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var env Envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	m, ok := env.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", env.Data)
	return m
}

func (e *testEnv) createBody() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   3,
		"real_name": "王五",
		"age":       30,
		"gender":    "male",
		"symptoms": []map[string]interface{}{
			{"symptom_id": e.symptom.ID, "symptom_name": "头晕", "intensity": 12, "side": "左侧"},
			{"symptom_name": "乏力", "intensity": 5, "cause_labels": []string{"营养"}},
		},
	}
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, 0)
	w, body := env.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, body.Code)
	assert.Equal(t, "服务正常运行", body.Message)
	assert.Equal(t, "ok", dataMap(t, body)["storage"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestServer_AssessmentLifecycle(t *testing.T) {
	env := newTestEnv(t, 0)

	w, body := env.do(t, http.MethodPost, "/api/assessments", env.createBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "评估创建成功", body.Message)
	created := dataMap(t, body)
	assert.Equal(t, string(domain.StatusAnalyzed), created["status"])
	assert.True(t, strings.HasPrefix(created["assessment_code"].(string), "YA"))
	id := int64(created["assessment_id"].(float64))

	analysis := created["analysis"].(map[string]interface{})
	causes := analysis["cause_analysis"].(map[string]interface{})
	assert.Equal(t, float64(12), causes["气血"], "cause labels filled from the catalog")

	w, body = env.do(t, http.MethodGet, "/api/assessments/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := dataMap(t, body)
	assessment := detail["assessment"].(map[string]interface{})
	assert.Equal(t, float64(17), assessment["total_score"])
	assert.Equal(t, 8.5, assessment["avg_score"])
	assert.Len(t, assessment["symptoms"], 2)
	assert.NotNil(t, detail["analysis"])

	w, _ = env.do(t, http.MethodPost, "/api/assessments/"+itoa(id)+"/analyze", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodPost, "/api/assessments/"+itoa(id)+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(domain.StatusCompleted), dataMap(t, body)["status"])

	w, body = env.do(t, http.MethodPost, "/api/assessments/"+itoa(id)+"/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, domain.CodeInvalidStatus, body.Error.Code)

	w, body = env.do(t, http.MethodGet, "/api/assessments?user_id=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := dataMap(t, body)
	assert.Len(t, list["assessments"], 1)
	pagination := list["pagination"].(map[string]interface{})
	assert.Equal(t, float64(20), pagination["limit"])
	assert.Equal(t, float64(1), pagination["total"])
}

func TestServer_CreateValidation(t *testing.T) {
	env := newTestEnv(t, 0)

	body := env.createBody()
	delete(body, "real_name")
	w, resp := env.do(t, http.MethodPost, "/api/assessments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "缺少必填字段", resp.Message)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeInvalidInput, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)

	body = env.createBody()
	body["symptoms"] = []interface{}{}
	w, resp = env.do(t, http.MethodPost, "/api/assessments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "至少选择一个症状", resp.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/assessments", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_NotFoundAndBadIDs(t *testing.T) {
	env := newTestEnv(t, 0)

	w, resp := env.do(t, http.MethodGet, "/api/assessments/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeNotFound, resp.Error.Code)

	w, _ = env.do(t, http.MethodGet, "/api/assessments/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/symptoms/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = env.do(t, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "接口不存在", resp.Message)

	w, _ = env.do(t, http.MethodGet, "/api/assessments?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/assessments?page=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_StatelessAnalyze(t *testing.T) {
	env := newTestEnv(t, 0)

	w, resp := env.do(t, http.MethodPost, "/api/analyze", map[string]interface{}{
		"symptoms": []map[string]interface{}{
			{"symptom_id": env.symptom.ID, "symptom_name": "头晕", "intensity": 9},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Contains(t, data, "overall_health_score")
	assert.Contains(t, data, "recommendations")

	w, resp = env.do(t, http.MethodPost, "/api/analyze", map[string]interface{}{"symptoms": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeNoSymptomData, resp.Error.Code)
}

func TestServer_Compare(t *testing.T) {
	env := newTestEnv(t, 0)

	var ids []int64
	for i := 0; i < 2; i++ {
		w, resp := env.do(t, http.MethodPost, "/api/assessments", env.createBody())
		require.Equal(t, http.StatusOK, w.Code)
		ids = append(ids, int64(dataMap(t, resp)["assessment_id"].(float64)))
	}

	w, resp := env.do(t, http.MethodPost, "/api/assessments/compare", map[string]interface{}{"assessment_ids": ids})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, string(domain.TrendStable), data["health_trend"])

	tests := []struct {
		name    string
		ids     []int64
		status  int
		message string
	}{
		{"one id", ids[:1], http.StatusBadRequest, "至少需要两个评估ID进行对比"},
		{"three ids", append(append([]int64{}, ids...), 77), http.StatusBadRequest, "最多支持两个评估对比"},
		{"missing", []int64{ids[0], 9999}, http.StatusNotFound, "记录不存在"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, http.MethodPost, "/api/assessments/compare", map[string]interface{}{"assessment_ids": tt.ids})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestServer_Symptoms(t *testing.T) {
	env := newTestEnv(t, 0)

	w, resp := env.do(t, http.MethodGet, "/api/symptoms?organ=肝", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Len(t, data["symptoms"], 1)
	assert.Equal(t, float64(50), data["pagination"].(map[string]interface{})["limit"])

	w, resp = env.do(t, http.MethodGet, "/api/symptoms/"+itoa(env.symptom.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "头晕", dataMap(t, resp)["name"])

	w, _ = env.do(t, http.MethodGet, "/api/symptoms/424242", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_AdminRoutes(t *testing.T) {
	env := newTestEnv(t, 0)
	_, _ = env.do(t, http.MethodPost, "/api/assessments", env.createBody())

	w, _ := env.do(t, http.MethodGet, "/api/admin/assessments", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/admin/assessments?start_date=2000-01-01&status=analyzed", nil, "X-Admin-Token", adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, resp)
	assert.Len(t, data["assessments"], 1)
	stats := data["statistics"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_assessments"])
	assert.Equal(t, float64(1), stats["completed_reports"])
	assert.Equal(t, float64(50), data["pagination"].(map[string]interface{})["limit"])

	w, _ = env.do(t, http.MethodGet, "/api/admin/assessments?end_date=yesterday", nil, "Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_RateLimit(t *testing.T) {
	env := newTestEnv(t, 0.001)

	statuses := make(map[int]int)
	for i := 0; i < 7; i++ {
		w, _ := env.do(t, http.MethodGet, "/api/symptoms", nil)
		statuses[w.Code]++
	}
	assert.Equal(t, 5, statuses[http.StatusOK])
	assert.Equal(t, 2, statuses[http.StatusTooManyRequests])
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, 0)
	_, _ = env.do(t, http.MethodGet, "/api/symptoms", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `yuanqi_http_requests_total{method="GET",route="/api/symptoms",status="200"} 1`)
}

func TestServer_EventFeed(t *testing.T) {
	env := newTestEnv(t, 0)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/events"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+adminToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, body := env.do(t, http.MethodPost, "/api/assessments", env.createBody())
	id := dataMap(t, body)["assessment_id"].(float64)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event service.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, service.EventAnalyzed, event.Type)
	assert.Equal(t, int64(id), event.AssessmentID)
	assert.Equal(t, domain.StatusAnalyzed, event.Status)

	env.hub.Close()
	assert.Equal(t, 0, env.hub.Subscribers())
}

func TestParseDate(t *testing.T) {
	from, err := parseDate("2025-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *from)

	to, err := parseDate("2025-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 23, 59, 59, 999999999, time.UTC), *to)

	at, err := parseDate("2025-03-01T10:00:00+08:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC), *at)

	none, err := parseDate(" ", false)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = parseDate("03/01/2025", false)
	assert.Error(t, err)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
