package approval

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuth stands in for JWT auth: identity comes from test headers.
func fakeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(httpkit.ContextUserIDKey, id)
			c.Set(httpkit.ContextNameKey, c.GetHeader("X-Test-Name"))
			c.Set(httpkit.ContextBranchKey, c.GetHeader("X-Test-Branch"))
			c.Set(httpkit.ContextRolesKey, []string{c.GetHeader("X-Test-Role")})
		}
		c.Next()
	}
}

func newApprovalEngine(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := engine.Group("/api")
	protected := api.Group("")
	protected.Use(fakeAuth())
	NewModule(newTestService(store), validator.New()).RegisterRoutes(&apphttp.RouterContext{
		Engine:    engine,
		API:       api,
		Protected: protected,
	})
	return engine
}

func do(engine *gin.Engine, method, path, body string, actor Actor, role string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Test-User", actor.ID)
	req.Header.Set("X-Test-Name", actor.Name)
	req.Header.Set("X-Test-Branch", actor.Branch)
	req.Header.Set("X-Test-Role", role)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestSubmitRouteRejectsSevenDigitOrderID(t *testing.T) {
	store := newMemStore(pendingLead("L1"))
	engine := newApprovalEngine(store)

	w := do(engine, http.MethodPost, "/api/submit_for_approval",
		`{"source_table":"ps_followup","lead_id":"L1","lead_status":"Booked","order_id":"1234567"}`, psPriya, httpkit.RolePS)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "8 digits")
	assert.Equal(t, StatusPending, store.lead(SourcePSFollowup, "L1").ApprovalStatus)
}

func TestApproveRouteRequiresBranchHead(t *testing.T) {
	lead := pendingLead("L1")
	lead.ApprovalStatus = StatusWaiting
	engine := newApprovalEngine(newMemStore(lead))

	body := `{"source_table":"ps_followup","lead_id":"L1"}`
	w := do(engine, http.MethodPost, "/api/bh_approve_lead", body, psPriya, httpkit.RolePS)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(engine, http.MethodPost, "/api/bh_approve_lead", body, bhMumbai, httpkit.RoleBranchHead)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(engine, http.MethodPost, "/api/bh_approve_lead", body, bhPune, httpkit.RoleBranchHead)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Lead    Lead `json:"lead"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, FinalStatusWon, resp.Lead.FinalStatus)

	w = do(engine, http.MethodPost, "/api/bh_approve_lead", body, bhPune, httpkit.RoleBranchHead)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRejectRouteRequiresRemarks(t *testing.T) {
	lead := pendingLead("L1")
	lead.ApprovalStatus = StatusWaiting
	engine := newApprovalEngine(newMemStore(lead))

	w := do(engine, http.MethodPost, "/api/bh_reject_lead", `{"source_table":"ps_followup","lead_id":"L1"}`, bhPune, httpkit.RoleBranchHead)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(engine, http.MethodPost, "/api/bh_reject_lead", `{"source_table":"ps_followup","lead_id":"L1","remarks":"wrong order"}`, bhPune, httpkit.RoleBranchHead)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(engine, http.MethodGet, "/api/ps_rejected_leads", "", psPriya, httpkit.RolePS)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestLeadDetailsValidatesQuery(t *testing.T) {
	engine := newApprovalEngine(newMemStore(pendingLead("L1")))

	w := do(engine, http.MethodGet, "/api/bh_lead_details?source_table=orders&lead_id=L1", "", bhPune, httpkit.RoleBranchHead)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(engine, http.MethodGet, "/api/bh_lead_details?source_table=ps_followup&lead_id=missing", "", bhPune, httpkit.RoleBranchHead)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(engine, http.MethodGet, "/api/bh_lead_details?source_table=ps_followup&lead_id=L1", "", bhPune, httpkit.RoleBranchHead)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDecisionRouteRejectsUnknownTable(t *testing.T) {
	engine := newApprovalEngine(newMemStore(pendingLead("L1")))

	w := do(engine, http.MethodPost, "/api/bh_approve_lead", `{"source_table":"orders","lead_id":"L1"}`, bhPune, httpkit.RoleBranchHead)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp httpkit.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation error", resp.Error)
	assert.Equal(t, map[string]any{"source_table": "source_table"}, resp.Details)
}

func TestReviewerRoutesAuditRoleDenials(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		action string
		leadID string
	}{
		{"approve", http.MethodPost, "/api/bh_approve_lead", `{"source_table":"ps_followup","lead_id":"L1"}`, ActionApprove, "L1"},
		{"reject", http.MethodPost, "/api/bh_reject_lead", `{"source_table":"ps_followup","lead_id":"L1","remarks":"no"}`, ActionReject, "L1"},
		{"details", http.MethodGet, "/api/bh_lead_details?source_table=ps_followup&lead_id=L1", "", ActionView, "L1"},
		{"list", http.MethodGet, "/api/bh_approval_leads", "", ActionView, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := pendingLead("L1")
			lead.ApprovalStatus = StatusWaiting
			store := newMemStore(lead)
			engine := newApprovalEngine(store)

			w := do(engine, tt.method, tt.path, tt.body, psPriya, httpkit.RolePS)
			assert.Equal(t, http.StatusForbidden, w.Code)

			require.Len(t, store.audits, 1)
			audit := store.audits[0]
			assert.Equal(t, OutcomeDenied, audit.Outcome)
			assert.Equal(t, tt.action, audit.Action)
			assert.Equal(t, tt.leadID, audit.LeadID)
			assert.Equal(t, psPriya.ID, audit.Actor.ID)
			assert.Equal(t, StatusWaiting, store.lead(SourcePSFollowup, "L1").ApprovalStatus)
		})
	}
}
