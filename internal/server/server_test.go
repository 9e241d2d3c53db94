package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cablecheck/internal/config"
	"cablecheck/internal/db"
	"cablecheck/internal/domain"
	"cablecheck/internal/engine"
	"cablecheck/internal/migrate"
	"cablecheck/internal/oracle"
	"cablecheck/internal/repo"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*config.Config), authCfg AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	e := engine.New(conn, cfg, oracle.Offline{}, nil)
	_, err = e.SeedDesigns(context.Background(), "tester")
	require.NoError(t, err)
	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: authCfg})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var body HealthResponse
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.SchemaVersion)
}

func TestValidateThenResume(t *testing.T) {
	srv := newTestServer(t, nil, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/validations/validate", map[string]any{
		"user_input": "Validate DESIGN-002",
		"hitl_mode":  true,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var first ValidationResponse
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, "FETCH_DESIGN", first.Route)
	assert.Equal(t, []string{"conductor_class", "insulation_thickness"}, first.MissingAttributes)
	assert.True(t, first.HITLRequired)
	assert.Len(t, first.Validation, 7)
	assert.NotEmpty(t, first.RunID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/validations/validate-with-responses", map[string]any{
		"user_input": "Validate DESIGN-002",
		"hitl_responses": map[string]string{
			"conductor_class":      "Class 2",
			"insulation_thickness": "1.2",
		},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var second ValidationResponse
	require.NoError(t, json.Unmarshal(data, &second))
	assert.Empty(t, second.MissingAttributes)
	assert.False(t, second.HITLRequired)
	assert.Equal(t, "Class 2", second.Attributes["conductor_class"])
	assert.Equal(t, 1.2, second.Attributes["insulation_thickness"])
	for _, item := range second.Validation {
		if item.Field == "conductor_class" || item.Field == "insulation_thickness" {
			assert.NotEqual(t, domain.StatusWarn, item.Status, item.Field)
		}
	}
	assert.Len(t, second.HITLInteractions, 2)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/validations?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedRuns
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)
	seen := []string{page.Items[0].ID}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/validations?limit=1&cursor="+url.QueryEscape(page.NextCursor), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page = paginatedRuns{}
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)
	seen = append(seen, page.Items[0].ID)
	assert.ElementsMatch(t, []string{first.RunID, second.RunID}, seen)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/validations/"+first.RunID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var run domain.Run
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, "validate", run.Kind)
	assert.True(t, run.HITLRequired)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/validations/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestValidateRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, nil, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/validations/validate", map[string]any{"user_input": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/validations/validate-with-responses", map[string]any{
		"user_input": "",
		"responses":  map[string]string{"csa": "16"},
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "bad_request", env.Error.Code)
}

func TestResumeAcceptsResponsesKey(t *testing.T) {
	srv := newTestServer(t, nil, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/validations/validate-with-responses",
		`{"user_input":"Validate DESIGN-002","responses":{"conductor_class":"Class 2","insulation_thickness":"1.2","notes":"thanks"}}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out ValidationResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Empty(t, out.MissingAttributes)
	assert.False(t, out.HITLRequired)
	assert.Equal(t, "Class 2", out.Attributes["conductor_class"])
	assert.Equal(t, 1.2, out.Attributes["insulation_thickness"])
	assert.NotContains(t, out.Attributes, "notes")
	assert.Len(t, out.HITLInteractions, 2)
}

func TestResumeRequestMergesBothKeys(t *testing.T) {
	req := ResumeRequest{
		Responses:     map[string]string{"csa": "16", "voltage": "0.6/1 kV"},
		HITLResponses: map[string]string{"csa": "25"},
	}
	assert.Equal(t, map[string]string{"csa": "25", "voltage": "0.6/1 kV"}, req.answers())
	assert.Empty(t, ResumeRequest{}.answers())
}

func TestStepBudgetIsServerError(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Workflow.StepLimit = 2 }, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/validations/validate", map[string]any{
		"user_input": "Validate DESIGN-001",
	}, nil)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "step_budget_exceeded", env.Error.Code)
	assert.NotContains(t, string(data), "validation\":")
}

func TestDesignCRUD(t *testing.T) {
	srv := newTestServer(t, nil, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/designs", map[string]any{
		"id":                   "design-003",
		"standard":             "IEC 60502-1",
		"csa":                  25,
		"insulation_material":  "XLPE",
		"insulation_thickness": 0.9,
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created domain.Design
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, "DESIGN-003", created.ID)

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/designs", map[string]any{"id": "DESIGN-003"}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/designs", map[string]any{"id": "X-1"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/api/designs/DESIGN-003", `{"voltage":"0.6/1 kV","insulation_thickness":null}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated domain.Design
	require.NoError(t, json.Unmarshal(data, &updated))
	require.NotNil(t, updated.Voltage)
	assert.Equal(t, "0.6/1 kV", *updated.Voltage)
	assert.Nil(t, updated.InsulationThickness)
	require.NotNil(t, updated.Standard)
	assert.Equal(t, "IEC 60502-1", *updated.Standard)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/designs?skip=1&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedDesigns
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "DESIGN-002", page.Items[0].ID)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/api/designs/DESIGN-003", nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/designs/DESIGN-003", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodPut, srv.URL+"/api/designs/DESIGN-003", map[string]any{"csa": 10}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?type=design.deleted", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts paginatedEvents
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "DESIGN-003", evts.Items[0].EntityID)
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, nil, AuthConfig{JWTSecret: secret})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/designs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/designs", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := SignToken(secret, "alice", time.Hour)
	require.NoError(t, err)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/designs", map[string]any{"id": "DESIGN-010"}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	require.NoError(t, srv.Engine.Repo.InsertAPIKey(context.Background(), domain.APIKey{ID: "k1", Subject: "ci", KeyHash: repo.HashAPIKey("ck_live")}))
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/api/designs/DESIGN-010", nil, map[string]string{"X-Api-Key": "ck_live"})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	evts, err := srv.Engine.Repo.ListEvents(context.Background(), 2, 0, "")
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "ci", evts[0].ActorID)
	assert.Equal(t, "alice", evts[1].ActorID)
}

func TestWebhookDeliversSignedEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		sigs     []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		received = append(received, evt)
		sigs = append(sigs, r.Header.Get("X-Cablecheck-Signature"))
		mu.Unlock()
		assert.Equal(t, "sha256="+signPayload("s3", body), r.Header.Get("X-Cablecheck-Signature"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv := newTestServer(t, func(c *config.Config) {
		c.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"design.created"}, Secret: "s3"}}
	}, AuthConfig{})
	ctx := context.Background()
	d := newWebhookDispatcher(srv.Engine, nil)
	d.dispatchAll(ctx)

	_, err := srv.Engine.CreateDesign(ctx, domain.Design{ID: "DESIGN-020"}, "tester")
	require.NoError(t, err)
	require.NoError(t, srv.Engine.DeleteDesign(ctx, "DESIGN-020", "tester"))
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "design.created", received[0].Type)
	assert.Equal(t, "DESIGN-020", received[0].EntityID)
	assert.NotEmpty(t, sigs[0])
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{" "}).match("anything"))
	f := newEventFilter([]string{"validation.completed"})
	assert.True(t, f.match("validation.completed"))
	assert.False(t, f.match("design.created"))
}
