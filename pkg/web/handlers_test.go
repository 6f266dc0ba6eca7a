package web_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence/file"
	"github.com/docstream/queryengine/pkg/services"
	"github.com/docstream/queryengine/pkg/web"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir(),
		[]models.Field{{ID: 4, Name: "InvoiceDate", TemplateID: 1}},
		[]models.Template{{ID: 1, Name: "Invoice", Active: true}},
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := services.NewDeletionGuard(store, nil, logger)

	handlers := web.NewAPIHandlers(
		services.NewQueryService(store, nil, logger),
		services.NewConstantService(store, nil, guard, logger),
		services.NewOutputService(store, nil, guard, logger),
		services.NewCanvasService(store, nil, logger),
		services.NewActivationService(store, nil, logger),
		guard,
		services.NewUsageService(store, logger),
		store,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-User-Name", "Pat Editor")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}

	return resp, decoded
}

func createQuery(t *testing.T, app *fiber.App, name string) string {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/queries", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	id, ok := body["id"].(string)
	require.True(t, ok)

	return id
}

func TestCreateQuery(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/queries", `{"name":"Invoice Totals","priority":7}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, "Invoice Totals", body["name"])
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, float64(7), body["priority"])
	assert.Equal(t, "user-1", body["created_by"])
}

func TestCreateQueryRequiresIdentity(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/queries", strings.NewReader(`{"name":"Invoice Totals"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateQueryValidatesName(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/queries", `{"name":"ab"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetQueryNotFound(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/queries/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["type"])
}

func TestGuardedConstantDeleteOverHTTP(t *testing.T) {
	app := newTestApp(t)

	// Global constant.
	resp, constant := doJSON(t, app, http.MethodPost, "/constants",
		`{"name":"TAX_RATE","data_type":"number","is_global":true,"default_value":"0.2"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	constantID := strconv.Itoa(int(constant["id"].(float64)))
	queryID := createQuery(t, app, "Invoice Totals")

	// Reference it from a formula and a canvas node.
	resp, output := doJSON(t, app, http.MethodPost, "/queries/"+queryID+"/outputs",
		`{"name":"Total","data_type":"number","formula":"FIELD(4) * CONST(`+constantID+`)"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPut, "/queries/"+queryID+"/canvas",
		`{"zoom":1,"nodes":{"n1":{"constantId":`+constantID+`}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Delete is rejected with both locations and the remediation steps.
	resp, rejection := doJSON(t, app, http.MethodDelete, "/constants/"+constantID, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "GLOBAL_CONSTANT_IN_USE", rejection["code"])
	assert.Equal(t, "entity_in_use", rejection["type"])
	assert.Len(t, rejection["locations"], 2)
	assert.NotEmpty(t, rejection["required_actions"])

	// Remove both references.
	outputID := strconv.Itoa(int(output["id"].(float64)))
	version := strconv.Itoa(int(output["version"].(float64)))
	resp, _ = doJSON(t, app, http.MethodPost, "/queries/"+queryID+"/outputs",
		`{"id":`+outputID+`,"name":"Total","data_type":"number","formula":"FIELD(4)","version":`+version+`}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPut, "/queries/"+queryID+"/canvas", `{"zoom":1,"nodes":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Now it goes through.
	resp, request := doJSON(t, app, http.MethodDelete, "/constants/"+constantID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "applied", request["state"])
}

func TestConstantVersionConflictOverHTTP(t *testing.T) {
	app := newTestApp(t)

	resp, constant := doJSON(t, app, http.MethodPost, "/constants",
		`{"name":"TAX_RATE","data_type":"number","is_global":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	id := strconv.Itoa(int(constant["id"].(float64)))

	resp, _ = doJSON(t, app, http.MethodPost, "/constants",
		`{"id":`+id+`,"name":"TAX_RATE","data_type":"number","is_global":true,"version":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Stale version.
	resp, problem := doJSON(t, app, http.MethodPost, "/constants",
		`{"id":`+id+`,"name":"TAX_RATE","data_type":"number","is_global":true,"version":1}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "version_conflict", problem["type"])
}

func TestCanvasRoundTripOverHTTP(t *testing.T) {
	app := newTestApp(t)
	queryID := createQuery(t, app, "Invoice Totals")

	raw := `{"zoom":0.75,"position":{"x":3,"y":9},"nodes":{"n1":{"fieldId":4,"label":"Date"}}}`

	resp, _ := doJSON(t, app, http.MethodPut, "/queries/"+queryID+"/canvas", raw)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, record := doJSON(t, app, http.MethodGet, "/queries/"+queryID+"/canvas", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, raw, record["raw"])
	assert.Equal(t, "user-1", record["updated_by"])
}

func TestCanvasRejectsGarbageOverHTTP(t *testing.T) {
	app := newTestApp(t)
	queryID := createQuery(t, app, "Invoice Totals")

	resp, problem := doJSON(t, app, http.MethodPut, "/queries/"+queryID+"/canvas", `{"nodes":{"n1":"garbage"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "canvas_unreadable", problem["type"])
}

func TestActivationOverHTTP(t *testing.T) {
	app := newTestApp(t)

	first := createQuery(t, app, "Invoice Totals")
	second := createQuery(t, app, "Invoice Totals")

	resp, result := doJSON(t, app, http.MethodPost, "/queries/"+first+"/activate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, result["is_valid"])
	assert.NotEmpty(t, result["warnings"], "a query without outputs activates with a warning")

	// Same name against an active query fails validation, body carries the
	// errors.
	resp, result = doJSON(t, app, http.MethodPost, "/queries/"+second+"/activate", "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, result["is_valid"])
	assert.NotEmpty(t, result["errors"])

	// The loser is still a draft.
	resp, query := doJSON(t, app, http.MethodGet, "/queries/"+second, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "draft", query["status"])
}

func TestUsageEndpoint(t *testing.T) {
	app := newTestApp(t)
	queryID := createQuery(t, app, "Invoice Totals")

	resp, _ := doJSON(t, app, http.MethodPost, "/queries/"+queryID+"/outputs",
		`{"name":"Total","data_type":"number","formula":"FIELD(4)"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, report := doJSON(t, app, http.MethodGet, "/usage/field/4", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, report["in_use"])
	assert.Len(t, report["locations"], 1)

	resp, _ = doJSON(t, app, http.MethodGet, "/usage/widget/4", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFieldDeletionCheckEndpoint(t *testing.T) {
	app := newTestApp(t)
	queryID := createQuery(t, app, "Invoice Totals")

	resp, request := doJSON(t, app, http.MethodPost, "/fields/4/deletion-check", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", request["state"])

	doJSON(t, app, http.MethodPost, "/queries/"+queryID+"/outputs",
		`{"name":"Total","data_type":"number","formula":"FIELD(4)"}`)

	resp, rejection := doJSON(t, app, http.MethodPost, "/fields/4/deletion-check", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "FIELD_IN_USE", rejection["code"])

	resp, _ = doJSON(t, app, http.MethodPost, "/fields/999/deletion-check", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteOutputGuardOverHTTP(t *testing.T) {
	app := newTestApp(t)
	queryID := createQuery(t, app, "Invoice Totals")

	resp, subtotal := doJSON(t, app, http.MethodPost, "/queries/"+queryID+"/outputs",
		`{"name":"Subtotal","data_type":"number","formula":"FIELD(4)"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	subtotalID := strconv.Itoa(int(subtotal["id"].(float64)))

	resp, _ = doJSON(t, app, http.MethodPost, "/queries/"+queryID+"/outputs",
		`{"name":"Total","data_type":"number","formula":"OUTPUT(`+subtotalID+`) * 1.2"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, rejection := doJSON(t, app, http.MethodDelete, "/queries/"+queryID+"/outputs/"+subtotalID, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "OUTPUT_IN_USE", rejection["code"])
}
