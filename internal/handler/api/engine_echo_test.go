package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/usecase"
	xhttp "AutoTrade/pkg/http"
	xlogger "AutoTrade/pkg/logger"
)

type stubLadders struct{ book models.LadderBook }

func (s stubLadders) LoadBook(context.Context, models.Country) (models.LadderBook, error) {
	return s.book, nil
}

func (s stubLadders) Ladder(_ context.Context, symbol string) (*models.Ladder, error) {
	return s.book[symbol], nil
}

func (s stubLadders) UnprocessedFills(_ context.Context, f []models.Fill) ([]models.Fill, error) {
	return f, nil
}

func (s stubLadders) SaveBook(context.Context, models.Country, models.LadderBook, []models.Fill) error {
	return nil
}

type stubAssignments map[string]models.Category

func (s stubAssignments) Assignments(context.Context) (map[string]models.Category, error) {
	return s, nil
}

func (s stubAssignments) ReplaceAssignments(context.Context, map[string]models.Category) error {
	return nil
}

type stubStarter struct {
	err    error
	market models.Country
	dry    bool
}

func (s *stubStarter) Start(_ context.Context, market models.Country, dryRun bool) (string, error) {
	s.market, s.dry = market, dryRun
	return "run-1", s.err
}

func newTestServer(starter *stubStarter) *echo.Echo {
	book := models.LadderBook{}
	book.Ladder("005930", models.KOR).Add(decimal.NewFromInt(77000), 5)
	h := NewEngineEchoHandler(context.Background(), xlogger.Nop(), stubLadders{book: book},
		stubAssignments{"KO": models.Dividend, "AAPL": models.Growth}, starter)
	return xhttp.NewServer(h, xlogger.Nop()).Echo()
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLadderFoundAndMissing(t *testing.T) {
	e := newTestServer(&stubStarter{})

	rec := do(e, http.MethodGet, "/api/ladders/005930", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"005930"`)

	rec = do(e, http.MethodGet, "/api/ladders/000660", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignmentsSorted(t *testing.T) {
	rec := do(newTestServer(&stubStarter{}), http.MethodGet, "/api/assignments", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Rows  []assignmentRow `json:"rows"`
			Total int64           `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Data.Total)
	assert.Equal(t, "AAPL", resp.Data.Rows[0].Symbol)
}

func TestSizingPreviewAppliesDefaults(t *testing.T) {
	body := `{"atr":100,"adtv":100000000,"close":10000,"risk_amount":500000,"risk_k":1.5,"adtv_limit_ratio":0.05,"max_position_weight":1,"base_risk_pct":0.0001}`
	rec := do(newTestServer(&stubStarter{}), http.MethodPost, "/api/sizing/preview", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data sizingPreview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(500), resp.Data.Shares)
}

func TestSizingPreviewRejectsMissingFields(t *testing.T) {
	rec := do(newTestServer(&stubStarter{}), http.MethodPost, "/api/sizing/preview", `{"atr":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Data []xhttp.ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data)
}

func TestStartSession(t *testing.T) {
	s := &stubStarter{}
	rec := do(newTestServer(s), http.MethodPost, "/api/sessions/usa", `{"dry_run":true}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
	assert.Equal(t, models.USA, s.market)
	assert.True(t, s.dry)
}

func TestStartSessionConflictAndBadMarket(t *testing.T) {
	e := newTestServer(&stubStarter{err: usecase.ErrSessionBusy})

	rec := do(e, http.MethodPost, "/api/sessions/KOR", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, http.MethodPost, "/api/sessions/XX", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := do(newTestServer(&stubStarter{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
