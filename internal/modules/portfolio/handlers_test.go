package portfolio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (chi.Router, *testEnv) {
	t.Helper()

	env := newTestEnv(t)
	handler := NewHandler(env.service, zerolog.Nop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, env
}

func doJSON(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	require.Contains(t, response, "data")
	require.Contains(t, response, "metadata")
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "data should be a JSON object")
	return data
}

func TestHandleCreateAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/portfolios", map[string]interface{}{
		"name":             "Core",
		"weights":          map[string]float64{"AAA": 3, "BBB": 1},
		"benchmark_symbol": "SPY",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "Core", data["name"])
	weights, ok := data["weights"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 0.75, weights["AAA"].(float64), 1e-12)
	assert.InDelta(t, 0.25, weights["BBB"].(float64), 1e-12)

	id := int64(data["id"].(float64))
	w = doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d", id), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	assert.Equal(t, "SPY", data["benchmark_symbol"])
}

func TestHandleCreateRejectsInvalidDefinition(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/portfolios", map[string]interface{}{
		"name":    "",
		"weights": map[string]float64{"AAA": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/portfolios/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleInvalidID(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/portfolios/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleList(t *testing.T) {
	router, env := newTestRouter(t)

	_, err := env.service.Create(Definition{Name: "One", Weights: map[string]float64{"AAA": 1}})
	require.NoError(t, err)
	_, err = env.service.Create(Definition{Name: "Two", Weights: map[string]float64{"BBB": 1}})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", "/portfolios", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, 2.0, data["count"])
	portfolios, ok := data["portfolios"].([]interface{})
	require.True(t, ok)
	assert.Len(t, portfolios, 2)
}

func TestHandleUpdateAndDelete(t *testing.T) {
	router, env := newTestRouter(t)

	created, err := env.service.Create(Definition{Name: "Old", Weights: map[string]float64{"AAA": 1}})
	require.NoError(t, err)

	w := doJSON(t, router, "PUT", fmt.Sprintf("/portfolios/%d", created.ID), map[string]interface{}{
		"name":    "New",
		"weights": map[string]float64{"CCC": 1},
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "New", data["name"])

	w = doJSON(t, router, "DELETE", fmt.Sprintf("/portfolios/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleReturnsEndpoint(t *testing.T) {
	router, env := newTestRouter(t)

	seedPrices(t, env.history, "AAA", []float64{100, 110, 121})
	created, err := env.service.Create(Definition{Name: "Grower", Weights: map[string]float64{"AAA": 1}})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/returns?days=30", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, 30.0, data["days"])
	returns, ok := data["returns"].([]interface{})
	require.True(t, ok)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0].(float64), 1e-12)
}

func TestHandleMetricsMissingHistoryIs400(t *testing.T) {
	router, env := newTestRouter(t)

	created, err := env.service.Create(Definition{Name: "Hollow", Weights: map[string]float64{"GHOST": 1}})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/metrics", created.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response["error"], "GHOST")
}

func TestHandleCovarianceInvalidShrinkage(t *testing.T) {
	router, env := newTestRouter(t)

	seedPrices(t, env.history, "AAA", []float64{100, 101, 102})
	created, err := env.service.Create(Definition{Name: "Shrink", Weights: map[string]float64{"AAA": 1}})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/covariance?shrinkage=oops", created.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSnapshotsEmpty(t *testing.T) {
	router, env := newTestRouter(t)

	created, err := env.service.Create(Definition{Name: "Fresh", Weights: map[string]float64{"AAA": 1}})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/snapshots", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, 0.0, data["count"])
}

func TestHandleRiskContributionEndpoint(t *testing.T) {
	router, env := newTestRouter(t)

	seedPrices(t, env.history, "AAA", []float64{100, 104, 98, 105, 99})
	seedPrices(t, env.history, "BBB", []float64{50, 50.5, 49.8, 50.6, 50.1})
	created, err := env.service.Create(Definition{
		Name:    "Split",
		Weights: map[string]float64{"AAA": 0.5, "BBB": 0.5},
	})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", fmt.Sprintf("/portfolios/%d/risk-contribution?days=30", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	contributions, ok := data["contributions"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, contributions, 2)
}
