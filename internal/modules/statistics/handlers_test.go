package statistics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewHandler(NewService(logger), logger)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	bodyBytes, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()
	handler(w, req)
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

func TestHandleDescribe(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleDescribe, "/api/statistics/describe", map[string]interface{}{
		"series": []float64{1, 2, 3, 4, 5},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, 5.0, data["count"])
	assert.InDelta(t, 3.0, data["mean"].(float64), 1e-9)
	assert.InDelta(t, 1.0, data["min"].(float64), 1e-9)
	assert.InDelta(t, 5.0, data["max"].(float64), 1e-9)

	percentiles, ok := data["percentiles"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 3.0, percentiles["p50"].(float64), 1e-9)
}

func TestHandleDescribe_EmptySeries(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleDescribe, "/api/statistics/describe", map[string]interface{}{
		"series": []float64{},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, 0.0, data["count"])
	assert.Equal(t, 0.0, data["mean"])
}

func TestHandleDescribe_InvalidBody(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest("POST", "/api/statistics/describe", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	handler.HandleDescribe(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response["error"], "Invalid request body")
}

func TestHandlePercentile(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandlePercentile, "/api/statistics/percentile", map[string]interface{}{
		"series": []float64{10, 20, 30, 40},
		"p":      0.5,
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.InDelta(t, 25.0, data["percentile"].(float64), 1e-9)
	assert.Equal(t, 0.5, data["p"])
	assert.Equal(t, 4.0, data["count"])
}

func TestHandlePercentile_OutOfRange(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandlePercentile, "/api/statistics/percentile", map[string]interface{}{
		"series": []float64{10, 20, 30},
		"p":      1.5,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleReturns(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleReturns, "/api/statistics/returns", map[string]interface{}{
		"prices": []float64{100, 110, 121},
		"method": "simple",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "simple", data["method"])
	returns, ok := data["returns"].([]interface{})
	require.True(t, ok)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0].(float64), 1e-9)
}

func TestHandleReturns_DefaultsToSimple(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleReturns, "/api/statistics/returns", map[string]interface{}{
		"prices": []float64{100, 105},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "simple", data["method"])
}

func TestHandleReturns_UnknownMethod(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleReturns, "/api/statistics/returns", map[string]interface{}{
		"prices": []float64{100, 105},
		"method": "geometric",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response["error"], "geometric")
}

func TestHandleCumulative(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleCumulative, "/api/statistics/cumulative", map[string]interface{}{
		"returns":       []float64{0.10, -0.10},
		"initial_value": 100,
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, 100.0, data["initial_value"])
	values, ok := data["cumulative"].([]interface{})
	require.True(t, ok)
	require.Len(t, values, 3)
	assert.InDelta(t, 110.0, values[1].(float64), 1e-9)
	assert.InDelta(t, 99.0, values[2].(float64), 1e-9)
}

func TestHandleCumulative_DefaultInitialValue(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleCumulative, "/api/statistics/cumulative", map[string]interface{}{
		"returns": []float64{0.10},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, 1.0, data["initial_value"])
}

func TestHandleDrawdowns(t *testing.T) {
	handler := newTestHandler()

	w := postJSON(t, handler.HandleDrawdowns, "/api/statistics/drawdowns", map[string]interface{}{
		"returns": []float64{0.10, -0.05, 0.10},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	drawdowns, ok := data["drawdowns"].([]interface{})
	require.True(t, ok)
	require.Len(t, drawdowns, 4)
	assert.InDelta(t, -0.05, drawdowns[2].(float64), 1e-9)

	summary, ok := data["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, -0.05, summary["max_drawdown"].(float64), 1e-9)
}

func TestRegisterRoutes(t *testing.T) {
	handler := newTestHandler()

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	paths := []string{
		"/statistics/describe",
		"/statistics/percentile",
		"/statistics/returns",
		"/statistics/cumulative",
		"/statistics/drawdowns",
	}

	for _, path := range paths {
		req := httptest.NewRequest("POST", path, strings.NewReader("{}"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.NotEqual(t, http.StatusNotFound, w.Code, "route %s should be registered", path)
	}
}
