// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/isogrid/internal/calib"
	"github.com/mlnoga/isogrid/internal/grid"
	"github.com/mlnoga/isogrid/internal/query"
)

func testServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a := grid.NewArtifact(grid.Axes{
		Mass:   []float64{0.5, 1.0, 1.5},
		LogAge: []float64{9.0, 9.3},
		FeH:    []float64{0.0},
	}, []string{"G", "RP"})
	a.PhotSys = "gaiaEDR3"
	a.BuildID = "test-build"
	copy(a.Row("G", 0, 0), []float64{4.8, 4.0, 3.2})
	copy(a.Row("RP", 0, 0), []float64{4.3, 3.5, 2.7})

	q, err := query.New(a)
	require.NoError(t, err)
	log := logrus.New()
	log.Out = io.Discard
	return New(q, calib.New(map[string]float64{"G": 0.12, "RP": 0.19}), log).Router()
}

func do(t *testing.T, r http.Handler, method, target string, body []byte) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body %s", w.Body.String())
	return w.Code, out
}

func TestPing(t *testing.T) {
	code, out := do(t, testServer(t), http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", out["message"])
}

func TestGrid(t *testing.T) {
	code, out := do(t, testServer(t), http.MethodGet, "/api/v1/grid", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "gaiaEDR3", out["photSys"])
	assert.Equal(t, "test-build", out["buildId"])
	assert.Equal(t, []any{"G", "RP"}, out["bands"])
	axes := out["axes"].(map[string]any)
	assert.Equal(t, []any{0.5, 1.0, 1.5}, axes["masses"])
	coverage := out["coverage"].(map[string]any)
	assert.InDelta(t, 0.5, coverage["G"], 1e-12)
	assert.InDelta(t, 0.12, out["calibration"].(map[string]any)["G"], 1e-12)
}

func TestGetMagnitudes(t *testing.T) {
	r := testServer(t)

	code, out := do(t, r, http.MethodGet, "/api/v1/magnitudes?mass=1.0&logage=9.0&feh=0", nil)
	require.Equal(t, http.StatusOK, code)
	mags := out["magnitudes"].(map[string]any)
	assert.InDelta(t, 4.12, mags["G"], 1e-9)
	assert.InDelta(t, 3.69, mags["RP"], 1e-9)
	assert.Equal(t, true, out["calibrated"])

	code, out = do(t, r, http.MethodGet, "/api/v1/magnitudes?mass=1.0&age=1e9&feh=0&raw=1", nil)
	require.Equal(t, http.StatusOK, code)
	mags = out["magnitudes"].(map[string]any)
	assert.InDelta(t, 4.0, mags["G"], 1e-9)
	assert.Equal(t, false, out["calibrated"])

	// undefined row and out of range coordinates give null for every band
	for _, target := range []string{
		"/api/v1/magnitudes?mass=1.0&logage=9.3&feh=0",
		"/api/v1/magnitudes?mass=5.0&logage=9.0&feh=0",
	} {
		code, out = do(t, r, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, code)
		mags = out["magnitudes"].(map[string]any)
		require.Len(t, mags, 2)
		for b, v := range mags {
			assert.Nil(t, v, "%s: band %s", target, b)
		}
	}
}

func TestGetMagnitudesBadRequest(t *testing.T) {
	r := testServer(t)
	for _, target := range []string{
		"/api/v1/magnitudes?logage=9.0&feh=0",
		"/api/v1/magnitudes?mass=abc&logage=9.0&feh=0",
		"/api/v1/magnitudes?mass=1.0&feh=0",
		"/api/v1/magnitudes?mass=1.0&age=-5&feh=0",
		"/api/v1/magnitudes?mass=1.0&age=1e9&logage=9&feh=0",
		"/api/v1/magnitudes?mass=NaN&logage=9&feh=0",
	} {
		code, out := do(t, r, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, code, target)
		assert.Contains(t, out, "error", target)
	}
}

func TestPostMagnitudes(t *testing.T) {
	body := []byte(`{"points": [
		{"mass": 1.0, "logAge": 9.0, "feh": 0.0},
		{"mass": 0.75, "age": 1e9, "feh": 0.0},
		{"mass": 1.0, "logAge": 9.3, "feh": 0.0}
	], "raw": true}`)
	code, out := do(t, testServer(t), http.MethodPost, "/api/v1/magnitudes", body)
	require.Equal(t, http.StatusOK, code)

	results := out["results"].([]any)
	require.Len(t, results, 3)
	first := results[0].(map[string]any)["magnitudes"].(map[string]any)
	assert.InDelta(t, 4.0, first["G"], 1e-9)
	second := results[1].(map[string]any)
	assert.InDelta(t, 4.4, second["magnitudes"].(map[string]any)["G"], 1e-9)
	assert.InDelta(t, 0.75, second["mass"], 1e-12)
	third := results[2].(map[string]any)["magnitudes"].(map[string]any)
	assert.Nil(t, third["G"])
}

func TestPostMagnitudesBadRequest(t *testing.T) {
	r := testServer(t)
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"points": [{"logAge": 9.0, "feh": 0.0}]}`,
		`{"points": [{"mass": 1.0, "feh": 0.0}]}`,
		`{"points": [{"mass": 1.0, "age": 0, "feh": 0.0}]}`,
	} {
		code, out := do(t, r, http.MethodPost, "/api/v1/magnitudes", []byte(body))
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.Contains(t, out, "error", body)
	}
}
