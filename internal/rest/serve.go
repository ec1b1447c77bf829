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

// Package rest serves magnitude queries over HTTP.
package rest

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mlnoga/isogrid/internal/calib"
	"github.com/mlnoga/isogrid/internal/query"
)

// Largest number of points accepted in one batch request
const MaxBatch = 10000

// REST front end for one grid
type Server struct {
	q   *query.Query
	cal *calib.Calibrator
	log logrus.FieldLogger
}

// Creates a server answering from the given query and calibrator
func New(q *query.Query, cal *calib.Calibrator, log logrus.FieldLogger) *Server {
	if cal == nil {
		cal = calib.New(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{q: q, cal: cal, log: log}
}

// Router with all routes below /api/v1
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/grid", s.getGrid)
			v1.GET("/magnitudes", s.getMagnitudes)
			v1.POST("/magnitudes", s.postMagnitudes)
		}
	}
	return r
}

// Listens and serves on the given address until the listener fails
func (s *Server) Run(bind string) error {
	s.log.Infof("Serving grid %s on %s", s.q.Artifact().BuildID, bind)
	return s.Router().Run(bind)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.WithFields(logrus.Fields{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"elapsed": time.Since(start),
	}).Debug("request")
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

type axesInfo struct {
	Masses  []float64 `json:"masses"`
	LogAges []float64 `json:"logages"`
	FeHs    []float64 `json:"fehs"`
}

type gridInfo struct {
	PhotSys     string             `json:"photSys"`
	BuildID     string             `json:"buildId"`
	Bands       []string           `json:"bands"`
	Axes        axesInfo           `json:"axes"`
	Coverage    map[string]float64 `json:"coverage"`
	Calibration map[string]float64 `json:"calibration"`
}

func (s *Server) getGrid(c *gin.Context) {
	a := s.q.Artifact()
	info := gridInfo{
		PhotSys:     a.PhotSys,
		BuildID:     a.BuildID,
		Bands:       s.q.Bands(),
		Axes:        axesInfo{Masses: a.Axes.Mass, LogAges: a.Axes.LogAge, FeHs: a.Axes.FeH},
		Coverage:    make(map[string]float64, len(a.Bands)),
		Calibration: make(map[string]float64),
	}
	for _, b := range a.Bands {
		info.Coverage[b] = a.Coverage(b)
	}
	for _, b := range s.cal.Bands() {
		info.Calibration[b] = s.cal.Offset(b)
	}
	c.JSON(http.StatusOK, info)
}

// One query point. Exactly one of Age and LogAge must be given.
type point struct {
	Mass   *float64 `json:"mass" binding:"required"`
	Age    *float64 `json:"age,omitempty"`
	LogAge *float64 `json:"logAge,omitempty"`
	FeH    *float64 `json:"feh" binding:"required"`
}

// Magnitudes for one point, with undefined values as null
type magnitudes struct {
	point
	Calibrated bool                `json:"calibrated"`
	Magnitudes map[string]*float64 `json:"magnitudes"`
}

type batchRequest struct {
	Points []point `json:"points" binding:"required"`
	Raw    bool    `json:"raw"`
}

type batchResponse struct {
	Results []magnitudes `json:"results"`
}

func (s *Server) getMagnitudes(c *gin.Context) {
	var p point
	var err error
	if p.Mass, err = floatParam(c, "mass", true); err == nil {
		if p.FeH, err = floatParam(c, "feh", true); err == nil {
			if p.Age, err = floatParam(c, "age", false); err == nil {
				p.LogAge, err = floatParam(c, "logage", false)
			}
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, _ := strconv.ParseBool(c.DefaultQuery("raw", "false"))

	m, err := s.evaluate(p, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) postMagnitudes(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Points) > MaxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d points per request", MaxBatch)})
		return
	}

	resp := batchResponse{Results: make([]magnitudes, len(req.Points))}
	for i, p := range req.Points {
		if p.Mass == nil || p.FeH == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("point %d: mass and feh are required", i)})
			return
		}
		m, err := s.evaluate(p, req.Raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("point %d: %s", i, err.Error())})
			return
		}
		resp.Results[i] = m
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) evaluate(p point, raw bool) (magnitudes, error) {
	for _, v := range []*float64{p.Mass, p.Age, p.LogAge, p.FeH} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return magnitudes{}, errors.New("coordinates must be finite")
		}
	}
	var res query.Result
	switch {
	case p.Age != nil && p.LogAge != nil:
		return magnitudes{}, errors.New("give either age or logAge, not both")
	case p.LogAge != nil:
		res = s.q.AtLogAge(*p.Mass, *p.LogAge, *p.FeH)
	case p.Age != nil:
		var err error
		if res, err = s.q.Magnitudes(*p.Mass, *p.Age, *p.FeH); err != nil {
			return magnitudes{}, err
		}
	default:
		return magnitudes{}, errors.New("age or logAge is required")
	}
	if !raw {
		res = s.cal.Apply(res)
	}
	return magnitudes{point: p, Calibrated: !raw, Magnitudes: nullable(res)}, nil
}

// JSON has no NaN, so undefined magnitudes become null
func nullable(r query.Result) map[string]*float64 {
	out := make(map[string]*float64, len(r))
	for b, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[b] = nil
			continue
		}
		out[b] = &v
	}
	return out
}

func floatParam(c *gin.Context, name string, required bool) (*float64, error) {
	s, ok := c.GetQuery(name)
	if !ok || s == "" {
		if required {
			return nil, fmt.Errorf("missing parameter %s", name)
		}
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %q is not a number", name, s)
	}
	return &v, nil
}
