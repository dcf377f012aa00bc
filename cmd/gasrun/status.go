// Mgmt
// Copyright (C) 2013-2018+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
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
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/purpleidea/gasengine/prometheus"
)

// procStatus is one simulated machine's engine status, as reported by
// statusServer's /status endpoint.
type procStatus struct {
	Proc           int    `json:"proc"`
	RunID          string `json:"run_id"`
	State          string `json:"state"`
	Iteration      int    `json:"iteration"`
	CompletedTasks int64  `json:"completed_tasks"`
}

// statusServer exposes a running demo's per-machine status alongside its
// prometheus registry, the way the teacher pairs a gin-based HTTP frontend
// with its core engine instead of leaving observability to logs alone.
type statusServer struct {
	engines []runStatus
	metrics *prometheus.Metrics
	server  *http.Server
}

func newStatusServer(listen string, engines []runStatus, metrics *prometheus.Metrics) *statusServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &statusServer{engines: engines, metrics: metrics}

	router.GET("/status", func(c *gin.Context) {
		out := make([]procStatus, len(s.engines))
		for i, e := range s.engines {
			out[i] = procStatus{
				Proc:           i,
				RunID:          e.RunID(),
				State:          e.State().String(),
				Iteration:      e.Iteration(),
				CompletedTasks: e.CompletedTasks(),
			}
		}
		c.JSON(http.StatusOK, out)
	})

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	s.server = &http.Server{Addr: listen, Handler: router}
	return s
}

func (s *statusServer) start() {
	go s.server.ListenAndServe()
}

func (s *statusServer) stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
