// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

type Response struct {
	Healthy    bool            `json:"healthy"`
	Status     string          `json:"status"`
	Conditions map[string]bool `json:"conditions,omitempty"`
	LastBeat   *time.Time      `json:"lastBeat,omitempty"`
}

type Config struct {
	Port int
	// StaleAfter marks the worker unhealthy when Beat has not been called
	// for this long. Zero disables the check.
	StaleAfter time.Duration
}

type Server struct {
	port       int
	staleAfter time.Duration
	now        func() time.Time

	status   atomic.Int32
	lastBeat atomic.Int64

	mu         sync.RWMutex
	conditions map[string]bool

	server *http.Server
}

func NewServer(config Config) *Server {
	return &Server{
		port:       config.Port,
		staleAfter: config.StaleAfter,
		now:        time.Now,
		conditions: map[string]bool{},
	}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// Beat records that the worker loop made progress.
func (s *Server) Beat() {
	s.lastBeat.Store(s.now().UnixNano())
}

// SetReadyCondition sets a named readiness condition. The server is ready
// once it is healthy and every registered condition is true.
func (s *Server) SetReadyCondition(name string, ready bool) {
	s.mu.Lock()
	s.conditions[name] = ready
	s.mu.Unlock()
	slog.Debug("Ready condition updated", slog.String("condition", name), slog.Bool("ready", ready))
}

func (s *Server) conditionsSnapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.conditions)
}

func (s *Server) stale() bool {
	if s.staleAfter <= 0 {
		return false
	}
	last := s.lastBeat.Load()
	if last == 0 {
		return false
	}
	return s.now().Sub(time.Unix(0, last)) > s.staleAfter
}

func (s *Server) IsHealthy() bool {
	return s.GetStatus() == StatusHealthy && !s.stale()
}

func (s *Server) IsReady() bool {
	if !s.IsHealthy() {
		return false
	}
	for _, ok := range s.conditionsSnapshot() {
		if !ok {
			return false
		}
	}
	return true
}

func (s *Server) response(ok bool) Response {
	r := Response{
		Healthy:    ok,
		Status:     s.GetStatus().String(),
		Conditions: s.conditionsSnapshot(),
	}
	if last := s.lastBeat.Load(); last != 0 {
		t := time.Unix(0, last).UTC()
		r.LastBeat = &t
	}
	if s.GetStatus() == StatusHealthy && s.stale() {
		r.Status = "stale"
	}
	return r
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handle(s.IsHealthy))
	mux.HandleFunc("/readyz", s.handle(s.IsReady))
	mux.HandleFunc("/livez", s.handle(func() bool { return s.GetStatus() != StatusUnhealthy }))
	return mux
}

func (s *Server) handle(check func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ok := check()
		w.Header().Set("Content-Type", "application/json")
		if ok {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(s.response(ok)); err != nil {
			slog.Error("Failed to encode health check response", slog.Any("error", err))
		}
	}
}

// Start serves until ctx is done. A port of 0 disables the server but still
// blocks until ctx is done so it can run in an errgroup.
func (s *Server) Start(ctx context.Context) error {
	if s.port <= 0 {
		<-ctx.Done()
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health check listen: %w", err)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("Starting health check server", slog.Int("port", s.port))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health check server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
