// Package server exposes the response estimators over HTTP: synchronous
// estimates, batch job submission backed by the pipeline, a websocket stream
// of job results and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"uvcal/internal/metrics"
	"uvcal/internal/pipeline"
	"uvcal/internal/response"
	"uvcal/internal/storage"
)

// Server wires the HTTP API to the estimators, pipeline and store.
type Server struct {
	port       int
	log        *slog.Logger
	store      *storage.Store
	pipe       *pipeline.Pipeline
	estimators map[pipeline.Method]response.Estimator
	upgrader   websocket.Upgrader
	hub        *hub
}

// EstimateRequest is the JSON body of a response query.
type EstimateRequest struct {
	Method   string               `json:"method"` // "aperture" (default) or "map"
	Band     string               `json:"band"`
	RA       float64              `json:"ra"`
	Dec      float64              `json:"dec"`
	Aperture float64              `json:"aperture"`
	Ranges   []response.TimeRange `json:"ranges"`
}

// EstimateResponse is the JSON reply of a synchronous query.
type EstimateResponse struct {
	Method string          `json:"method"`
	Result response.Result `json:"result"`
}

type jobAccepted struct {
	ID string `json:"id"`
}

type errorReply struct {
	Error string `json:"error"`
}

// New creates the server.
func New(port int, logger *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline, estimators map[pipeline.Method]response.Estimator) *Server {
	return &Server{
		port:       port,
		log:        logger,
		store:      store,
		pipe:       pipe,
		estimators: estimators,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub: newHub(logger),
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(metrics.Middleware)

	router.HandleFunc("/api/response", s.handleEstimate).Methods("POST")
	router.HandleFunc("/api/jobs", s.handleSubmitJob).Methods("POST")
	router.HandleFunc("/api/jobs", s.handleRecentJobs).Methods("GET")
	router.HandleFunc("/api/jobs/{id}/result", s.handleJobResult).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	return router
}

// Start serves until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run()
	if s.pipe != nil {
		go s.streamResults(ctx)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("calibration API listening", "port", s.port)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	method, est, err := s.selectEstimator(req.Method)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: err.Error()})
		return
	}

	res, err := metrics.ObserveEstimate(string(method), req.Band, func() (response.Result, error) {
		return est.Estimate(r.Context(), response.Request{
			Band:     response.Band(req.Band),
			RA:       req.RA,
			Dec:      req.Dec,
			Aperture: req.Aperture,
			Ranges:   req.Ranges,
		})
	})
	if err != nil {
		writeJSON(w, statusFor(err), errorReply{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, EstimateResponse{Method: string(method), Result: res})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorReply{Error: "batch pipeline not running"})
		return
	}
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	method, _, err := s.selectEstimator(req.Method)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: err.Error()})
		return
	}

	job := pipeline.Job{
		ID:     fmt.Sprintf("q-%d", time.Now().UnixNano()),
		Method: method,
		Request: response.Request{
			Band:     response.Band(req.Band),
			RA:       req.RA,
			Dec:      req.Dec,
			Aperture: req.Aperture,
			Ranges:   req.Ranges,
		},
	}
	if err := s.pipe.Submit(job); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorReply{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{ID: job.ID})
}

func (s *Server) handleRecentJobs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorReply{Error: "store not configured"})
		return
	}
	recs, err := s.store.RecentQueries(50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorReply{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorReply{Error: "store not configured"})
		return
	}
	id := mux.Vars(r)["id"]
	res, err := s.store.QueryResult(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorReply{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.register <- conn

	go func() {
		defer func() {
			s.hub.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// streamResults forwards pipeline results to websocket clients.
func (s *Server) streamResults(ctx context.Context) {
	ch, unsub := s.pipe.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-ch:
			if !ok {
				return
			}
			payload := map[string]any{
				"id":     res.Job.ID,
				"method": res.Job.Method,
				"band":   res.Job.Request.Band,
			}
			if res.Error != nil {
				payload["error"] = res.Error.Error()
			} else {
				payload["result"] = res.Response
			}
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			s.hub.broadcast <- data
		}
	}
}

func (s *Server) selectEstimator(name string) (pipeline.Method, response.Estimator, error) {
	method := pipeline.Method(name)
	if name == "" {
		method = pipeline.MethodAperture
	}
	est, ok := s.estimators[method]
	if !ok {
		return "", nil, fmt.Errorf("unknown estimation method %q", name)
	}
	return method, est, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, response.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, response.ErrNoAspectCoverage), errors.Is(err, response.ErrOutOfFootprint):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
