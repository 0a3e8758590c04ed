// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineRequest is the body of POST /pipeline.
type PipelineRequest struct {
	// CollectionID continues the pipeline on an existing collection.
	CollectionID string                 `json:"collection_id,omitempty"`
	Steps        []dlite.StrategyConfig `json:"steps"`
}

// Server runs pipelines posted to it as JSON. All sessions share the
// server's collection store, data model store, fetcher and cache.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	mux      *http.ServeMux
	gatherer prometheus.Gatherer

	collections dlite.CollectionStore
	metas       *dlite.MetaStore
	fetcher     dlite.Fetcher
	cache       dlite.Cache
	log         dlite.Logger
	stats       dlite.Statter

	errs chan error
}

// ServerOption is a functional option type for Server.
type ServerOption func(s *Server)

// WithAddr is an option for the Server which causes it to bind to the given
// address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithListener is an option for Server which causes it to use the given
// listener. It will infer the address from the listener.
func WithListener(l net.Listener) ServerOption {
	return func(s *Server) {
		s.listener = l
		s.addr = l.Addr().String()
	}
}

// WithCollections sets the collection store shared by all sessions.
func WithCollections(cs dlite.CollectionStore) ServerOption {
	return func(s *Server) {
		s.collections = cs
	}
}

// WithMetas sets the data model store shared by all sessions.
func WithMetas(ms *dlite.MetaStore) ServerOption {
	return func(s *Server) {
		s.metas = ms
	}
}

// WithFetcher sets the fetcher used for downloads.
func WithFetcher(f dlite.Fetcher) ServerOption {
	return func(s *Server) {
		s.fetcher = f
	}
}

// WithCache sets the data cache of all sessions.
func WithCache(c dlite.Cache) ServerOption {
	return func(s *Server) {
		s.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l dlite.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithStats sets the stats collector.
func WithStats(st dlite.Statter) ServerOption {
	return func(s *Server) {
		s.stats = st
	}
}

// WithGatherer serves the metrics of g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer creates a Server and starts serving in the background.
func NewServer(opts ...ServerOption) (*Server, error) {
	s := &Server{
		collections: dlite.NewMemCollectionStore(),
		log:         dlite.NopLogger{},
		stats:       dlite.NopStatter{},
		errs:        make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metas == nil {
		s.metas = dlite.NewMetaStore()
	}
	if s.fetcher == nil {
		s.fetcher = NewDownloader(OptDownloadLogger(s.log))
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /pipeline", s.handlePostPipeline)
	s.mux.HandleFunc("GET /collections/{id}", s.handleGetCollection)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	if s.listener == nil {
		var err error
		s.listener, err = net.Listen("tcp", s.addr)
		if err != nil {
			return nil, errors.Wrap(err, "listening")
		}
	}
	if tl, ok := s.listener.(*net.TCPListener); ok {
		s.listener = tcpKeepAliveListener{tl}
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := s.server.Serve(s.listener)
		if err != nil && err != http.ErrServerClosed {
			s.errs <- errors.Wrap(err, "serving")
		}
		close(s.errs)
	}()
	return s, nil
}

// Addr gets the address that the Server is listening on.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Wait blocks until the server stops and returns the reason it stopped, or
// nil after Close.
func (s *Server) Wait() error {
	return <-s.errs
}

// Close shuts the server down, waiting up to timeout for requests in
// flight.
func (s *Server) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Wrap(s.server.Shutdown(ctx), "shutting down")
}

// ServeHTTP implements http.Handler for Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Session returns a new session on the server's shared stores, continuing
// the given collection if id is not empty.
func (s *Server) Session(id string) *dlite.Session {
	return dlite.NewSession(
		dlite.OptSessionCollections(s.collections),
		dlite.OptSessionMetas(s.metas),
		dlite.OptSessionFetcher(s.fetcher),
		dlite.OptSessionCache(s.cache),
		dlite.OptSessionLogger(s.log),
		dlite.OptSessionStats(s.stats),
		dlite.OptSessionState(dlite.SessionUpdate{CollectionID: id}),
	)
}

func (s *Server) handlePostPipeline(w http.ResponseWriter, r *http.Request) {
	req := PipelineRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, dlite.ConfigError(err, "decoding pipeline"))
		return
	}
	if len(req.Steps) == 0 {
		s.writeError(w, dlite.ConfigError(errors.New("no steps"), "decoding pipeline"))
		return
	}
	sess := s.Session(req.CollectionID)
	p := &dlite.Pipeline{Steps: req.Steps}
	if err := p.Run(r.Context(), sess); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.collections.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

// StatusOf maps the kind of err to an HTTP status.
func StatusOf(err error) int {
	switch dlite.KindOf(err) {
	case dlite.KindConfig:
		return http.StatusBadRequest
	case dlite.KindMissing:
		return http.StatusNotFound
	case dlite.KindDecode:
		return http.StatusUnprocessableEntity
	case dlite.KindNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	s.log.Printf("request failed (%d): %v", status, err)
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  dlite.KindOf(err).String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("writing response: %v", err)
	}
}

// tcpKeepAliveListener is copied from net/http

type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
