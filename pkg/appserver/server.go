/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package appserver is an in-memory stub of the OpenHands app server's
// conversation API. It serves local development and integration tests for
// the client packages; it is not the production backend.
package appserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

// Options configures the stub server.
type Options struct {
	// ReadyAfterPolls is how many status fetches a start task sees before
	// flipping to READY. Defaults to 2 (one WORKING observation, then READY).
	ReadyAfterPolls int
	// Repositories and Branches are the git fixtures served to the
	// selection flow. Defaults are provided when nil.
	Repositories []appclient.Repository
	Branches     map[string][]appclient.Branch
	Log          logr.Logger
}

// Server is a stub app server.
type Server struct {
	log     logr.Logger
	store   *store
	handler http.Handler
}

// New builds a stub server with its router wired.
func New(opts Options) *Server {
	if opts.ReadyAfterPolls == 0 {
		opts.ReadyAfterPolls = 2
	}
	if opts.Repositories == nil {
		opts.Repositories = []appclient.Repository{
			{ID: "repo-1", FullName: "acme/widgets", GitProvider: "github"},
			{ID: "repo-2", FullName: "acme/gadgets", GitProvider: "github"},
		}
	}
	if opts.Branches == nil {
		opts.Branches = map[string][]appclient.Branch{
			"repo-1": {{Name: "main"}, {Name: "dev"}},
			"repo-2": {{Name: "main"}},
		}
	}

	s := &Server{
		log:   opts.Log,
		store: newStore(opts.ReadyAfterPolls),
	}

	h := &conversationHandler{
		store:    s.store,
		repos:    opts.Repositories,
		branches: opts.Branches,
		log:      opts.Log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(contentTypeMiddleware)
		r.Post("/app-conversations", h.startConversation)
		r.Get("/app-conversations", h.batchGetConversations)
		r.Get("/app-conversations/start-tasks/{taskID}", h.getStartTask)
		r.Get("/app-conversations/{conversationID}", h.getConversation)
		r.Delete("/app-conversations/{conversationID}", h.deleteConversation)
		r.Post("/app-conversations/{conversationID}/clear", h.clearConversation)
		r.Get("/git/repositories", h.searchRepositories)
		r.Get("/git/repositories/{repoID}/branches", h.getRepositoryBranches)
	})

	s.handler = r
	return s
}

// Handler returns the HTTP handler, for mounting in tests via httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Seed inserts a conversation fixture, minting IDs for any unset fields, and
// returns the stored value.
func (s *Server) Seed(conv appclient.AppConversation) appclient.AppConversation {
	return s.store.seed(conv)
}

// FailNextStart makes the next start task end in ERROR with the given detail.
func (s *Server) FailNextStart(detail string) {
	s.store.failNextStart(detail)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting stub app server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// contentTypeMiddleware validates Content-Type on mutating requests that
// carry a body. Bodyless POSTs (the clear endpoint) pass through.
func contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutating := r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch
		if mutating && r.ContentLength > 0 {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":"Content-Type must be application/json"}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
