// Package server is the legacy HTTP surface: it serves the worklist CSV,
// records annotations into it and lists the local MIDI directory.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	charmlog "github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"go-annotate/debug"
	"go-annotate/midi"
	"go-annotate/store"
	"go-annotate/tags"
)

// Config locates the files the server exposes
type Config struct {
	Addr      string
	CSVPath   string
	MIDIDir   string
	StaticDir string
}

type Server struct {
	cfg   Config
	store *store.CSVStore
}

func New(cfg Config) *Server {
	return &Server{cfg: cfg, store: store.NewCSVStore(cfg.CSVPath)}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.logRequests, cors)
	router.HandleFunc(store.PathCSV, s.handleCSV).Methods("GET", "OPTIONS")
	router.HandleFunc(store.PathUpdate, s.handleUpdate).Methods("POST", "OPTIONS")
	router.HandleFunc(store.PathMIDI, s.handleMIDIFiles).Methods("GET", "OPTIONS")
	if s.cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return router
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	debug.Logger().Info("server running", "addr", s.cfg.Addr, "csv", s.cfg.CSVPath, "midi", s.cfg.MIDIDir)

	select {
	case err := <-errc:
		return fault.Wrap(err, fmsg.With("listen"), ftag.With(tags.IO))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fault.Wrap(err, fmsg.With("shutdown"))
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fault.Wrap(err, fmsg.With("listen"), ftag.With(tags.IO))
	}
	return nil
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.cfg.CSVPath)
	if err != nil {
		s.fail(w, r, fault.Wrap(err, fctx.With(r.Context()), fmsg.With("read csv"), ftag.With(tags.IO)),
			"Failed to read CSV file")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write(data)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req store.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, fault.Wrap(err, fmsg.With("decode update"), ftag.With(tags.InvalidArgument)),
			"Invalid JSON input")
		return
	}
	if req.FileID == "" {
		s.fail(w, r, fault.New("missing fileId", ftag.With(tags.InvalidArgument)), "fileId is required")
		return
	}

	if err := s.store.SaveAnnotation(r.Context(), req.FileID, req.HumanAgree); err != nil {
		msg := "Failed to update CSV file"
		if tags.Is(err, tags.NotFound) {
			msg = "File not found in CSV"
		}
		s.fail(w, r, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, store.UpdateResponse{Success: true, Message: "Annotation updated successfully"})
}

func (s *Server) handleMIDIFiles(w http.ResponseWriter, r *http.Request) {
	files, err := midi.ListDir(s.cfg.MIDIDir)
	if err != nil {
		s.fail(w, r, err, "Failed to read MIDI files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	debug.FromContext(r.Context()).Error("request failed", "status", status, "err", err)
	writeJSON(w, status, store.UpdateResponse{Error: msg})
}

func statusFor(err error) int {
	switch ftag.Get(err) {
	case tags.NotFound:
		return http.StatusNotFound
	case tags.InvalidArgument, tags.Parse:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := debug.Logger().With("method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(charmlog.WithContext(r.Context(), logger)))
		logger.Debug("request", "took", time.Since(start))
	})
}
