package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tinoosan/manifest-sync/internal/data"
	"github.com/tinoosan/manifest-sync/internal/repo"
)

// RunHandler serves the sync run history.
type RunHandler struct {
	l    *slog.Logger
	runs repo.RunReader
}

type rwLogger struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *rwLogger) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *rwLogger) SetErr(err error) {
	w.err = err
}

func (w *rwLogger) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

type errorSetter interface {
	SetErr(error)
}

func markErr(w http.ResponseWriter, err error) {
	if es, ok := w.(errorSetter); ok {
		es.SetErr(err)
	}
}

func NewRunHandler(l *slog.Logger, runs repo.RunReader) *RunHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RunHandler{l: l, runs: runs}
}

func (h *RunHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context())
	if err != nil {
		markErr(w, err)
		http.Error(w, "Unable to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = data.Runs{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := runs.ToJSON(w); err != nil {
		markErr(w, err)
		http.Error(w, "Unable to marshal json", http.StatusInternalServerError)
		return
	}
}

func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		markErr(w, err)
		if errors.Is(err, data.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		http.Error(w, "Unable to load run", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = run.ToJSON(w)
}
