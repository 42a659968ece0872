package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dshills/hookline/internal/hook"
)

// recordView is the JSON form of a hook.Record.
type recordView struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Source   string `json:"source,omitempty"`
}

// runRequest is the body accepted by POST /hooks/{name}/run.
type runRequest struct {
	Args    []any `json:"args"`
	Context any   `json:"context"`
}

type runResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AdminRouter returns the admin HTTP handler:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /hooks
//	GET  /hooks/{name}
//	POST /hooks/{name}/run?phase=pre|main|post
func (app *Application) AdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimd.RequestID)
	r.Use(chimd.Recoverer)
	r.Use(app.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	r.Route("/hooks", func(r chi.Router) {
		r.Get("/", app.listHooks)
		r.Get("/{name}", app.getHook)
		r.Post("/{name}/run", app.runHook)
	})
	return r
}

func (app *Application) listHooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, groupRecords(app.registry.Grouped(), ""))
}

func (app *Application) getHook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	out := groupRecords(app.registry.Grouped(), name)
	n := 0
	for _, views := range out {
		n += len(views)
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, runResponse{Error: "no handlers registered for " + name})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (app *Application) runHook(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, runResponse{Error: err.Error()})
			return
		}
	}

	result, err := app.Run(r.Context(), chi.URLParam(r, "name"), req.Args, req.Context, r.URL.Query().Get("phase"))
	switch {
	case errors.Is(err, hook.ErrInvalidPhase):
		writeJSON(w, http.StatusBadRequest, runResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, runResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, runResponse{Result: result})
	}
}

// groupRecords converts registry records to their JSON form, ordered by name
// then priority. A non-empty name keeps only that hook.
func groupRecords(grouped map[hook.Phase][]hook.Record, name string) map[hook.Phase][]recordView {
	out := make(map[hook.Phase][]recordView, len(grouped))
	for _, p := range hook.Phases {
		views := []recordView{}
		for _, rec := range grouped[p] {
			if name != "" && rec.Name != name {
				continue
			}
			views = append(views, recordView{Name: rec.Name, Priority: rec.Priority, Source: rec.Source})
		}
		sort.SliceStable(views, func(i, j int) bool {
			if views[i].Name != views[j].Name {
				return views[i].Name < views[j].Name
			}
			return views[i].Priority < views[j].Priority
		})
		out[p] = views
	}
	return out
}

func (app *Application) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			app.logger.Debug("admin request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", chimd.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
