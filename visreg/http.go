// CLAUDE:SUMMARY chi review server over the Archive: run list, HTML report, changeset JSON, screenshot and diff PNGs.
package visreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/shotdiff/shield"
	"github.com/hazyhaar/shotdiff/visreg/internal/report"
	"github.com/hazyhaar/shotdiff/visreg/internal/shots"
)

// Handler returns the review server routes.
//
//	GET /                         → redirect to /runs
//	GET /runs                     JSON run list (?limit=)
//	GET /runs/{runID}             HTML report
//	GET /runs/{runID}/changes     JSON changeset (?status=)
//	GET /runs/{runID}/branches    JSON branch runs with captures
//	GET /runs/{runID}/diff/{file} diff PNG
//	GET /shots/{commit}/{file}    screenshot PNG
func (a *Archive) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.Stack(a.logger) {
		r.Use(mw)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/runs", http.StatusFound)
	})

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := a.Runs(r.Context(), queryInt(r, "limit", 20))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if runs == nil {
			runs = []*RunRecord{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Route("/runs/{runID}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			runID := chi.URLParam(r, "runID")
			d, err := a.ReportData(r.Context(), runID)
			if err != nil {
				a.fail(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := report.RenderHTML(w, d, serverLinks(runID)); err != nil {
				shield.GetLogger(r.Context()).Error("visreg: render report", "error", err)
			}
		})

		r.Get("/changes", func(w http.ResponseWriter, r *http.Request) {
			status := Status(r.URL.Query().Get("status"))
			entries, err := a.Changes(r.Context(), chi.URLParam(r, "runID"), status)
			if err != nil {
				a.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, entries)
		})

		r.Get("/branches", func(w http.ResponseWriter, r *http.Request) {
			brs, err := a.BranchRuns(r.Context(), chi.URLParam(r, "runID"))
			if err != nil {
				a.fail(w, r, err)
				return
			}
			if brs == nil {
				brs = []*BranchRecord{}
			}
			writeJSON(w, http.StatusOK, brs)
		})

		r.Get("/diff/{file}", func(w http.ResponseWriter, r *http.Request) {
			id, err := pngName(chi.URLParam(r, "file"))
			if err != nil {
				a.fail(w, r, err)
				return
			}
			path, err := a.DiffPath(chi.URLParam(r, "runID"), id)
			if err != nil {
				a.fail(w, r, err)
				return
			}
			servePNG(w, r, path)
		})
	})

	r.Get("/shots/{commit}/{file}", func(w http.ResponseWriter, r *http.Request) {
		id, err := pngName(chi.URLParam(r, "file"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		path, err := a.ShotPath(chi.URLParam(r, "commit"), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		servePNG(w, r, path)
	})

	return r
}

// serverLinks points report images at the review server routes.
func serverLinks(runID string) report.Links {
	return report.Links{
		Shot: func(commit, id string) string {
			return "/shots/" + commit + "/" + escapeSegment(id) + ".png"
		},
		Diff: func(id string) string {
			return "/runs/" + runID + "/diff/" + escapeSegment(id) + ".png"
		},
	}
}

func escapeSegment(s string) string {
	return url.PathEscape(s)
}

// pngName strips the .png suffix of a file route parameter.
func pngName(file string) (string, error) {
	id, ok := strings.CutSuffix(file, ".png")
	if !ok {
		return "", fmt.Errorf("%w: %q", shots.ErrInvalidID, file)
	}
	if u, err := url.PathUnescape(id); err == nil {
		id = u
	}
	return id, nil
}

func servePNG(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "", st.ModTime(), f)
}

// fail maps archive errors to status codes.
func (a *Archive) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shots.ErrInvalidID), errors.Is(err, ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrRunNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrNoLedger):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		shield.GetLogger(r.Context()).Error("visreg: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
