package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Nova-Search/api/internal/config"
	"github.com/Nova-Search/api/internal/crawler"
	"github.com/Nova-Search/api/internal/search"
	"github.com/Nova-Search/api/internal/store"
)

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]string{
		{"message": "If you can see this, the Nova Search API is working."},
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// search handles GET /search?query=&limit=&offset=&mode=. The older
// page/page_size parameters are accepted as an alternative to offset/limit.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q, err := parseQuery(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.engine.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", "query", q.Text, "error", err)
		writeError(w, http.StatusInternalServerError, "search unavailable")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func parseQuery(params map[string][]string) (search.Query, error) {
	get := func(key string) string {
		if v := params[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	q := search.Query{Text: get("query")}
	if strings.TrimSpace(q.Text) == "" {
		return q, errBlankQuery
	}

	var err error
	if q.Limit, err = intParam(get("limit"), 0); err != nil {
		return q, err
	}
	if q.Offset, err = intParam(get("offset"), 0); err != nil {
		return q, err
	}

	if page := get("page"); page != "" {
		n, err := intParam(page, 1)
		if err != nil || n < 1 {
			return q, errInvalidParam
		}
		size, err := intParam(get("page_size"), 15)
		if err != nil || size < 1 {
			return q, errInvalidParam
		}
		q.Limit = size
		q.Offset = (n - 1) * size
	}
	if q.Limit < 0 || q.Offset < 0 {
		return q, errInvalidParam
	}

	mode, err := search.ParseMode(get("mode"))
	if err != nil {
		return q, errInvalidParam
	}
	q.Mode = mode
	return q, nil
}

var (
	errBlankQuery   = errors.New("query cannot be blank")
	errInvalidParam = errors.New("invalid limit, offset, page or mode")
)

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errInvalidParam
	}
	return n, nil
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type crawlRequest struct {
	StartURL string `json:"start_url"`
	MaxDepth *int   `json:"max_depth"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "crawling disabled")
		return
	}

	var req crawlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.StartURL) == "" {
		writeError(w, http.StatusBadRequest, "start_url required")
		return
	}
	depth := s.maxDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}

	run, err := s.jobs.Launch(r.Context(), crawler.Request{StartURL: req.StartURL, MaxDepth: depth})
	if err != nil {
		if errors.Is(err, crawler.ErrInvalidStartURL) || errors.Is(err, config.ErrInvalidMaxDepth) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("start crawl failed", "start_url", req.StartURL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}

	w.Header().Set("Location", "/crawl/"+run.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": run.ID})
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.jobs != nil {
		if run, ok := s.jobs.Get(id); ok {
			writeJSON(w, http.StatusOK, run)
			return
		}
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		s.logger.Error("get crawl failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load crawl")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type rateRequest struct {
	URL string `json:"url"`
}

// rateResult adjusts the priority of the rated page by delta
func (s *Server) rateResult(delta int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "url required")
			return
		}

		if err := s.store.AdjustPriority(r.Context(), req.URL, delta); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "page not found")
				return
			}
			s.logger.Error("adjust priority failed", "url", req.URL, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update priority")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"detail": message})
	}
}
