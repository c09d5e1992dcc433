package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/repository"
	"github.com/helixir/paper-digest-service/internal/taskflow"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 200
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// crawlRequest is the JSON request body for triggering a crawl.
type crawlRequest struct {
	Source     string `json:"source,omitempty" validate:"omitempty,oneof=huggingface arxiv"`
	MaxResults int    `json:"max_results,omitempty" validate:"gte=0,lte=500"`
}

// analyzeRequest is the JSON request body for triggering an analyze run.
type analyzeRequest struct {
	Identity        string `json:"identity,omitempty" validate:"omitempty,max=256"`
	MaxPapers       int    `json:"max_papers,omitempty" validate:"gte=0,lte=500"`
	ForceRegenerate bool   `json:"force_regenerate,omitempty"`
}

// decodeBody parses and validates a JSON request body into dst.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	// An empty body means all defaults.
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return false
		}
	}

	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// triggerCrawl handles POST /api/v1/tasks/crawl. The crawl runs
// synchronously and the finished run is returned.
func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	params := taskflow.CrawlParams{MaxResults: req.MaxResults}
	if req.Source != "" {
		source := domain.SourceType(req.Source)
		params.Source = &source
	}

	run, err := s.tasks.RunCrawl(r.Context(), domain.TriggerManual, params)
	if err != nil {
		if errors.Is(err, domain.ErrLocked) {
			writeError(w, http.StatusConflict, "a crawl is already running")
			return
		}
		s.logger.Error().Err(err).Msg("crawl trigger failed")
		s.writeRunError(w, run, err)
		return
	}

	writeJSON(w, http.StatusOK, domainRunToResponse(run))
}

// triggerAnalyze handles POST /api/v1/tasks/analyze.
func (s *Server) triggerAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	params := taskflow.AnalyzeParams{
		Identity:        req.Identity,
		MaxPapers:       req.MaxPapers,
		ForceRegenerate: req.ForceRegenerate,
	}

	run, err := s.tasks.RunAnalyze(r.Context(), domain.TriggerManual, params)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "paper not found")
			return
		}
		s.logger.Error().Err(err).Msg("analyze trigger failed")
		s.writeRunError(w, run, err)
		return
	}

	writeJSON(w, http.StatusOK, domainRunToResponse(run))
}

// writeRunError reports a run that ended in an error. When a run row
// exists its terminal state is returned alongside the 500 so the caller
// can inspect the partial summary.
func (s *Server) writeRunError(w http.ResponseWriter, run *domain.TaskRun, err error) {
	if run == nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": err.Error(),
		"run":   domainRunToResponse(run),
	})
}

// listPapers handles GET /api/v1/papers.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	filter := repository.PaperFilter{
		Limit:  queryInt(r, "limit", defaultPageSize, maxPageSize),
		Offset: queryInt(r, "offset", 0, 1<<30),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		parsed := domain.PaperStatus(status)
		switch parsed {
		case domain.PaperStatusDiscovered, domain.PaperStatusAnalyzing,
			domain.PaperStatusCompleted, domain.PaperStatusFailed:
			filter.Statuses = []domain.PaperStatus{parsed}
		default:
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}
	if source := r.URL.Query().Get("source"); source != "" {
		parsed := domain.SourceType(source)
		filter.Source = &parsed
	}

	papers, total, err := s.papers.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list papers")
		writeError(w, http.StatusInternalServerError, "failed to list papers")
		return
	}

	resp := listPapersResponse{
		Papers:     make([]paperResponse, 0, len(papers)),
		TotalCount: total,
	}
	for _, p := range papers {
		resp.Papers = append(resp.Papers, domainPaperToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getPaper handles GET /api/v1/papers/{paperID}. The path segment is
// either the paper's UUID or its dedupe identity.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	paper, ok := s.resolvePaper(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(paper))
}

// listPaperReports handles GET /api/v1/papers/{paperID}/reports.
func (s *Server) listPaperReports(w http.ResponseWriter, r *http.Request) {
	paper, ok := s.resolvePaper(w, r)
	if !ok {
		return
	}

	reports, err := s.reports.ListByPaper(r.Context(), paper.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("paper", paper.Identity).Msg("failed to list reports")
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	resp := listReportsResponse{Reports: make([]reportResponse, 0, len(reports))}
	for _, report := range reports {
		resp.Reports = append(resp.Reports, domainReportToResponse(report))
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolvePaper loads the paper addressed by the paperID path parameter.
func (s *Server) resolvePaper(w http.ResponseWriter, r *http.Request) (*domain.Paper, bool) {
	param := chi.URLParam(r, "paperID")
	if param == "" {
		writeError(w, http.StatusBadRequest, "paper ID is required")
		return nil, false
	}

	var paper *domain.Paper
	var err error
	if id, parseErr := uuid.Parse(param); parseErr == nil {
		paper, err = s.papers.GetByID(r.Context(), id)
	} else {
		paper, err = s.papers.GetByIdentity(r.Context(), param)
	}

	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "paper not found")
			return nil, false
		}
		s.logger.Error().Err(err).Str("paper", param).Msg("failed to load paper")
		writeError(w, http.StatusInternalServerError, "failed to load paper")
		return nil, false
	}
	return paper, true
}

// listTaskRuns handles GET /api/v1/task-runs.
func (s *Server) listTaskRuns(w http.ResponseWriter, r *http.Request) {
	filter := repository.TaskRunFilter{
		Limit:  queryInt(r, "limit", defaultPageSize, maxPageSize),
		Offset: queryInt(r, "offset", 0, 1<<30),
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		parsed := domain.TaskKind(kind)
		filter.Kind = &parsed
	}
	if status := r.URL.Query().Get("status"); status != "" {
		parsed := domain.TaskRunStatus(status)
		filter.Status = &parsed
	}

	runs, total, err := s.runs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list task runs")
		writeError(w, http.StatusInternalServerError, "failed to list task runs")
		return
	}

	resp := listTaskRunsResponse{
		Runs:       make([]taskRunResponse, 0, len(runs)),
		TotalCount: total,
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, domainRunToResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryInt reads a non-negative integer query parameter with a default
// and an upper bound.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
