package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"freightplan/internal/ingest"
	"freightplan/internal/metrics"
	"freightplan/internal/model"
	"freightplan/internal/opt"
	"freightplan/internal/report"
	"freightplan/internal/store"
	"freightplan/internal/traveltime"
)

const maxUpload = 32 << 20

// AllocationsHandler handles POST/GET /v1/allocations
func (s *Server) AllocationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/allocations" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var req model.AllocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		issues, err := validateRequest(&req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Validation failed", err.Error(), r.URL.Path)
			return
		}
		if len(issues) > 0 {
			writeJSON(w, http.StatusBadRequest, Problem{Type: "about:blank", Title: "Invalid allocation request", Status: 400, Detail: opt.ErrInvalidValue.Error(), Instance: r.URL.Path, Issues: issues})
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		fetch := req.Options.FetchTravelTimes && len(req.TravelTimes) == 0
		s.allocate(w, r, req.TenantID, req.Name, req.Problem(), req.Options, fetch)
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		runs, next, err := s.Store.ListRuns(r.Context(), p.Tenant, status, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List allocations failed", err.Error(), r.URL.Path)
			return
		}
		items := make([]model.RunSummary, 0, len(runs))
		for _, run := range runs {
			items = append(items, run.Summary())
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AllocationUploadHandler handles POST /v1/allocations/upload with csv or
// xlsx parts named supply, demand, drivers, cost and optionally travel.
func (s *Server) AllocationUploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid upload", err.Error(), r.URL.Path)
		return
	}
	var files ingest.Files
	for _, part := range []struct {
		name string
		dst  *ingest.File
	}{{"supply", &files.Supply}, {"demand", &files.Demand}, {"drivers", &files.Drivers}, {"cost", &files.Cost}} {
		f, err := formFile(r.MultipartForm, part.name)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Missing file", err.Error(), r.URL.Path)
			return
		}
		*part.dst = f
	}
	if f, err := formFile(r.MultipartForm, "travel"); err == nil {
		files.Travel = &f
	}
	prob, err := ingest.Load(files)
	if err != nil {
		writeInputProblem(w, "Invalid upload", err, r.URL.Path)
		return
	}
	o, err := uploadOptions(r)
	if err != nil {
		writeInputProblem(w, "Invalid options", err, r.URL.Path)
		return
	}
	s.allocate(w, r, p.Tenant, r.FormValue("name"), prob, o, files.Travel == nil)
}

func formFile(form *multipart.Form, name string) (ingest.File, error) {
	hs := form.File[name]
	if len(hs) == 0 {
		return ingest.File{}, fmt.Errorf("part %q is required", name)
	}
	f, err := hs[0].Open()
	if err != nil {
		return ingest.File{}, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return ingest.File{}, err
	}
	return ingest.File{Name: hs[0].Filename, Reader: &buf}, nil
}

func uploadOptions(r *http.Request) (model.AllocationOptions, error) {
	o := model.AllocationOptions{
		MissingTravelTime: r.FormValue("missingTravelTime"),
		Duals:             r.FormValue("duals"),
	}
	for _, f := range []struct {
		key string
		dst *int
	}{{"timeLimitMs", &o.TimeLimitMs}, {"maxNodes", &o.MaxNodes}} {
		if v := r.FormValue(f.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return o, fmt.Errorf("%w: %s must be a non-negative integer", opt.ErrInvalidValue, f.key)
			}
			*f.dst = n
		}
	}
	issues, err := validateRequest(&o)
	if err != nil {
		return o, err
	}
	if len(issues) > 0 {
		return o, &opt.InputError{Kind: opt.ErrInvalidValue, Issues: issues}
	}
	return o, nil
}

// allocate runs one optimization synchronously and writes the stored run.
// Input faults answer 400 and are not stored; every solver outcome is a 200.
func (s *Server) allocate(w http.ResponseWriter, r *http.Request, tenant, name string, prob opt.Problem, ro model.AllocationOptions, fetch bool) {
	ctx := r.Context()
	opts, err := s.solverOptions(ctx, tenant, ro)
	if err != nil {
		writeInputProblem(w, "Invalid options", err, r.URL.Path)
		return
	}
	run := model.Run{ID: uuid.New().String(), TenantID: tenant, Name: name, Options: ro, CreatedAt: time.Now().UTC()}
	s.publish(ctx, tenant, model.EventAllocationStarted, map[string]any{"id": run.ID, "name": name})

	if fetch {
		lanes, err := traveltime.Matrix(ctx, s.Travel, prob.Supply, prob.Demand, s.Config.Travel.Concurrency)
		if err != nil {
			s.fail(ctx, tenant, run.ID, err)
			writeProblem(w, http.StatusServiceUnavailable, "Travel times unavailable", err.Error(), r.URL.Path)
			return
		}
		prob.TravelTimes = lanes.Times
		run.Geometry = lanes.Geometry
	}

	res, err := opt.Optimize(ctx, prob, opts)
	if err != nil {
		metrics.AllocationRuns.WithLabelValues("InputError").Inc()
		s.fail(ctx, tenant, run.ID, err)
		writeInputProblem(w, "Invalid allocation input", err, r.URL.Path)
		return
	}
	metrics.AllocationRuns.WithLabelValues(string(res.Status)).Inc()
	metrics.SolveSeconds.WithLabelValues(string(res.Status)).Observe(float64(res.Stats.RuntimeMs) / 1000)
	metrics.SolveNodes.Observe(float64(res.Stats.Nodes))
	opt.RecordStats(tenant, res)

	run.Problem = prob
	run.Result = res
	run.Status = string(res.Status)
	run.Objective = res.Objective
	run.CompletedAt = time.Now().UTC()
	if err := s.Store.SaveRun(ctx, tenant, run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save allocation failed", err.Error(), r.URL.Path)
		return
	}
	log.Printf("allocation %s tenant=%s status=%s objective=%v nodes=%d runtime=%.1fms", run.ID, tenant, res.Status, res.ObjectiveValue(), res.Stats.Nodes, res.Stats.RuntimeMs)
	s.publish(ctx, tenant, model.EventAllocationCompleted, map[string]any{"id": run.ID, "status": run.Status, "objective": run.Objective})
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) fail(ctx context.Context, tenant, id string, err error) {
	log.Printf("allocation %s tenant=%s failed: %v", id, tenant, err)
	s.publish(ctx, tenant, model.EventAllocationFailed, map[string]any{"id": id, "error": err.Error()})
}

// solverOptions layers server defaults, the tenant's optimizer config and the
// request, later layers winning for each set field.
func (s *Server) solverOptions(ctx context.Context, tenant string, ro model.AllocationOptions) (opt.Options, error) {
	o := s.Config.SolverOptions()
	layers := []model.AllocationOptions{}
	if cfg, err := s.Store.GetOptimizerConfig(ctx, tenant); err == nil && cfg != nil {
		if tc, err := tenantOptions(cfg); err == nil {
			layers = append(layers, tc)
		} else {
			log.Printf("tenant %s optimizer config ignored: %v", tenant, err)
		}
	}
	layers = append(layers, ro)
	for _, l := range layers {
		if l.MissingTravelTime != "" {
			p, err := opt.ParseMissingTimePolicy(l.MissingTravelTime)
			if err != nil {
				return o, err
			}
			o.MissingTravelTime = p
		}
		if l.Duals != "" {
			d, err := opt.ParseDualPolicy(l.Duals)
			if err != nil {
				return o, err
			}
			o.Duals = d
		}
		if l.TimeLimitMs > 0 {
			o.TimeLimit = time.Duration(l.TimeLimitMs) * time.Millisecond
		}
		if l.MaxNodes > 0 {
			o.MaxNodes = l.MaxNodes
		}
	}
	return o, nil
}

// tenantOptions decodes a stored optimizer config map.
func tenantOptions(cfg map[string]any) (model.AllocationOptions, error) {
	var o model.AllocationOptions
	raw, err := json.Marshal(cfg)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(raw, &o); err != nil {
		return o, err
	}
	issues, err := validateRequest(&o)
	if err != nil {
		return o, err
	}
	if len(issues) > 0 {
		return o, &opt.InputError{Kind: opt.ErrInvalidValue, Issues: issues}
	}
	return o, nil
}

// AllocationByIDHandler handles GET /v1/allocations/{id} and its /report,
// /geojson and /xlsx renderings.
func (s *Server) AllocationByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/allocations/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if rest == "upload" {
		s.AllocationUploadHandler(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(rest, "/")
	p := s.getPrincipal(r)
	run, err := s.Store.GetRun(r.Context(), p.Tenant, parts[0])
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Allocation not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get allocation failed", err.Error(), r.URL.Path)
		return
	}
	view := ""
	if len(parts) > 1 {
		view = parts[1]
	}
	switch view {
	case "":
		writeJSON(w, http.StatusOK, run)
	case "report":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.Text(w, run.Problem, run.Result); err != nil {
			log.Printf("report %s: %v", run.ID, err)
		}
	case "geojson":
		w.Header().Set("Content-Type", "application/geo+json")
		_ = json.NewEncoder(w).Encode(report.GeoJSON(run.Problem, run.Result, run.Route))
	case "xlsx":
		var buf bytes.Buffer
		if err := report.XLSX(&buf, run.Problem, run.Result); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Export failed", err.Error(), r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "allocation-"+run.ID+".xlsx"))
		_, _ = w.Write(buf.Bytes())
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// TravelTimesHandler handles POST /v1/travel-times
func (s *Server) TravelTimesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.TravelTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	issues, err := validateRequest(&req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Validation failed", err.Error(), r.URL.Path)
		return
	}
	if len(issues) > 0 {
		writeJSON(w, http.StatusBadRequest, Problem{Type: "about:blank", Title: "Invalid travel-time request", Status: 400, Instance: r.URL.Path, Issues: issues})
		return
	}
	lanes, err := traveltime.Matrix(r.Context(), s.Travel, req.Supply, req.Demand, s.Config.Travel.Concurrency)
	if err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Travel times unavailable", err.Error(), r.URL.Path)
		return
	}
	unknown := opt.UnknownLanes(opt.Problem{Supply: req.Supply, Demand: req.Demand, TravelTimes: lanes.Times})
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":     s.Travel.Name(),
		"travelTimes":  lanes.Times,
		"geometry":     lanes.Geometry,
		"unknownLanes": unknown,
	})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
