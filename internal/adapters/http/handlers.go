package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"threatlens/internal/domain"
	"threatlens/internal/services/analysis"
	"threatlens/internal/workers/classifyrunner"
)

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getProviders(w http.ResponseWriter, r *http.Request) {
	list := s.Sources.List()
	out := make([]sourceJSON, 0, len(list))
	for _, src := range list {
		types := make([]string, 0, len(src.IndicatorTypes))
		for _, t := range src.IndicatorTypes {
			types = append(types, string(t))
		}
		out = append(out, sourceJSON{ID: src.ID, SignalType: string(src.SignalType), IndicatorTypes: types})
	}
	writeJSON(w, http.StatusOK, out)
}

// postIndicator records an indicator and queues it. With wait=true the job
// is processed inline, bounded by timeout seconds.
func (s *Server) postIndicator(w http.ResponseWriter, r *http.Request) {
	var req indicatorRequest
	if !s.decode(w, r, &req) {
		return
	}
	wait, err := boolParam(r, "wait")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	timeout := defaultWaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a positive number of seconds")
			return
		}
		timeout = min(time.Duration(secs)*time.Second, maxWaitTimeout)
	}

	ctx := r.Context()
	sub, err := s.Analyzer.Submit(ctx, analysis.Submission{
		Type:   domain.IndicatorType(req.Type),
		Value:  req.Value,
		Source: req.Source,
		Tags:   req.Tags,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	accepted := acceptedJSON{Indicator: toIndicatorJSON(sub.Indicator), JobID: sub.JobID}
	if !wait {
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err = classifyrunner.ProcessInline(waitCtx, s.Jobs, s.Processor, s.Metrics, sub.JobID)
	switch {
	case errors.Is(err, classifyrunner.ErrJobTaken):
		writeJSON(w, http.StatusAccepted, accepted)
		return
	case err != nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "classification did not finish within timeout")
		return
	case err != nil:
		s.fail(w, err)
		return
	}
	res, err := s.Analyzer.Classify(ctx, sub.Indicator.ID, false)
	if err != nil {
		s.fail(w, err)
		return
	}
	res.Cached = false
	writeJSON(w, http.StatusOK, toClassificationJSON(res))
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	value, err := url.PathUnescape(chi.URLParam(r, "value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed indicator value")
		return
	}
	rep, err := s.Reports.Latest(r.Context(), value)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportJSON(rep))
}

func (s *Server) postClassify(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r, "force")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Analyzer.Classify(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClassificationJSON(res))
}

func (s *Server) postClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	items, err := s.Analyzer.AnalyzeBatch(r.Context(), req.IndicatorIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := batchJSON{Total: len(items), Results: make(map[string]batchItemJSON, len(items))}
	for _, it := range items {
		if it.Err != nil {
			out.Failed++
			out.Results[it.IndicatorID] = batchItemJSON{Error: it.Err.Error()}
			continue
		}
		out.Successful++
		out.Results[it.IndicatorID] = batchItemJSON{
			Success:   true,
			RiskLevel: string(it.Result.Verdict.RiskLevel),
			RiskScore: it.Result.Verdict.RiskScore,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Reports.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := statsJSON{Total: st.Total, ByRiskLevel: make(map[string]int, len(st.ByRiskLevel))}
	for level, n := range st.ByRiskLevel {
		out.ByRiskLevel[string(level)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: failed %q validation", fe.Field(), fe.Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidIndicator), errors.Is(err, analysis.ErrBatchTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, analysis.ErrEmptyBatch):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return v, nil
}
