package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/history"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/metrics"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/version"
)

const msgpackContentType = "application/x-msgpack"

// HistoryBuffer is one published ring buffer of an input, optionally with
// its parallel timestamp buffer.
type HistoryBuffer struct {
	Path       string   `json:"path" msgpack:"path"`
	Values     any      `json:"values" msgpack:"values"`
	TimeStamps []uint64 `json:"timeStamps,omitempty" msgpack:"timeStamps,omitempty"`
}

// HistoryResponse is the full history of one registered input.
type HistoryResponse struct {
	Name     string          `json:"name" msgpack:"name"`
	Type     string          `json:"type" msgpack:"type"`
	Elements int             `json:"elements" msgpack:"elements"`
	Buffers  []HistoryBuffer `json:"buffers" msgpack:"buffers"`
}

// VariableListResponse lists all registered inputs.
type VariableListResponse struct {
	Variables []history.VariableInfo `json:"variables"`
	Count     int                    `json:"count"`
}

// IngestRequest carries one sample for a simulated input variable.
type IngestRequest struct {
	Values []any `json:"values"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.recorder.GetNumberOfVariables() == 0 {
		s.respondError(w, http.StatusServiceUnavailable, "no variables registered")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, version.Get())
}

func (s *Server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	vars := s.recorder.Variables()
	s.respondJSON(w, http.StatusOK, VariableListResponse{Variables: vars, Count: len(vars)})
}

func (s *Server) handleReadHistory(w http.ResponseWriter, r *http.Request) {
	name := "/" + chi.URLParam(r, "*")
	info, ok := s.recorder.Variable(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "variable not registered")
		return
	}

	resp := HistoryResponse{
		Name:     info.Name,
		Type:     info.Type,
		Elements: info.Elements,
	}
	for i, path := range info.Outputs {
		buf := HistoryBuffer{Path: path}
		if values, ok := s.model.ReadArray(path); ok {
			buf.Values = values
		}
		if len(info.TimeStamps) > i {
			if ts, ok := pv.Read[uint64](s.model, info.TimeStamps[i]); ok {
				buf.TimeStamps = ts
			}
		}
		resp.Buffers = append(resp.Buffers, buf)
	}

	if wantsMsgpack(r) {
		data, err := msgpack.Marshal(resp)
		if err != nil {
			s.logger.Error("Failed to marshal history response", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "encoding failed")
			return
		}
		w.Header().Set("Content-Type", msgpackContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		metrics.RecordIngestSample("rate_limited")
		s.respondError(w, http.StatusTooManyRequests, "ingest rate limit exceeded")
		return
	}

	name := "/" + chi.URLParam(r, "*")
	variable, ok := s.model.Lookup(name)
	if !ok {
		metrics.RecordIngestSample("not_found")
		s.respondError(w, http.StatusNotFound, "variable not found")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordIngestSample("bad_request")
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	values, err := pv.CoerceValues(variable.ValueType(), variable.Elements(), req.Values)
	if err != nil {
		metrics.RecordIngestSample("bad_request")
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.model.Post(name, values); err != nil {
		metrics.RecordIngestSample("error")
		s.logger.Error("Failed to post sample", zap.String("variable", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "post failed")
		return
	}

	metrics.RecordIngestSample("ok")
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

func wantsMsgpack(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), msgpackContentType)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
