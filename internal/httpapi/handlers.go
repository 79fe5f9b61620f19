package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"taskmesh/internal/model"
)

// version is the process build identifier surfaced by /status. Grounded on
// the teacher's habit of a compile-time version string; a real build would
// inject this via -ldflags.
const version = "0.1.0"

type runRequestBody struct {
	Goal           string `json:"goal"`
	ProjectContext string `json:"project_context"`
	SessionID      string `json:"session_id"`
	Verbose        bool   `json:"verbose"`
	UseEnhanced    bool   `json:"use_enhanced"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	async := r.URL.Query().Get("async_mode") == "true"

	result := s.conductor.Run(r.Context(), body.Goal, body.ProjectContext, body.SessionID, async)
	writeResult(w, result)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	state, result, ok := s.conductor.Status(r.Context(), taskID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown task")
		return
	}
	if state == "queued" || state == "running" {
		respondJSON(w, http.StatusOK, map[string]any{"status": state, "task_id": taskID})
		return
	}
	writeResult(w, result)
}

// writeResult maps a model.Result onto spec.md §6's fixed response shapes.
func writeResult(w http.ResponseWriter, result model.Result) {
	switch result.Kind {
	case model.ResultSuccess:
		respondJSON(w, http.StatusOK, map[string]any{
			"status": "success", "output": result.Output, "knowledge": result.Knowledge,
			"correlation_id": result.CorrelationID, "verbose_steps": result.VerboseSteps,
		})
	case model.ResultNeedsClarification:
		respondJSON(w, http.StatusOK, map[string]any{
			"status": "needs_clarification", "clarification_questions": result.ClarificationQuestions,
			"suggested_restatement": result.SuggestedRestatement, "correlation_id": result.CorrelationID,
		})
	case model.ResultAccepted:
		respondJSON(w, http.StatusAccepted, map[string]any{
			"task_id": result.TaskID, "correlation_id": result.CorrelationID, "status_url": result.StatusURL,
		})
	case model.ResultFailure:
		if result.FailureKind == "overloaded" {
			if result.RetryAfterSec > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSec))
			}
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "failure", "reason": result.FailureMessage, "correlation_id": result.CorrelationID,
			})
			return
		}
		status := http.StatusInternalServerError
		if result.FailureKind == "validation_failed" {
			status = http.StatusBadRequest
		}
		respondJSON(w, status, map[string]any{
			"status": "failure", "failure_kind": result.FailureKind, "reason": result.FailureMessage,
			"correlation_id": result.CorrelationID,
		})
	default:
		respondError(w, http.StatusInternalServerError, "unrecognized result")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"version":      version,
		"capabilities": []string{"quick_answer", "deep_analysis", "fan_out", "retrieval"},
		"levels":       map[string]any{"agent": true, "enhanced": true, "initiative": true},
	}
	if s.rag != nil {
		snap := s.rag.Snapshot()
		body["rag_latency"] = map[string]any{
			"last": snap.LastMs, "slow_count": snap.SlowCount, "last_slow_at": snap.LastSlowAt,
			"thresholds_ms": map[string]int64{"embed": snap.Thresholds.EmbedMs, "prepare": snap.Thresholds.PrepareMs, "plan": snap.Thresholds.PlanMs},
		}
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type boardConsultRequest struct {
	Question      string `json:"question"`
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
	Source        string `json:"source"`
}

func (s *Server) handleBoardConsult(w http.ResponseWriter, r *http.Request) {
	var req boardConsultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	decision, ok, err := s.board.Get(r.Context(), req.CorrelationID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		decision = model.BoardDecision{ID: uuid.NewString(), Decision: "no prior escalation found for this correlation id"}
	}
	respondJSON(w, http.StatusOK, decision)
}

// requireAPIKey guards a handler with the configured X-API-Key, matching
// spec.md §6's "POST /api/board/consult ... guarded by X-API-Key".
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.boardAPIKey != "" && r.Header.Get("X-API-Key") != s.boardAPIKey {
			respondError(w, http.StatusUnauthorized, "invalid or missing X-API-Key")
			return
		}
		next(w, r)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message})
}
