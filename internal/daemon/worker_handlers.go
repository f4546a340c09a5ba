package daemon

import (
	"net/http"

	"loom/internal/api"
)

func (s *apiServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.ClaimRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.Claim(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	// An empty queue is a normal outcome, not an error.
	s.writeJSON(w, http.StatusOK, api.ClaimResponse{Job: job})
}

func (s *apiServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.CompleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.Complete(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleFail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.FailRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.Fail(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.ProgressRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.Progress(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
