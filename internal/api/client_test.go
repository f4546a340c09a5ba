package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"loom/internal/api"
	"loom/internal/queue"
	"loom/internal/services"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(api.QueueStatsResponse{Counts: map[string]int{"pending": 0}})
	}))
	defer server.Close()

	client := api.NewClient(server.URL, api.WithToken("sekrit"))
	if _, err := client.Stats(context.Background()); err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("expected bearer token header, got %q", gotAuth)
	}
}

func TestClientSubmitRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode submit request: %v", err)
		}
		if req.SubjectID != "vid-7" {
			t.Errorf("expected subject vid-7, got %q", req.SubjectID)
		}
		if req.Priority == nil || *req.Priority != 8 {
			t.Errorf("expected priority pointer 8, got %v", req.Priority)
		}
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{
			Job:     api.Job{ID: 12, SubjectID: req.SubjectID, Status: "pending", Priority: 8},
			Created: true,
		})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	priority := 8
	resp, err := client.Submit(context.Background(), api.SubmitRequest{SubjectID: "vid-7", Priority: &priority})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !resp.Created || resp.Job.ID != 12 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientMapsLeaseConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "lease conflict: job 3 not held by w-1"})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	_, err := client.Complete(context.Background(), api.CompleteRequest{JobID: 3, WorkerID: "w-1"})
	if !errors.Is(err, queue.ErrLeaseConflict) {
		t.Fatalf("expected lease conflict error, got %v", err)
	}
}

func TestClientMapsValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "subject id is required"})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	_, err := client.Submit(context.Background(), api.SubmitRequest{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientStatusNotFoundMeansNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "subject never submitted"})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	job, err := client.Status(context.Background(), "vid-missing")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job for 404, got %+v", job)
	}
}

func TestClientClaimHandlesEmptyQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/worker/claim" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.ClaimResponse{})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	job, err := client.Claim(context.Background(), api.ClaimRequest{WorkerID: "w-1"})
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job on empty queue, got %+v", job)
	}
}

func TestClientListEncodesStatusFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query()["status"]
		if len(got) != 2 || got[0] != "pending" || got[1] != "running" {
			t.Errorf("unexpected status filters: %v", got)
		}
		_ = json.NewEncoder(w).Encode(api.QueueListResponse{Jobs: []api.Job{{ID: 1}}})
	}))
	defer server.Close()

	client := api.NewClient(server.URL)
	jobs, err := client.List(context.Background(), "pending", "running")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 1 {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}
