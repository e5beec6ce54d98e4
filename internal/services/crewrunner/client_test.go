package crewrunner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/config"
	"crew-orchestrator/internal/models"
)

func newTestClient(runnerURL string) *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Server.BaseURL = "https://orchestrator.example.com"
	cfg.Runner.BaseURL = runnerURL
	cfg.Runner.BearerToken = "runner-token"
	cfg.Webhook.SecretToken = "webhook-secret"

	return NewClient(cfg, log)
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
	return payload
}

func assertWebhookDescriptors(t *testing.T, payload map[string]interface{}) {
	t.Helper()

	hitl, ok := payload["humanInputWebhook"].(map[string]interface{})
	if !ok {
		t.Fatal("humanInputWebhook descriptor missing")
	}
	if hitl["url"] != "https://orchestrator.example.com/api/v1/webhook/hitl" {
		t.Errorf("hitl url = %v", hitl["url"])
	}
	auth, _ := hitl["authentication"].(map[string]interface{})
	if auth["strategy"] != "bearer" || auth["token"] != "webhook-secret" {
		t.Errorf("hitl authentication = %v", auth)
	}

	webhooks, ok := payload["webhooks"].(map[string]interface{})
	if !ok {
		t.Fatal("webhooks descriptor missing")
	}
	if webhooks["url"] != "https://orchestrator.example.com/api/v1/webhook/stream" {
		t.Errorf("stream url = %v", webhooks["url"])
	}
	eventList, _ := webhooks["events"].([]interface{})
	if len(eventList) != len(StreamEvents) {
		t.Errorf("subscribed to %d events, want %d", len(eventList), len(StreamEvents))
	}
}

func TestStartSendsWebhookDescriptors(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kickoff" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer runner-token" {
			t.Errorf("authorization header = %q", got)
		}
		captured = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]string{"kickoff_id": "job-123"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	jobID, err := client.Start(context.Background(), map[string]string{"topic": "Go testing"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if jobID != "job-123" {
		t.Errorf("jobID = %q", jobID)
	}

	inputs, _ := captured["inputs"].(map[string]interface{})
	if inputs["topic"] != "Go testing" {
		t.Errorf("inputs = %v", inputs)
	}
	assertWebhookDescriptors(t, captured)
}

func TestStartRejectsMissingKickoffID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Start(context.Background(), nil)
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestStartUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Start(context.Background(), nil)
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestResumeReattachesWebhookDescriptors(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resume" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		captured = decodeBody(t, r)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if err := client.Resume(context.Background(), "job-123", "final_qa", "looks good", true); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if captured["execution_id"] != "job-123" {
		t.Errorf("execution_id = %v", captured["execution_id"])
	}
	if captured["task_id"] != "final_qa" {
		t.Errorf("task_id = %v", captured["task_id"])
	}
	if captured["human_feedback"] != "looks good" {
		t.Errorf("human_feedback = %v", captured["human_feedback"])
	}
	if captured["is_approve"] != true {
		t.Errorf("is_approve = %v", captured["is_approve"])
	}
	assertWebhookDescriptors(t, captured)
}

func TestCancelStatusHandling(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantCancelled bool
		wantErr       bool
	}{
		{name: "ok confirms", status: http.StatusOK, wantCancelled: true},
		{name: "accepted confirms", status: http.StatusAccepted, wantCancelled: true},
		{name: "not found is soft", status: http.StatusNotFound, wantCancelled: false},
		{name: "method not allowed is soft", status: http.StatusMethodNotAllowed, wantCancelled: false},
		{name: "server error fails", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/cancel/job-123" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			cancelled, err := newTestClient(server.URL).Cancel(context.Background(), "job-123")
			if tt.wantErr {
				if !errors.Is(err, models.ErrUpstream) {
					t.Fatalf("expected ErrUpstream, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel: %v", err)
			}
			if cancelled != tt.wantCancelled {
				t.Errorf("cancelled = %v, want %v", cancelled, tt.wantCancelled)
			}
		})
	}
}
