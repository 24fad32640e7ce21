package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/vulcanci/vulcan-core/internal/discovery"
	"github.com/vulcanci/vulcan-core/internal/webhook"
)

// APIResponse is the standard API response format.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// handleWebhook receives a signed delivery, verifies it, and kicks off the
// matching workflow runs in the background. The sender gets an immediate
// answer:
//
//	403 when the signature does not verify,
//	200 when the delivery is accepted, is a no-op, or carries an
//	    undecodable payload (acknowledged so the sender does not retry),
//	500 when workflow discovery itself fails.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Error: "cannot read body"})
		return
	}

	sig := r.Header.Get("X-Hub-Signature-256")
	if !webhook.VerifySignature(s.config.WebhookSecret, body, sig) {
		log.Printf("webhook: rejected delivery with bad signature")
		writeJSON(w, http.StatusForbidden, APIResponse{Error: "signature verification failed"})
		return
	}

	ev, err := webhook.ParseEvent(body, r.Header.Get("X-GitHub-Event"))
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidPayload) {
			// Authenticated but undecodable: acknowledge and skip, the
			// sender must not retry-storm.
			log.Printf("webhook: acknowledged invalid payload: %v", err)
			writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: "ignored"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, APIResponse{Error: err.Error()})
		return
	}

	defs, err := discovery.Discover(s.config.WorkflowsDir, ev)
	if err != nil {
		log.Printf("webhook: discovery failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, APIResponse{Error: "workflow discovery failed"})
		return
	}

	if len(defs) == 0 {
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: "no matching workflows"})
		return
	}

	log.Printf("webhook: %s event on %s matched %d workflow(s)", ev.Kind, ev.RefName, len(defs))

	// Execution happens after the ACK; the sender never waits on a run.
	go func() {
		for _, report := range s.runner.RunAll(context.Background(), defs, ev) {
			s.recordRun(report)
		}
	}()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]int{"workflows_started": len(defs)},
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: "ok"})
}

// handleStats returns execution-history statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Error: "method not allowed"})
		return
	}

	if s.store == nil {
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: "learning disabled"})
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, APIResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: stats})
}

// handleRuns returns recent run reports, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Error: "method not allowed"})
		return
	}

	s.mu.Lock()
	runs := s.history.list()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: runs})
}
