/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package appserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

// maxBatchIDs is the per-request limit for batch conversation gets.
const maxBatchIDs = 99

const clearedMessage = "Conversation history cleared. Runtime state preserved."

// conversationHandler holds dependencies for conversation endpoints.
type conversationHandler struct {
	store    *store
	repos    []appclient.Repository
	branches map[string][]appclient.Branch
	log      logr.Logger
}

// startConversation handles POST /api/v1/app-conversations.
func (h *conversationHandler) startConversation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req appclient.StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	task, _, ok := h.store.startConversation(req)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found",
			fmt.Sprintf("parent conversation %s does not exist", req.ParentConversationID))
		return
	}

	h.log.Info("start task created", "task", task.ID, "parent", req.ParentConversationID)
	writeJSON(w, http.StatusAccepted, task)
}

// getStartTask handles GET /api/v1/app-conversations/start-tasks/{taskID}.
func (h *conversationHandler) getStartTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := h.store.getStartTask(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "start task not found", "")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// batchGetConversations handles GET /api/v1/app-conversations?ids=…
// IDs may be dashed or dashless UUIDs; missing conversations come back null.
func (h *conversationHandler) batchGetConversations(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["ids"]
	if len(ids) > maxBatchIDs {
		writeError(w, http.StatusBadRequest, "Too many ids",
			fmt.Sprintf("at most %d ids per request", maxBatchIDs))
		return
	}

	parsed := make([]string, 0, len(ids))
	var invalid []string
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			invalid = append(invalid, id)
			continue
		}
		parsed = append(parsed, u.String())
	}
	if len(invalid) > 0 {
		writeError(w, http.StatusBadRequest, "Invalid UUID format", strings.Join(invalid, ", "))
		return
	}

	results := make([]*appclient.AppConversation, len(parsed))
	for i, id := range parsed {
		if conv, ok := h.store.getConversation(id); ok {
			c := conv
			results[i] = &c
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// getConversation handles GET /api/v1/app-conversations/{conversationID}.
func (h *conversationHandler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.store.getConversation(chi.URLParam(r, "conversationID"))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found", "")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// deleteConversation handles DELETE /api/v1/app-conversations/{conversationID}.
func (h *conversationHandler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if !h.store.deleteConversation(id) {
		writeError(w, http.StatusNotFound, "conversation not found", "")
		return
	}
	h.log.Info("conversation deleted", "conversation", id)
	w.WriteHeader(http.StatusNoContent)
}

// clearConversation handles POST /api/v1/app-conversations/{conversationID}/clear,
// the single-call clear variant: the replacement is started immediately and
// reported back while still WORKING.
func (h *conversationHandler) clearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if _, ok := h.store.getConversation(id); !ok {
		writeError(w, http.StatusNotFound, "conversation not found", "")
		return
	}

	task, newID, ok := h.store.startConversation(appclient.StartConversationRequest{ParentConversationID: id})
	if !ok {
		writeError(w, http.StatusInternalServerError, "Failed to clear conversation", "no task returned")
		return
	}

	h.log.Info("conversation cleared", "old", id, "new", newID)
	writeJSON(w, http.StatusOK, appclient.ClearConversationResult{
		Message:              clearedMessage,
		NewConversationID:    hexID(newID),
		ParentConversationID: hexID(id),
		Status:               string(task.Status),
	})
}

// searchRepositories handles GET /api/v1/git/repositories.
func (h *conversationHandler) searchRepositories(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))
	matches := make([]appclient.Repository, 0, len(h.repos))
	for _, repo := range h.repos {
		if query == "" || strings.Contains(strings.ToLower(repo.FullName), query) {
			matches = append(matches, repo)
		}
	}
	writeJSON(w, http.StatusOK, matches)
}

// getRepositoryBranches handles GET /api/v1/git/repositories/{repoID}/branches.
func (h *conversationHandler) getRepositoryBranches(w http.ResponseWriter, r *http.Request) {
	branches, ok := h.branches[chi.URLParam(r, "repoID")]
	if !ok {
		writeError(w, http.StatusNotFound, "repository not found", "")
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

// hexID renders a UUID string without dashes, matching the wire form the
// clear endpoint historically used. Non-UUID IDs pass through unchanged.
func hexID(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return strings.ReplaceAll(u.String(), "-", "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal encoding error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, appclient.ErrorResponse{Error: msg, Details: details})
}
