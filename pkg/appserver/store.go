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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

// taskState tracks a start task and the conversation it will bring up.
type taskState struct {
	task           appclient.StartTask
	conversationID string
	sandboxID      string
	parentID       string
	repository     string
	branch         string
	polls          int
}

// store holds the stub server's in-memory state. A start task stays WORKING
// until it has been polled readyAfter times, then flips to READY and
// materializes its conversation; this makes readiness deterministic in tests.
type store struct {
	mu             sync.Mutex
	readyAfter     int
	conversations  map[string]*appclient.AppConversation
	tasks          map[string]*taskState
	failNextDetail string
	failNext       bool
}

func newStore(readyAfter int) *store {
	if readyAfter < 1 {
		readyAfter = 1
	}
	return &store{
		readyAfter:    readyAfter,
		conversations: make(map[string]*appclient.AppConversation),
		tasks:         make(map[string]*taskState),
	}
}

// seed inserts a conversation, minting an ID and sandbox ID when unset.
func (s *store) seed(conv appclient.AppConversation) appclient.AppConversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.SandboxID == "" {
		conv.SandboxID = uuid.NewString()
	}
	if conv.SandboxStatus == "" {
		conv.SandboxStatus = "RUNNING"
	}
	if conv.CreatedAt == "" {
		conv.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	c := conv
	s.conversations[conv.ID] = &c
	return conv
}

// failNextStart makes the next started task end in ERROR with the given
// detail. Test hook for sandbox failure scenarios.
func (s *store) failNextStart(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
	s.failNextDetail = detail
}

// startConversation creates a start task and returns it along with the ID of
// the conversation it will bring up. With a parent the new conversation
// inherits the parent's sandbox and repository selection; ok is false when
// the parent does not exist.
func (s *store) startConversation(req appclient.StartConversationRequest) (appclient.StartTask, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &taskState{
		task:           appclient.StartTask{ID: uuid.NewString(), Status: appclient.StartTaskWorking},
		conversationID: uuid.NewString(),
		sandboxID:      uuid.NewString(),
		repository:     req.Repository,
		branch:         req.Branch,
	}

	if req.ParentConversationID != "" {
		parent, ok := s.conversations[req.ParentConversationID]
		if !ok {
			return appclient.StartTask{}, "", false
		}
		st.parentID = parent.ID
		st.sandboxID = parent.SandboxID
		st.repository = parent.SelectedRepository
		st.branch = parent.SelectedBranch
	}

	if s.failNext {
		st.task.Status = appclient.StartTaskError
		st.task.Detail = s.failNextDetail
		s.failNext = false
		s.failNextDetail = ""
	}

	s.tasks[st.task.ID] = st
	return st.task, st.conversationID, true
}

// getStartTask returns the task snapshot, advancing the poll counter and
// flipping to READY once the threshold is reached.
func (s *store) getStartTask(taskID string) (appclient.StartTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[taskID]
	if !ok {
		return appclient.StartTask{}, false
	}

	if !st.task.Status.Terminal() {
		st.polls++
		if st.polls >= s.readyAfter {
			st.task.Status = appclient.StartTaskReady
			st.task.AppConversationID = st.conversationID
			s.conversations[st.conversationID] = &appclient.AppConversation{
				ID:                 st.conversationID,
				SandboxID:          st.sandboxID,
				SandboxStatus:      "RUNNING",
				SelectedRepository: st.repository,
				SelectedBranch:     st.branch,
				ParentID:           st.parentID,
				CreatedAt:          time.Now().UTC().Format(time.RFC3339),
			}
		}
	}
	return st.task, true
}

// getConversation returns a copy of the conversation, or false.
func (s *store) getConversation(id string) (appclient.AppConversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return appclient.AppConversation{}, false
	}
	return *conv, true
}

// deleteConversation removes a conversation, reporting whether it existed.
func (s *store) deleteConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	return true
}
