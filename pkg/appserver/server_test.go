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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

func newTestServer(t *testing.T, opts Options) (*Server, *appclient.Client, func()) {
	t.Helper()
	s := New(opts)
	srv := httptest.NewServer(s.Handler())
	return s, appclient.NewClient(srv.URL), srv.Close
}

func TestStartTaskLifecycle(t *testing.T) {
	t.Run("task flips to READY after the configured polls", func(t *testing.T) {
		s, c, done := newTestServer(t, Options{ReadyAfterPolls: 2})
		defer done()

		parent := s.Seed(appclient.AppConversation{})

		task, err := c.StartConversation(context.Background(), appclient.StartConversationRequest{
			ParentConversationID: parent.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, appclient.StartTaskWorking, task.Status)

		snap, err := c.GetStartTask(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, appclient.StartTaskWorking, snap.Status)
		assert.Empty(t, snap.AppConversationID)

		snap, err = c.GetStartTask(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, appclient.StartTaskReady, snap.Status)
		require.NotEmpty(t, snap.AppConversationID)

		// The materialized conversation inherits the parent's sandbox.
		convs, err := c.BatchGetConversations(context.Background(), []string{snap.AppConversationID})
		require.NoError(t, err)
		require.Len(t, convs, 1)
		require.NotNil(t, convs[0])
		assert.Equal(t, parent.SandboxID, convs[0].SandboxID)
		assert.Equal(t, parent.ID, convs[0].ParentID)
	})

	t.Run("unknown parent is a 404", func(t *testing.T) {
		_, c, done := newTestServer(t, Options{})
		defer done()

		_, err := c.StartConversation(context.Background(), appclient.StartConversationRequest{
			ParentConversationID: uuid.NewString(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("forced failure carries detail", func(t *testing.T) {
		s, c, done := newTestServer(t, Options{})
		defer done()

		parent := s.Seed(appclient.AppConversation{})
		s.FailNextStart("Sandbox crashed")

		task, err := c.StartConversation(context.Background(), appclient.StartConversationRequest{
			ParentConversationID: parent.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, appclient.StartTaskError, task.Status)
		assert.Equal(t, "Sandbox crashed", task.Detail)

		// Terminal tasks stay terminal however often they are polled.
		snap, err := c.GetStartTask(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, appclient.StartTaskError, snap.Status)
	})
}

func TestBatchGetValidation(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	t.Run("dashless ids are accepted", func(t *testing.T) {
		conv := s.Seed(appclient.AppConversation{})
		dashless := strings.ReplaceAll(conv.ID, "-", "")

		resp, err := http.Get(srv.URL + "/api/v1/app-conversations?ids=" + dashless)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var convs []*appclient.AppConversation
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&convs))
		require.Len(t, convs, 1)
		require.NotNil(t, convs[0])
		assert.Equal(t, conv.ID, convs[0].ID)
	})

	t.Run("invalid ids are a 400 naming every offender", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/app-conversations?ids=not-a-uuid&ids=12345&ids=" + uuid.NewString())
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var errResp appclient.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Equal(t, "Invalid UUID format", errResp.Error)
		assert.Contains(t, errResp.Details, "not-a-uuid")
		assert.Contains(t, errResp.Details, "12345")
	})

	t.Run("too many ids", func(t *testing.T) {
		q := make([]string, 100)
		for i := range q {
			q[i] = "ids=" + uuid.NewString()
		}
		resp, err := http.Get(srv.URL + "/api/v1/app-conversations?" + strings.Join(q, "&"))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var errResp appclient.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Equal(t, "Too many ids", errResp.Error)
	})

	t.Run("missing conversations come back null", func(t *testing.T) {
		conv := s.Seed(appclient.AppConversation{})
		resp, err := http.Get(srv.URL + "/api/v1/app-conversations?ids=" + conv.ID + "&ids=" + uuid.NewString())
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var convs []*appclient.AppConversation
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&convs))
		require.Len(t, convs, 2)
		assert.NotNil(t, convs[0])
		assert.Nil(t, convs[1])
	})
}

func TestClearEndpoint(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		s, c, done := newTestServer(t, Options{})
		defer done()

		conv := s.Seed(appclient.AppConversation{})

		res, err := c.ClearConversation(context.Background(), conv.ID)
		require.NoError(t, err)

		assert.Equal(t, "Conversation history cleared. Runtime state preserved.", res.Message)
		assert.Equal(t, "WORKING", res.Status)
		assert.Equal(t, strings.ReplaceAll(conv.ID, "-", ""), res.ParentConversationID)
		assert.NotEmpty(t, res.NewConversationID)
		assert.NotContains(t, res.NewConversationID, "-")
	})

	t.Run("unknown conversation", func(t *testing.T) {
		_, c, done := newTestServer(t, Options{})
		defer done()

		_, err := c.ClearConversation(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestDeleteEndpoint(t *testing.T) {
	s, c, done := newTestServer(t, Options{})
	defer done()

	conv := s.Seed(appclient.AppConversation{})

	require.NoError(t, c.DeleteConversation(context.Background(), conv.ID))

	err := c.DeleteConversation(context.Background(), conv.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGitFixtures(t *testing.T) {
	_, c, done := newTestServer(t, Options{})
	defer done()

	repos, err := c.SearchRepositories(context.Background(), "widgets")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "acme/widgets", repos[0].FullName)

	branches, err := c.GetRepositoryBranches(context.Background(), repos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []appclient.Branch{{Name: "main"}, {Name: "dev"}}, branches)

	_, err = c.GetRepositoryBranches(context.Background(), "repo-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestContentTypeMiddleware(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/app-conversations", "text/plain", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}
