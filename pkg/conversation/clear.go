package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

// CacheKey is a logical key of a client-side cached view. Invalidating a key
// tells subscribers that subsequent reads must refetch.
type CacheKey []string

func (k CacheKey) String() string { return strings.Join(k, "/") }

// Cache keys invalidated after a successful clear.
var (
	CacheKeyUserConversations     = CacheKey{"user", "conversations"}
	CacheKeyBatchGetConversations = CacheKey{"v1-batch-get-app-conversations"}
)

// ConversationAPI is the slice of the app-server client the clear flow needs.
// *appclient.Client satisfies it.
type ConversationAPI interface {
	StartConversation(ctx context.Context, req appclient.StartConversationRequest) (*appclient.StartTask, error)
	GetStartTask(ctx context.Context, taskID string) (*appclient.StartTask, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	ClearConversation(ctx context.Context, conversationID string) (*appclient.ClearConversationResult, error)
}

// Navigator receives the client-visible target path once a replacement
// conversation is ready.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Invalidator marks cached views stale. *InvalidationHub satisfies it.
type Invalidator interface {
	Invalidate(keys ...CacheKey)
}

// ClearFlow implements "clear conversation" as clone-and-redirect: a new
// conversation is started in the same sandbox, inherited from the current
// one, and the user is moved over once it is ready. The old conversation is
// deleted best-effort afterwards.
//
// A flow is not idempotent: every Run starts a fresh clone chained from the
// given conversation. Callers must prevent overlapping invocations for the
// same conversation, e.g. by disabling the triggering control while one is
// in flight.
type ClearFlow struct {
	API    ConversationAPI
	Nav    Navigator
	Cache  Invalidator
	Poller *StartTaskPoller // optional; zero-config poller over API when nil
	Log    logr.Logger

	wg sync.WaitGroup
}

// Run clears the conversation by cloning it. It returns the ID of the
// replacement conversation, or an error leaving the caller on the current
// one. No network call is made when either precondition ID is missing.
func (f *ClearFlow) Run(ctx context.Context, conversationID, sandboxID string) (string, error) {
	if conversationID == "" || sandboxID == "" {
		return "", errors.New("no active conversation with a sandbox to clear")
	}

	task, err := f.API.StartConversation(ctx, appclient.StartConversationRequest{
		ParentConversationID: conversationID,
	})
	if err != nil {
		return "", fmt.Errorf("starting replacement conversation: %w", err)
	}

	poller := f.Poller
	if poller == nil {
		poller = &StartTaskPoller{Fetcher: f.API, Log: f.Log}
	}
	newID, err := poller.Poll(ctx, task.ID)
	if err != nil {
		return "", err
	}

	f.Log.Info("conversation cleared", "old", conversationID, "new", newID)
	f.finish(ctx, newID)
	f.deleteDetached(ctx, conversationID)
	return newID, nil
}

// RunDirect clears the conversation through the single-call backend variant.
// The old conversation is retired server-side, so there is no client-side
// cleanup step.
func (f *ClearFlow) RunDirect(ctx context.Context, conversationID string) (string, error) {
	if conversationID == "" {
		return "", errors.New("no active conversation to clear")
	}

	res, err := f.API.ClearConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}

	f.Log.Info("conversation cleared", "old", conversationID, "new", res.NewConversationID)
	f.finish(ctx, res.NewConversationID)
	return res.NewConversationID, nil
}

// finish navigates to the replacement conversation and invalidates cached
// conversation lists. Only called on success.
func (f *ClearFlow) finish(_ context.Context, newID string) {
	if f.Nav != nil {
		f.Nav.Navigate("/conversations/" + newID)
	}
	if f.Cache != nil {
		f.Cache.Invalidate(CacheKeyUserConversations, CacheKeyBatchGetConversations)
	}
}

// deleteDetached removes the replaced conversation in the background.
// Failures are logged and swallowed; they never surface to the caller and
// never block navigation.
func (f *ClearFlow) deleteDetached(ctx context.Context, conversationID string) {
	cleanupCtx := context.WithoutCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.API.DeleteConversation(cleanupCtx, conversationID); err != nil {
			f.Log.Error(err, "best-effort delete of replaced conversation failed", "conversation", conversationID)
		}
	}()
}

// Wait blocks until detached cleanup work has finished. Intended for tests
// and shutdown paths.
func (f *ClearFlow) Wait() { f.wg.Wait() }
