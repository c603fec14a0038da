// Package selection implements the two-step repository + branch picker that
// gates launching a new agent session. Branch choices depend on the chosen
// repository; changing the repository discards any chosen branch.
package selection

import (
	"context"
	"errors"
	"sync"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

var (
	// ErrNoRepositorySelected is returned when a branch is chosen or listed
	// before a repository.
	ErrNoRepositorySelected = errors.New("no repository selected")
	// ErrIncompleteSelection is returned when launching without both a
	// repository and a branch.
	ErrIncompleteSelection = errors.New("repository and branch must both be selected")
)

// BranchLister lists the branches of a repository. *appclient.Client
// satisfies it.
type BranchLister interface {
	GetRepositoryBranches(ctx context.Context, repoID string) ([]appclient.Branch, error)
}

// LaunchFunc receives the completed (repository, branch) pair.
type LaunchFunc func(ctx context.Context, repo appclient.Repository, branch appclient.Branch) error

// Flow collects a (repository, branch) pair and hands it to the launch
// function only once both are chosen.
type Flow struct {
	branches BranchLister
	launch   LaunchFunc

	mu     sync.Mutex
	repo   *appclient.Repository
	branch *appclient.Branch
}

// NewFlow creates a selection flow over the given branch source and launch
// function.
func NewFlow(branches BranchLister, launch LaunchFunc) *Flow {
	return &Flow{branches: branches, launch: launch}
}

// SelectRepository chooses a repository and discards any previously chosen
// branch.
func (f *Flow) SelectRepository(repo appclient.Repository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repo = &repo
	f.branch = nil
}

// SelectBranch chooses a branch for the current repository.
func (f *Flow) SelectBranch(branch appclient.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repo == nil {
		return ErrNoRepositorySelected
	}
	f.branch = &branch
	return nil
}

// Branches lists branch choices for the currently selected repository.
func (f *Flow) Branches(ctx context.Context) ([]appclient.Branch, error) {
	f.mu.Lock()
	repo := f.repo
	f.mu.Unlock()
	if repo == nil {
		return nil, ErrNoRepositorySelected
	}
	return f.branches.GetRepositoryBranches(ctx, repo.ID)
}

// Selection returns copies of the current choices; nil for anything not yet
// chosen.
func (f *Flow) Selection() (*appclient.Repository, *appclient.Branch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var repo *appclient.Repository
	var branch *appclient.Branch
	if f.repo != nil {
		r := *f.repo
		repo = &r
	}
	if f.branch != nil {
		b := *f.branch
		branch = &b
	}
	return repo, branch
}

// CanLaunch reports whether both selections have been made.
func (f *Flow) CanLaunch() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repo != nil && f.branch != nil
}

// Launch invokes the launch function with the completed pair.
func (f *Flow) Launch(ctx context.Context) error {
	f.mu.Lock()
	repo, branch := f.repo, f.branch
	f.mu.Unlock()
	if repo == nil || branch == nil {
		return ErrIncompleteSelection
	}
	return f.launch(ctx, *repo, *branch)
}

// Close cancels the flow, resetting both selections.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repo = nil
	f.branch = nil
}
