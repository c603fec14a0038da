package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

type fakeBranchLister struct {
	branches map[string][]appclient.Branch
	calls    int
}

func (f *fakeBranchLister) GetRepositoryBranches(_ context.Context, repoID string) ([]appclient.Branch, error) {
	f.calls++
	branches, ok := f.branches[repoID]
	if !ok {
		return nil, errors.New("repository not found")
	}
	return branches, nil
}

var (
	repoWidgets = appclient.Repository{ID: "repo-1", FullName: "acme/widgets"}
	repoGadgets = appclient.Repository{ID: "repo-2", FullName: "acme/gadgets"}
)

func newTestLister() *fakeBranchLister {
	return &fakeBranchLister{branches: map[string][]appclient.Branch{
		"repo-1": {{Name: "main"}, {Name: "dev"}},
		"repo-2": {{Name: "trunk"}},
	}}
}

func TestFlowSelection(t *testing.T) {
	t.Run("branch requires repository", func(t *testing.T) {
		flow := NewFlow(newTestLister(), nil)

		err := flow.SelectBranch(appclient.Branch{Name: "main"})
		require.ErrorIs(t, err, ErrNoRepositorySelected)

		_, err = flow.Branches(context.Background())
		require.ErrorIs(t, err, ErrNoRepositorySelected)
	})

	t.Run("branches follow the selected repository", func(t *testing.T) {
		flow := NewFlow(newTestLister(), nil)

		flow.SelectRepository(repoWidgets)
		branches, err := flow.Branches(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []appclient.Branch{{Name: "main"}, {Name: "dev"}}, branches)

		flow.SelectRepository(repoGadgets)
		branches, err = flow.Branches(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []appclient.Branch{{Name: "trunk"}}, branches)
	})

	t.Run("changing repository resets the branch", func(t *testing.T) {
		flow := NewFlow(newTestLister(), nil)

		flow.SelectRepository(repoWidgets)
		require.NoError(t, flow.SelectBranch(appclient.Branch{Name: "dev"}))
		assert.True(t, flow.CanLaunch())

		flow.SelectRepository(repoGadgets)
		assert.False(t, flow.CanLaunch())

		repo, branch := flow.Selection()
		require.NotNil(t, repo)
		assert.Equal(t, "repo-2", repo.ID)
		assert.Nil(t, branch)
	})

	t.Run("close resets both selections", func(t *testing.T) {
		flow := NewFlow(newTestLister(), nil)

		flow.SelectRepository(repoWidgets)
		require.NoError(t, flow.SelectBranch(appclient.Branch{Name: "main"}))
		flow.Close()

		repo, branch := flow.Selection()
		assert.Nil(t, repo)
		assert.Nil(t, branch)
		assert.False(t, flow.CanLaunch())
	})
}

func TestFlowLaunch(t *testing.T) {
	t.Run("launch gated on both selections", func(t *testing.T) {
		launched := 0
		flow := NewFlow(newTestLister(), func(context.Context, appclient.Repository, appclient.Branch) error {
			launched++
			return nil
		})

		err := flow.Launch(context.Background())
		require.ErrorIs(t, err, ErrIncompleteSelection)

		flow.SelectRepository(repoWidgets)
		err = flow.Launch(context.Background())
		require.ErrorIs(t, err, ErrIncompleteSelection)
		assert.Equal(t, 0, launched)
	})

	t.Run("launch receives the chosen pair", func(t *testing.T) {
		var gotRepo appclient.Repository
		var gotBranch appclient.Branch
		flow := NewFlow(newTestLister(), func(_ context.Context, repo appclient.Repository, branch appclient.Branch) error {
			gotRepo, gotBranch = repo, branch
			return nil
		})

		flow.SelectRepository(repoWidgets)
		require.NoError(t, flow.SelectBranch(appclient.Branch{Name: "dev"}))
		require.NoError(t, flow.Launch(context.Background()))

		assert.Equal(t, "acme/widgets", gotRepo.FullName)
		assert.Equal(t, "dev", gotBranch.Name)
	})

	t.Run("launch errors propagate", func(t *testing.T) {
		launchErr := errors.New("backend refused")
		flow := NewFlow(newTestLister(), func(context.Context, appclient.Repository, appclient.Branch) error {
			return launchErr
		})

		flow.SelectRepository(repoWidgets)
		require.NoError(t, flow.SelectBranch(appclient.Branch{Name: "main"}))
		require.ErrorIs(t, flow.Launch(context.Background()), launchErr)
	})
}
