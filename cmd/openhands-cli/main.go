package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/MkDev11/OpenHands/pkg/appclient"
	"github.com/MkDev11/OpenHands/pkg/conversation"
	"github.com/MkDev11/OpenHands/pkg/selection"
)

func main() {
	var cfg Config
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zapCfg := zap.NewProductionConfig()
	if cfg.Verbose {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zl, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	log := zapr.NewLogger(zl)

	if err := run(ctx, cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "openhands-cli error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log logr.Logger) error {
	client := appclient.NewClient(cfg.ServerURL, appclient.WithLogger(log))

	if err := client.WaitReady(ctx, cfg.WaitTimeout); err != nil {
		return fmt.Errorf("app server at %s not reachable: %w", cfg.ServerURL, err)
	}

	switch cfg.Target {
	case TargetClear:
		return runClear(ctx, cfg, log, client)
	case TargetLaunch:
		return runLaunch(ctx, cfg, log, client)
	case TargetConversations:
		return runConversations(ctx, cfg, client)
	}
	return nil
}

// runClear clones the conversation into the same sandbox and retires the old
// one, printing the new conversation path.
func runClear(ctx context.Context, cfg Config, log logr.Logger, client *appclient.Client) error {
	sandboxID := cfg.SandboxID
	if sandboxID == "" {
		convs, err := client.BatchGetConversations(ctx, []string{cfg.ConversationID})
		if err != nil {
			return fmt.Errorf("resolving sandbox for %s: %w", cfg.ConversationID, err)
		}
		if convs[0] == nil {
			return fmt.Errorf("conversation %s not found", cfg.ConversationID)
		}
		sandboxID = convs[0].SandboxID
	}

	flow := &conversation.ClearFlow{
		API:   client,
		Nav:   conversation.NavigatorFunc(func(path string) { fmt.Println(path) }),
		Cache: conversation.NewInvalidationHub(),
		Log:   log,
	}

	newID, err := flow.Run(ctx, cfg.ConversationID, sandboxID)
	if err != nil {
		return err
	}
	flow.Wait()

	log.Info("conversation cleared", "new", newID)
	return nil
}

// runLaunch resolves the repository and branch through the selection flow and
// starts a fresh conversation against them.
func runLaunch(ctx context.Context, cfg Config, log logr.Logger, client *appclient.Client) error {
	repos, err := client.SearchRepositories(ctx, cfg.Repo)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return fmt.Errorf("no repository matches %q", cfg.Repo)
	}

	flow := selection.NewFlow(client, func(ctx context.Context, repo appclient.Repository, branch appclient.Branch) error {
		task, err := client.StartConversation(ctx, appclient.StartConversationRequest{
			Repository:  repo.FullName,
			Branch:      branch.Name,
			GitProvider: repo.GitProvider,
		})
		if err != nil {
			return err
		}

		poller := &conversation.StartTaskPoller{Fetcher: client, Log: log}
		newID, err := poller.Poll(ctx, task.ID)
		if err != nil {
			return err
		}
		fmt.Println("/conversations/" + newID)
		return nil
	})
	defer flow.Close()

	flow.SelectRepository(repos[0])

	branchName := cfg.Branch
	if branchName == "" {
		branches, err := flow.Branches(ctx)
		if err != nil {
			return err
		}
		if len(branches) == 0 {
			return fmt.Errorf("repository %s has no branches", repos[0].FullName)
		}
		branchName = branches[0].Name
	}
	if err := flow.SelectBranch(appclient.Branch{Name: branchName}); err != nil {
		return err
	}

	return flow.Launch(ctx)
}

// runConversations batch-fetches conversations and prints one line each.
func runConversations(ctx context.Context, cfg Config, client *appclient.Client) error {
	ids := strings.Split(cfg.IDs, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}

	convs, err := client.BatchGetConversations(ctx, ids)
	if err != nil {
		return err
	}

	for i, conv := range convs {
		if conv == nil {
			fmt.Printf("%s\t<not found>\n", ids[i])
			continue
		}
		fmt.Printf("%s\tsandbox=%s\tstatus=%s\trepo=%s\n", conv.ID, conv.SandboxID, conv.SandboxStatus, conv.SelectedRepository)
	}
	return nil
}
