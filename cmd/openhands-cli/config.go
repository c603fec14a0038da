package main

import (
	"errors"
	"flag"
	"time"
)

// Targets for the single-binary multi-target pattern.
const (
	TargetClear         = "clear"
	TargetLaunch        = "launch"
	TargetConversations = "conversations"
)

// Config holds all configuration for the CLI.
type Config struct {
	ServerURL string
	Target    string

	// clear
	ConversationID string
	SandboxID      string

	// launch
	Repo   string
	Branch string

	// conversations
	IDs string

	WaitTimeout time.Duration
	Verbose     bool
}

// RegisterFlags registers configuration flags.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ServerURL, "server", "http://localhost:3000", "App server base URL")
	f.StringVar(&c.Target, "target", TargetClear, "Action to run: clear, launch, conversations")
	f.StringVar(&c.ConversationID, "conversation", "", "Conversation to clear")
	f.StringVar(&c.SandboxID, "sandbox", "", "Sandbox of the conversation; resolved from the server when unset")
	f.StringVar(&c.Repo, "repo", "", "Repository full name (or substring) to launch against")
	f.StringVar(&c.Branch, "branch", "", "Branch to launch against; defaults to the repository's first branch")
	f.StringVar(&c.IDs, "ids", "", "Comma-separated conversation IDs to fetch")
	f.DurationVar(&c.WaitTimeout, "wait-timeout", 30*time.Second, "How long to wait for the app server to become reachable")
	f.BoolVar(&c.Verbose, "v", false, "Verbose logging")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server URL is required")
	}
	switch c.Target {
	case TargetClear:
		if c.ConversationID == "" {
			return errors.New("clear requires -conversation")
		}
	case TargetLaunch:
		if c.Repo == "" {
			return errors.New("launch requires -repo")
		}
	case TargetConversations:
		if c.IDs == "" {
			return errors.New("conversations requires -ids")
		}
	default:
		return errors.New("invalid target: must be one of clear, launch, conversations")
	}
	return nil
}
