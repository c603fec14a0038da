package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"

	"github.com/MkDev11/OpenHands/pkg/appclient"
	"github.com/MkDev11/OpenHands/pkg/appserver"
)

func main() {
	listenAddr := flag.String("listen", ":3000", "listen address")
	readyAfter := flag.Int("ready-after-polls", 2, "status fetches before a start task turns READY")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logr.FromSlogHandler(slog.Default().Handler())

	srv := appserver.New(appserver.Options{
		ReadyAfterPolls: *readyAfter,
		Log:             log,
	})

	// Seed one conversation so clear/batch-get can be exercised right away.
	demo := srv.Seed(appclient.AppConversation{Title: "demo"})
	slog.Info("seeded demo conversation", "conversation", demo.ID, "sandbox", demo.SandboxID)

	if err := srv.Run(ctx, *listenAddr); err != nil {
		slog.Error("stub app server failed", "error", err)
		os.Exit(1)
	}
}
