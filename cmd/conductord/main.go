package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agent-conductor/conductord/internal/api"
	"github.com/agent-conductor/conductord/internal/approval"
	"github.com/agent-conductor/conductord/internal/cleanup"
	"github.com/agent-conductor/conductord/internal/config"
	"github.com/agent-conductor/conductord/internal/flow"
	"github.com/agent-conductor/conductord/internal/inbox"
	"github.com/agent-conductor/conductord/internal/metrics"
	"github.com/agent-conductor/conductord/internal/profile"
	"github.com/agent-conductor/conductord/internal/providers"
	"github.com/agent-conductor/conductord/internal/session"
	"github.com/agent-conductor/conductord/internal/store"
	"github.com/agent-conductor/conductord/internal/terminal"
	"github.com/agent-conductor/conductord/internal/tmux"
	"github.com/agent-conductor/conductord/internal/watcher"
)

const Version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("conductord %s\n", Version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	runDaemon()
}

func printHelp() {
	fmt.Print(`conductord - tmux agent orchestration daemon

Usage:
  conductord [flags]      run the daemon
  conductord version      print version
  conductord help         show this help

Flags:
  -config string   path to yaml config file
  -listen string   override the listen address
`)
}

func runDaemon() {
	fs := flag.NewFlagSet("conductord", flag.ExitOnError)
	configPath := fs.String("config", "", "path to yaml config file")
	listen := fs.String("listen", "", "override the listen address")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	st, err := store.Open(cfg.Storage.DBFile)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	tmuxClient := tmux.NewClient(&cfg.Tmux)
	profiles := profile.NewLoader(&cfg.Profiles)
	registry := providers.NewRegistry(tmuxClient, profiles, &cfg.Providers)
	defer registry.Shutdown()

	terminals := terminal.NewManager(st, tmuxClient, registry, cfg.Storage.TerminalLogDir)
	sessions := session.NewService(st, terminals)
	inboxSvc := inbox.NewService(st, terminals)
	approvals := approval.NewService(st, terminals, inboxSvc, cfg.Storage.ApprovalsDir)
	flows := flow.NewRegistry(st)
	promptWatcher := watcher.New(st, registry, inboxSvc)
	sweeper := cleanup.NewSweeper(st, terminals, cfg.Storage.TerminalLogDir,
		time.Duration(cfg.Sweeps.RetentionDays)*24*time.Hour)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startSweeps(ctx, cfg, inboxSvc, promptWatcher, sweeper)

	server := api.NewServer(terminals, sessions, inboxSvc, approvals, flows, &cfg.Tmux)
	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("conductord %s listening on %s", Version, cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

// startSweeps launches the three periodic loops. Each pass runs inline
// on its tick loop and the ticker drops ticks in the meantime, so a
// slow pass delays the next one instead of stacking.
func startSweeps(ctx context.Context, cfg *config.Config, inboxSvc *inbox.Service, promptWatcher *watcher.Watcher, sweeper *cleanup.Sweeper) {
	runSweep(ctx, "inbox", time.Duration(cfg.Sweeps.InboxIntervalMs)*time.Millisecond, func() {
		delivered, failed, err := inboxSvc.DeliverAllPending()
		if err != nil {
			log.Printf("inbox sweep: %v", err)
			return
		}
		metrics.InboxDelivered.Add(float64(delivered))
		metrics.InboxFailed.Add(float64(failed))
	})

	runSweep(ctx, "prompt", time.Duration(cfg.Sweeps.PromptIntervalMs)*time.Millisecond, func() {
		forwarded, err := promptWatcher.Scan()
		if err != nil {
			log.Printf("prompt sweep: %v", err)
			return
		}
		metrics.PromptsForwarded.Add(float64(forwarded))
	})

	runSweep(ctx, "cleanup", time.Duration(cfg.Sweeps.CleanupIntervalMs)*time.Millisecond, func() {
		sweeper.Run(time.Now())
	})
}

func runSweep(ctx context.Context, name string, interval time.Duration, pass func()) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				pass()
				metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			}
		}
	}()
}
