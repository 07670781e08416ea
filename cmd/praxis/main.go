// Command praxis is a terminal client for the Praxis learning platform.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/logger"
	"github.com/praxislearn/praxis-cli/internal/service"
	"github.com/praxislearn/praxis-cli/internal/store"
	"github.com/praxislearn/praxis-cli/internal/worker"
)

// app bundles the wired services for command handlers.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	st       *store.FileStore
	bus      *event.Bus
	client   *api.Client
	sessions *service.SessionService
	catalog  *service.CatalogService
	quizzes  *service.QuizService
	cases    *service.CaseService
	chat     *service.ChatService
}

func usage() {
	fmt.Fprintf(os.Stderr, `praxis CLI

Usage:
  praxis <command> [flags]

Commands:
  login      -email <addr> | -sso        log in via emailed code or browser SSO
  logout                                 end the session and clear local state
  whoami                                 show the authenticated user
  dashboard                              show scores and course progression
  catalog    [-course <name>]            browse courses, modules and topics
  select     -course <name> [-module <name>]
                                         set the working course/module
  quiz       [-positioning] [-final] [-course <name>] [-module <name>]
                                         take a timed evaluation
  case       [-course <name>] [-module <name>]
                                         take a practical case evaluation
  chat                                   talk to the learning assistant
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── Initialize State Store ────────────────────────────────────────
	st, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.StateDir).Msg("Failed to open state directory")
	}

	// ─── Initialize Services ───────────────────────────────────────────
	bus := event.NewBus(log)
	client := api.New(cfg, st, bus, log)
	sessions := service.NewSessionService(cfg, client, st, bus, log)
	catalog := service.NewCatalogService(cfg, client, st, bus, log)

	a := &app{
		cfg:      cfg,
		log:      log,
		st:       st,
		bus:      bus,
		client:   client,
		sessions: sessions,
		catalog:  catalog,
		quizzes:  service.NewQuizService(cfg, client, catalog, st, log),
		cases:    service.NewCaseService(cfg, client, log),
		chat:     service.NewChatService(cfg, client, bus, log),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go catalog.Start(ctx)
	a.chat.Start(ctx)

	switch cmd {
	case "login":
		err = a.cmdLogin(ctx, args)
	case "logout":
		err = a.cmdLogout(ctx)
	case "whoami":
		err = a.cmdWhoami(ctx)
	case "dashboard":
		err = a.cmdDashboard(ctx)
	case "catalog":
		err = a.cmdCatalog(ctx, args)
	case "select":
		err = a.cmdSelect(ctx, args)
	case "quiz":
		err = a.cmdQuiz(ctx, args)
	case "case":
		err = a.cmdCase(ctx, args)
	case "chat":
		err = a.cmdChat(ctx)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// requireSession re-validates the stored session before an authenticated
// command and starts the background refresh watchdog for interactive ones.
func (a *app) requireSession(ctx context.Context, interactive bool) error {
	if !a.sessions.VerifySession(ctx) {
		return fmt.Errorf("not logged in; run `praxis login` first")
	}
	a.sessions.HandleWakeUp(ctx)
	if interactive {
		wd := worker.NewSessionWatchdog(a.sessions, 0, a.log)
		go wd.Start(ctx)
	}
	return nil
}
