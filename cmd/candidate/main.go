package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/console"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/realtime"
	"github.com/stemsi/exstem-proctor/internal/remote"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/store"
	"golang.org/x/term"
)

func main() {
	cfg := config.Load()

	var logPath string
	flag.StringVar(&cfg.ExamID, "exam", cfg.ExamID, "Exam ID (EXAM_ID)")
	flag.StringVar(&cfg.UserID, "user", cfg.UserID, "Candidate user ID (USER_ID)")
	flag.StringVar(&cfg.UserName, "name", cfg.UserName, "Candidate display name (USER_NAME)")
	flag.StringVar(&logPath, "log", "candidate.log", "Log file")
	flag.Parse()

	if cfg.ExamID == "" || cfg.UserID == "" {
		fmt.Fprintln(os.Stderr, "Usage: candidate -exam <id> -user <id> [-name <display name>]")
		os.Exit(2)
	}
	if cfg.UserName == "" {
		cfg.UserName = cfg.UserID
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "candidate must run in an interactive terminal")
		os.Exit(1)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	log := logger.SetupWriter(logFile, cfg.LogLevel, "json")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	who := model.Identity{UserID: cfg.UserID, Name: cfg.UserName}
	presenter := console.NewPresenter(os.Stdout)

	ctrl := session.New(
		session.Config{
			ExamID:       cfg.ExamID,
			Identity:     who,
			Interstitial: cfg.LeaderboardInterval,
			Proctor: proctor.Config{
				Bypass: cfg.TabSwitchBypass,
				Limit:  cfg.TabSwitchLimit,
			},
		},
		session.Deps{
			Remote:    remote.NewClient(cfg.BackendAPIURL, cfg.HTTPTimeout, log),
			Dial:      dialer(cfg.BackendWSURL, cfg.ExamID, who, log),
			Counter:   counterStore(ctx, cfg, log),
			Presenter: presenter,
			Log:       log,
		},
	)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enter raw mode: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.WriteString(console.EnableFocusReporting)
	defer func() {
		os.Stdout.WriteString(console.DisableFocusReporting)
		presenter.Close()
		_ = term.Restore(fd, oldState)
	}()

	go func() {
		if err := ctrl.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Session ended with error")
		}
	}()

	keys := make(chan console.Key, 16)
	go readKeys(os.Stdin, keys, log)

	loop(ctx, ctrl, presenter, keys, log)

	ctrl.Stop()
	select {
	case <-ctrl.Done():
	case <-time.After(3 * time.Second):
		log.Warn().Msg("Session did not stop in time")
	}
}

func loop(ctx context.Context, ctrl *session.Controller, presenter *console.Presenter, keys <-chan console.Key, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ctrl.Done():
			return
		case k, ok := <-keys:
			if !ok {
				return
			}
			snap, err := ctrl.Snapshot(ctx)
			if err != nil {
				return
			}
			quit, err := console.Dispatch(ctx, ctrl, snap, k)
			switch {
			case quit:
				return
			case errors.Is(err, session.ErrUnknownOption):
				presenter.Notify(session.Notice{Level: session.NoticeWarning, Message: "That is not one of the options."})
			case errors.Is(err, session.ErrNotReady):
				presenter.Notify(session.Notice{Level: session.NoticeWarning, Message: "The exam is not loaded yet."})
			case errors.Is(err, session.ErrStopped):
				return
			case err != nil:
				log.Debug().Err(err).Msg("Key ignored")
			}
		}
	}
}

func readKeys(in *os.File, keys chan<- console.Key, log zerolog.Logger) {
	defer close(keys)
	var dec console.Decoder
	buf := make([]byte, 64)
	for {
		n, err := in.Read(buf)
		for _, k := range dec.Feed(buf[:n]) {
			keys <- k
		}
		if err != nil {
			log.Debug().Err(err).Msg("Stdin closed")
			return
		}
	}
}

func dialer(base, examID string, who model.Identity, log zerolog.Logger) session.Dialer {
	return func(ctx context.Context) (session.Channel, error) {
		ch, err := realtime.Dial(ctx, base, examID, who, log)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// counterStore keeps the tab-switch count in Redis when it is reachable so
// a restarted client resumes the same count. Otherwise the count lives only
// as long as the process.
func counterStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) store.CounterStore {
	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, tab-switch count kept in memory")
		return store.NewMemoryCounterStore()
	}
	return store.NewRedisCounterStore(rdb, cfg.CounterTTL)
}
