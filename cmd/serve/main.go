package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/airheartdev/docsession"
	"github.com/airheartdev/docsession/memory"
	"github.com/airheartdev/docsession/redisstore"
	"github.com/docopt/docopt-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/r3labs/sse/v2"
)

const version = "0.1.0"

const usage = `Serve a document store to docsession clients.

Usage:
    serve [--config=<path>] [--listen=<addr>]
    serve -h | --help
    serve --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<path>    YAML config file.
    --listen=<addr>    Listen address, overrides the config.`

// commitEvent is published on the "commits" stream after every bulk write.
type commitEvent struct {
	Committed []string `json:"committed"`
	Failed    []string `json:"failed"`
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		panic(err)
	}
	path, _ := opts.String("--config")
	cfg, err := LoadConfig(path)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if listen, _ := opts.String("--listen"); listen != "" {
		cfg.Listen = listen
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("open store", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	events := sse.New()
	events.CreateStream("commits")

	srv := docsession.NewServer(store,
		docsession.WithServerLogger(logger),
		docsession.WithAuth(func(ctx context.Context, token string) bool {
			return cfg.Token == "" || token == cfg.Token
		}),
		docsession.WithCommitHook(func(ctx context.Context, ops []docsession.Operation, results []docsession.Result) {
			publishCommit(events, results)
		}),
	)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(cors.Handler(cfg.corsOptions()))

	router.Get("/events", events.ServeHTTP)
	router.Post(docsession.DefaultFetchEndpoint, srv.HandleFetch())
	router.Post(docsession.DefaultBulkEndpoint, srv.HandleBulk())
	router.Post(docsession.DefaultViewEndpoint, srv.HandleView())
	router.Post(docsession.DefaultAllocateEndpoint, srv.HandleAllocate())

	logger.Info("listening", "addr", "http://"+cfg.Listen, "backend", cfg.Backend)
	if err := http.ListenAndServe(cfg.Listen, router); err != nil {
		logger.Error("serve", "err", err)
		os.Exit(1)
	}
}

func openStore(cfg Config) (docsession.Store, func() error, error) {
	if cfg.Backend == "redis" {
		s := redisstore.Open(cfg.Redis)
		return s, s.Close, nil
	}

	s := memory.New()
	for name, def := range cfg.Views {
		if err := s.DefineView(name, def); err != nil {
			return nil, nil, err
		}
	}
	for id, fields := range cfg.Seed {
		if _, err := s.Put(id, fields); err != nil {
			return nil, nil, err
		}
	}
	return s, func() error { return nil }, nil
}

func publishCommit(events *sse.Server, results []docsession.Result) {
	ev := commitEvent{Committed: []string{}, Failed: []string{}}
	for _, res := range results {
		if res.Status == docsession.StatusOK {
			ev.Committed = append(ev.Committed, res.ID)
		} else {
			ev.Failed = append(ev.Failed, res.ID)
		}
	}
	data, _ := json.Marshal(ev)
	events.Publish("commits", &sse.Event{Data: data})
}
