// Package cli is the interactive front end of the upload engine: a small
// REPL over the manager, plus the composition root that wires config, store,
// remote storage, worker and manager together.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/lyceum-cloud/uplink/internal/config"
	"github.com/lyceum-cloud/uplink/internal/logging"
	"github.com/lyceum-cloud/uplink/internal/uplink/conflict"
	"github.com/lyceum-cloud/uplink/internal/uplink/manager"
	"github.com/lyceum-cloud/uplink/internal/uplink/storage"
	"github.com/lyceum-cloud/uplink/internal/uplink/store"
	"github.com/lyceum-cloud/uplink/internal/uplink/token"
	"github.com/lyceum-cloud/uplink/internal/uplink/worker"
)

type App struct {
	config   *config.Config
	manager  *manager.Manager
	resolver *conflict.Resolver
	tokens   *token.Source
	store    store.Store
	log      logging.Logger
	in       *bufio.Scanner
}

// NewApp builds the whole engine from config. The worker factory hands the
// manager a fresh in-process worker whenever it needs one, all of them
// sharing the same remote store, chunk buffer and token source.
func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	st, err := store.Open(ctx, c.StateDSN, log)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	tokens := token.NewSource()
	objects, err := newObjectStore(ctx, c, tokens)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		config:   c,
		resolver: conflict.NewResolver(objects, log),
		tokens:   tokens,
		store:    st,
		log:      log,
		in:       bufio.NewScanner(os.Stdin),
	}

	factory := func() worker.Worker {
		return worker.NewInProcess(objects, st, tokens, log)
	}
	a.manager = manager.New(st, factory, tokens, manager.Options{
		MaxConcurrent:      c.MaxConcurrent,
		LargeFileThreshold: c.LargeFileThreshold,
		ChunkSize:          c.ChunkSize,
		RetryDelay:         c.RetryDelay,
		SaveInterval:       c.SaveInterval,
		Resolver:           a.resolver,
		OnConflict:         a.promptConflict,
	}, log)

	if err := a.manager.Restore(ctx); err != nil {
		log.Warn(ctx, "restore of unfinished tasks failed", "error", err)
	}
	return a, nil
}

func newObjectStore(ctx context.Context, c *config.Config, tokens *token.Source) (storage.ObjectStore, error) {
	switch c.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Region:       c.S3Region,
			BaseEndpoint: c.S3Endpoint,
			Bucket:       c.S3Bucket,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		})
	case "", "http":
		return storage.NewHTTPStore(c.APIBaseURL, tokens, &http.Client{}), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()
	runREPL(ctx, a, a.in)
}

func (a *App) Close() {
	if err := a.manager.Close(); err != nil {
		a.log.Warn(context.Background(), "manager close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn(context.Background(), "store close failed", "error", err)
	}
}

func (a *App) hasToken() bool {
	return a.tokens.Token() != ""
}

// activeCount is used by the REPL to warn before quitting with transfers
// still in play.
func (a *App) activeCount() int {
	var n int
	for _, t := range a.manager.GetTasks() {
		if t.Active() {
			n++
		}
	}
	return n
}
