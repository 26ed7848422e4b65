package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/chutedev/chute/internal/clock"
	"github.com/chutedev/chute/internal/creds"
	"github.com/chutedev/chute/internal/history"
	"github.com/chutedev/chute/internal/project"
	"github.com/chutedev/chute/internal/queue"
	"github.com/chutedev/chute/internal/store"
)

// workspace bundles the per-invocation runtime: the resolved project,
// the opened store, and the components built over it. Commands open one,
// use it, and Close it before returning.
type workspace struct {
	project *project.Config
	store   *store.Store
	queue   *queue.Queue
	history *history.Log
	clock   *clock.Authority
}

// openWorkspace resolves the project from the working directory and
// opens the store. Store path precedence: --db flag, CHUTE_DB env,
// <project>/.chute/chute.db.
func openWorkspace(ctx context.Context, opts *RootOptions) (*workspace, error) {
	cfg, err := project.Find(".")
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to locate project", err)
	}

	path := opts.Database
	if path == "" {
		path = os.Getenv("CHUTE_DB")
	}
	if path == "" {
		path = filepath.Join(cfg.Root, ".chute", "chute.db")
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	clk, err := clock.New(ctx, clock.NewSQLStore(st.DB()))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to initialize clock", err)
	}

	return &workspace{
		project: cfg,
		store:   st,
		queue:   queue.New(st.DB()),
		history: history.New(st.DB()),
		clock:   clk,
	}, nil
}

func (w *workspace) Close() error {
	return w.store.Close()
}

// credentialsPath resolves where the token file lives: CHUTE_CREDENTIALS
// env override, else <user config dir>/chute/credentials.json.
func credentialsPath() (string, error) {
	if p := os.Getenv("CHUTE_CREDENTIALS"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chute", "credentials.json"), nil
}

// newCredManager builds the credential manager over the resolved
// credentials file.
func newCredManager() (*creds.Manager, error) {
	path, err := credentialsPath()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve credentials path", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create config directory", err)
	}
	return creds.NewManager(creds.NewFileStore(path)), nil
}
