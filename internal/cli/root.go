package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"duo/internal/app"
	"duo/internal/auth"
	"duo/internal/config"
	"duo/internal/liststore"
	"duo/internal/logging"
	"duo/internal/remote"
	"duo/internal/storage"
	"duo/internal/ui"
)

type App struct {
	ConfigPath string
	LogLevel   string

	cfg       config.Config
	log       *log.Logger
	logCloser io.Closer
	local     *storage.Store
	client    *remote.Client
	manager   *auth.Manager
	authn     auth.Authenticator
	ctrl      *app.Controller
}

func NewRootCmd() *cobra.Command {
	a := &App{}

	cmd := &cobra.Command{
		Use:          "todo",
		Short:        "Two-list todo manager (active/completed) with local or Postgres storage",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  todo

  # Scriptable commands
  todo add "Buy milk"
  todo ls
  todo done 1
  todo ls --completed
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runTUI(cmd.Context(), a)
		},
	}

	cmd.PersistentFlags().StringVar(&a.ConfigPath, "config", envOr("TODO_CONFIG", ""), "Path to config.toml")
	cmd.PersistentFlags().StringVar(&a.LogLevel, "log-level", "", "Log level (debug|info|warn|error); overrides config")

	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newAddCmd(a))
	cmd.AddCommand(newDoneCmd(a))
	cmd.AddCommand(newRemoveCmd(a))
	cmd.AddCommand(newClearCmd(a))
	cmd.AddCommand(newRegisterCmd(a))
	cmd.AddCommand(newLoginCmd(a))
	cmd.AddCommand(newLogoutCmd(a))
	cmd.AddCommand(newWhoamiCmd(a))

	return cmd
}

func runTUI(ctx context.Context, a *App) error {
	if err := a.open(ctx, true); err != nil {
		return err
	}
	defer a.close()
	return ui.Run(a.ctrl, a.authn, a.cfg, a.log)
}

// open wires config, logging, both backends and the controller. Storage and
// remote failures degrade instead of aborting.
func (a *App) open(ctx context.Context, tui bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path := a.ConfigPath
	if path == "" {
		path = config.ResolveConfigPath()
	}
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.LogLevel != "" {
		level = a.LogLevel
	}
	if tui {
		l, closer, err := logging.OpenFile(cfg.LogFile, logging.ParseLevel(level))
		if err != nil {
			a.log = logging.Discard()
		} else {
			a.log, a.logCloser = l, closer
		}
	} else {
		a.log = logging.New(os.Stderr, logging.ParseLevel(level), "todo")
	}

	local, err := storage.Open(cfg.LocalDBPath)
	if err != nil {
		a.log.Warn("local storage unavailable", "path", cfg.LocalDBPath, "err", err)
		local = storage.Disabled()
	}
	a.local = local

	opts := []app.Option{app.WithLogger(a.log)}
	a.authn = auth.Offline()
	if cfg.RemoteDSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		client, err := remote.Connect(connectCtx, cfg.RemoteDSN)
		if err == nil {
			err = client.Migrate(connectCtx)
			if err != nil {
				client.Close()
			}
		}
		cancel()
		if err != nil {
			a.log.Warn("remote store unavailable", "err", err)
		} else {
			a.client = client
			a.manager = auth.NewManager(client.Pool(), auth.TokenFile{Path: cfg.TokenPath})
			a.authn = a.manager
			opts = append(opts, app.WithRemote(client), app.WithWriterOptions(writerOptions(cfg)...))
		}
	}

	store := liststore.New(liststore.WithTextLimit(cfg.TextLimit))
	store.SelectView(cfg.InitialView())
	a.ctrl = app.New(store, a.local, opts...)
	if err := a.ctrl.Load(ctx); err != nil {
		return err
	}
	if !tui {
		a.restoreSession(ctx)
	}
	return nil
}

// restoreSession signs the controller in synchronously. The TUI does the
// same asynchronously from its Init.
func (a *App) restoreSession(ctx context.Context) {
	if a.manager == nil {
		return
	}
	id, ok := a.authn.Current(ctx)
	if !ok {
		return
	}
	if err := a.ctrl.SignIn(ctx, id); err != nil {
		a.log.Warn("could not restore session; using local storage", "err", err)
	}
}

func (a *App) close() {
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.local != nil {
		_ = a.local.Close()
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

func writerOptions(cfg config.Config) []remote.WriterOption {
	return []remote.WriterOption{remote.WithRetry(cfg.RemoteRetries, remote.DefaultRetryBackoff)}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
