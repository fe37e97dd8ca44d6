// Package cli implements matchctl, a terminal client that keeps a
// marketplace session across invocations and, when sync is enabled, across
// every process sharing the same hub room.
package cli

import (
	"context"
	"fmt"
	"io"

	"match-connect/internal/apiclient"
	"match-connect/internal/database"
	"match-connect/internal/metrics"
	"match-connect/internal/navigation"
	"match-connect/internal/session"
	"match-connect/internal/synchub"
	"match-connect/internal/tokenstore"
	"match-connect/pkg/config"
	"match-connect/pkg/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	store      string
	baseURL    string
	logLevel   string
	sync       bool
}

// app holds what every command needs, built once per invocation
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	store   tokenstore.Store
	sql     *tokenstore.SQL
	router  *navigation.Router
	client  *apiclient.Client
	session *session.Controller
	guard   *session.Guard

	cancel  context.CancelFunc
	closers []func()
}

// CLI is the matchctl command tree
type CLI struct {
	opts rootOptions
	app  *app
}

// NewRootCommand builds the matchctl command tree
func NewRootCommand() (*cobra.Command, *CLI) {
	c := &CLI{}

	root := &cobra.Command{
		Use:   "matchctl",
		Short: "Command line client for the job marketplace",
		Long: `matchctl signs in to the marketplace API and keeps the session in a shared
store. Expired access tokens are refreshed transparently, and every command
sharing the store sees sign-ins and sign-outs made by the others.

Examples:
  matchctl login --email ada@example.com --password secret
  matchctl jobs list --mine
  matchctl watch`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.app = a
			cmd.SetContext(session.NewContext(cmd.Context(), a.session))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.opts.configPath, "config", "", "config file (defaults and MATCH_* environment variables otherwise)")
	flags.StringVar(&c.opts.store, "store", "", "session store: memory or sql (overrides session.store)")
	flags.StringVar(&c.opts.baseURL, "base-url", "", "backend API base url (overrides backend.base_url)")
	flags.StringVar(&c.opts.logLevel, "log-level", "", "log level (overrides logging.level)")
	flags.BoolVar(&c.opts.sync, "sync", false, "mirror the session through the storage hub")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.registerCmd(),
		c.whoamiCmd(),
		c.openCmd(),
		c.jobsCmd(),
		c.applyCmd(),
		c.resumeCmd(),
		c.searchCmd(),
		c.watchCmd(),
	)
	return root, c
}

// ExecuteContext runs matchctl with args and releases what the command opened
func ExecuteContext(ctx context.Context, args []string, out, errOut io.Writer) error {
	root, c := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	defer c.Close()

	return root.ExecuteContext(ctx)
}

// Close stops background work and closes the session store
func (c *CLI) Close() {
	if c.app == nil {
		return
	}
	c.app.close()
	c.app = nil
}

func newApp(ctx context.Context, opts rootOptions, errOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.store != "" {
		cfg.Session.Store = opts.store
	}
	if opts.baseURL != "" {
		cfg.Backend.BaseURL = opts.baseURL
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.sync {
		cfg.Sync.Enabled = true
	}

	log := logger.NewFromConfig(cfg.Logging)
	if cfg.Logging.File == "" {
		log.SetOutput(errOut)
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewMetrics(nil),
		router:  navigation.NewRouter("/"),
		cancel:  cancel,
	}

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.client, err = apiclient.NewFromConfig(cfg, a.store, a.router, log, a.metrics)
	if err != nil {
		a.close()
		return nil, err
	}
	a.session = session.NewController(a.client, log)
	a.guard = session.NewGuard(a.session, cfg.Session.ProtectedPaths, cfg.Session.AuthPrefix)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Session.Store {
	case "sql":
		db, err := database.NewConnection(&a.cfg.Session.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { db.Close() })

		store, err := tokenstore.NewSQL(db, a.cfg.Session.WatchInterval, a.log,
			tokenstore.WithEventRetention(a.cfg.Session.EventRetention))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.store, a.sql = store, store
	case "memory":
		a.store = tokenstore.NewMemory()
	default:
		return fmt.Errorf("unsupported session store: %s", a.cfg.Session.Store)
	}

	if !a.cfg.Sync.Enabled {
		return nil
	}

	relay, err := synchub.NewRelay(a.cfg.Sync.HubURL, a.cfg.Sync.Room, a.cfg.Sync.ReconnectDelay, a.log, a.metrics)
	if err != nil {
		return err
	}
	synced := synchub.NewSynced(a.store, relay, a.log)
	go relay.Run(ctx)
	go synced.Run(ctx)
	a.store = synced
	return nil
}

func (a *app) close() {
	a.cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
