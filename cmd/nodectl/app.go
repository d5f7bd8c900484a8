// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/nodectl/internal/config"
	"github.com/invowk/nodectl/internal/metrics"
	"github.com/invowk/nodectl/internal/pkgmgr"
	"github.com/invowk/nodectl/internal/provision"
	"github.com/invowk/nodectl/internal/runtime"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App wires CLI services and shared state. Every command handler receives
	// the App and builds provisioners and sessions through it.
	App struct {
		Config  ConfigProvider
		Metrics *metrics.Metrics

		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer
		logger *log.Logger
		flags  globalFlags
		cfg    *config.Config

		metricsServer *http.Server
	}

	// Dependencies are the injection points for NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config ConfigProvider
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	globalFlags struct {
		configFile  string
		verbose     bool
		baseDir     string
		metricsAddr string
	}
)

// NewApp builds an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdin:  deps.Stdin,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	_, app.Metrics = metrics.NewRegistry()
	app.logger = log.NewWithOptions(app.stderr, log.Options{Prefix: config.AppName})
	return app
}

// settings loads the configuration once per invocation and applies
// command-line overrides on top of it.
func (a *App) settings(ctx context.Context) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configFile})
	if err != nil {
		return nil, err
	}
	if a.flags.baseDir != "" {
		cfg.BaseDir = a.flags.baseDir
	}

	level, err := log.ParseLevel(cfg.Log.Level.String())
	if err != nil {
		level = log.InfoLevel
	}
	if a.flags.verbose {
		level = log.DebugLevel
		cfg.Log.MirrorOutput = true
	}
	a.logger.SetLevel(level)

	a.cfg = cfg
	return cfg, nil
}

func (a *App) provisioner(cfg *config.Config) *provision.Provisioner {
	return provision.New(
		provision.WithBaseDir(cfg.BaseDir),
		provision.WithIndexURL(cfg.IndexURL),
		provision.WithPreferSystem(cfg.PreferSystem),
		provision.WithLogger(a.logger.WithPrefix("provision")),
		provision.WithMetrics(a.Metrics),
	)
}

func (a *App) packageBridge(cfg *config.Config, inst *provision.Installation) *pkgmgr.Bridge {
	return pkgmgr.New(inst.PackageManagerPath, inst.WorkingDir,
		pkgmgr.WithTimeout(cfg.PackageManager.Timeout()),
		pkgmgr.WithLogger(a.logger.WithPrefix("pkgmgr")),
		pkgmgr.WithMetrics(a.Metrics),
	)
}

func (a *App) session(ctx context.Context, cfg *config.Config, syntaxCheck bool) (*runtime.Session, error) {
	return runtime.NewSession(ctx, runtime.SessionOptions{
		Provisioner:     a.provisioner(cfg),
		Packages:        cfg.Packages,
		ShutdownTimeout: cfg.Process.ShutdownTimeout(),
		PackageTimeout:  cfg.PackageManager.Timeout(),
		Engine: []runtime.EngineOption{
			runtime.WithPollInterval(cfg.Execution.PollInterval()),
			runtime.WithSyntaxCheck(syntaxCheck),
		},
		MirrorOutput: cfg.Log.MirrorOutput,
		Logger:       a.logger.WithPrefix("session"),
		Metrics:      a.Metrics,
	})
}

// startMetrics serves the Prometheus endpoint on addr until stopMetrics.
func (a *App) startMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metricsServer = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", "err", err)
		}
	}()
	a.logger.Debug("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (a *App) stopMetrics() {
	if a.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		a.logger.Warn("metrics server shutdown", "err", err)
	}
	a.metricsServer = nil
}
