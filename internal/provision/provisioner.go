// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/invowk/nodectl/internal/metrics"
	"github.com/invowk/nodectl/internal/platform"
)

const (
	// DefaultIndexURL lists the latest published runtime archives.
	DefaultIndexURL = "https://nodejs.org/dist/latest/"

	// DefaultBaseDir is resolved against the current working directory.
	DefaultBaseDir = "nodectl-runtime"

	// DefaultMaxDownloadBytes caps the archive download (512 MB).
	DefaultMaxDownloadBytes int64 = 512 << 20

	// DefaultMaxEntryBytes caps any single extracted file (512 MB).
	DefaultMaxEntryBytes int64 = 512 << 20

	installDirName   = "installation"
	workingDirName   = "working-dir"
	downloadsDirName = "downloads"
)

// Sources reported in Installation.Source and the runtime_installs_total metric.
const (
	SourceSystem   = "system"
	SourceCached   = "cached"
	SourceDownload = "download"
)

type (
	// Installation describes a usable runtime. It is immutable once returned.
	Installation struct {
		InterpreterPath    string
		PackageManagerPath string
		PackageRunnerPath  string
		// InstallDir is empty for a system-wide runtime.
		InstallDir string
		WorkingDir string
		OS         platform.OSFamily
		Arch       platform.ArchFamily
		// Version is the canonical semver of a downloaded runtime, empty when unknown.
		Version string
		Source  string
	}

	// Provisioner resolves or installs the runtime under a base directory.
	Provisioner struct {
		baseDir          string
		indexURL         string
		userAgent        string
		client           *http.Client
		platform         platform.Platform
		preferSystem     bool
		systemCheck      SystemCheck
		maxDownloadBytes int64
		maxEntryBytes    int64
		now              func() time.Time
		logger           *log.Logger
		metrics          *metrics.Metrics

		group singleflight.Group
	}

	// Option configures a Provisioner.
	Option func(*Provisioner)
)

// WithBaseDir sets the parent directory for installation/, working-dir/ and downloads/.
func WithBaseDir(dir string) Option {
	return func(p *Provisioner) {
		if dir != "" {
			p.baseDir = dir
		}
	}
}

// WithIndexURL overrides the index page scanned for archives.
func WithIndexURL(u string) Option {
	return func(p *Provisioner) {
		if u != "" {
			p.indexURL = u
		}
	}
}

// WithHTTPClient sets the client used for the index page and the download.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provisioner) {
		if c != nil {
			p.client = c
		}
	}
}

// WithPlatform overrides host platform resolution.
func WithPlatform(pl platform.Platform) Option {
	return func(p *Provisioner) { p.platform = pl }
}

// WithPreferSystem controls whether a runtime on PATH is used before downloading.
func WithPreferSystem(prefer bool) Option {
	return func(p *Provisioner) { p.preferSystem = prefer }
}

// WithSystemCheck replaces the check that decides whether a system-wide
// runtime is usable.
func WithSystemCheck(check SystemCheck) Option {
	return func(p *Provisioner) {
		if check != nil {
			p.systemCheck = check
		}
	}
}

// WithSizeLimits caps the download and each extracted file.
func WithSizeLimits(maxDownload, maxEntry int64) Option {
	return func(p *Provisioner) {
		if maxDownload > 0 {
			p.maxDownloadBytes = maxDownload
		}
		if maxEntry > 0 {
			p.maxEntryBytes = maxEntry
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records install sources on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provisioner) { p.metrics = m }
}

// New creates a Provisioner for the host platform unless WithPlatform says otherwise.
func New(opts ...Option) *Provisioner {
	p := &Provisioner{
		baseDir:          DefaultBaseDir,
		indexURL:         DefaultIndexURL,
		userAgent:        "nodectl",
		client:           &http.Client{Timeout: 10 * time.Minute},
		preferSystem:     true,
		systemCheck:      launchable,
		maxDownloadBytes: DefaultMaxDownloadBytes,
		maxEntryBytes:    DefaultMaxEntryBytes,
		now:              time.Now,
		logger:           log.NewWithOptions(os.Stderr, log.Options{Prefix: "provision"}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.platform == (platform.Platform{}) {
		pl, warnings := platform.Current()
		for _, w := range warnings {
			p.logger.Warn(w)
		}
		p.platform = pl
	}
	return p
}

// Platform returns the platform being provisioned.
func (p *Provisioner) Platform() platform.Platform {
	return p.platform
}

// EnsureInstalled returns a usable installation, downloading the runtime when
// neither a system-wide runtime nor a previous installation exists.
// Concurrent callers share a single attempt. Failures are returned as a
// *ProvisioningError and are never retried.
func (p *Provisioner) EnsureInstalled(ctx context.Context) (*Installation, error) {
	v, err, _ := p.group.Do("ensure", func() (any, error) {
		return p.ensure(ctx)
	})
	if err != nil {
		return nil, err
	}
	inst := *v.(*Installation)
	return &inst, nil
}

func (p *Provisioner) ensure(ctx context.Context) (*Installation, error) {
	baseDir, err := filepath.Abs(p.baseDir)
	if err != nil {
		return nil, p.fail("resolving base directory", err)
	}
	workingDir := filepath.Join(baseDir, workingDirName)
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, p.fail("creating working directory", err)
	}

	if p.preferSystem {
		sys := platform.SystemLayout()
		if p.systemCheck(ctx, sys.Interpreter) {
			p.logger.Debug("using system runtime", "command", sys.Interpreter)
			p.metrics.RuntimeInstalled(SourceSystem)
			return &Installation{
				InterpreterPath:    sys.Interpreter,
				PackageManagerPath: sys.PackageManager,
				PackageRunnerPath:  sys.PackageRunner,
				WorkingDir:         workingDir,
				OS:                 p.platform.OS,
				Arch:               p.platform.Arch,
				Source:             SourceSystem,
			}, nil
		}
	}

	installDir := filepath.Join(baseDir, installDirName)
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return nil, p.fail("creating installation directory", err)
	}

	empty, err := isEmptyInstall(installDir)
	if err != nil {
		return nil, p.fail("inspecting installation directory", err)
	}
	source := SourceCached
	if empty {
		if err := p.install(ctx, baseDir, installDir); err != nil {
			return nil, err
		}
		source = SourceDownload
	}

	layout := p.platform.OS.Layout()
	root, err := locateRoot(installDir, layout)
	if err != nil {
		return nil, p.fail("locating executables", err)
	}
	inst := &Installation{
		InterpreterPath:    filepath.Join(root, layout.Interpreter),
		PackageManagerPath: filepath.Join(root, layout.PackageManager),
		PackageRunnerPath:  filepath.Join(root, layout.PackageRunner),
		InstallDir:         installDir,
		WorkingDir:         workingDir,
		OS:                 p.platform.OS,
		Arch:               p.platform.Arch,
		Source:             source,
	}
	if err := p.verifyExecutables(inst); err != nil {
		return nil, p.fail("validating executables", err)
	}

	receipt, ok, err := readReceipt(installDir)
	if err != nil {
		p.logger.Warn("ignoring unreadable install receipt", "error", err)
	} else if ok {
		inst.Version = receipt.Version
	}

	p.metrics.RuntimeInstalled(source)
	p.logger.Debug("runtime ready", "interpreter", inst.InterpreterPath, "version", inst.Version, "source", source)
	return inst, nil
}

// install downloads the matching archive, extracts it into a staging
// directory and moves the result into installDir. The receipt is written last.
func (p *Provisioner) install(ctx context.Context, baseDir, installDir string) error {
	art, err := p.discover(ctx)
	if err != nil {
		return p.fail("discovering artifact", err)
	}

	downloadsDir := filepath.Join(baseDir, downloadsDirName)
	if err := os.MkdirAll(downloadsDir, 0o755); err != nil {
		return p.fail("creating downloads directory", err)
	}
	defer func() {
		if err := os.RemoveAll(downloadsDir); err != nil {
			p.logger.Warn("removing downloads directory", "path", downloadsDir, "error", err)
		}
	}()

	p.logger.Info("downloading runtime", "artifact", art.Name)
	archivePath, err := p.download(ctx, art, downloadsDir)
	if err != nil {
		return p.fail("downloading "+art.Name, err)
	}

	staging, err := os.MkdirTemp(downloadsDir, "extract-*")
	if err != nil {
		return p.fail("creating staging directory", err)
	}
	if err := extractArchive(archivePath, staging, p.maxEntryBytes); err != nil {
		return p.fail("extracting "+art.Name, err)
	}
	if err := os.Remove(archivePath); err != nil {
		p.logger.Warn("removing archive", "path", archivePath, "error", err)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return p.fail("reading staging directory", err)
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(staging, e.Name()), filepath.Join(installDir, e.Name())); err != nil {
			return p.fail("moving extracted files", err)
		}
	}

	err = writeReceipt(installDir, Receipt{
		Artifact:    art.Name,
		Version:     art.Version,
		URL:         art.URL,
		OS:          p.platform.OS,
		Arch:        p.platform.Arch,
		InstalledAt: p.now().UTC(),
	})
	if err != nil {
		return p.fail("recording install", err)
	}
	return nil
}

// download streams the artifact into dir and returns the file path.
func (p *Provisioner) download(ctx context.Context, art artifact, dir string) (_ string, err error) {
	resp, err := p.get(ctx, art.URL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	target := filepath.Join(dir, art.Name)
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating archive file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	n, err := io.Copy(f, io.LimitReader(resp.Body, p.maxDownloadBytes+1))
	if err != nil {
		return "", fmt.Errorf("writing archive: %w", err)
	}
	if n > p.maxDownloadBytes {
		return "", fmt.Errorf("%w: download larger than %d bytes", ErrArchiveTooLarge, p.maxDownloadBytes)
	}
	return target, nil
}

// verifyExecutables checks that every path exists as a regular file and,
// for unix installs on a unix host, carries an execute bit.
func (p *Provisioner) verifyExecutables(inst *Installation) error {
	checkMode := p.platform.OS != platform.Windows && goruntime.GOOS != "windows"
	var errs []error
	for _, path := range []string{inst.InterpreterPath, inst.PackageManagerPath, inst.PackageRunnerPath} {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingExecutable, path))
		case info.IsDir():
			errs = append(errs, fmt.Errorf("%w: %s is a directory", ErrMissingExecutable, path))
		case checkMode && info.Mode().Perm()&0o111 == 0:
			errs = append(errs, fmt.Errorf("%w: %s is not executable", ErrMissingExecutable, path))
		}
	}
	return errors.Join(errs...)
}

func (p *Provisioner) fail(op string, err error) error {
	var perr *ProvisioningError
	if errors.As(err, &perr) {
		return err
	}
	return &ProvisioningError{Op: op, OS: p.platform.OS, Arch: p.platform.Arch, Err: err}
}

// isEmptyInstall reports whether dir holds nothing but, possibly, a receipt.
func isEmptyInstall(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return !slices.ContainsFunc(entries, func(e fs.DirEntry) bool {
		return e.Name() != receiptName
	}), nil
}

// locateRoot finds the directory holding the interpreter: installDir itself
// or one of its immediate subdirectories, in name order.
func locateRoot(installDir string, layout platform.Layout) (string, error) {
	if fileExists(filepath.Join(installDir, layout.Interpreter)) {
		return installDir, nil
	}
	entries, err := os.ReadDir(installDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		root := filepath.Join(installDir, e.Name())
		if fileExists(filepath.Join(root, layout.Interpreter)) {
			return root, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found under %s", ErrMissingExecutable, layout.Interpreter, installDir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
