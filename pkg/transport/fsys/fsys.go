// Package fsys implements the filesystem protocol binding: packages are
// written under a base directory. It backs local drop-folder archives and
// the end-to-end tests.
package fsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/transport"
)

// Hint keys understood by this binding.
const (
	HintBaseDir = "baseDir"
)

// Config holds the binding's defaults; hints override per deposit.
type Config struct {
	// BaseDir is the directory packages are written into.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`

	// Overwrite allows replacing an existing package file. When false a
	// name collision fails the deposit.
	Overwrite bool `mapstructure:"overwrite" yaml:"overwrite"`
}

// Transport writes packages to the local filesystem.
type Transport struct {
	cfg Config
}

// New creates a filesystem transport.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// Open implements transport.Transport. The base directory is created if
// missing.
func (t *Transport) Open(ctx context.Context, hints transport.Hints) (transport.Session, error) {
	dir := hints.Extra(HintBaseDir, t.cfg.BaseDir)
	if dir == "" {
		return nil, fmt.Errorf("fsys: no base directory configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsys: prepare directory %q: %w", dir, err)
	}
	return &session{dir: dir, overwrite: t.cfg.Overwrite}, nil
}

type session struct {
	dir       string
	overwrite bool
}

// Send streams the package into <dir>/<name>. The write goes to a temp file
// first so a consumer watching the directory never sees a partial package.
func (s *session) Send(ctx context.Context, stream packaging.PackageStream) (*transport.Response, error) {
	meta := stream.Metadata()
	dest := filepath.Join(s.dir, meta.Name)

	if !s.overwrite {
		if _, err := os.Stat(dest); err == nil {
			return nil, fmt.Errorf("fsys: package %q already exists", dest)
		}
	}

	rc, err := stream.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("fsys: open package stream: %w", err)
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp(s.dir, ".depositd-*")
	if err != nil {
		return nil, fmt.Errorf("fsys: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("fsys: write package %q: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("fsys: publish package %q: %w", dest, err)
	}

	logger.Info("package written", "path", dest, "size", size)
	return &transport.Response{
		Accepted:    true,
		ExternalIDs: []string{"file://" + dest},
		AccessURL:   "file://" + dest,
	}, nil
}

func (s *session) Close() error { return nil }

// Interface guards.
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Session   = (*session)(nil)
)
