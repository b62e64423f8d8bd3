// Package ftp implements the FTP protocol binding: packages are streamed
// with STOR into a per-repository directory. FTP has no status document, so
// a successful transfer is the archive's final answer.
package ftp

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/retry"
	"github.com/marmos91/depositd/pkg/transport"
)

// Hint keys understood by this binding.
const (
	HintBaseDir = "baseDir"
)

// Config holds the binding's defaults; hints override per deposit.
type Config struct {
	// Host and Port locate the FTP server when the hints do not.
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// BaseDir is the directory packages are stored into. It is created if
	// missing.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`

	// DialTimeout bounds one connection attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// ConnectWindow bounds the whole connect-retry loop. Transient dial
	// failures are retried inside this window.
	ConnectWindow time.Duration `mapstructure:"connect_window" yaml:"connect_window"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 21
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ConnectWindow <= 0 {
		c.ConnectWindow = 30 * time.Second
	}
}

// Transport opens FTP sessions.
type Transport struct {
	cfg Config
}

// New creates an FTP transport.
func New(cfg Config) *Transport {
	cfg.ApplyDefaults()
	return &Transport{cfg: cfg}
}

// Open dials the server, retrying transient failures inside the connect
// window, logs in, and changes into the target directory (creating it when
// missing).
func (t *Transport) Open(ctx context.Context, hints transport.Hints) (transport.Session, error) {
	addr := t.addr(hints)
	baseDir := hints.Extra(HintBaseDir, t.cfg.BaseDir)

	var conn *ftp.ServerConn
	err := retry.Do(ctx, retry.Policy{
		InitialDelay: 2 * time.Second,
		Factor:       2,
		Timeout:      t.cfg.ConnectWindow,
	}, func(ctx context.Context) error {
		var dialErr error
		conn, dialErr = ftp.Dial(addr,
			ftp.DialWithContext(ctx),
			ftp.DialWithTimeout(t.cfg.DialTimeout),
		)
		if dialErr != nil {
			logger.Debug("ftp dial failed, will retry", "addr", addr, "error", dialErr)
		}
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("ftp: connect to %s: %w", addr, err)
	}

	user, pass := credentials(hints)
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp: login to %s as %q: %w", addr, user, err)
	}

	if baseDir != "" {
		if err := ensureDir(conn, baseDir); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("ftp: prepare directory %q on %s: %w", baseDir, addr, err)
		}
	}

	return &session{conn: conn, addr: addr, baseDir: baseDir}, nil
}

func (t *Transport) addr(hints transport.Hints) string {
	if hints.ServerFQDN != "" {
		port := hints.ServerPort
		if port == 0 {
			port = t.cfg.Port
		}
		return fmt.Sprintf("%s:%d", hints.ServerFQDN, port)
	}
	return fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
}

func credentials(hints transport.Hints) (user, pass string) {
	if hints.AuthMode == transport.AuthUserPass {
		return hints.Username, hints.Password
	}
	return "anonymous", "anonymous"
}

// ensureDir walks the directory path one segment at a time, issuing MKD
// idempotently and changing into each segment in turn, so missing parents
// are created too. Servers answer MKD on an existing directory with 550 or
// 553; both mean the segment is usable.
func ensureDir(conn *ftp.ServerConn, dir string) error {
	if path.IsAbs(dir) {
		if err := conn.ChangeDir("/"); err != nil {
			return fmt.Errorf("chdir /: %w", err)
		}
	}
	for _, seg := range strings.Split(path.Clean(dir), "/") {
		if seg == "" || seg == "." {
			continue
		}
		if err := conn.MakeDir(seg); err != nil && !dirExists(err) {
			return fmt.Errorf("mkdir %q: %w", seg, err)
		}
		if err := conn.ChangeDir(seg); err != nil {
			return fmt.Errorf("chdir %q: %w", seg, err)
		}
	}
	return nil
}

func dirExists(err error) bool {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return proto.Code == ftp.StatusFileUnavailable || proto.Code == ftp.StatusBadFileName
	}
	return false
}

type session struct {
	conn    *ftp.ServerConn
	addr    string
	baseDir string
}

// Send streams the package with STOR. The server consumes the stream as the
// writer task produces it; nothing is spooled.
func (s *session) Send(ctx context.Context, stream packaging.PackageStream) (*transport.Response, error) {
	meta := stream.Metadata()

	rc, err := stream.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("ftp: open package stream: %w", err)
	}
	defer func() { _ = rc.Close() }()

	if err := s.conn.Stor(meta.Name, rc); err != nil {
		return nil, fmt.Errorf("ftp: store %q on %s: %w", meta.Name, s.addr, err)
	}

	logger.Info("ftp package stored", "addr", s.addr, "dir", s.baseDir, "name", meta.Name)
	return &transport.Response{
		Accepted:    true,
		ExternalIDs: []string{s.uri(meta.Name)},
	}, nil
}

func (s *session) uri(name string) string {
	return "ftp://" + s.addr + "/" + path.Join(s.baseDir, name)
}

func (s *session) Close() error {
	return s.conn.Quit()
}

// Interface guards.
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Session   = (*session)(nil)
)
