package config

import (
	"context"
	"fmt"

	"github.com/marmos91/depositd/internal/bytesize"
	"github.com/marmos91/depositd/pkg/deposit"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/transport"
	"github.com/marmos91/depositd/pkg/transport/ftp"
	"github.com/marmos91/depositd/pkg/transport/fsys"
	"github.com/marmos91/depositd/pkg/transport/s3"
	"github.com/marmos91/depositd/pkg/transport/sword"
)

// RepositoryConfig describes one target repository: the protocol binding
// that carries its packages, how to connect, how to package, and how to read
// its status documents.
type RepositoryConfig struct {
	// Protocol selects the transport binding.
	// Valid values: sword, ftp, filesystem, s3
	Protocol string `mapstructure:"protocol" validate:"required,oneof=sword ftp filesystem s3" yaml:"protocol"`

	// Connection carries the binding's connection parameters.
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection"`

	// Packaging selects the packaging dialect, container, and digests.
	Packaging PackagingConfig `mapstructure:"packaging" yaml:"packaging"`

	// Status drives status-document interpretation for protocols that
	// issue one (the SWORD statement).
	Status StatusConfig `mapstructure:"status" yaml:"status,omitempty"`
}

// ConnectionConfig carries the connection parameters of one repository.
type ConnectionConfig struct {
	// Host and Port locate the repository server, for dial-style
	// bindings.
	Host string `mapstructure:"host" yaml:"host,omitempty"`
	Port int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`

	// Auth selects how the session authenticates.
	// Valid values: userpass, implicit, reference
	Auth string `mapstructure:"auth" validate:"omitempty,oneof=userpass implicit reference" yaml:"auth,omitempty"`

	// Username and Password are the userpass credentials.
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// Reference is an opaque credential reference resolved by the
	// binding (API token, credential name).
	Reference string `mapstructure:"reference" yaml:"reference,omitempty"`

	// Extras holds binding-specific parameters keyed by binding-defined
	// names: collectionUrl and onBehalfOf for sword, baseDir for ftp and
	// filesystem, bucket and keyPrefix for s3.
	Extras map[string]string `mapstructure:"extras" yaml:"extras,omitempty"`
}

// Hints converts the connection block into transport hints.
func (c ConnectionConfig) Hints(protocol string) transport.Hints {
	auth := transport.AuthMode(c.Auth)
	if auth == "" {
		auth = transport.AuthImplicit
		if c.Username != "" {
			auth = transport.AuthUserPass
		}
	}
	return transport.Hints{
		Protocol:   protocol,
		ServerFQDN: c.Host,
		ServerPort: c.Port,
		AuthMode:   auth,
		Username:   c.Username,
		Password:   c.Password,
		Reference:  c.Reference,
		Extras:     c.Extras,
	}
}

// PackagingConfig selects how a repository's packages are assembled.
type PackagingConfig struct {
	// Spec identifies the packaging dialect by its spec URI.
	Spec string `mapstructure:"spec" validate:"required" yaml:"spec"`

	// Archive picks the container format.
	// Valid values: zip, tar. Default: zip
	Archive string `mapstructure:"archive" validate:"omitempty,oneof=zip tar" yaml:"archive,omitempty"`

	// Compression picks the outer compression.
	// Valid values: none, gzip. Default: none
	Compression string `mapstructure:"compression" validate:"omitempty,oneof=none gzip" yaml:"compression,omitempty"`

	// Checksums lists the digests to compute per entry.
	// Valid values: md5, sha256, sha512
	Checksums []string `mapstructure:"checksums" validate:"dive,oneof=md5 sha256 sha512" yaml:"checksums,omitempty"`

	// BufferSize overrides the package stream's in-flight byte budget.
	// Supports human-readable sizes like "8Mi".
	BufferSize bytesize.ByteSize `mapstructure:"buffer_size" yaml:"buffer_size,omitempty"`
}

// Options converts the packaging block into assembly options.
func (c PackagingConfig) Options() packaging.Options {
	opts := packaging.Options{
		SpecURI:     c.Spec,
		Archive:     packaging.Archive(c.Archive),
		Compression: packaging.Compression(c.Compression),
		BufferSize:  int(c.BufferSize),
	}
	if opts.Archive == "" {
		opts.Archive = packaging.ArchiveZIP
	}
	if opts.Compression == "" {
		opts.Compression = packaging.CompressionNone
	}
	for _, alg := range c.Checksums {
		opts.Checksums = append(opts.Checksums, packaging.Algorithm(alg))
	}
	return opts
}

// StatusConfig drives status-document interpretation for one repository.
type StatusConfig struct {
	// Scheme is the term scheme status values are read from. Defaults to
	// the SWORD state scheme.
	Scheme string `mapstructure:"scheme" yaml:"scheme,omitempty"`

	// Map translates repository status values to pipeline outcomes
	// (accepted, rejected, failed, inProgress).
	Map map[string]string `mapstructure:"map" yaml:"map,omitempty"`
}

// RepositoryConfig resolves a repository key to its runtime configuration,
// implementing the pipeline's config source.
func (c *Config) RepositoryConfig(key string) (deposit.RepositoryConfig, error) {
	repo, ok := c.Repositories[key]
	if !ok {
		return deposit.RepositoryConfig{}, fmt.Errorf("unknown repository %q", key)
	}
	return deposit.RepositoryConfig{
		Protocol:     repo.Protocol,
		Hints:        repo.Connection.Hints(repo.Protocol),
		Assembly:     repo.Packaging.Options(),
		StatusScheme: repo.Status.Scheme,
		StatusMap:    repo.Status.Map,
	}, nil
}

// BuildTransports constructs one transport per protocol referenced by the
// configured repositories. Protocol-level settings come from the transports
// section; per-repository parameters travel in the hints at open time.
//
// S3 is the exception: the client is built once, so its credentials come
// from the first s3 repository's connection block (or the SDK's ambient
// chain). All s3 repositories share it.
func (c *Config) BuildTransports(ctx context.Context) (map[string]transport.Transport, error) {
	transports := make(map[string]transport.Transport)

	for key, repo := range c.Repositories {
		if _, done := transports[repo.Protocol]; done {
			continue
		}

		switch repo.Protocol {
		case "sword":
			transports[repo.Protocol] = sword.New(c.Transports.SWORD, nil)
		case "ftp":
			transports[repo.Protocol] = ftp.New(c.Transports.FTP)
		case "filesystem":
			transports[repo.Protocol] = fsys.New(c.Transports.Filesystem)
		case "s3":
			tr, err := s3.NewFromConfig(ctx, c.Transports.S3, repo.Connection.Hints(repo.Protocol))
			if err != nil {
				return nil, fmt.Errorf("repository %q: %w", key, err)
			}
			transports[repo.Protocol] = tr
		default:
			return nil, fmt.Errorf("repository %q: unknown protocol %q", key, repo.Protocol)
		}
	}

	return transports, nil
}
