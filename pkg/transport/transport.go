// Package transport defines the contract between the deposit task and the
// protocol bindings that move packages to downstream archives: SWORD v2,
// FTP, the local filesystem, and S3.
//
// A Transport opens a Session against one archive endpoint using per-deposit
// connection hints; the session sends exactly one package stream and reports
// how the archive answered.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/depositd/pkg/packaging"
)

// AuthMode selects how a session authenticates.
type AuthMode string

const (
	// AuthUserPass authenticates with the username/password pair in the
	// hints.
	AuthUserPass AuthMode = "userpass"

	// AuthImplicit relies on ambient credentials (instance role, netrc,
	// anonymous endpoints).
	AuthImplicit AuthMode = "implicit"

	// AuthReference points at a credential held elsewhere; the binding
	// resolves Reference before connecting.
	AuthReference AuthMode = "reference"
)

// Hints carries the per-deposit connection parameters resolved from the
// repository configuration. Bindings read what they understand and ignore
// the rest.
type Hints struct {
	Protocol   string
	ServerFQDN string
	ServerPort int

	AuthMode  AuthMode
	Username  string
	Password  string
	Reference string

	// Extras holds binding-specific parameters (collection URL, base
	// directory, bucket) keyed by binding-defined names.
	Extras map[string]string
}

// Extra returns a binding-specific parameter, or the fallback when unset.
func (h Hints) Extra(key, fallback string) string {
	if v, ok := h.Extras[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Addr renders host:port for dial-style bindings.
func (h Hints) Addr() string {
	return fmt.Sprintf("%s:%d", h.ServerFQDN, h.ServerPort)
}

// Response is the archive's answer to a package submission.
type Response struct {
	// Accepted reports that the archive took custody of the package.
	Accepted bool

	// StatusRef is the archive-issued URI of the deposit's status
	// document, when the protocol has one (the SWORD statement).
	StatusRef string

	// ExternalIDs are archive-issued identifiers for the deposited item.
	ExternalIDs []string

	// AccessURL is where the deposited item can be retrieved, if known.
	AccessURL string
}

// Session is one open connection to an archive. A session sends one or more
// packages and must be closed by the caller.
type Session interface {
	// Send streams the package to the archive and reports its answer.
	// A rejected or failed submission is an error carrying the archive's
	// reason; Response is only valid when err is nil.
	Send(ctx context.Context, stream packaging.PackageStream) (*Response, error)

	io.Closer
}

// Transport opens sessions against one class of archive endpoint.
type Transport interface {
	Open(ctx context.Context, hints Hints) (Session, error)
}

// ErrRejected marks an archive that answered but refused the package; the
// wrapping error carries the archive's reason verbatim.
var ErrRejected = errors.New("package refused by repository")
