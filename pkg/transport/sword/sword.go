// Package sword implements the SWORD v2 protocol binding: packages are
// POSTed to a collection URL and the deposit receipt's statement link becomes
// the deposit's status reference.
package sword

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/transport"
)

// Hint keys understood by this binding.
const (
	HintCollectionURL = "collectionUrl"
	HintOnBehalfOf    = "onBehalfOf"
)

// Atom link relations in the deposit receipt.
const (
	relStatement = "http://purl.org/net/sword/terms/statement"
	relAlternate = "alternate"
)

// Config holds the binding's defaults; hints override per deposit.
type Config struct {
	// CollectionURL is the SWORD collection packages are POSTed to.
	CollectionURL string `mapstructure:"collection_url" yaml:"collection_url"`

	// OnBehalfOf is the mediated-deposit user, if any.
	OnBehalfOf string `mapstructure:"on_behalf_of" yaml:"on_behalf_of"`

	// Timeout bounds one deposit request end to end.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
}

// Transport opens SWORD v2 sessions.
type Transport struct {
	cfg    Config
	client *http.Client
}

// New creates a SWORD transport. A nil client gets a dedicated one with the
// configured timeout.
func New(cfg Config, client *http.Client) *Transport {
	cfg.ApplyDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Transport{cfg: cfg, client: client}
}

// Open implements transport.Transport.
func (t *Transport) Open(ctx context.Context, hints transport.Hints) (transport.Session, error) {
	collection := hints.Extra(HintCollectionURL, t.cfg.CollectionURL)
	if collection == "" {
		return nil, fmt.Errorf("sword: no collection URL configured")
	}
	return &session{
		client:     t.client,
		collection: collection,
		onBehalfOf: hints.Extra(HintOnBehalfOf, t.cfg.OnBehalfOf),
		hints:      hints,
	}, nil
}

type session struct {
	client     *http.Client
	collection string
	onBehalfOf string
	hints      transport.Hints
}

// Send spools the package to disk first: SWORD servers require
// Content-Length up front and verify Content-MD5 against the body.
func (s *session) Send(ctx context.Context, stream packaging.PackageStream) (*transport.Response, error) {
	meta := stream.Metadata()

	body, size, digest, err := spool(ctx, stream)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = body.Close()
		_ = os.Remove(body.Name())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.collection, body)
	if err != nil {
		return nil, fmt.Errorf("sword: build deposit request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", meta.MimeType)
	req.Header.Set("Content-MD5", base64.StdEncoding.EncodeToString(digest))
	req.Header.Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": meta.Name}))
	req.Header.Set("Packaging", meta.PackageSpec)
	req.Header.Set("In-Progress", "false")
	if s.onBehalfOf != "" {
		req.Header.Set("On-Behalf-Of", s.onBehalfOf)
	}
	if s.hints.AuthMode == transport.AuthUserPass {
		req.SetBasicAuth(s.hints.Username, s.hints.Password)
	}

	logger.Debug("sword deposit",
		"collection", s.collection, "package", meta.Name, "size", size)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sword: deposit to %s: %w", s.collection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parseReceipt(resp)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		reason := readReason(resp.Body)
		return nil, fmt.Errorf("sword: %w: %s: %s", transport.ErrRejected, resp.Status, reason)
	default:
		reason := readReason(resp.Body)
		return nil, fmt.Errorf("sword: deposit to %s failed: %s: %s", s.collection, resp.Status, reason)
	}
}

func (s *session) Close() error { return nil }

// spool drains the package stream into a temp file, computing size and MD5
// on the way through.
func spool(ctx context.Context, stream packaging.PackageStream) (*os.File, int64, []byte, error) {
	rc, err := stream.Open(ctx)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("sword: open package stream: %w", err)
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp("", "depositd-sword-*")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("sword: spool package: %w", err)
	}

	h := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), rc)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, 0, nil, fmt.Errorf("sword: spool package: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, 0, nil, fmt.Errorf("sword: rewind spool: %w", err)
	}
	return tmp, size, h.Sum(nil), nil
}

func readReason(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 8<<10))
	return strings.TrimSpace(string(body))
}

// ============================================================================
// Deposit receipt
// ============================================================================

type atomEntry struct {
	XMLName xml.Name   `xml:"entry"`
	ID      string     `xml:"id"`
	Links   []atomLink `xml:"link"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// parseReceipt reads the Atom deposit receipt. The statement link is the
// status reference the poller follows; its absence is tolerated (not every
// server issues one).
func parseReceipt(resp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("sword: read deposit receipt: %w", err)
	}

	out := &transport.Response{Accepted: true}
	if loc := resp.Header.Get("Location"); loc != "" {
		out.ExternalIDs = append(out.ExternalIDs, loc)
	}

	if len(body) == 0 {
		return out, nil
	}

	var entry atomEntry
	if err := xml.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("sword: parse deposit receipt: %w", err)
	}
	if entry.ID != "" {
		out.ExternalIDs = append(out.ExternalIDs, entry.ID)
	}
	for _, l := range entry.Links {
		switch l.Rel {
		case relStatement:
			out.StatusRef = l.Href
		case relAlternate:
			out.AccessURL = l.Href
		}
	}
	return out, nil
}

// Interface guards.
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Session   = (*session)(nil)
)
