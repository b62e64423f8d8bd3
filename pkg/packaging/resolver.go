package packaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/marmos91/depositd/pkg/model"
)

// Resolver opens a submission's custodial files from their declared
// locations: http(s) URIs, file URIs, or bare paths.
type Resolver struct {
	httpClient *http.Client
}

// NewResolver creates a resolver. A nil client falls back to
// http.DefaultClient.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{httpClient: client}
}

// Source builds a package Source for one custodial file. Resolution
// failures are reported when the writer task opens the entry, so they reach
// the consumer through the pipe.
func (r *Resolver) Source(f model.File, name string) Source {
	size := f.Size
	if size == 0 {
		size = -1
	}
	return Source{
		Name:     name,
		MimeType: f.MimeType,
		Size:     size,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			rc, err := r.open(ctx, f.Location)
			if err != nil {
				return nil, fmt.Errorf(
					"file %q declared by the manifest is not included in the zip: %w", f.Name, err)
			}
			return rc, nil
		},
	}
}

func (r *Resolver) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, fmt.Errorf("no location declared")
	}

	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", location, err)
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", location, err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %s", location, resp.Status)
		}
		return resp.Body, nil

	case strings.HasPrefix(location, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", location, err)
		}
		return os.Open(u.Path)

	default:
		return os.Open(location)
	}
}
