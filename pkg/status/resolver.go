// Package status closes the asynchronous half of the pipeline: the resolver
// polls each submitted deposit's archive-issued status document and drives
// the deposit to a terminal state, and the aggregator periodically rolls
// per-deposit statuses up into the submission's aggregated status.
package status

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/deposit"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// DefaultScheme is the SWORD state scheme used when a repository's status
// mapping does not name one.
const DefaultScheme = "http://purl.org/net/sword/terms/state"

// Outcome is the resolver's reading of a status document.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
	OutcomeInProgress Outcome = "inProgress"
)

// Terminal reports whether the outcome ends polling.
func (o Outcome) Terminal() bool {
	return o == OutcomeAccepted || o == OutcomeRejected || o == OutcomeFailed
}

// Resolver fetches a deposit's status document, maps it through the
// repository's status map, and records the result.
type Resolver struct {
	client  store.Client
	httpc   *http.Client
	configs deposit.ConfigSource
	metrics Metrics
}

// NewResolver wires a resolver. A nil http client falls back to
// http.DefaultClient.
func NewResolver(client store.Client, httpc *http.Client, configs deposit.ConfigSource) *Resolver {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Resolver{client: client, httpc: httpc, configs: configs}
}

// SetMetrics attaches status instrumentation. Nil is valid and free.
func (r *Resolver) SetMetrics(m Metrics) { r.metrics = m }

// Resolve polls the deposit's status reference once.
//
// OutcomeInProgress means the archive has not decided yet; the caller
// reschedules. A terminal outcome has already been recorded in the store
// when Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, depositID string) (Outcome, error) {
	start := time.Now()
	outcome, err := r.resolve(ctx, depositID)
	observePoll(r.metrics, outcome, time.Since(start), err)
	return outcome, err
}

func (r *Resolver) resolve(ctx context.Context, depositID string) (Outcome, error) {
	dep, err := store.Get[model.Deposit](ctx, r.client, depositID)
	if err != nil {
		return OutcomeInProgress, fmt.Errorf("read deposit %q: %w", depositID, err)
	}
	if dep.DepositStatus.Terminal() {
		return Outcome(dep.DepositStatus), nil
	}
	if dep.DepositStatusRef == "" {
		return OutcomeInProgress, fmt.Errorf("deposit %q has no status reference", depositID)
	}

	repo, err := store.Get[model.Repository](ctx, r.client, dep.Repository)
	if err != nil {
		return OutcomeInProgress, fmt.Errorf("read repository %q: %w", dep.Repository, err)
	}
	cfg, err := r.configs.RepositoryConfig(repo.RepositoryKey)
	if err != nil {
		return OutcomeInProgress, err
	}

	outcome, refs, err := r.fetch(ctx, dep.DepositStatusRef, cfg)
	if err != nil {
		return OutcomeInProgress, err
	}

	switch outcome {
	case OutcomeAccepted:
		if err := r.recordAccepted(ctx, dep, refs); err != nil {
			return OutcomeInProgress, err
		}
	case OutcomeRejected, OutcomeFailed:
		if err := r.recordTerminal(ctx, dep.GetID(), outcome); err != nil {
			return OutcomeInProgress, err
		}
	}
	return outcome, nil
}

// fetch retrieves and interprets the Atom statement.
func (r *Resolver) fetch(ctx context.Context, ref string, cfg deposit.RepositoryConfig) (Outcome, statementRefs, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return OutcomeInProgress, statementRefs{}, fmt.Errorf("build statement request: %w", err)
	}
	if cfg.Hints.Username != "" {
		req.SetBasicAuth(cfg.Hints.Username, cfg.Hints.Password)
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return OutcomeInProgress, statementRefs{}, fmt.Errorf("fetch statement %s: %w", ref, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return OutcomeInProgress, statementRefs{}, fmt.Errorf("fetch statement %s: %s", ref, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OutcomeInProgress, statementRefs{}, fmt.Errorf("read statement %s: %w", ref, err)
	}

	scheme := cfg.StatusScheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return interpret(body, scheme, cfg.StatusMap)
}

type atomStatement struct {
	XMLName    xml.Name       `xml:"feed"`
	Categories []atomCategory `xml:"category"`
	Entries    []atomEntry    `xml:"entry"`
}

type atomCategory struct {
	Scheme string `xml:"scheme,attr"`
	Term   string `xml:"term,attr"`
}

type atomEntry struct {
	ID    string     `xml:"id"`
	Links []atomLink `xml:"link"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// statementRefs carries the archive-issued identifiers found in a statement:
// the entry ids become the copy's external ids, the first alternate link its
// access URL.
type statementRefs struct {
	ExternalIDs []string
	AccessURL   string
}

// interpret maps the statement's state categories to an outcome. Multiple
// terms resolve by fixed priority: rejected beats accepted beats in-progress.
// A missing or unmapped term is never a rejection; it reads as in-progress
// and the poller tries again.
func interpret(body []byte, scheme string, statusMap map[string]string) (Outcome, statementRefs, error) {
	var feed atomStatement
	if err := xml.Unmarshal(body, &feed); err != nil {
		return OutcomeInProgress, statementRefs{}, fmt.Errorf("parse statement: %w", err)
	}

	var sawRejected, sawAccepted, sawFailed bool
	for _, cat := range feed.Categories {
		if cat.Scheme != scheme {
			continue
		}
		switch Outcome(statusMap[cat.Term]) {
		case OutcomeRejected:
			sawRejected = true
		case OutcomeAccepted:
			sawAccepted = true
		case OutcomeFailed:
			sawFailed = true
		}
	}

	var refs statementRefs
	for _, entry := range feed.Entries {
		if entry.ID != "" {
			refs.ExternalIDs = append(refs.ExternalIDs, entry.ID)
		}
		for _, link := range entry.Links {
			if link.Rel == "alternate" && refs.AccessURL == "" {
				refs.AccessURL = link.Href
			}
		}
	}

	switch {
	case sawRejected:
		return OutcomeRejected, refs, nil
	case sawAccepted:
		return OutcomeAccepted, refs, nil
	case sawFailed:
		return OutcomeFailed, refs, nil
	default:
		return OutcomeInProgress, refs, nil
	}
}

// recordAccepted settles the deposit and its repository copy together: the
// copy is the durable evidence of custody the aggregator and API expose, so
// the statement's identifiers land on it in the same critical section that
// flips its status.
func (r *Resolver) recordAccepted(ctx context.Context, dep *model.Deposit, refs statementRefs) error {
	copyID, err := r.ensureCopy(ctx, dep)
	if err != nil {
		return err
	}

	res := store.PerformCritical[model.RepositoryCopy](ctx, r.client, copyID, store.Critical[model.RepositoryCopy]{
		Precondition: func(c *model.RepositoryCopy) bool { return !c.CopyStatus.Terminal() },
		Mutation: func(c *model.RepositoryCopy) {
			c.CopyStatus = model.CopyAccepted
			if len(refs.ExternalIDs) > 0 {
				c.ExternalIDs = refs.ExternalIDs
			}
			if refs.AccessURL != "" {
				c.AccessURL = refs.AccessURL
			}
		},
	})
	if res.Err != nil {
		return fmt.Errorf("accept repository copy %q: %w", copyID, res.Err)
	}

	return r.recordTerminal(ctx, dep.GetID(), OutcomeAccepted)
}

func (r *Resolver) ensureCopy(ctx context.Context, dep *model.Deposit) (string, error) {
	ids, err := r.client.FindByAttribute(ctx, model.KindRepositoryCopy, "submission", dep.Submission)
	if err != nil {
		return "", fmt.Errorf("find repository copies: %w", err)
	}
	copies, err := store.GetAll[model.RepositoryCopy](ctx, r.client, ids)
	if err != nil {
		return "", fmt.Errorf("read repository copies: %w", err)
	}
	for _, c := range copies {
		if c.Repository == dep.Repository {
			return c.GetID(), nil
		}
	}

	id, err := r.client.Create(ctx, &model.RepositoryCopy{
		Submission: dep.Submission,
		Repository: dep.Repository,
		CopyStatus: model.CopyInProgress,
	})
	if err != nil {
		return "", fmt.Errorf("create repository copy: %w", err)
	}
	return id, nil
}

func (r *Resolver) recordTerminal(ctx context.Context, depositID string, outcome Outcome) error {
	target := map[Outcome]model.DepositStatus{
		OutcomeAccepted: model.DepositAccepted,
		OutcomeRejected: model.DepositRejected,
		OutcomeFailed:   model.DepositFailed,
	}[outcome]

	res := store.PerformCritical[model.Deposit](ctx, r.client, depositID, store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return !d.DepositStatus.Terminal() },
		Mutation: func(d *model.Deposit) {
			d.DepositStatus = target
			d.UpdatedAt = time.Now().UTC()
		},
	})
	if res.Err != nil {
		return fmt.Errorf("record %s: %w", outcome, res.Err)
	}
	if !res.Success {
		logger.Debug("deposit settled concurrently", "deposit", depositID, "wanted", outcome)
		return nil
	}

	logger.Info("deposit status resolved", "deposit", depositID, "status", target)
	return nil
}
