// Package orchestrator drives a run end to end: it selects the pending
// documents, fans extraction out over an LLM with bounded concurrency,
// resolves and reconciles each batch against the committed graph, and
// commits the batch atomically. Extraction failures are per-document data;
// a failed commit costs only its own batch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/config"
	"github.com/xkilldash9x/mkgraph/internal/knowledgegraph"
)

// Store is the persistence surface the orchestrator drives. *store.Store is
// the production implementation.
type Store interface {
	Recover() ([]string, error)
	Pending(docs []schemas.Document, force bool) ([]schemas.Document, error)
	Snapshot() (*knowledgegraph.Snapshot, error)
	ApplyBatch(delta *schemas.GraphDelta, outcomes []schemas.DocumentOutcome) (uint64, error)
	Revision() (uint64, error)
	Documents() ([]schemas.DocumentRecord, error)
}

// Orchestrator coordinates batched graph accumulation over one store.
type Orchestrator struct {
	store      Store
	extractor  schemas.Extractor
	resolver   *knowledgegraph.Resolver
	reconciler *knowledgegraph.Reconciler
	limiter    *rate.Limiter
	cfg        config.EngineConfig
	noState    bool
	log        *zap.Logger
}

// Option tweaks orchestrator construction.
type Option func(*Orchestrator)

// WithoutState makes the run process every document and commit graph deltas
// without writing the ledger. The next stateful run sees those documents as
// never processed.
func WithoutState() Option {
	return func(o *Orchestrator) { o.noState = true }
}

// New wires an orchestrator over the given store and extractor.
func New(st Store, extractor schemas.Extractor, cfg config.Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.LLM.RatePerSecond > 0 {
		limit = rate.Limit(cfg.LLM.RatePerSecond)
	}
	o := &Orchestrator{
		store:      st,
		extractor:  extractor,
		resolver:   knowledgegraph.NewResolver(logger),
		reconciler: knowledgegraph.NewReconciler(logger),
		limiter:    rate.NewLimiter(limit, 1),
		cfg:        cfg.Engine,
		log:        logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// extracted is one document's extraction attempt inside a batch.
type extracted struct {
	doc    schemas.Document
	result schemas.ExtractionResult
	err    error
}

// Run processes the corpus: recovery pass, pending selection, then batch by
// batch extraction, resolution, reconciliation and commit. The returned
// summary covers every document the run touched. A failed commit costs only
// its own batch: nothing from it is durable, its documents stay pending for
// the next run, and processing continues with the next batch.
func (o *Orchestrator) Run(ctx context.Context, docs []schemas.Document, force bool) (*schemas.RunSummary, error) {
	runID := uuid.NewString()
	log := o.log.With(zap.String("run_id", runID))

	demoted, err := o.store.Recover()
	if err != nil {
		return nil, err
	}
	if len(demoted) > 0 {
		log.Warn("Recovery demoted documents to pending", zap.Strings("docs", demoted))
	}

	pending, err := o.store.Pending(docs, force || o.noState)
	if err != nil {
		return nil, err
	}

	summary := &schemas.RunSummary{
		RunID:   runID,
		Skipped: len(docs) - len(pending),
	}
	log.Info("Run started",
		zap.Int("corpus", len(docs)),
		zap.Int("pending", len(pending)),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("force", force))

	for start := 0; start < len(pending); start += o.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		end := start + o.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := o.processBatch(ctx, pending[start:end], summary, log); err != nil {
			if errors.Is(err, schemas.ErrCommit) {
				log.Error("Batch commit failed; its documents stay pending",
					zap.Int("batch_start", start), zap.Error(err))
				summary.CommitErrors = append(summary.CommitErrors, err.Error())
				continue
			}
			return summary, err
		}
	}

	rev, err := o.store.Revision()
	if err != nil {
		return summary, err
	}
	summary.Revision = rev

	log.Info("Run complete",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("commit_errors", len(summary.CommitErrors)),
		zap.Uint64("revision", summary.Revision))
	return summary, nil
}

// processBatch extracts one batch concurrently, folds the successes into a
// graph delta against a fresh snapshot, and commits delta plus outcomes in
// one transaction. The summary is touched only after the commit succeeds, so
// a failed batch leaves no trace in it beyond the error the caller records.
func (o *Orchestrator) processBatch(ctx context.Context, batch []schemas.Document, summary *schemas.RunSummary, log *zap.Logger) error {
	results := make([]extracted, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ExtractConcurrency)
	for i, doc := range batch {
		i, doc := i, doc
		g.Go(func() error {
			if err := o.limiter.Wait(gctx); err != nil {
				results[i] = extracted{doc: doc, err: err}
				return nil
			}
			docCtx := gctx
			var cancel context.CancelFunc
			if o.cfg.DocumentTimeout > 0 {
				docCtx, cancel = context.WithTimeout(gctx, o.cfg.DocumentTimeout)
				defer cancel()
			}
			res, err := o.extractor.Extract(docCtx, doc)
			results[i] = extracted{doc: doc, result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// Don't record failures caused by the run being cancelled.
		return err
	}

	var (
		candidates []schemas.CandidateEntity
		relations  []schemas.CandidateRelation
		outcomes   []schemas.DocumentOutcome
		succeeded  int
		failed     int
	)
	for _, r := range results {
		outcome := schemas.DocumentOutcome{
			DocID:       r.doc.ID,
			Path:        r.doc.Path,
			Fingerprint: r.doc.Fingerprint,
		}
		if r.err != nil {
			log.Warn("Document extraction failed",
				zap.String("doc", r.doc.ID), zap.Error(r.err))
			outcome.Status = schemas.StatusFailed
			outcome.Error = r.err.Error()
			failed++
		} else {
			outcome.Status = schemas.StatusSucceeded
			candidates = append(candidates, r.result.Entities...)
			relations = append(relations, r.result.Relations...)
			succeeded++
		}
		outcomes = append(outcomes, outcome)
	}

	snap, err := o.store.Snapshot()
	if err != nil {
		return err
	}

	res := o.resolver.Resolve(candidates, snap)
	rec := o.reconciler.Reconcile(relations, res, snap)
	warnings := append(append([]string(nil), res.Warnings...), rec.Warnings...)

	// The ledger records what actually landed in the graph, not what the
	// model proposed. Candidates the resolver or reconciler discarded must
	// not count, or the recovery pass would demote their documents forever.
	committedEntities := make(map[string]int)
	for i, c := range candidates {
		if res.Assignments[i] != "" {
			committedEntities[c.DocID]++
		}
	}
	for i := range outcomes {
		if outcomes[i].Status == schemas.StatusSucceeded {
			outcomes[i].Entities = committedEntities[outcomes[i].DocID]
			outcomes[i].Relations = rec.DocRelations[outcomes[i].DocID]
		}
	}

	delta := &schemas.GraphDelta{
		NodesToAdd:    res.NewNodes,
		NodesToUpdate: res.UpdatedNodes,
		EdgesToAdd:    rec.NewEdges,
		EdgesToUpdate: rec.UpdatedEdges,
	}
	ledgerWrites := outcomes
	if o.noState {
		ledgerWrites = nil
	}

	start := time.Now()
	rev, err := o.store.ApplyBatch(delta, ledgerWrites)
	if err != nil {
		// Nothing from this batch is durable; the ledger still shows these
		// documents as pending.
		return fmt.Errorf("batch commit failed: %w", err)
	}
	log.Debug("Batch processed",
		zap.Int("documents", len(batch)),
		zap.Int("new_nodes", len(delta.NodesToAdd)),
		zap.Int("new_edges", len(delta.EdgesToAdd)),
		zap.Uint64("revision", rev),
		zap.Duration("commit", time.Since(start)))

	summary.Succeeded += succeeded
	summary.Failed += failed
	summary.Warnings = append(summary.Warnings, warnings...)
	summary.Outcomes = append(summary.Outcomes, outcomes...)
	return nil
}

// Status describes the committed state for the status command.
type Status struct {
	Revision  uint64
	Nodes     int
	Edges     int
	Documents []schemas.DocumentRecord
	LastRun   time.Time
}

// Status reports the store's current revision, graph size and ledger.
func (o *Orchestrator) Status() (*Status, error) {
	snap, err := o.store.Snapshot()
	if err != nil {
		return nil, err
	}
	records, err := o.store.Documents()
	if err != nil {
		return nil, err
	}
	st := &Status{
		Revision:  snap.Revision(),
		Nodes:     snap.NodeCount(),
		Edges:     snap.EdgeCount(),
		Documents: records,
	}
	for _, r := range records {
		if r.ProcessedAt.After(st.LastRun) {
			st.LastRun = r.ProcessedAt
		}
	}
	return st, nil
}
