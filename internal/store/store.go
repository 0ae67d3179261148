// Package store persists the knowledge graph and the per-document processing
// ledger in a single bbolt database. Keeping both in one file is what makes
// the commit contract cheap: a batch's graph delta and its fingerprint
// updates land in one transaction, so they become durable together or not
// at all.
package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/knowledgegraph"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bucketNodes = []byte("nodes")
	bucketEdges = []byte("edges")
	bucketDocs  = []byte("documents")
	bucketMeta  = []byte("meta")

	keyRevision = []byte("revision")
)

// Store is the durable home of the graph and the ledger.
type Store struct {
	db  *bbolt.DB
	log *zap.Logger
}

// Open creates or opens the state database at path, creating parent
// directories and the bucket layout as needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketNodes, bucketEdges, bucketDocs, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return &Store{db: db, log: logger.Named("store")}, nil
}

// Close releases the database file.
func (s *Store) Close() error { return s.db.Close() }

// Revision returns the current committed graph revision.
func (s *Store) Revision() (uint64, error) {
	var rev uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		rev = readRevision(tx)
		return nil
	})
	return rev, err
}

func readRevision(tx *bbolt.Tx) uint64 {
	raw := tx.Bucket(bucketMeta).Get(keyRevision)
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// Snapshot loads the full committed graph into an immutable in-memory view
// for one batch's resolution and reconciliation.
func (s *Store) Snapshot() (*knowledgegraph.Snapshot, error) {
	var (
		nodes []schemas.Node
		edges []schemas.Edge
		rev   uint64
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		rev = readRevision(tx)
		if err := forEachJSON(tx.Bucket(bucketNodes), func(n schemas.Node) {
			nodes = append(nodes, n)
		}); err != nil {
			return err
		}
		return forEachJSON(tx.Bucket(bucketEdges), func(e schemas.Edge) {
			edges = append(edges, e)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	return knowledgegraph.NewSnapshot(rev, nodes, edges), nil
}

func forEachJSON[T any](b *bbolt.Bucket, fn func(T)) error {
	return b.ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("%w: undecodable record %q: %v", schemas.ErrStateCorruption, k, err)
		}
		fn(item)
		return nil
	})
}

// ApplyBatch commits one batch: the graph delta and every document outcome
// land in a single transaction. The revision increments only when the delta
// actually mutates the graph, so a re-run over unchanged input leaves it
// untouched. Returns the revision visible after the commit.
func (s *Store) ApplyBatch(delta *schemas.GraphDelta, outcomes []schemas.DocumentOutcome) (uint64, error) {
	var rev uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		nodesB := tx.Bucket(bucketNodes)
		for _, n := range delta.NodesToAdd {
			if err := putJSON(nodesB, []byte(n.ID), n); err != nil {
				return err
			}
		}
		for _, n := range delta.NodesToUpdate {
			if err := putJSON(nodesB, []byte(n.ID), n); err != nil {
				return err
			}
		}

		edgesB := tx.Bucket(bucketEdges)
		for _, e := range delta.EdgesToAdd {
			if err := putJSON(edgesB, []byte(e.ID), e); err != nil {
				return err
			}
		}
		for _, e := range delta.EdgesToUpdate {
			if err := putJSON(edgesB, []byte(e.ID), e); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		docsB := tx.Bucket(bucketDocs)
		for _, o := range outcomes {
			rec := schemas.DocumentRecord{ID: o.DocID, Path: o.Path}
			if raw := docsB.Get([]byte(o.DocID)); raw != nil {
				if err := json.Unmarshal(raw, &rec); err != nil {
					return fmt.Errorf("%w: undecodable ledger record %q: %v", schemas.ErrStateCorruption, o.DocID, err)
				}
			}
			rec.Path = o.Path
			rec.Fingerprint = o.Fingerprint
			rec.Status = o.Status
			rec.LastError = o.Error
			rec.ProcessedAt = now
			if o.Status == schemas.StatusSucceeded {
				rec.ProcessedFingerprint = o.Fingerprint
				rec.Entities = o.Entities
				rec.Relations = o.Relations
			}
			if err := putJSON(docsB, []byte(o.DocID), rec); err != nil {
				return err
			}
		}

		rev = readRevision(tx)
		if !delta.Empty() {
			rev++
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, rev)
			if err := tx.Bucket(bucketMeta).Put(keyRevision, buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", schemas.ErrCommit, err)
	}

	s.log.Debug("Batch committed",
		zap.Uint64("revision", rev),
		zap.Int("nodes_added", len(delta.NodesToAdd)),
		zap.Int("nodes_updated", len(delta.NodesToUpdate)),
		zap.Int("edges_added", len(delta.EdgesToAdd)),
		zap.Int("edges_updated", len(delta.EdgesToUpdate)),
		zap.Int("outcomes", len(outcomes)))
	return rev, nil
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

// Documents returns every ledger record, sorted by id (bbolt key order).
func (s *Store) Documents() ([]schemas.DocumentRecord, error) {
	var out []schemas.DocumentRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEachJSON(tx.Bucket(bucketDocs), func(r schemas.DocumentRecord) {
			out = append(out, r)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return out, nil
}

// Pending filters the corpus down to the documents needing processing,
// preserving input order: forced runs take everything, otherwise a document
// qualifies when it was never seen, its content changed since the last
// success, or its last attempt failed.
func (s *Store) Pending(docs []schemas.Document, force bool) ([]schemas.Document, error) {
	if force {
		out := make([]schemas.Document, len(docs))
		copy(out, docs)
		return out, nil
	}

	var out []schemas.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		docsB := tx.Bucket(bucketDocs)
		for _, d := range docs {
			raw := docsB.Get([]byte(d.ID))
			if raw == nil {
				out = append(out, d)
				continue
			}
			var rec schemas.DocumentRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("%w: undecodable ledger record %q: %v", schemas.ErrStateCorruption, d.ID, err)
			}
			if rec.NeedsProcessing(d.Fingerprint) {
				out = append(out, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetLedger clears all document records while leaving the graph intact.
// The next run reprocesses everything.
func (s *Store) ResetLedger() error {
	return s.clearBuckets(bucketDocs)
}

// ResetAll discards the graph, the ledger, and the revision counter.
func (s *Store) ResetAll() error {
	return s.clearBuckets(bucketNodes, bucketEdges, bucketDocs, bucketMeta)
}

func (s *Store) clearBuckets(names ...[]byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}
	return nil
}

// Recover is the startup consistency pass between the graph and the ledger.
// A record claiming success with a non-zero contribution whose document id
// appears in no node's provenance (for entities) or no edge's provenance
// (for relations) is a torn commit from a previous process: it is demoted to
// pending so the next run retries it. The reverse mismatch (graph provenance
// without a successful ledger record) resolves itself the same way, since
// such documents are already pending; it is only logged. Returns the ids
// demoted to pending.
func (s *Store) Recover() ([]string, error) {
	var demoted []string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		nodeDocs := make(map[string]bool)
		if err := forEachJSON(tx.Bucket(bucketNodes), func(n schemas.Node) {
			for _, d := range n.Docs {
				nodeDocs[d] = true
			}
		}); err != nil {
			return err
		}
		edgeDocs := make(map[string]bool)
		if err := forEachJSON(tx.Bucket(bucketEdges), func(e schemas.Edge) {
			for _, d := range e.Docs {
				edgeDocs[d] = true
			}
		}); err != nil {
			return err
		}

		docsB := tx.Bucket(bucketDocs)
		var fixes []schemas.DocumentRecord
		if err := forEachJSON(docsB, func(r schemas.DocumentRecord) {
			if r.Status != schemas.StatusSucceeded {
				return
			}
			if (r.Entities > 0 && !nodeDocs[r.ID]) || (r.Relations > 0 && !edgeDocs[r.ID]) {
				fixes = append(fixes, r)
			}
		}); err != nil {
			return err
		}

		for _, rec := range fixes {
			s.log.Warn("Ledger claims success for contribution absent from graph; demoting to pending",
				zap.String("doc", rec.ID), zap.Error(schemas.ErrStateCorruption))
			rec.Status = schemas.StatusPending
			rec.ProcessedFingerprint = ""
			if err := putJSON(docsB, []byte(rec.ID), rec); err != nil {
				return err
			}
			demoted = append(demoted, rec.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recovery pass failed: %w", err)
	}
	return demoted, nil
}
