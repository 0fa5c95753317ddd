// Package indexer implements C9: bringing the stored state into agreement
// with a project's on-disk state. It drives C1 (scan), C2-C5 (parse,
// extract, hoist, resolve) per changed file, C7 (relational write) and C6
// (embedding, batched) for the owners that changed, and C8 deletions for
// removed files.
package indexer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/semindex/internal/blocks"
	"github.com/standardbeagle/semindex/internal/config"
	"github.com/standardbeagle/semindex/internal/debug"
	"github.com/standardbeagle/semindex/internal/embedding"
	serrors "github.com/standardbeagle/semindex/internal/errors"
	"github.com/standardbeagle/semindex/internal/hoist"
	"github.com/standardbeagle/semindex/internal/langdispatch"
	"github.com/standardbeagle/semindex/internal/relate"
	"github.com/standardbeagle/semindex/internal/scanner"
	"github.com/standardbeagle/semindex/internal/store"
	"github.com/standardbeagle/semindex/internal/types"
	"github.com/standardbeagle/semindex/internal/vectorstore"
)

// embedBatchSize is the bounded batch width for step 6 ("tens of owners
// per batch", spec.md §4.9).
const embedBatchSize = 32

// Indexer owns the components a single project's incremental run needs.
type Indexer struct {
	Store      *store.Store
	VecStore   *vectorstore.Store
	Dispatcher *langdispatch.Dispatcher
	Embedder   *embedding.Embedder
	Config     *config.Config
	Project    types.Project
}

// Report summarizes one Run, per spec.md §4.9's closing contract.
type Report struct {
	AddedOK    int                   `json:"added_ok"`
	ModifiedOK int                   `json:"modified_ok"`
	RemovedOK  int                   `json:"removed_ok"`
	Failed     []serrors.FailureRecord `json:"failed"`
}

type pendingFile struct {
	relPath string
	fileID  types.FileID
	file    types.File
	content []byte
}

type embedJob struct {
	ownerKey  string
	text      string
	header    *embedding.Header
}

// Run executes one incremental pass: diff stored vs. current, ingest
// Added/Modified, cascade-delete Removed, then embed everything queued.
// ctx is checked at file boundaries and before each embedding batch.
func (ix *Indexer) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	stored, err := ix.Store.StoredHashes(ctx, ix.Project.ID)
	if err != nil {
		return nil, err
	}

	scanResult, err := scanner.Scan(ix.Project.Path, ix.Config)
	if err != nil {
		return nil, err
	}
	for _, e := range scanResult.Errors {
		report.Failed = append(report.Failed, serrors.FailureRecord{Path: e.FilePath, Kind: e.Kind})
	}

	current := make(map[string]scanner.File, len(scanResult.Files))
	for _, f := range scanResult.Files {
		current[f.RelPath] = f
	}

	var added, modified, removed []string
	for p, f := range current {
		if oldHash, ok := stored[p]; !ok {
			added = append(added, p)
		} else if oldHash != f.ContentHash {
			modified = append(modified, p)
		}
	}
	for p := range stored {
		if _, ok := current[p]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(removed)

	changed := append(append([]string{}, added...), modified...)
	sort.Strings(changed)

	var embedQueue []embedJob

	// Phase 1: upsert file content for every changed path, in lexicographic
	// order, so newly-added files get deterministic AUTOINCREMENT FileIDs.
	pending := make([]pendingFile, 0, len(changed))
	for _, relPath := range changed {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		f := current[relPath]
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			report.Failed = append(report.Failed, serrors.FailureRecord{Path: relPath, Kind: serrors.KindIOUnavailable})
			continue
		}
		lang := langdispatch.LanguageForPath(relPath)
		file := types.File{
			ProjectID:   ix.Project.ID,
			FilePath:    relPath,
			Language:    lang,
			Content:     string(content),
			ContentHash: f.ContentHash,
		}
		fileID, err := ix.Store.IngestFile(ctx, ix.Project.ID, file, nil, nil)
		if err != nil {
			report.Failed = append(report.Failed, serrors.FailureRecord{Path: relPath, Kind: serrors.KindIntegrityViolation})
			continue
		}
		pending = append(pending, pendingFile{relPath: relPath, fileID: fileID, file: file, content: content})
	}

	fileIndex, err := ix.loadFileIndex(ctx)
	if err != nil {
		return nil, err
	}

	// Phase 2: extract, hoist, resolve and write through C7 per file.
	// AST extraction runs on a bounded worker pool; ingestion itself stays
	// serialized because the store is single-writer.
	type extracted struct {
		pf   pendingFile
		blks []types.CodeBlock
		rels []types.Relationship
		err  error
	}
	results := make([]extracted, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	workers := ix.Config.Performance.MaxGoroutines
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)

	for i, pf := range pending {
		i, pf := i, pf
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			lang := pf.file.Language
			if lang == types.LangUnknown {
				results[i] = extracted{pf: pf}
				return nil
			}
			blks, err := blocks.Extract(ix.Dispatcher, lang, pf.fileID, pf.content)
			if err != nil {
				results[i] = extracted{pf: pf, err: err}
				return nil
			}
			hoist.Apply(blks, ix.Config.Index.NestedHoistLineThreshold)

			rels := resolveRelationships(pf.fileID, pf.relPath, blks, lang, fileIndex)
			results[i] = extracted{pf: pf, blks: blks, rels: rels}
			return nil
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return report, ctx.Err()
	}

	for _, r := range results {
		if r.err != nil {
			report.Failed = append(report.Failed, serrors.FailureRecord{Path: r.pf.relPath, Kind: serrors.KindExtractionAnomaly})
			continue
		}
		if _, err := ix.Store.IngestFile(ctx, ix.Project.ID, r.pf.file, r.blks, r.rels); err != nil {
			report.Failed = append(report.Failed, serrors.FailureRecord{Path: r.pf.relPath, Kind: serrors.KindIntegrityViolation})
			continue
		}

		if isAdded(r.pf.relPath, added) {
			report.AddedOK++
		} else {
			report.ModifiedOK++
		}

		header := &embedding.Header{FilePath: r.pf.relPath, Language: string(r.pf.file.Language)}
		embedQueue = append(embedQueue, embedJob{
			ownerKey: types.FileOwnerKey(r.pf.fileID),
			text:     r.pf.file.Content,
			header:   header,
		})
		for _, b := range r.blks {
			embedQueue = append(embedQueue, embedJob{
				ownerKey: types.BlockOwnerKey(b.ID),
				text:     b.Content,
				header:   &embedding.Header{FilePath: r.pf.relPath, Language: string(r.pf.file.Language), BlockName: b.Name},
			})
		}
	}

	// Step 5: cascade-delete removed files from C7 and their embeddings
	// from C8.
	for _, relPath := range removed {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		ownerKeys, err := ix.ownerKeysForFile(ctx, relPath)
		if err != nil {
			report.Failed = append(report.Failed, serrors.FailureRecord{Path: relPath, Kind: serrors.KindIOUnavailable})
			continue
		}
		if err := ix.Store.RemoveFile(ctx, ix.Project.ID, relPath); err != nil {
			report.Failed = append(report.Failed, serrors.FailureRecord{Path: relPath, Kind: serrors.KindIntegrityViolation})
			continue
		}
		for _, ok := range ownerKeys {
			_ = ix.VecStore.DeleteByOwner(ctx, ok)
		}
		report.RemovedOK++
	}

	// Step 6: drive the embedding queue in bounded batches.
	if err := ix.drainEmbedQueue(ctx, embedQueue); err != nil {
		return report, err
	}

	return report, nil
}

// Watch runs one Run pass immediately, then watches the project tree and
// re-runs Run whenever the tree settles after a burst of filesystem events,
// debounced by Config.Index.WatchDebounceMs. It is purely a convenience
// wrapper: every change still flows through the same six-step Run
// algorithm, never a separate incremental code path.
func (ix *Indexer) Watch(ctx context.Context, onReport func(*Report)) error {
	if report, err := ix.Run(ctx); err != nil {
		return err
	} else if onReport != nil {
		onReport(report)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatches(watcher, ix.Project.Path); err != nil {
		return err
	}

	debounce := time.Duration(ix.Config.Index.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(debounce)
			}
		case <-timerC(timer):
			report, err := ix.Run(ctx)
			if err != nil {
				return err
			}
			if onReport != nil {
				onReport(report)
			}
			timer = nil
		}
	}
}

// timerC returns t.C, or a nil channel (which blocks forever in a select)
// when no debounce timer is currently pending.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// addWatches recursively registers every directory under root with
// watcher, skipping hidden directories and any directory named
// node_modules, vendor, dist or build (a fixed list; the configured
// excludes are not consulted), so changes inside those trees never
// trigger a run.
func addWatches(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(p)
		if base != "." && base[0] == '.' && p != root {
			return filepath.SkipDir
		}
		if base == "node_modules" || base == "vendor" || base == "dist" || base == "build" {
			return filepath.SkipDir
		}
		_ = watcher.Add(p)
		return nil
	})
}

func isAdded(relPath string, added []string) bool {
	i := sort.SearchStrings(added, relPath)
	return i < len(added) && added[i] == relPath
}

func resolveRelationships(fileID types.FileID, relPath string, blks []types.CodeBlock, lang types.Language, idx relate.FileIndex) []types.Relationship {
	var rels []types.Relationship
	dir := path.Dir(relPath)
	for _, b := range blks {
		if b.Type != types.BlockImport {
			continue
		}
		symbols := relate.ExtractSymbols(b.Content, lang)
		ref := relate.ExtractModuleRef(b.Content, lang)
		rels = append(rels, relate.Resolve(fileID, dir, ref, symbols, lang, idx))
	}
	return rels
}

func (ix *Indexer) loadFileIndex(ctx context.Context) (relate.FileIndex, error) {
	rows, err := ix.Store.DB().QueryContext(ctx, `SELECT id, file_path FROM files WHERE project_id = ?`, ix.Project.ID)
	if err != nil {
		return relate.FileIndex{}, serrors.New(serrors.KindIOUnavailable, "load_file_index", err)
	}
	defer rows.Close()

	byPath := make(map[string]types.FileID)
	for rows.Next() {
		var id int64
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			return relate.FileIndex{}, serrors.New(serrors.KindIOUnavailable, "load_file_index", err)
		}
		byPath[p] = types.FileID(id)
	}
	return relate.FileIndex{ByPath: byPath}, rows.Err()
}

func (ix *Indexer) ownerKeysForFile(ctx context.Context, relPath string) ([]string, error) {
	row := ix.Store.DB().QueryRowContext(ctx, `SELECT id FROM files WHERE project_id = ? AND file_path = ?`, ix.Project.ID, relPath)
	var fileID int64
	if err := row.Scan(&fileID); err != nil {
		return nil, err
	}

	keys := []string{types.FileOwnerKey(types.FileID(fileID))}

	rows, err := ix.Store.DB().QueryContext(ctx, `SELECT id FROM code_blocks WHERE file_id = ?`, fileID)
	if err != nil {
		return keys, nil
	}
	defer rows.Close()
	for rows.Next() {
		var bid int64
		if err := rows.Scan(&bid); err == nil {
			keys = append(keys, types.BlockOwnerKey(types.BlockID(bid)))
		}
	}
	return keys, rows.Err()
}

func (ix *Indexer) drainEmbedQueue(ctx context.Context, queue []embedJob) error {
	for start := 0; start < len(queue); start += embedBatchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + embedBatchSize
		if end > len(queue) {
			end = len(queue)
		}
		batch := queue[start:end]

		var rows []types.Embedding
		for _, job := range batch {
			embs, err := ix.Embedder.EmbedOwner(job.ownerKey, ix.Project.ID, job.text, job.header)
			if err != nil {
				debug.Logf("indexer: embedding failed for %s: %v", job.ownerKey, err)
				continue
			}
			if err := ix.VecStore.DeleteByOwner(ctx, job.ownerKey); err != nil {
				debug.Logf("indexer: stale embedding cleanup failed for %s: %v", job.ownerKey, err)
			}
			rows = append(rows, embs...)
		}
		if err := ix.VecStore.InsertBatch(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}
