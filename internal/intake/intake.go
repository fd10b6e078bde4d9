// Package intake prepares a batch of uploads in parallel: preview
// extraction, structured analysis, and per-file scenario pre-routing.
package intake

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/ledgerclaw/internal/documents"
	"github.com/user/ledgerclaw/internal/scenario"
	"github.com/user/ledgerclaw/internal/types"
)

// DefaultParallelism bounds concurrent per-file work.
const DefaultParallelism = 4

// Item is the prepared state of one file. Err is set for files that could
// not be read; the batch carries on without them.
type Item struct {
	FileID   types.FileID
	File     *types.UploadedFile
	Preview  string
	Analysis json.RawMessage
	Decision *scenario.Decision
	Err      error
}

// Suggested is the scenario the file was routed to, if any.
func (it Item) Suggested() string {
	if d := it.Decision.Primary(); d != nil {
		return d.Key
	}
	return ""
}

// Batch is one intake call.
type Batch struct {
	SessionID   types.SessionID
	FileIDs     []types.FileID
	Catalog     *scenario.Catalog
	ScenarioKey string
}

// Intake prepares uploads.
type Intake struct {
	files       types.FileStore
	analyses    types.AnalysisStore
	extractor   Extractor
	router      *scenario.Router
	cache       *lru.Cache[types.FileID, json.RawMessage]
	parallelism int
	logger      *zap.Logger
}

// Config holds the optional collaborators of an Intake.
type Config struct {
	Extractor   Extractor
	Router      *scenario.Router
	Parallelism int
	CacheSize   int
	Logger      *zap.Logger
}

// New creates an Intake over the file and analysis stores.
func New(files types.FileStore, analyses types.AnalysisStore, cfg Config) (*Intake, error) {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cache, err := lru.New[types.FileID, json.RawMessage](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create analysis cache: %w", err)
	}
	return &Intake{
		files:       files,
		analyses:    analyses,
		extractor:   cfg.Extractor,
		router:      cfg.Router,
		cache:       cache,
		parallelism: cfg.Parallelism,
		logger:      cfg.Logger,
	}, nil
}

// Process prepares every file of the batch. Results keep the batch order.
// Workers share nothing but their own result slot.
func (in *Intake) Process(ctx context.Context, b Batch) ([]Item, error) {
	items := make([]Item, len(b.FileIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.parallelism)
	for i, id := range b.FileIDs {
		i, id := i, id
		g.Go(func() error {
			item, err := in.prepare(gctx, b, id)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// prepare returns an error only for cancellation; per-file problems are
// recorded on the item.
func (in *Intake) prepare(ctx context.Context, b Batch, id types.FileID) (Item, error) {
	item := Item{FileID: id}
	file, err := in.files.ResolveFile(ctx, id)
	if err != nil {
		item.Err = err
		return item, ctx.Err()
	}
	if file == nil {
		item.Err = fmt.Errorf("file %s: %w", id, types.ErrNotFound)
		return item, nil
	}
	item.File = file

	content, err := in.files.Read(ctx, id)
	if err != nil {
		item.Err = err
		return item, ctx.Err()
	}
	item.Preview, err = documents.Preview(file, content, documents.DefaultPreviewLimit)
	if err != nil {
		in.logger.Warn("preview failed", zap.String("file_id", string(id)), zap.Error(err))
	}

	item.Analysis = in.analysis(ctx, b.SessionID, file, item.Preview)
	if err := ctx.Err(); err != nil {
		return item, err
	}

	if in.router != nil && b.Catalog != nil {
		decision, err := in.router.Route(ctx, b.Catalog, scenario.RouteInput{
			ScenarioKey: b.ScenarioKey,
			File: &scenario.FileInput{
				FileName:    file.FileName,
				ContentType: file.ContentType,
				Preview:     item.Preview,
				Analysis:    item.Analysis,
			},
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return item, ctxErr
			}
			in.logger.Warn("pre-routing failed", zap.String("file_id", string(id)), zap.Error(err))
		}
		item.Decision = decision
	}
	return item, nil
}

// analysis returns the cached or stored analysis, extracting and storing it
// when neither exists.
func (in *Intake) analysis(ctx context.Context, sessionID types.SessionID, file *types.UploadedFile, preview string) json.RawMessage {
	if a, ok := in.cache.Get(file.ID); ok {
		return a
	}
	if in.analyses != nil {
		if a, err := in.analyses.Get(ctx, sessionID, file.ID); err == nil && len(a) > 0 {
			in.cache.Add(file.ID, a)
			return a
		}
	}
	if in.extractor == nil {
		return nil
	}
	a, err := in.extractor.Extract(ctx, file, preview)
	if err != nil {
		in.logger.Warn("extraction failed", zap.String("file_id", string(file.ID)), zap.Error(err))
		return nil
	}
	if len(a) == 0 {
		return nil
	}
	in.cache.Add(file.ID, a)
	if in.analyses != nil {
		if err := in.analyses.Put(ctx, sessionID, file.ID, a); err != nil {
			in.logger.Warn("store analysis failed", zap.String("file_id", string(file.ID)), zap.Error(err))
		}
	}
	return a
}

// Forget drops a cached analysis so the next batch re-extracts it.
func (in *Intake) Forget(id types.FileID) {
	in.cache.Remove(id)
}
