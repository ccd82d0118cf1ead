package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/strata"
	"github.com/nevindra/strata/chunk"
	"github.com/nevindra/strata/ingest"
	"github.com/nevindra/strata/internal/config"
	"github.com/nevindra/strata/observer"
	"github.com/nevindra/strata/provider/resolve"
	"github.com/nevindra/strata/store/bbolt"
	"github.com/nevindra/strata/store/postgres"
	"github.com/nevindra/strata/store/sqlite"
)

// app is the wired set of stores, provider and optional instrumentation
// shared by every command.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	parents   strata.ParentStore
	children  strata.ChildIndex
	embedding strata.EmbeddingProvider
	tracer    strata.Tracer
	inst      *observer.Instruments

	closers  []func() error
	shutdown func(context.Context) error
}

// openApp opens and initializes the configured backend and embedding provider.
func openApp(ctx context.Context, g *globals) (*app, error) {
	a := &app{cfg: g.cfg, logger: g.logger}
	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	emb, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   a.cfg.Embedding.Provider,
		APIKey:     a.cfg.Embedding.APIKey,
		Model:      a.cfg.Embedding.Model,
		BaseURL:    a.cfg.Embedding.BaseURL,
		Dimensions: a.cfg.Embedding.Dimensions,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedding = strata.WithEmbeddingRateLimit(emb, a.cfg.Indexing.EmbedRPS, 1)

	if a.cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("observer: %w", err)
		}
		a.inst = inst
		a.shutdown = shutdown
		a.tracer = observer.NewTracer()
		a.embedding = observer.WrapEmbedding(a.embedding, a.cfg.Embedding.Model, inst)
		a.parents = observer.WrapParentStore(a.parents, inst)
		a.children = observer.WrapChildIndex(a.children, inst)
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	sc := a.cfg.Store
	switch sc.Backend {
	case config.BackendSQLite, config.BackendBboltSQLite:
		db := sqlite.New(sc.Path, sqlite.WithLogger(a.logger))
		a.closers = append(a.closers, db.Close)
		if err := db.Init(ctx); err != nil {
			return err
		}
		children := sqlite.NewChildIndex(db.DB(), sc.Collection, sqlite.WithChildLogger(a.logger))
		if err := children.Init(ctx); err != nil {
			return err
		}
		a.children = children
		a.parents = db

		if sc.Backend == config.BackendBboltSQLite {
			bs, err := bbolt.Open(sc.BboltPath, bbolt.WithLogger(a.logger))
			if err != nil {
				return err
			}
			a.closers = append(a.closers, bs.Close)
			if err := bs.Init(ctx); err != nil {
				return err
			}
			a.parents = bs
		}
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, sc.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: connect: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		parents := postgres.New(pool)
		if err := parents.Init(ctx); err != nil {
			return err
		}
		children := postgres.NewChildIndex(pool,
			postgres.WithCollection(sc.Collection),
			postgres.WithEmbeddingDimension(a.cfg.Embedding.Dimensions))
		if err := children.Init(ctx); err != nil {
			return err
		}
		a.parents = parents
		a.children = children
	default:
		return &strata.ValidationError{Field: "store.backend", Reason: fmt.Sprintf("unknown backend %q", sc.Backend)}
	}
	return nil
}

// pipeline builds an indexing pipeline from the chunking and indexing sections.
func (a *app) pipeline() (*ingest.Pipeline, error) {
	cc := a.cfg.Chunking
	chunkOpts := []chunk.Option{
		chunk.WithUnicodeNormalization(cc.UnicodeNormalization),
		chunk.WithTableLocale(cc.TableLocale),
	}
	ps, err := chunk.NewParentSplitter(cc.ParentSeparator, cc.ParentChunkSize, chunkOpts...)
	if err != nil {
		return nil, err
	}
	cs, err := chunk.NewChildSplitter(cc.ChildSeparator, cc.ChildChunkSize, chunkOpts...)
	if err != nil {
		return nil, err
	}
	ic := a.cfg.Indexing
	return ingest.NewPipeline(a.parents, a.children, a.embedding,
		ingest.WithParentSplitter(ps),
		ingest.WithChildSplitter(cs),
		ingest.WithBatchSize(ic.BatchSize),
		ingest.WithWorkers(ic.Workers),
		ingest.WithMaxInFlight(ic.MaxInFlight),
		ingest.WithRetryPolicy(a.retryPolicy()),
		ingest.WithLogger(a.logger),
		ingest.WithTracer(a.tracer),
	)
}

// querier builds the retrieval engine. Query embeddings get their own retry
// since the pipeline's batch retry does not cover them.
func (a *app) querier() strata.Querier {
	rc := a.cfg.Retrieval
	ic := a.cfg.Indexing
	emb := strata.WithEmbeddingRetry(a.embedding,
		strata.RetryMaxAttempts(ic.RetryMaxAttempts),
		strata.RetryBaseDelay(ic.RetryBaseDelay),
		strata.RetryTimeout(ic.RetryTimeout),
		strata.RetryLogger(a.logger))
	var q strata.Querier = strata.NewRetriever(a.parents, a.children, emb,
		strata.WithFanout(rc.Fanout),
		strata.WithPreviewChars(rc.PreviewChars),
		strata.WithMaxPreviews(rc.MaxPreviews),
		strata.WithRetrieverLogger(a.logger),
		strata.WithRetrieverTracer(a.tracer))
	if a.inst != nil {
		q = observer.WrapQuerier(q, a.inst)
	}
	return q
}

func (a *app) retryPolicy() strata.RetryPolicy {
	ic := a.cfg.Indexing
	return strata.NewRetryPolicy(
		strata.RetryMaxAttempts(ic.RetryMaxAttempts),
		strata.RetryBaseDelay(ic.RetryBaseDelay),
		strata.RetryTimeout(ic.RetryTimeout),
		strata.RetryLogger(a.logger))
}

// Close flushes telemetry and closes stores in reverse open order.
func (a *app) Close() error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
