package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/config"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
	"github.com/michaelloggins/Accession-sub000/internal/metrics"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
	"github.com/michaelloggins/Accession-sub000/internal/storage"
)

// Processor runs one extraction cycle end to end: select, claim, fetch,
// route through the extractor cascade, merge results, recover failures,
// close the batch.
type Processor struct {
	cfgsrc      config.Source
	selector    *QueueSelector
	coordinator *BatchCoordinator
	router      *ExtractionRouter
	results     *ResultProcessor
	failures    *FailureHandler
	store       storage.Gateway
	docs        repository.DocumentRepository
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewProcessor(
	cfgsrc config.Source,
	selector *QueueSelector,
	coordinator *BatchCoordinator,
	router *ExtractionRouter,
	results *ResultProcessor,
	failures *FailureHandler,
	store storage.Gateway,
	docs repository.DocumentRepository,
	m *metrics.Metrics,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Processor{
		cfgsrc:      cfgsrc,
		selector:    selector,
		coordinator: coordinator,
		router:      router,
		results:     results,
		failures:    failures,
		store:       store,
		docs:        docs,
		metrics:     m,
		log:         log,
	}
}

// RunCycle performs one process-cycle. An empty eligible set performs no
// writes. Any unexpected error aborts the cycle after sweeping in-flight
// documents back to failed, so they rejoin the ordinary retry path.
func (p *Processor) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { p.metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	snap := config.LoadSnapshot(ctx, p.cfgsrc)

	selected, err := p.selector.Select(ctx, snap)
	if err != nil {
		return fmt.Errorf("select queued documents: %w", err)
	}
	if len(selected) == 0 {
		p.log.Debug("no eligible documents, skipping cycle")
		return nil
	}

	batch, err := p.coordinator.Open(ctx, selected)
	if err != nil {
		return fmt.Errorf("open batch: %w", err)
	}
	p.log.Info("cycle started",
		"batch_id", batch.ID,
		"documents", len(selected),
		"batch_size", snap.BatchSize,
		"max_retries", snap.MaxRetries,
	)

	successful, failedDocs, resolved, err := p.resolveBatch(ctx, snap, batch, selected)
	if err != nil {
		p.abortBatch(ctx, snap, batch, selected, successful, failedDocs, resolved, err)
		return err
	}

	status := constants.BatchCompleted
	var errMsg *string
	if len(failedDocs) > 0 {
		status, err = p.failures.Handle(ctx, batch, failedDocs, snap)
		if err != nil {
			p.log.Error("failure handling incomplete", "batch_id", batch.ID, "err", err)
		}
		msg := fmt.Sprintf("%d of %d documents failed extraction", len(failedDocs), batch.DocumentCount)
		errMsg = &msg
	}

	if err := p.coordinator.Close(ctx, batch, successful, len(failedDocs), status, errMsg); err != nil {
		return err
	}
	p.metrics.BatchesClosed.WithLabelValues(string(status)).Inc()
	p.log.Info("cycle finished",
		"batch_id", batch.ID,
		"status", status,
		"successful", successful,
		"failed", len(failedDocs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// resolveBatch fetches each document's bytes, routes everything through the
// extractor cascade, and merges the outcomes. A fetch failure fails only the
// affected document without a provider call. The returned error is reserved
// for record-store failures.
func (p *Processor) resolveBatch(ctx context.Context, snap config.Snapshot, batch *entity.Batch, selected []entity.Document) (int, []entity.Document, map[int64]bool, error) {
	successful := 0
	var failedDocs []entity.Document
	resolved := make(map[int64]bool, len(selected))

	contents := make(map[int64][]byte, len(selected))
	var live []entity.Document
	for _, doc := range selected {
		data, err := p.store.Get(ctx, *doc.ObjectKey)
		if err != nil {
			ok, perr := p.results.Process(ctx, Outcome{
				Doc: doc,
				Err: fmt.Errorf("fetch object %s: %w", *doc.ObjectKey, err),
			}, snap)
			if perr != nil {
				return successful, failedDocs, resolved, perr
			}
			resolved[doc.ID] = true
			if !ok {
				failedDocs = append(failedDocs, doc)
			}
			continue
		}
		contents[doc.ID] = data
		live = append(live, doc)
	}

	for _, out := range p.router.Route(ctx, live, contents, snap) {
		ok, perr := p.results.Process(ctx, out, snap)
		if perr != nil {
			return successful, failedDocs, resolved, perr
		}
		resolved[out.Doc.ID] = true
		if ok {
			successful++
		} else {
			failedDocs = append(failedDocs, out.Doc)
		}
	}
	return successful, failedDocs, resolved, nil
}

// abortBatch is the cycle's catch-all: documents still marked processing are
// swept to failed, the ordinary retry path runs over everything unresolved,
// and the batch closes as failed.
func (p *Processor) abortBatch(ctx context.Context, snap config.Snapshot, batch *entity.Batch, selected []entity.Document, successful int, failedDocs []entity.Document, resolved map[int64]bool, cause error) {
	p.log.Error("cycle aborted, sweeping in-flight documents", "batch_id", batch.ID, "err", cause)

	swept, err := p.docs.SweepProcessing(ctx, batch.ID, "extraction cycle aborted: "+cause.Error())
	if err != nil {
		p.log.Error("sweep failed", "batch_id", batch.ID, "err", err)
	} else if swept > 0 {
		p.log.Warn("swept in-flight documents to failed", "batch_id", batch.ID, "count", swept)
	}

	unresolved := failedDocs
	for _, d := range selected {
		if !resolved[d.ID] {
			unresolved = append(unresolved, d)
		}
	}
	if _, err := p.failures.Handle(ctx, batch, unresolved, snap); err != nil {
		p.log.Error("failure handling after abort incomplete", "batch_id", batch.ID, "err", err)
	}

	msg := cause.Error()
	if err := p.coordinator.Close(ctx, batch, successful, batch.DocumentCount-successful, constants.BatchFailed, &msg); err != nil {
		p.log.Error("batch close after abort failed", "batch_id", batch.ID, "err", err)
	}
	p.metrics.BatchesClosed.WithLabelValues(string(constants.BatchFailed)).Inc()
}
