// Package pipeline implements the page-processing pipeline: bounded
// concurrent rendering and transcription of PDF pages, with out-of-order
// completions reassembled into one ordered Markdown document.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/llm"
	"github.com/pagemark/pagemark/internal/observability"
)

// Orchestrator drives one document conversion end to end: render pages,
// cut batches, transcribe each batch under the admission gates with
// retry, and assemble fragments in sequence order. A run is fail-fast:
// the first aborted batch cancels the run context, which stops further
// submissions and unwinds in-flight work.
type Orchestrator struct {
	renderer  domain.Renderer
	client    domain.TranscriptionClient
	retry     *llm.RetryPolicy
	gates     *Controller
	batchSize int
	logger    *observability.Logger
	progress  func(done, total int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgress installs a callback invoked after each completed batch.
func WithProgress(fn func(done, total int)) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// NewOrchestrator creates an orchestrator. batchSize must already be
// validated to lie in [1,10].
func NewOrchestrator(
	renderer domain.Renderer,
	client domain.TranscriptionClient,
	retry *llm.RetryPolicy,
	gates *Controller,
	batchSize int,
	logger *observability.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		renderer:  renderer,
		client:    client,
		retry:     retry,
		gates:     gates,
		batchSize: batchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run converts one PDF to Markdown. It returns either the complete
// document or a single classified error; partial output is never
// returned on failure.
func (o *Orchestrator) Run(ctx context.Context, data []byte) (*domain.RunResult, error) {
	start := time.Now()
	log := o.logger.WithRun(uuid.NewString())

	// The run carries its own cancel so a failed batch stops admission
	// before its gate slot is released; relying on errgroup's cancel
	// alone would let one more batch slip through the freed slot.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)

	pageCount, pages, err := o.renderer.Render(gctx, data)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	totalBatches := BatchCount(pageCount, o.batchSize)
	asm := NewAssembler(totalBatches)
	run := &runState{total: totalBatches}

	log.Info().
		Int("pages", pageCount).
		Int("batches", totalBatches).
		Int("batch_size", o.batchSize).
		Msg("Starting conversion run")

	g.Go(func() error {
		batcher := NewBatcher(o.batchSize)
		for rp := range pages {
			if rp.Err != nil {
				if gctx.Err() != nil {
					// The stream was unwound by cancellation; the cause
					// is already recorded elsewhere.
					return nil
				}
				return rp.Err
			}
			if batch := batcher.Add(rp.Page); batch != nil {
				if err := o.submit(gctx, g, *batch, asm, run, log, cancelRun); err != nil {
					return err
				}
			}
		}
		if batch := batcher.Flush(); batch != nil {
			return o.submit(gctx, g, *batch, asm, run, log, cancelRun)
		}
		return nil
	})

	err = g.Wait()
	// A batch failure recorded in run state is the true cause; goroutines
	// unwound by the cancelled context may have reported first.
	if ferr := run.firstError(); ferr != nil {
		err = ferr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Conversion run failed")
		return nil, err
	}

	markdown, err := asm.Finalize()
	if err != nil {
		return nil, err
	}

	result := &domain.RunResult{
		Markdown:       markdown,
		PagesProcessed: pageCount,
		BatchCount:     totalBatches,
		Usage:          run.usageTotal(),
		Duration:       time.Since(start),
	}

	log.Info().
		Int("pages", result.PagesProcessed).
		Int("tokens", result.Usage.TotalTokens).
		Dur("elapsed", result.Duration).
		Msg("Conversion run complete")

	return result, nil
}

// submit acquires a transcription slot, then hands the batch to a worker
// goroutine. Blocking on the gate here, in the submission loop, is what
// stops new submissions once the run context is cancelled.
func (o *Orchestrator) submit(
	ctx context.Context,
	g *errgroup.Group,
	batch domain.Batch,
	asm *Assembler,
	run *runState,
	log *observability.Logger,
	cancel context.CancelFunc,
) error {
	if err := o.gates.Transcribe.Acquire(ctx); err != nil {
		// Acquire only fails on cancellation; the cause is recorded by
		// whoever cancelled.
		return nil
	}

	g.Go(func() error {
		defer o.gates.Transcribe.Release()

		res, err := o.retry.Do(ctx, func(callCtx context.Context) (*domain.TranscriptionResult, error) {
			return o.client.Transcribe(callCtx, batch)
		})
		if err != nil {
			var de *domain.Error
			if !errors.As(err, &de) {
				// A raw context error means this worker was unwound by a
				// cancellation whose cause is recorded elsewhere.
				return nil
			}
			log.Error().
				Err(err).
				Int("batch", batch.Seq).
				Int("first_page", batch.FirstPage()).
				Int("last_page", batch.LastPage()).
				Msg("Batch transcription aborted")
			run.fail(err)
			cancel()
			return nil
		}

		if err := asm.Insert(batch.Seq, res.Markdown); err != nil {
			run.fail(err)
			cancel()
			return nil
		}

		done := run.batchDone(res.Usage)
		log.Debug().
			Int("batch", batch.Seq).
			Int("completed", done).
			Msg("Batch transcribed")

		if o.progress != nil {
			o.progress(done, run.total)
		}
		return nil
	})

	return nil
}

// runState is the per-run accumulator shared by completion goroutines.
type runState struct {
	mu    sync.Mutex
	total int
	done  int
	usage domain.Usage
	err   error
}

func (r *runState) batchDone(u domain.Usage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	r.usage.Add(u)
	return r.done
}

func (r *runState) usageTotal() domain.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// fail records the first batch failure of the run.
func (r *runState) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *runState) firstError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
