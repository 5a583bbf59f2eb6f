package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/llm"
	"github.com/pagemark/pagemark/internal/observability"
)

// stubRenderer streams fake pages without touching fitz. failAt names the
// 1-indexed page whose render fails; 0 disables failure.
type stubRenderer struct {
	pages  int
	failAt int
}

func (s *stubRenderer) Render(ctx context.Context, data []byte) (int, <-chan domain.RenderedPage, error) {
	out := make(chan domain.RenderedPage)
	go func() {
		defer close(out)
		for i := 1; i <= s.pages; i++ {
			rp := domain.RenderedPage{Page: domain.Page{Number: i, PNG: []byte("png")}}
			if i == s.failAt {
				rp = domain.RenderedPage{Err: domain.RenderError(fmt.Sprintf("failed to rasterize page %d", i), nil)}
			}
			select {
			case out <- rp:
			case <-ctx.Done():
				return
			}
			if rp.Err != nil {
				return
			}
		}
	}()
	return s.pages, out, nil
}

// stubClient records submissions and answers each batch with one heading
// per page, so assembled output encodes page order.
type stubClient struct {
	mu        sync.Mutex
	submitted []int
	batchLens map[int]int
	delay     func(seq int) time.Duration
	respond   func(batch domain.Batch) (*domain.TranscriptionResult, error)
}

func (s *stubClient) Transcribe(ctx context.Context, batch domain.Batch) (*domain.TranscriptionResult, error) {
	s.mu.Lock()
	s.submitted = append(s.submitted, batch.Seq)
	if s.batchLens == nil {
		s.batchLens = make(map[int]int)
	}
	s.batchLens[batch.Seq] = len(batch.Pages)
	s.mu.Unlock()

	if s.delay != nil {
		select {
		case <-time.After(s.delay(batch.Seq)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.respond != nil {
		return s.respond(batch)
	}

	parts := make([]string, 0, len(batch.Pages))
	for _, p := range batch.Pages {
		parts = append(parts, fmt.Sprintf("# Page %d", p.Number))
	}
	return &domain.TranscriptionResult{
		Seq:      batch.Seq,
		Markdown: strings.Join(parts, "\n\n"),
		Usage:    domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (s *stubClient) seqs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.submitted...)
}

func newTestOrchestrator(r domain.Renderer, c domain.TranscriptionClient, batchSize, maxTranscribes int, opts ...Option) *Orchestrator {
	retry := llm.NewRetryPolicy(3, time.Millisecond, 4*time.Millisecond, observability.Nop())
	gates := NewController(4, maxTranscribes)
	return NewOrchestrator(r, c, retry, gates, batchSize, observability.Nop(), opts...)
}

func TestOrchestrator_SinglePageBatches(t *testing.T) {
	client := &stubClient{}
	o := newTestOrchestrator(&stubRenderer{pages: 3}, client, 1, 5)

	res, err := o.Run(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)

	assert.Equal(t, "# Page 1\n\n# Page 2\n\n# Page 3", res.Markdown)
	assert.Equal(t, 3, res.PagesProcessed)
	assert.Equal(t, 3, res.BatchCount)
	assert.Equal(t, 45, res.Usage.TotalTokens, "usage sums across batches")
}

func TestOrchestrator_OutOfOrderCompletionAssemblesInOrder(t *testing.T) {
	// Later batches finish first; the document must still read front to back.
	client := &stubClient{
		delay: func(seq int) time.Duration {
			return time.Duration(2-seq) * 20 * time.Millisecond
		},
	}
	o := newTestOrchestrator(&stubRenderer{pages: 5}, client, 2, 5)

	res, err := o.Run(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)

	assert.Equal(t, "# Page 1\n\n# Page 2\n\n# Page 3\n\n# Page 4\n\n# Page 5", res.Markdown)
	assert.Equal(t, 3, res.BatchCount)
	assert.Equal(t, map[int]int{0: 2, 1: 2, 2: 1}, client.batchLens, "five pages cut as 2+2+1")
}

func TestOrchestrator_FatalBatchAbortsRun(t *testing.T) {
	client := &stubClient{
		respond: func(batch domain.Batch) (*domain.TranscriptionResult, error) {
			if batch.Seq == 1 {
				return nil, domain.FatalError("provider rejected request", nil)
			}
			parts := make([]string, 0, len(batch.Pages))
			for _, p := range batch.Pages {
				parts = append(parts, fmt.Sprintf("# Page %d", p.Number))
			}
			return &domain.TranscriptionResult{Seq: batch.Seq, Markdown: strings.Join(parts, "\n\n")}, nil
		},
	}
	// One transcription slot serializes submission, so the failure of
	// batch 1 must prevent batch 2 from ever reaching the client.
	o := newTestOrchestrator(&stubRenderer{pages: 3}, client, 1, 1)

	res, err := o.Run(context.Background(), []byte("%PDF-fake"))
	require.Error(t, err)
	assert.Nil(t, res, "no partial document on failure")
	assert.Equal(t, domain.ClassFatal, domain.ClassOf(err))

	seqs := client.seqs()
	assert.Contains(t, seqs, 1)
	assert.NotContains(t, seqs, 2, "batches after the failure are never submitted")
}

func TestOrchestrator_TransientFailuresRetryWithinRun(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	client := &stubClient{
		respond: func(batch domain.Batch) (*domain.TranscriptionResult, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n <= 2 {
				return nil, domain.TransientError("rate limited", nil)
			}
			return &domain.TranscriptionResult{Seq: batch.Seq, Markdown: "# Page 1"}, nil
		},
	}
	o := newTestOrchestrator(&stubRenderer{pages: 1}, client, 1, 5)

	res, err := o.Run(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)
	assert.Equal(t, "# Page 1", res.Markdown)
	assert.Equal(t, int32(3), calls, "two transient failures then success")
}

func TestOrchestrator_RenderFailureAbortsRun(t *testing.T) {
	client := &stubClient{}
	o := newTestOrchestrator(&stubRenderer{pages: 3, failAt: 2}, client, 1, 5)

	res, err := o.Run(context.Background(), []byte("%PDF-fake"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, domain.ClassRender, domain.ClassOf(err))
}

func TestOrchestrator_EmptyDocumentRejected(t *testing.T) {
	o := newTestOrchestrator(&stubRenderer{pages: 0}, &stubClient{}, 1, 5)

	_, err := o.Run(context.Background(), []byte("%PDF-fake"))
	require.Error(t, err)
	assert.Equal(t, domain.ClassValidation, domain.ClassOf(err))
}

func TestOrchestrator_ProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var calls [][2]int
	o := newTestOrchestrator(&stubRenderer{pages: 4}, &stubClient{}, 2, 5,
		WithProgress(func(done, total int) {
			mu.Lock()
			calls = append(calls, [2]int{done, total})
			mu.Unlock()
		}))

	_, err := o.Run(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, [2]int{2, 2}, calls[1], "final callback reports all batches done")
}

func TestOrchestrator_CallerCancellationSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &stubClient{
		delay: func(seq int) time.Duration { return time.Minute },
	}
	o := newTestOrchestrator(&stubRenderer{pages: 2}, client, 1, 5)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := o.Run(ctx, []byte("%PDF-fake"))
	require.ErrorIs(t, err, context.Canceled)
}
