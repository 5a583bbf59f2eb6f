package pipeline

import "github.com/pagemark/pagemark/internal/domain"

// Batcher cuts an ordered page stream into contiguous batches of a fixed
// size. Page order is preserved; every batch has size pages except
// possibly the last. Batch size is validated by config before a Batcher
// is built, so the zero page case and out-of-range sizes never reach it.
type Batcher struct {
	size    int
	nextSeq int
	pending []domain.Page
}

// NewBatcher creates a batcher producing batches of size pages.
func NewBatcher(size int) *Batcher {
	return &Batcher{size: size}
}

// Add appends a page and returns a completed batch once size pages have
// accumulated, or nil.
func (b *Batcher) Add(page domain.Page) *domain.Batch {
	b.pending = append(b.pending, page)
	if len(b.pending) < b.size {
		return nil
	}
	return b.cut()
}

// Flush returns the final partial batch, or nil if no pages are pending.
func (b *Batcher) Flush() *domain.Batch {
	if len(b.pending) == 0 {
		return nil
	}
	return b.cut()
}

func (b *Batcher) cut() *domain.Batch {
	batch := &domain.Batch{
		Seq:   b.nextSeq,
		Pages: b.pending,
	}
	b.nextSeq++
	b.pending = nil
	return batch
}

// BatchCount returns ceil(pages/size), the number of batches a document
// with the given page count will produce.
func BatchCount(pages, size int) int {
	return (pages + size - 1) / size
}
