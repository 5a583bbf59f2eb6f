package domain

import "context"

// RenderedPage is one element of a renderer stream. Err is set on the
// final element when a page fails to rasterize; the stream closes after it.
type RenderedPage struct {
	Page Page
	Err  error
}

// Renderer turns a PDF into a stream of page images.
type Renderer interface {
	// Render opens the document, reports its page count, and returns a
	// channel yielding pages in ascending index order. The channel is
	// closed after the last page or the first error.
	Render(ctx context.Context, data []byte) (int, <-chan RenderedPage, error)
}

// TranscriptionClient submits one batch of page images to the vision
// endpoint and returns the Markdown fragment for it.
type TranscriptionClient interface {
	Transcribe(ctx context.Context, batch Batch) (*TranscriptionResult, error)
}
