// Package pdf provides document validation, URL fetching, and PDF page
// rasterization via go-fitz.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/observability"
)

// Gate bounds the number of pages rasterizing at once.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// Renderer rasterizes PDF pages to PNG images. Pages render in parallel
// up to the gate's capacity but are always emitted in ascending index
// order, so downstream batching never reorders.
type Renderer struct {
	zoom   int
	gate   Gate
	logger *observability.Logger
}

// NewRenderer creates a renderer from config.
func NewRenderer(cfg config.RenderConfig, gate Gate, logger *observability.Logger) *Renderer {
	return &Renderer{
		zoom:   cfg.ZoomFactor,
		gate:   gate,
		logger: logger.WithComponent("render"),
	}
}

// Render opens the document, reports its page count, and streams pages
// in order. The stream is finite and not restartable; it closes after
// the last page or the first failure. A failed page poisons the stream:
// no partial documents.
func (r *Renderer) Render(ctx context.Context, data []byte) (int, <-chan domain.RenderedPage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, nil, domain.RenderError("failed to open PDF", err)
	}
	pageCount := doc.NumPage()
	doc.Close()

	r.logger.Debug().Int("pages", pageCount).Int("zoom", r.zoom).Msg("Opened document")

	slots := make([]chan domain.RenderedPage, pageCount)
	for i := range slots {
		slots[i] = make(chan domain.RenderedPage, 1)
	}

	// Each worker opens its own fitz handle over the shared bytes; fitz
	// documents are not safe for concurrent use.
	go func() {
		for i := 0; i < pageCount; i++ {
			if err := r.gate.Acquire(ctx); err != nil {
				return
			}
			go func(index int) {
				defer r.gate.Release()
				slots[index] <- r.renderPage(data, index)
			}(i)
		}
	}()

	out := make(chan domain.RenderedPage)
	go func() {
		defer close(out)
		for i := 0; i < pageCount; i++ {
			var rp domain.RenderedPage
			select {
			case rp = <-slots[i]:
			case <-ctx.Done():
				rp = domain.RenderedPage{Err: ctx.Err()}
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

	return pageCount, out, nil
}

// renderPage rasterizes a single 0-indexed page at 72*zoom DPI.
func (r *Renderer) renderPage(data []byte, index int) domain.RenderedPage {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return domain.RenderedPage{Err: domain.RenderError("failed to reopen PDF", err)}
	}
	defer doc.Close()

	img, err := doc.ImageDPI(index, float64(72*r.zoom))
	if err != nil {
		return domain.RenderedPage{Err: domain.RenderError(fmt.Sprintf("failed to rasterize page %d", index+1), err)}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.RenderedPage{Err: domain.RenderError(fmt.Sprintf("failed to encode page %d", index+1), err)}
	}

	bounds := img.Bounds()
	return domain.RenderedPage{Page: domain.Page{
		Number: index + 1,
		PNG:    buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}}
}
