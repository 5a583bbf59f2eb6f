package domain

import "time"

// Document represents the source PDF being processed.
type Document struct {
	Source     string // file path, URL, or "upload"
	Data       []byte
	TotalPages int
}

// Page is a single rendered PDF page. Created by the renderer, consumed
// once by the batcher, discarded after its batch is transcribed.
type Page struct {
	Number int // 1-indexed
	PNG    []byte
	Width  int
	Height int
}

// Batch is an ordered, contiguous, non-empty group of pages submitted to
// the transcription endpoint as one call. Seq is the batch's position in
// the document's batch ordering, starting at 0.
type Batch struct {
	Seq   int
	Pages []Page
}

// FirstPage returns the 1-indexed number of the batch's first page.
func (b Batch) FirstPage() int {
	return b.Pages[0].Number
}

// LastPage returns the 1-indexed number of the batch's last page.
func (b Batch) LastPage() int {
	return b.Pages[len(b.Pages)-1].Number
}

// TranscriptionResult is the Markdown fragment produced for one batch.
type TranscriptionResult struct {
	Seq      int
	Markdown string
	Usage    Usage
}

// Usage holds token accounting returned by the upstream model.
// Informational only, never required for correctness.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// RunResult is the terminal outcome of one successful document conversion.
type RunResult struct {
	Markdown       string
	PagesProcessed int
	BatchCount     int
	Usage          Usage
	Duration       time.Duration
}
