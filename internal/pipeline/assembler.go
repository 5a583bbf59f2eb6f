package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pagemark/pagemark/internal/domain"
)

// boundaryMarker separates fragments from consecutive batches in the
// assembled document.
const boundaryMarker = "\n\n"

// Assembler collects per-batch Markdown fragments keyed by sequence
// number and concatenates them in sequence order, regardless of the
// order completions arrive in. Inserts happen from concurrent
// transcription completions, so all state is guarded by a mutex.
type Assembler struct {
	mu        sync.Mutex
	fragments []string
	filled    []bool
	remaining int
}

// NewAssembler creates an assembler expecting exactly total fragments,
// one per sequence number 0..total-1.
func NewAssembler(total int) *Assembler {
	return &Assembler{
		fragments: make([]string, total),
		filled:    make([]bool, total),
		remaining: total,
	}
}

// Insert records the fragment for one sequence number. Inserting out of
// range or twice for the same sequence is an invariant violation.
func (a *Assembler) Insert(seq int, fragment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq < 0 || seq >= len(a.fragments) {
		return domain.InternalError(fmt.Sprintf("fragment sequence %d out of range [0,%d)", seq, len(a.fragments)), nil)
	}
	if a.filled[seq] {
		return domain.InternalError(fmt.Sprintf("fragment %d inserted twice", seq), nil)
	}

	a.fragments[seq] = fragment
	a.filled[seq] = true
	a.remaining--
	return nil
}

// Complete reports whether every expected fragment has been inserted.
func (a *Assembler) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining == 0
}

// Finalize concatenates all fragments in sequence order. It fails if any
// expected fragment is missing.
func (a *Assembler) Finalize() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.remaining > 0 {
		return "", domain.IncompleteRunError(fmt.Sprintf("%d of %d fragments missing", a.remaining, len(a.fragments)))
	}

	return strings.Join(a.fragments, boundaryMarker), nil
}
