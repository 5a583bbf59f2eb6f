package pdf

import (
	"bytes"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pagemark/pagemark/internal/domain"
)

var pdfMagic = []byte("%PDF")

// Validator checks document bytes before they reach the renderer.
type Validator struct {
	MaxBytes int64
}

// NewValidator creates a validator enforcing the given size cap.
// A cap of 0 disables the size check.
func NewValidator(maxBytes int64) *Validator {
	return &Validator{MaxBytes: maxBytes}
}

// Validate rejects empty, oversized, or non-PDF input. Clients often
// upload with a wrong or missing content type, so detection is done on
// the bytes: the %PDF magic first, then a mimetype sniff as fallback.
func (v *Validator) Validate(data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("document is empty", nil)
	}

	if v.MaxBytes > 0 && int64(len(data)) > v.MaxBytes {
		return domain.ValidationError(fmt.Sprintf("document exceeds %d byte limit", v.MaxBytes), nil)
	}

	if !bytes.HasPrefix(data, pdfMagic) {
		if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
			return domain.ValidationError(fmt.Sprintf("document is not a PDF (detected %s)", mt.String()), nil)
		}
	}

	return nil
}
