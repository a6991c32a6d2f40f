package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedDocument is returned for documents that fail structural
// checks. Such documents are rejected before anything is stored.
var ErrMalformedDocument = errors.New("malformed configuration document")

var validate = validator.New()

// Validate checks the structural rules a document must satisfy before it
// replaces the stored one.
func Validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}
	if doc.Listeners == nil {
		return fmt.Errorf("%w: missing listeners", ErrMalformedDocument)
	}

	if err := validate.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q check (value %v)",
				ErrMalformedDocument, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	seen := make(map[string]bool, len(doc.Listeners))
	for _, l := range doc.Listeners {
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate listener id %q", ErrMalformedDocument, l.ID)
		}
		seen[l.ID] = true
	}

	return nil
}
