package catalog

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a catalog resolution failure.
type Kind string

const (
	KindInvalidSKU    Kind = "InvalidSku"
	KindUnavailable   Kind = "CatalogUnavailable"
	KindNotFound      Kind = "CatalogNotFound"
	KindMalformed     Kind = "CatalogMalformed"
	KindPriceMismatch Kind = "PriceMismatch"
)

// ClientFault reports whether failures of this kind are caused by the
// submitted data rather than by the catalog service.
func (k Kind) ClientFault() bool {
	switch k {
	case KindInvalidSKU, KindMalformed, KindPriceMismatch:
		return true
	default:
		return false
	}
}

// Error describes why a SKU could not be resolved against the catalog.
type Error struct {
	Kind    Kind
	SKU     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return "", false
}
