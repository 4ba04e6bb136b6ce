package tile

import (
	"errors"
	"iter"
)

var errVisitCancelled = errors.New("visit cancelled")

// Visitor is implemented by payload stores that can enumerate their content.
type Visitor interface {
	// VisitPayloads calls visitor for every stored payload.
	// Order is implementation-defined.
	VisitPayloads(visitor func(Index, []byte) error) error
}

// IterPayloads returns an iterator over all payloads of v.
//
// An error that ends the visit early is stored in *errp. With a nil errp
// the iteration panics on such errors instead.
func IterPayloads(v Visitor, errp *error) iter.Seq2[Index, []byte] {
	return func(yield func(Index, []byte) bool) {
		err := v.VisitPayloads(func(idx Index, data []byte) error {
			if !yield(idx, data) {
				return errVisitCancelled
			}
			return nil
		})
		if err == nil || errors.Is(err, errVisitCancelled) {
			return
		}
		if errp == nil {
			panic(err)
		}
		*errp = err
	}
}
