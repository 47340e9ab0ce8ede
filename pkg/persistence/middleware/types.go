package middleware

import "github.com/aretw0/stride/pkg/ports"

// Archive is the store pair the middlewares wrap.
type Archive interface {
	ports.ArchiveStore
	ports.DraftStore
}

// Middleware allows wrapping an Archive to add behavior.
type Middleware func(Archive) Archive

// Chain applies mws so that the first one is the outermost.
func Chain(next Archive, mws ...Middleware) Archive {
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](next)
	}
	return next
}
