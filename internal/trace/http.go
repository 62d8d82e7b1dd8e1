package trace

import (
	"context"
	"net/http"
)

// Header returns websocket handshake headers for a child of ctx's span. A trace is started
// when ctx has none.
func Header(ctx context.Context) http.Header {
	_, parent := EnsureContext(ctx)
	h := make(http.Header, 3)
	for k, v := range NewChild(parent).ToMap() {
		h.Set(k, v)
	}
	return h
}
