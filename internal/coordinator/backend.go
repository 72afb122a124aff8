package coordinator

import (
	"context"

	"github.com/jxwalker/docfetch/internal/apiclient"
)

// Canceler is an in-flight request handle.
type Canceler interface {
	Cancel()
}

// Backend is the subset of the API client the coordinator drives. Completions
// may run on any goroutine.
type Backend interface {
	StartDocumentList(ctx context.Context, completion func([]apiclient.Document, error)) Canceler
	StartAuthToken(ctx context.Context, layer apiclient.Layer, completion func(string, error)) Canceler
}

type clientBackend struct{ c *apiclient.Client }

// FromClient adapts an API client to Backend.
func FromClient(c *apiclient.Client) Backend { return clientBackend{c} }

func (b clientBackend) StartDocumentList(ctx context.Context, completion func([]apiclient.Document, error)) Canceler {
	return b.c.StartDocumentList(ctx, completion)
}

func (b clientBackend) StartAuthToken(ctx context.Context, layer apiclient.Layer, completion func(string, error)) Canceler {
	return b.c.StartAuthToken(ctx, layer, completion)
}
