package policies

import "context"

// DocumentArchive keeps a durable copy of issued documents. Put overwrites and returns a URL.
type DocumentArchive interface {
	Put(ctx context.Context, key string, document []byte) (string, error)
}
