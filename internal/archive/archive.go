// Package archive hands out the suffix numbers used when an app key is archived.
package archive

import (
	"context"
	"fmt"
)

// Counters assigns per-key archive numbers. Next returns 1 for the first archival of a
// key and one more on every later call for the same key. Implementations must serialize
// concurrent calls for one key so no number is handed out twice.
type Counters interface {
	Next(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context) error
}

// ArchivedKey renders the key an archived app is renamed to.
func ArchivedKey(key string, n int) string {
	return fmt.Sprintf("%s (archive #%d)", key, n)
}
