package memory

import (
	"context"

	"github.com/hashicorp/go-memdb"
)

// Next returns the next archive number of key. It joins the surrounding transaction,
// so an aborted archival does not consume a number.
func (s *Store) Next(ctx context.Context, key string) (int, error) {
	var n int
	err := s.write(ctx, func(txn *memdb.Txn) error {
		raw, err := txn.First(tableCounters, indexID, key)
		if err != nil {
			return err
		}
		n = 1
		if raw != nil {
			n = raw.(*counter).Value + 1
		}
		return txn.Insert(tableCounters, &counter{Key: key, Value: n})
	})
	return n, err
}

// Reset forgets every archive number.
func (s *Store) Reset(ctx context.Context) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		_, err := txn.DeleteAll(tableCounters, indexID)
		return err
	})
}
