// Package memory implements the repository contracts on an in-process go-memdb database.
// Every entity lives in its own table and relationships are plain id references resolved
// through indexes. Writes run in memdb write transactions, which are serialized, so the
// uniqueness checks performed inside them cannot race.
package memory

import (
	"context"
	"sort"

	"github.com/hashicorp/go-memdb"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/archive"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

const (
	tableApps         = "apps"
	tableEnvironments = "environments"
	tableVersions     = "versions"
	tableDeployments  = "deployments"
	tableSequences    = "sequences"
	tableCounters     = "archive_counters"

	indexID         = "id"
	indexKey        = "key"
	indexParent     = "parent"
	indexApp        = "app"
	indexAppName    = "app_name"
	indexEnv        = "environment"
	indexVersion    = "version"
	indexEnvVersion = "environment_version"
	indexRelease    = "release"
)

var (
	_ repository.Store = (*Store)(nil)
	_ archive.Counters = (*Store)(nil)
)

// Store is an in-memory repository.Store.
type Store struct {
	db *memdb.MemDB
}

type sequence struct {
	Name  string
	Value int64
}

type counter struct {
	Key   string
	Value int
}

type txKey struct{}

// New creates an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func schema() *memdb.DBSchema {
	id := func() *memdb.IndexSchema {
		return &memdb.IndexSchema{Name: indexID, Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}}
	}
	byApp := func() *memdb.IndexSchema {
		return &memdb.IndexSchema{Name: indexApp, Indexer: &memdb.IntFieldIndex{Field: "AppID"}}
	}
	byAppName := func() *memdb.IndexSchema {
		return &memdb.IndexSchema{
			Name:   indexAppName,
			Unique: true,
			Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
				&memdb.IntFieldIndex{Field: "AppID"},
				&memdb.StringFieldIndex{Field: "Name"},
			}},
		}
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableApps: {
				Name: tableApps,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:     id(),
					indexKey:    {Name: indexKey, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Key"}},
					indexParent: {Name: indexParent, Indexer: &memdb.IntFieldIndex{Field: "ParentID"}},
				},
			},
			tableEnvironments: {
				Name:    tableEnvironments,
				Indexes: map[string]*memdb.IndexSchema{indexID: id(), indexApp: byApp(), indexAppName: byAppName()},
			},
			tableVersions: {
				Name:    tableVersions,
				Indexes: map[string]*memdb.IndexSchema{indexID: id(), indexApp: byApp(), indexAppName: byAppName()},
			},
			tableDeployments: {
				Name: tableDeployments,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:      id(),
					indexEnv:     {Name: indexEnv, Indexer: &memdb.IntFieldIndex{Field: "EnvironmentID"}},
					indexVersion: {Name: indexVersion, Indexer: &memdb.IntFieldIndex{Field: "VersionID"}},
					indexEnvVersion: {
						Name:   indexEnvVersion,
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "EnvironmentID"},
							&memdb.IntFieldIndex{Field: "VersionID"},
						}},
					},
					indexRelease: {Name: indexRelease, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "ReleaseID"}},
				},
			},
			tableSequences: {
				Name: tableSequences,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Name"}},
				},
			},
			tableCounters: {
				Name: tableCounters,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Key"}},
				},
			},
		},
	}
}

// WithinTx runs fn in a write transaction carried by the returned context.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txnFrom(ctx) != nil {
		return fn(ctx)
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(context.WithValue(ctx, txKey{}, txn)); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

func txnFrom(ctx context.Context) *memdb.Txn {
	txn, _ := ctx.Value(txKey{}).(*memdb.Txn)
	return txn
}

// read returns the surrounding transaction or a fresh snapshot.
func (s *Store) read(ctx context.Context) *memdb.Txn {
	if txn := txnFrom(ctx); txn != nil {
		return txn
	}
	return s.db.Txn(false)
}

// write runs fn in the surrounding transaction or in a new one committed on success.
func (s *Store) write(ctx context.Context, fn func(txn *memdb.Txn) error) error {
	if txn := txnFrom(ctx); txn != nil {
		return fn(txn)
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func nextID(txn *memdb.Txn, table string) (int64, error) {
	raw, err := txn.First(tableSequences, indexID, table)
	if err != nil {
		return 0, err
	}
	var current int64
	if raw != nil {
		current = raw.(*sequence).Value
	}
	current++
	if err := txn.Insert(tableSequences, &sequence{Name: table, Value: current}); err != nil {
		return 0, err
	}
	return current, nil
}

// collect drains an iterator. memdb encodes integer keys as varints, which do not sort
// numerically, so callers order the result themselves.
func collect[T any](txn *memdb.Txn, table, index string, args ...any) ([]T, error) {
	it, err := txn.Get(table, index, args...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*T))
	}
	return out, nil
}

func sortByID[T any](items []T, id func(T) int64, desc bool) {
	sort.Slice(items, func(i, j int) bool {
		if desc {
			return id(items[i]) > id(items[j])
		}
		return id(items[i]) < id(items[j])
	})
}

func exists(txn *memdb.Txn, table, index string, args ...any) (bool, error) {
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}
