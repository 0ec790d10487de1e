// Package db reads the host's Nix database. The database is owned and
// written by the nix daemon; everything here is read-only queries
// against the ValidPaths and Refs tables.
package db

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// StoreDir is the standard nix store location.
const StoreDir = "/nix/store"

// DefaultPath is the database of the standard nix store.
const DefaultPath = "/nix/var/nix/db/db.sqlite"

// Open opens the nix database read-only.
func Open(path string) (db *DB, closer func() error, err error) {
	db = &DB{}
	db.pool, err = sqlitex.NewPool("file:"+path+"?mode=ro", sqlitex.PoolOptions{
		PoolSize: 10,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("db: failed to open %s: %w", path, err)
	}
	return db, db.pool.Close, nil
}

type DB struct {
	pool *sqlitex.Pool
}

// PathFromHashPart finds the store path whose base name starts with the
// given hash part. Store paths sort by hash, so a range scan from the
// prefix finds the candidate in one row; the prefix check rejects a
// neighbouring path when the hash is unknown.
func (d *DB) PathFromHashPart(ctx context.Context, hashPart string) (storePath string, ok bool, err error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("db: failed to take connection: %w", err)
	}
	defer d.pool.Put(conn)
	prefix := StoreDir + "/" + hashPart
	err = sqlitex.ExecuteTransient(conn, `select path from ValidPaths where path >= ? limit 1;`, &sqlitex.ExecOptions{
		Args: []any{prefix},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			p := stmt.ColumnText(0)
			if strings.HasPrefix(p, prefix) {
				storePath = p
				ok = true
			}
			return nil
		},
	})
	return storePath, ok, err
}

// PathInfo is a row of ValidPaths together with its references.
type PathInfo struct {
	ID      int64
	Hash    string
	Deriver string
	NarSize int64
	Refs    []string
	Sigs    []string
	CA      string
}

// QueryPathInfo returns the metadata for a store path.
func (d *DB) QueryPathInfo(ctx context.Context, storePath string) (info PathInfo, ok bool, err error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return info, false, fmt.Errorf("db: failed to take connection: %w", err)
	}
	defer d.pool.Put(conn)
	q := `select id, hash, deriver, narSize, sigs, ca from ValidPaths where path = ?;`
	err = sqlitex.ExecuteTransient(conn, q, &sqlitex.ExecOptions{
		Args: []any{storePath},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			info.ID = stmt.ColumnInt64(0)
			info.Hash = stmt.ColumnText(1)
			info.Deriver = stmt.ColumnText(2)
			info.NarSize = stmt.ColumnInt64(3)
			info.Sigs = splitUnique(stmt.ColumnText(4), " ")
			info.CA = stmt.ColumnText(5)
			ok = true
			return nil
		},
	})
	if err != nil || !ok {
		return info, ok, err
	}
	info.Refs, err = d.queryReferences(conn, info.ID)
	if err != nil {
		return info, false, fmt.Errorf("db: failed to query references: %w", err)
	}
	return info, true, nil
}

func (d *DB) queryReferences(conn *sqlite.Conn, id int64) (references []string, err error) {
	q := `select path from Refs join ValidPaths on reference = id where referrer = ?;`
	err = sqlitex.ExecuteTransient(conn, q, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			references = append(references, stmt.ColumnText(0))
			return nil
		},
	})
	return references, err
}

func splitUnique(s, separator string) (values []string) {
	seen := map[string]struct{}{}
	for _, v := range strings.Split(s, separator) {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}
