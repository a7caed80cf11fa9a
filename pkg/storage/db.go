// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	treemap "github.com/liyue201/gostl/ds/map"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

// PartitionColumn is the leading column PartLoad adds to name the
// partition of each row.
const PartitionColumn = "partition"

// PartitionStatus reports how one partition of a table opened.
type PartitionStatus struct {
	Key  string
	Rows int
	Err  error
}

func (st PartitionStatus) OK() bool {
	return st.Err == nil
}

// PartitionResult is one partition opened on its own. Table is nil when
// the partition failed; otherwise the caller owns a reference to it.
type PartitionResult struct {
	PartitionStatus
	Table *chunk.Table
}

type Option func(*DB)

func WithPool(pool *util.Pool) Option {
	return func(db *DB) {
		db.pool = pool
	}
}

func WithContext(ctx context.Context) Option {
	return func(db *DB) {
		db.ctx = ctx
	}
}

// DB is a database root: the symbol file plus one directory per partition
// key, each holding one splay directory per table. It is single-writer.
type DB struct {
	root string
	pool *util.Pool
	ctx  context.Context

	mu     sync.Mutex
	closed bool
	//partition keys, ascending
	parts *btree.BTreeG[string]
	//"key/table" -> opened table, one reference each
	opened *treemap.Map[string, *chunk.Table]
}

// OpenDB loads the symbol file at root and discovers its partitions. A
// missing symbol file fails with ErrSymbolFile.
func OpenDB(root string, opts ...Option) (*DB, error) {
	db := &DB{
		root:   root,
		ctx:    context.Background(),
		parts:  btree.NewBTreeG[string](func(a, b string) bool { return a < b }),
		opened: treemap.New[string, *chunk.Table](strings.Compare),
	}
	for _, opt := range opts {
		opt(db)
	}
	if err := SymLoad(root); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, common.NewPathError("readdir", root, common.ErrIO, "%v", err)
	}
	for _, ent := range entries {
		if !ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		db.parts.Set(ent.Name())
	}
	util.Info("database opened",
		zap.String("root", root),
		zap.Int("partitions", db.parts.Len()),
		zap.Int("symbols", sym.G().Count()))
	return db, nil
}

// CreateDB creates root with an empty symbol file and opens it.
func CreateDB(root string, opts ...Option) (*DB, error) {
	if err := SymSave(root); err != nil {
		return nil, err
	}
	return OpenDB(root, opts...)
}

func (db *DB) Root() string {
	return db.root
}

// Partitions returns the partition keys in ascending order.
func (db *DB) Partitions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	keys := make([]string, 0, db.parts.Len())
	db.parts.Scan(func(key string) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func (db *DB) check() error {
	if db.closed {
		return errors.Wrapf(common.ErrReleased, "database %s is closed", db.root)
	}
	return nil
}

func checkSegment(root, what, name string) error {
	if name == "" || name[0] == '.' || strings.ContainsAny(name, "/\\\x00") ||
		strings.ContainsRune(name, os.PathSeparator) || name == SymFile {
		return common.NewPathError("check", root, common.ErrDomain, "invalid %s name %q", what, name)
	}
	return nil
}

// SavePartition writes t as table under partition key and saves the
// symbol file, so Sym columns decode on the next open.
func (db *DB) SavePartition(key, table string, t *chunk.Table) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return err
	}
	if err := checkSegment(db.root, "partition", key); err != nil {
		return err
	}
	if err := checkSegment(db.root, "table", table); err != nil {
		return err
	}
	if err := SplaySave(t, filepath.Join(db.root, key, table)); err != nil {
		return err
	}
	db.parts.Set(key)
	return SymSave(db.root)
}

// LoadPartitions opens table in every partition on its own. Failed
// partitions are reported in their result and never stop the others.
func (db *DB) LoadPartitions(table string) ([]PartitionResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return nil, err
	}
	if err := checkSegment(db.root, "table", table); err != nil {
		return nil, err
	}
	keys := make([]string, 0, db.parts.Len())
	db.parts.Scan(func(key string) bool {
		keys = append(keys, key)
		return true
	})

	results := make([]PartitionResult, len(keys))
	opened := make([]bool, len(keys))
	err := db.pool.Run(db.ctx, len(keys), func(i int) error {
		dir := filepath.Join(db.root, keys[i], table)
		t, err := SplayLoadContext(db.ctx, nil, dir)
		results[i].Key = keys[i]
		results[i].Err = err
		if err == nil {
			results[i].Table = t
			results[i].Rows = t.RowCount()
		}
		opened[i] = true
		return nil
	})
	if err != nil {
		releaseResults(results)
		return nil, err
	}
	for i := range results {
		res := &results[i]
		if !opened[i] {
			res.Key = keys[i]
			res.Err = errors.Wrap(common.ErrIO, "partition not opened")
			if cerr := db.ctx.Err(); cerr != nil {
				res.Err = errors.WithStack(cerr)
			}
		}
		if res.Err != nil {
			util.Warn("partition failed",
				zap.String("table", table),
				zap.String("partition", res.Key),
				zap.Error(res.Err))
			continue
		}
		db.register(res.Key+"/"+table, res.Table)
	}
	return results, nil
}

// register keeps a reference to t until Close.
func (db *DB) register(name string, t *chunk.Table) {
	t.Retain()
	if prev, err := db.opened.Get(name); err == nil {
		prev.Release()
	}
	db.opened.Insert(name, t)
}

func (db *DB) unregister(name string) {
	if prev, err := db.opened.Get(name); err == nil {
		prev.Release()
		db.opened.Erase(name)
	}
}

func releaseResults(results []PartitionResult) {
	for i := range results {
		if results[i].Table != nil {
			results[i].Table.Release()
			results[i].Table = nil
		}
	}
}

func sameSchema(a, b *chunk.Table) bool {
	if a.ColumnCount() != b.ColumnCount() {
		return false
	}
	for i := 0; i < a.ColumnCount(); i++ {
		if a.ColumnSym(i) != b.ColumnSym(i) || a.Column(i).Type() != b.Column(i).Type() {
			return false
		}
	}
	return true
}

// PartLoad opens table in every partition and concatenates the good ones
// into one table without copying column data. The first column names the
// partition of each row. The first good partition in key order fixes the
// schema; partitions that differ from it are reported and skipped.
func (db *DB) PartLoad(table string) (*chunk.Table, []PartitionStatus, error) {
	results, err := db.LoadPartitions(table)
	if err != nil {
		return nil, nil, err
	}
	defer releaseResults(results)

	statuses := make([]PartitionStatus, len(results))
	var schema *chunk.Table
	good := make([]*PartitionResult, 0, len(results))
	for i := range results {
		res := &results[i]
		if res.Err == nil {
			if schema == nil {
				schema = res.Table
			} else if !sameSchema(schema, res.Table) {
				res.Err = errors.Wrapf(common.ErrType, "schema %v differs from partition %s",
					res.Table.Names(), good[0].Key)
				util.Warn("partition failed",
					zap.String("table", table),
					zap.String("partition", res.Key),
					zap.Error(res.Err))
				db.mu.Lock()
				db.unregister(res.Key + "/" + table)
				db.mu.Unlock()
			}
		}
		if res.Err == nil {
			good = append(good, res)
		}
		statuses[i] = res.PartitionStatus
	}
	if len(good) == 0 {
		return nil, statuses, common.NewPathError("partload", db.root, common.ErrIO,
			"no partition holds a loadable %q", table)
	}

	out := chunk.NewTable()
	partSegs := make([]*chunk.Vector, len(good))
	for i, res := range good {
		partSegs[i] = chunk.Broadcast(chunk.NewSymAtomString(res.Key), res.Rows)
	}
	partCol, err := chunk.NewSegmented(common.TID_SYM, partSegs)
	if err != nil {
		out.Release()
		return nil, statuses, err
	}
	if err = out.AddColumn(PartitionColumn, partCol); err != nil {
		out.Release()
		return nil, statuses, err
	}
	for j := 0; j < schema.ColumnCount(); j++ {
		segs := make([]*chunk.Vector, len(good))
		for i, res := range good {
			col := res.Table.Column(j)
			col.Retain()
			segs[i] = col
		}
		col, err := chunk.NewSegmented(schema.Column(j).Type(), segs)
		if err == nil {
			err = out.AddColumnSym(schema.ColumnSym(j), col)
		}
		if err != nil {
			out.Release()
			return nil, statuses, err
		}
	}
	util.Info("partitioned table loaded",
		zap.String("table", table),
		zap.Int("partitions", len(good)),
		zap.Int("failed", len(results)-len(good)),
		zap.Int("rows", out.RowCount()))
	return out, statuses, nil
}

// Close releases every table the database opened. Tables handed to
// callers stay valid until their own references are released.
func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return
	}
	db.closed = true
	for iter := db.opened.Begin(); iter.IsValid(); iter.Next() {
		iter.Value().Release()
	}
	db.opened.Clear()
}

// PartLoad opens the database at root, loads table across its partitions
// and closes the database again.
func PartLoad(root, table string, opts ...Option) (*chunk.Table, []PartitionStatus, error) {
	db, err := OpenDB(root, opts...)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()
	return db.PartLoad(table)
}
