package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"go.uber.org/zap"
)

var (
	ErrSnapshotsOpen = errors.New("tried to flush state tree with snapshots on the stack")
	ErrNoSnapshot    = errors.New("no snapshot to clear")
)

// Tree is the key/value world state over a datastore. Writes and emitted events land in the top
// snapshot layer and only reach the datastore on Flush, once every snapshot has been cleared.
type Tree struct {
	ds    datastore.Batching
	snaps *snapshots
}

type treeOp struct {
	value  []byte
	delete bool
}

type layer struct {
	ops  map[string]treeOp
	logs []entity.Event
}

func newLayer() *layer {
	return &layer{ops: make(map[string]treeOp)}
}

type snapshots struct {
	layers []*layer
}

func newSnapshots() *snapshots {
	return &snapshots{
		layers: []*layer{newLayer()},
	}
}

func (ss *snapshots) top() *layer {
	return ss.layers[len(ss.layers)-1]
}

func (ss *snapshots) addLayer() {
	ss.layers = append(ss.layers, newLayer())
}

func (ss *snapshots) dropLayer() {
	ss.layers[len(ss.layers)-1] = nil
	ss.layers = ss.layers[:len(ss.layers)-1]
}

func (ss *snapshots) mergeLastLayer() {
	last := ss.layers[len(ss.layers)-1]
	nextLast := ss.layers[len(ss.layers)-2]

	for k, v := range last.ops {
		nextLast.ops[k] = v
	}
	nextLast.logs = append(nextLast.logs, last.logs...)

	ss.dropLayer()
}

func (ss *snapshots) get(key string) (treeOp, bool) {
	for i := len(ss.layers) - 1; i >= 0; i-- {
		if op, ok := ss.layers[i].ops[key]; ok {
			return op, true
		}
	}

	return treeOp{}, false
}

func NewTree(ds datastore.Batching) *Tree {
	return &Tree{ds: ds, snaps: newSnapshots()}
}

func (t *Tree) Get(ctx context.Context, key string) ([]byte, bool, error) {
	key = clean(key)
	if op, ok := t.snaps.get(key); ok {
		if op.delete {
			return nil, false, nil
		}
		return op.value, true, nil
	}

	value, err := t.ds.Get(ctx, datastore.NewKey(key))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state get %s: %w", key, err)
	}

	return value, true, nil
}

func (t *Tree) Put(key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	t.snaps.top().ops[clean(key)] = treeOp{value: v}
}

func (t *Tree) Delete(key string) {
	t.snaps.top().ops[clean(key)] = treeOp{delete: true}
}

// AddLog buffers an event in the current snapshot. It is dropped if the snapshot is reverted.
func (t *Tree) AddLog(e entity.Event) {
	top := t.snaps.top()
	top.logs = append(top.logs, e)
}

// Logs returns the events committed to the base layer and not yet flushed.
func (t *Tree) Logs() []entity.Event {
	logs := t.snaps.layers[0].logs
	out := make([]entity.Event, len(logs))
	copy(out, logs)

	return out
}

func (t *Tree) Snapshot() {
	t.snaps.addLayer()
}

// Revert discards every write and event since the last Snapshot. The snapshot itself stays
// open and still has to be cleared.
func (t *Tree) Revert() {
	t.snaps.dropLayer()
	t.snaps.addLayer()
}

func (t *Tree) ClearSnapshot() error {
	if len(t.snaps.layers) < 2 {
		return ErrNoSnapshot
	}
	t.snaps.mergeLastLayer()

	return nil
}

// Depth is the number of open snapshots.
func (t *Tree) Depth() int {
	return len(t.snaps.layers) - 1
}

// Dirty reports whether the base layer holds anything to flush.
func (t *Tree) Dirty() bool {
	base := t.snaps.layers[0]
	return len(base.ops) != 0 || len(base.logs) != 0
}

// Discard drops the unflushed base layer, returning the view to what the datastore holds.
func (t *Tree) Discard() error {
	if len(t.snaps.layers) != 1 {
		return ErrSnapshotsOpen
	}
	t.snaps.layers[0] = newLayer()

	return nil
}

// Flush writes the base layer to the datastore in a single batch.
func (t *Tree) Flush(ctx context.Context) error {
	if len(t.snaps.layers) != 1 {
		return ErrSnapshotsOpen
	}

	base := t.snaps.layers[0]
	if len(base.ops) == 0 {
		base.logs = nil
		return nil
	}

	batch, err := t.ds.Batch(ctx)
	if err != nil {
		return fmt.Errorf("state batch: %w", err)
	}

	for key, op := range base.ops {
		if op.delete {
			err = batch.Delete(ctx, datastore.NewKey(key))
		} else {
			err = batch.Put(ctx, datastore.NewKey(key), op.value)
		}
		if err != nil {
			return fmt.Errorf("state flush %s: %w", key, err)
		}
	}

	if err := batch.Commit(ctx); err != nil {
		zap.L().With(zap.Error(err), zap.Int("keys", len(base.ops))).Error("StateTree: Failed to commit")
		return fmt.Errorf("state commit: %w", err)
	}

	zap.L().With(zap.Int("keys", len(base.ops))).Debug("StateTree: Flushed")
	t.snaps.layers[0] = newLayer()

	return nil
}

// Entries returns every live key under prefix, merging pending layers over the datastore.
func (t *Tree) Entries(ctx context.Context, prefix string) (map[string][]byte, error) {
	results, err := t.ds.Query(ctx, query.Query{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("state query %s: %w", prefix, err)
	}
	defer results.Close()

	entries := make(map[string][]byte)
	for r := range results.Next() {
		if r.Error != nil {
			return nil, fmt.Errorf("state query %s: %w", prefix, r.Error)
		}
		entries[r.Key] = r.Value
	}

	match := strings.TrimSuffix(clean(prefix), "/") + "/"
	for _, l := range t.snaps.layers {
		for key, op := range l.ops {
			if !strings.HasPrefix(key, match) {
				continue
			}
			if op.delete {
				delete(entries, key)
			} else {
				entries[key] = op.value
			}
		}
	}

	return entries, nil
}

func clean(key string) string {
	return datastore.NewKey(key).String()
}
