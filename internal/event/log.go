package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"github.com/nu7hatch/gouuid"
	"go.uber.org/zap"
)

const (
	headKey   = "/events/head"
	logPrefix = "/events/log"
)

// Log is the append-only marketplace event log. Events are staged into the state tree so they
// are written in the same batch as the state change that produced them.
type Log struct {
	tree    *state.Tree
	manager *Manager
	now     func() time.Time
}

func NewLog(tree *state.Tree, manager *Manager) *Log {
	return &Log{
		tree:    tree,
		manager: manager,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Stage assigns id, sequence number and time to each event and writes it to the tree.
func (l *Log) Stage(ctx context.Context, events []entity.Event) ([]entity.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	seq, err := l.Len(ctx)
	if err != nil {
		return nil, err
	}

	now := l.now()
	staged := make([]entity.Event, 0, len(events))
	for _, e := range events {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("event id: %w", err)
		}
		e.Id = id.String()
		e.Seq = seq
		e.Time = now

		data, err := json.Marshal(e)
		if err != nil {
			zap.L().With(zap.Error(err), zap.String("type", string(e.Type))).Error("EventLog: Failed to marshal event")
			return nil, err
		}
		l.tree.Put(logKey(seq), data)

		staged = append(staged, e)
		seq++
	}
	l.tree.Put(headKey, []byte(strconv.FormatUint(seq, 10)))

	return staged, nil
}

// Dispatch hands committed events to the listeners.
func (l *Log) Dispatch(events []entity.Event) {
	for _, e := range events {
		l.manager.EmitEvent(e)
	}
}

// Len is the number of events in the log, which is also the next sequence number.
func (l *Log) Len(ctx context.Context) (uint64, error) {
	raw, found, err := l.tree.Get(ctx, headKey)
	if err != nil || !found {
		return 0, err
	}

	head, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("event head: %w", err)
	}

	return head, nil
}

// Since returns the events with a sequence number of at least seq, oldest first.
func (l *Log) Since(ctx context.Context, seq uint64) ([]entity.Event, error) {
	head, err := l.Len(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]entity.Event, 0)
	for ; seq < head; seq++ {
		raw, found, err := l.tree.Get(ctx, logKey(seq))
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("event %d missing from log", seq)
		}

		var e entity.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			zap.L().With(zap.Error(err), zap.Uint64("seq", seq)).Error("EventLog: Failed to unmarshal event")
			return nil, err
		}
		events = append(events, e)
	}

	return events, nil
}

func logKey(seq uint64) string {
	return fmt.Sprintf("%s/%020d", logPrefix, seq)
}
