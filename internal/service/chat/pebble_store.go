package chat

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"github.com/zhouzirui/chatbox/internal/model/chat"
)

// PebbleStore persists the transcript in a Pebble key-value store.
// Keys are 8-byte big-endian sequence numbers increasing monotonically.
type PebbleStore struct {
	db   *pebble.DB
	mu   sync.Mutex
	next uint64
}

// OpenPebbleStore opens (or creates) a store rooted at dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}

	s := &PebbleStore{db: db}
	it, err := db.NewIter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer func() { _ = it.Close() }()
	if it.Last() && len(it.Key()) >= 8 {
		s.next = binary.BigEndian.Uint64(it.Key()[:8]) + 1
	}
	return s, nil
}

func (s *PebbleStore) Append(_ context.Context, msg chat.Message) error {
	val, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, s.next)
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		return err
	}
	s.next++
	return nil
}

// Recent walks backwards from the newest key, so cost is bounded by limit.
// Entries that fail to decode are skipped. limit <= 0 loads everything.
func (s *PebbleStore) Recent(ctx context.Context, limit int) ([]chat.Message, error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	out := make([]chat.Message, 0, max(limit, 16))
	for valid := it.Last(); valid; valid = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var m chat.Message
		if err := json.Unmarshal(it.Value(), &m); err == nil {
			out = append(out, m)
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
