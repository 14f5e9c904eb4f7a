package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/events"
	"github.com/mamadbah2/avicontrol/internal/repository/kv"
)

// Collection names one keyed collection. The value doubles as the mirror path.
type Collection string

const (
	CollectionUsers   Collection = "users"
	CollectionBatches Collection = "batches"
	CollectionOrders  Collection = "orders"
)

// Replicated lists the collections mirrored to the remote store.
var Replicated = []Collection{CollectionUsers, CollectionBatches, CollectionOrders}

const (
	keyUsers   = "avi_users"
	keyBatches = "avi_batches"
	keyOrders  = "avi_orders"
	keyConfig  = "avi_config"
)

// ErrUnknownCollection is returned for collection names outside Replicated.
var ErrUnknownCollection = errors.New("unknown collection")

// Entity is anything stored by id in a collection.
type Entity interface {
	EntityID() string
}

func (c Collection) key() (string, error) {
	switch c {
	case CollectionUsers:
		return keyUsers, nil
	case CollectionBatches:
		return keyBatches, nil
	case CollectionOrders:
		return keyOrders, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
}

func (c Collection) topic() events.Topic {
	return events.Topic(c)
}

// load reads a collection blob. Missing or malformed data yields an empty
// slice; the next write replaces whatever was stored.
func load[T any](s *Store, key string) []T {
	raw, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("local collection unreadable, using empty value", zap.String("key", key), zap.Error(err))
		}
		return []T{}
	}
	items, err := decodeItems[T](raw)
	if err != nil {
		s.logger.Warn("local collection corrupt, using empty value", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	return items
}

func save[T any](s *Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(key, data); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func upsert[T Entity](s *Store, c Collection, item T) error {
	key, err := c.key()
	if err != nil {
		return err
	}

	s.mu.Lock()
	items := load[T](s, key)
	replaced := false
	for i := range items {
		if items[i].EntityID() == item.EntityID() {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}
	err = save(s, key, items)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Debug("entity saved", zap.String("collection", string(c)), zap.String("id", item.EntityID()), zap.Bool("replaced", replaced))
	s.publish(c.topic(), events.OriginLocal)
	return nil
}

func deleteByID[T Entity](s *Store, c Collection, id string) error {
	key, err := c.key()
	if err != nil {
		return err
	}

	s.mu.Lock()
	items := load[T](s, key)
	kept, removed := without(items, func(item T) bool { return item.EntityID() == id })
	if !removed {
		s.mu.Unlock()
		return nil
	}
	err = save(s, key, kept)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Debug("entity deleted", zap.String("collection", string(c)), zap.String("id", id))
	s.publish(c.topic(), events.OriginLocal)
	return nil
}

func without[T any](items []T, drop func(T) bool) ([]T, bool) {
	kept := make([]T, 0, len(items))
	removed := false
	for _, item := range items {
		if drop(item) {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	return kept, removed
}

// decodeItems accepts the JSON array the store writes as well as the keyed
// object form a realtime mirror returns for sparse arrays. Null entries are
// dropped.
func decodeItems[T any](raw []byte) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}

	switch raw[0] {
	case '[':
		var ptrs []*T
		if err := json.Unmarshal(raw, &ptrs); err != nil {
			return nil, err
		}
		out := make([]T, 0, len(ptrs))
		for _, p := range ptrs {
			if p != nil {
				out = append(out, *p)
			}
		}
		return out, nil
	case '{':
		var keyed map[string]*T
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
		out := make([]T, 0, len(keys))
		for _, k := range keys {
			if p := keyed[k]; p != nil {
				out = append(out, *p)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected collection payload starting with %q", raw[0])
}

func lessKey(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
