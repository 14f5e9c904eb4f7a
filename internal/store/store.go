// Package store is the local-first keyed collection store. Every mutation is
// persisted synchronously and then announced on the event bus.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/events"
	"github.com/mamadbah2/avicontrol/internal/repository/kv"
)

// Store holds the Users, Batches, Orders and Config collections.
type Store struct {
	kv     kv.Store
	bus    *events.Bus
	logger *zap.Logger
	mu     sync.Mutex
}

// New wraps a key-value store and seeds defaults for absent keys.
func New(kvStore kv.Store, bus *events.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	s := &Store{kv: kvStore, bus: bus, logger: logger}
	s.seed()
	return s
}

// Bus exposes the change notification hub.
func (s *Store) Bus() *events.Bus { return s.bus }

func (s *Store) seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := []struct {
		key   string
		value any
	}{
		{keyUsers, models.DefaultUsers()},
		{keyConfig, models.DefaultAppConfig()},
		{keyBatches, []models.Batch{}},
		{keyOrders, []models.ClientOrder{}},
	}
	for _, d := range defaults {
		if _, err := s.kv.Get(d.key); err == nil || !errors.Is(err, kv.ErrNotFound) {
			continue
		}
		data, err := json.Marshal(d.value)
		if err != nil {
			s.logger.Error("encode default", zap.String("key", d.key), zap.Error(err))
			continue
		}
		if err := s.kv.Set(d.key, data); err != nil {
			s.logger.Error("seed default", zap.String("key", d.key), zap.Error(err))
		}
	}
}

func (s *Store) publish(topic events.Topic, origin events.Origin) {
	s.bus.Publish(events.Event{Topic: topic, Origin: origin})
}

// GetUsers returns all users in insertion order.
func (s *Store) GetUsers() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load[models.User](s, keyUsers)
}

// GetUser looks a user up by id.
func (s *Store) GetUser(id string) (models.User, bool) {
	for _, u := range s.GetUsers() {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(u models.User) error {
	return upsert(s, CollectionUsers, u)
}

// DeleteUser removes a user if present.
func (s *Store) DeleteUser(id string) error {
	return deleteByID[models.User](s, CollectionUsers, id)
}

// Login returns the user whose credentials match exactly. Passwords are
// compared in plaintext.
func (s *Store) Login(username, password string) (models.User, bool) {
	for _, u := range s.GetUsers() {
		if u.Username == username && u.Password == password {
			return u, true
		}
	}
	return models.User{}, false
}

// GetBatches returns all batches in insertion order.
func (s *Store) GetBatches() []models.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load[models.Batch](s, keyBatches)
}

// GetBatch looks a batch up by id.
func (s *Store) GetBatch(id string) (models.Batch, bool) {
	for _, b := range s.GetBatches() {
		if b.ID == id {
			return b, true
		}
	}
	return models.Batch{}, false
}

// SaveBatch inserts or replaces a batch.
func (s *Store) SaveBatch(b models.Batch) error {
	return upsert(s, CollectionBatches, b)
}

// DeleteBatch removes the batch and every order that references it, then
// announces both collections.
func (s *Store) DeleteBatch(id string) error {
	s.mu.Lock()
	batches, _ := without(load[models.Batch](s, keyBatches), func(b models.Batch) bool { return b.ID == id })
	orders, dropped := without(load[models.ClientOrder](s, keyOrders), func(o models.ClientOrder) bool { return o.BatchID == id })
	err := save(s, keyBatches, batches)
	if err == nil {
		err = save(s, keyOrders, orders)
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete batch %s: %w", id, err)
	}

	s.logger.Debug("batch deleted", zap.String("id", id), zap.Bool("orders_removed", dropped))
	s.publish(events.TopicBatches, events.OriginLocal)
	s.publish(events.TopicOrders, events.OriginLocal)
	return nil
}

// GetOrders returns all orders in insertion order.
func (s *Store) GetOrders() []models.ClientOrder {
	s.mu.Lock()
	orders := load[models.ClientOrder](s, keyOrders)
	s.mu.Unlock()
	for i := range orders {
		orders[i].Normalize()
	}
	return orders
}

// GetOrder looks an order up by id.
func (s *Store) GetOrder(id string) (models.ClientOrder, bool) {
	for _, o := range s.GetOrders() {
		if o.ID == id {
			return o, true
		}
	}
	return models.ClientOrder{}, false
}

// SaveOrder inserts or replaces an order.
func (s *Store) SaveOrder(o models.ClientOrder) error {
	o.Normalize()
	return upsert(s, CollectionOrders, o)
}

// DeleteOrder removes an order if present.
func (s *Store) DeleteOrder(id string) error {
	return deleteByID[models.ClientOrder](s, CollectionOrders, id)
}

// GetConfig returns the settings singleton, or defaults when absent or corrupt.
func (s *Store) GetConfig() models.AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.kv.Get(keyConfig)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("config unreadable, using defaults", zap.Error(err))
		}
		return models.DefaultAppConfig()
	}
	cfg := models.DefaultAppConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		s.logger.Warn("config corrupt, using defaults", zap.Error(err))
		return models.DefaultAppConfig()
	}
	return cfg
}

// SaveConfig persists the settings singleton and fires the config event.
func (s *Store) SaveConfig(cfg models.AppConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	s.mu.Lock()
	err = s.kv.Set(keyConfig, data)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	s.publish(events.TopicConfig, events.OriginLocal)
	return nil
}

// Snapshot encodes the full current contents of a replicated collection.
func (s *Store) Snapshot(c Collection) ([]byte, error) {
	var items any
	switch c {
	case CollectionUsers:
		items = s.GetUsers()
	case CollectionBatches:
		items = s.GetBatches()
	case CollectionOrders:
		items = s.GetOrders()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
	}
	return json.Marshal(items)
}

// ApplyRemoteSnapshot replaces a collection wholesale with a mirror payload
// and announces it with remote origin. A payload that cannot be decoded leaves
// the local collection untouched.
func (s *Store) ApplyRemoteSnapshot(c Collection, payload []byte) error {
	var err error
	switch c {
	case CollectionUsers:
		err = replaceAll[models.User](s, c, payload)
	case CollectionBatches:
		err = replaceAll[models.Batch](s, c, payload)
	case CollectionOrders:
		err = replaceAll[models.ClientOrder](s, c, payload)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
	}
	if err != nil {
		return err
	}
	s.publish(c.topic(), events.OriginRemote)
	return nil
}

// Canonical decodes a mirror payload and re-encodes it the way Snapshot does,
// so payloads from different sources compare byte for byte.
func (s *Store) Canonical(c Collection, payload []byte) ([]byte, error) {
	switch c {
	case CollectionUsers:
		return canonical[models.User](payload)
	case CollectionBatches:
		return canonical[models.Batch](payload)
	case CollectionOrders:
		items, err := decodeItems[models.ClientOrder](payload)
		if err != nil {
			return nil, err
		}
		for i := range items {
			items[i].Normalize()
		}
		return json.Marshal(items)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
}

func canonical[T any](payload []byte) ([]byte, error) {
	items, err := decodeItems[T](payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(items)
}

func replaceAll[T any](s *Store, c Collection, payload []byte) error {
	items, err := decodeItems[T](payload)
	if err != nil {
		return fmt.Errorf("decode remote %s: %w", c, err)
	}
	key, err := c.key()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(s, key, items)
}

// Reset clears every collection, re-seeds defaults and announces all topics
// with reset origin, so an active replication engine does not push the
// seeded defaults over the mirror.
func (s *Store) Reset() error {
	s.mu.Lock()
	for _, key := range []string{keyUsers, keyBatches, keyOrders, keyConfig} {
		if err := s.kv.Remove(key); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("reset %s: %w", key, err)
		}
	}
	s.mu.Unlock()
	s.seed()

	s.logger.Info("local store reset")
	for _, topic := range []events.Topic{events.TopicUsers, events.TopicBatches, events.TopicOrders, events.TopicConfig} {
		s.publish(topic, events.OriginReset)
	}
	return nil
}
