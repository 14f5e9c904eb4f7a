// Package replication mirrors the local collections to a remote document
// store. Each collection is pushed as one whole snapshot after every local
// mutation, and every remote notification replaces the local collection
// wholesale. Two devices writing the same collection inside the propagation
// delay overwrite each other: the last snapshot to land wins.
package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/events"
	"github.com/mamadbah2/avicontrol/internal/store"
)

var (
	// ErrDisabled is returned by operations that need an active mirror.
	ErrDisabled = errors.New("replication is disabled")
	// ErrConfirmationRequired guards the destructive remote wipe.
	ErrConfirmationRequired = errors.New("remote wipe requires explicit confirmation")
)

// State is the engine's activation state.
type State string

const (
	StateDisabled State = "DISABLED"
	StateEnabled  State = "ENABLED"
)

// Result reports the outcome of a connection test.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State     State     `json:"state"`
	LastError string    `json:"lastError,omitempty"`
	LastPush  time.Time `json:"lastPush,omitempty"`
	LastPull  time.Time `json:"lastPull,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithReconnectDelay sets the pause before a dropped subscription is reopened.
func WithReconnectDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.reconnectDelay = d
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine is the replication state machine.
type Engine struct {
	store          *store.Store
	dialer         Dialer
	logger         *zap.Logger
	metrics        *Metrics
	timeout        time.Duration
	reconnectDelay time.Duration

	mu       sync.Mutex
	state    State
	mirror   Mirror
	cancel   context.CancelFunc
	watchers sync.WaitGroup
	inflight sync.WaitGroup

	// statusMu may be taken while mu is held, never the reverse.
	statusMu sync.Mutex
	status   Status

	viewMu sync.Mutex
	views  map[store.Collection]*mirrorView

	unsubscribe func()
}

// NewEngine builds a disabled engine listening to the store's change events.
func NewEngine(st *store.Store, dialer Dialer, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:          st,
		dialer:         dialer,
		logger:         logger,
		metrics:        NewMetrics(nil),
		timeout:        15 * time.Second,
		reconnectDelay: 5 * time.Second,
		state:          StateDisabled,
		views:          make(map[store.Collection]*mirrorView),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.status.State = StateDisabled

	bus := st.Bus()
	cancels := make([]func(), 0, len(store.Replicated))
	for _, c := range store.Replicated {
		cancels = append(cancels, bus.Subscribe(events.Topic(c), e.onLocalChange))
	}
	e.unsubscribe = func() {
		for _, c := range cancels {
			c()
		}
	}
	return e
}

// State returns the current activation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns state plus the most recent failure and activity times.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

func (e *Engine) updateStatus(fn func(*Status)) {
	e.statusMu.Lock()
	fn(&e.status)
	e.statusMu.Unlock()
}

func (e *Engine) recordError(err error) {
	e.updateStatus(func(s *Status) { s.LastError = err.Error() })
}

// Enable connects with creds, pulls every collection and subscribes to
// remote changes. Any previous connection is torn down first. On failure the
// engine stays disabled and the error says why.
func (e *Engine) Enable(ctx context.Context, creds models.CloudCredentials) error {
	creds = creds.Trimmed()
	if err := ValidateCredentials(creds, e.dialer.Schemes()); err != nil {
		e.recordError(err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardownLocked(ctx)

	dialCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	m, err := e.dialer.Dial(dialCtx, creds)
	if err != nil {
		err = fmt.Errorf("connect mirror: %w", err)
		e.recordError(err)
		return err
	}

	for _, c := range store.Replicated {
		if err := e.pull(dialCtx, m, c); err != nil {
			_ = m.Close(ctx)
			e.recordError(err)
			return err
		}
	}
	pulledAt := time.Now()

	watchCtx, stop := context.WithCancel(context.Background())
	for _, c := range store.Replicated {
		e.watchers.Add(1)
		go e.watch(watchCtx, m, c)
	}

	e.mirror = m
	e.cancel = stop
	e.state = StateEnabled
	e.updateStatus(func(s *Status) {
		s.State = StateEnabled
		s.LastError = ""
		s.LastPull = pulledAt
	})
	e.metrics.enabled.Set(1)
	e.logger.Info("replication enabled", zap.String("project_id", creds.ProjectID))
	return nil
}

func (e *Engine) pull(ctx context.Context, m Mirror, c store.Collection) error {
	data, err := m.Fetch(ctx, string(c))
	e.metrics.pulls.WithLabelValues(string(c), result(err)).Inc()
	if err != nil {
		return fmt.Errorf("pull %s: %w", c, err)
	}
	e.resetView(c, !isEmpty(data))
	if isEmpty(data) {
		e.logger.Debug("mirror collection empty, keeping local data", zap.String("collection", string(c)))
		return nil
	}
	if err := e.store.ApplyRemoteSnapshot(c, data); err != nil {
		return fmt.Errorf("apply %s: %w", c, err)
	}
	return nil
}

func (e *Engine) watch(ctx context.Context, m Mirror, c store.Collection) {
	defer e.watchers.Done()
	logger := e.logger.With(zap.String("collection", string(c)))

	for {
		err := m.Watch(ctx, string(c), func(data []byte) {
			if ctx.Err() != nil || !e.accept(c, data) {
				return
			}
			applyErr := e.store.ApplyRemoteSnapshot(c, data)
			e.metrics.applies.WithLabelValues(string(c), result(applyErr)).Inc()
			if applyErr != nil {
				logger.Error("failed to apply remote snapshot", zap.Error(applyErr))
				e.recordError(applyErr)
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Error("mirror subscription dropped", zap.Error(err))
			e.recordError(fmt.Errorf("watch %s: %w", c, err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.reconnectDelay):
		}
	}
}

func (e *Engine) onLocalChange(evt events.Event) {
	if evt.Origin != events.OriginLocal {
		return
	}
	c := store.Collection(evt.Topic)

	e.mu.Lock()
	if e.state != StateEnabled {
		e.mu.Unlock()
		return
	}
	m := e.mirror
	e.inflight.Add(1)
	e.mu.Unlock()

	snapshot, err := e.store.Snapshot(c)
	if err != nil {
		e.inflight.Done()
		e.logger.Error("failed to snapshot collection", zap.String("collection", string(c)), zap.Error(err))
		e.recordError(err)
		return
	}

	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.push(ctx, m, c, snapshot); err != nil {
			e.logger.Error("failed to push collection", zap.String("collection", string(c)), zap.Error(err))
		}
	}()
}

func (e *Engine) push(ctx context.Context, m Mirror, c store.Collection, snapshot []byte) error {
	e.rememberPush(c, snapshot)
	err := m.Put(ctx, string(c), snapshot)
	e.metrics.pushes.WithLabelValues(string(c), result(err)).Inc()
	if err != nil {
		e.forgetPush(c, snapshot)
		err = fmt.Errorf("push %s: %w", c, err)
		e.recordError(err)
		return err
	}
	e.updateStatus(func(s *Status) { s.LastPush = time.Now() })
	return nil
}

const echoMemory = 8

// mirrorView tracks what this device knows about one mirror collection.
// pushed holds snapshots written by this device whose notifications have not
// come back yet, oldest first. seeded is false while the mirror collection is
// known to be empty.
type mirrorView struct {
	pushed [][]byte
	seeded bool
}

func (e *Engine) viewLocked(c store.Collection) *mirrorView {
	v, ok := e.views[c]
	if !ok {
		v = &mirrorView{}
		e.views[c] = v
	}
	return v
}

func (e *Engine) resetView(c store.Collection, seeded bool) {
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	e.views[c] = &mirrorView{seeded: seeded}
}

func (e *Engine) rememberPush(c store.Collection, snapshot []byte) {
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	v := e.viewLocked(c)
	v.pushed = append(v.pushed, snapshot)
	if len(v.pushed) > echoMemory {
		v.pushed = v.pushed[len(v.pushed)-echoMemory:]
	}
}

// forgetPush drops a snapshot whose write failed; no echo will come for it.
func (e *Engine) forgetPush(c store.Collection, snapshot []byte) {
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	v := e.viewLocked(c)
	for i := len(v.pushed) - 1; i >= 0; i-- {
		if bytes.Equal(v.pushed[i], snapshot) {
			v.pushed = append(v.pushed[:i:i], v.pushed[i+1:]...)
			return
		}
	}
}

// accept decides whether a mirror notification replaces the local collection.
// A notification matching a pending push is this device's own echo: it and
// every older pending push are consumed and the notification is dropped.
// Anything else is another device's state and is applied, empty or not,
// unless the mirror collection was already empty. Pending pushes are
// forgotten then: a later echo of one reflects the mirror as it now is.
func (e *Engine) accept(c store.Collection, data []byte) bool {
	empty := isEmpty(data)
	canon, canonErr := e.store.Canonical(c, data)

	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	v := e.viewLocked(c)
	wasSeeded := v.seeded
	v.seeded = !empty

	if canonErr == nil {
		for i, p := range v.pushed {
			if bytes.Equal(p, canon) {
				v.pushed = v.pushed[i+1:]
				return false
			}
		}
	}
	v.pushed = nil
	return !empty || wasSeeded
}

// Wait blocks until every push started so far has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Disable drops the mirror connection and stops pushing. Local data is kept.
func (e *Engine) Disable(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDisabled {
		return
	}
	e.teardownLocked(ctx)
	e.logger.Info("replication disabled")
}

func (e *Engine) teardownLocked(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.mirror != nil {
		if err := e.mirror.Close(ctx); err != nil {
			e.logger.Warn("closing mirror connection", zap.Error(err))
		}
		e.mirror = nil
	}
	e.watchers.Wait()
	e.state = StateDisabled
	e.updateStatus(func(s *Status) { s.State = StateDisabled })
	e.metrics.enabled.Set(0)
}

// EnableFromConfig enables with the persisted credentials and records the
// enabled flag on success.
func (e *Engine) EnableFromConfig(ctx context.Context) error {
	cfg := e.store.GetConfig()
	if err := e.Enable(ctx, cfg.FirebaseConfig); err != nil {
		return err
	}
	if !cfg.CloudEnabled {
		cfg.CloudEnabled = true
		if err := e.store.SaveConfig(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}
	return nil
}

// Deactivate disables replication and records the disabled flag.
func (e *Engine) Deactivate(ctx context.Context) error {
	e.Disable(ctx)
	cfg := e.store.GetConfig()
	if !cfg.CloudEnabled {
		return nil
	}
	cfg.CloudEnabled = false
	if err := e.store.SaveConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// TestConnection dials with candidate credentials without changing state.
func (e *Engine) TestConnection(ctx context.Context, creds models.CloudCredentials) Result {
	creds = creds.Trimmed()
	if err := ValidateCredentials(creds, e.dialer.Schemes()); err != nil {
		return Result{OK: false, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	m, err := e.dialer.Dial(ctx, creds)
	if err != nil {
		return Result{OK: false, Message: fmt.Sprintf("connect mirror: %v", err)}
	}
	defer func() { _ = m.Close(context.Background()) }()

	if err := m.Ping(ctx); err != nil {
		return Result{OK: false, Message: fmt.Sprintf("mirror unreachable: %v", err)}
	}
	return Result{OK: true, Message: "connection successful"}
}

func (e *Engine) activeMirror() (Mirror, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateEnabled || e.mirror == nil {
		return nil, ErrDisabled
	}
	return e.mirror, nil
}

// PushAllCollections re-uploads every local collection.
func (e *Engine) PushAllCollections(ctx context.Context) error {
	m, err := e.activeMirror()
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range store.Replicated {
		snapshot, err := e.store.Snapshot(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, e.timeout)
		if err := e.push(pushCtx, m, c, snapshot); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	e.logger.Info("all collections pushed to mirror")
	return nil
}

// WipeRemote clears the mirror's root node. It is irreversible and refuses
// to run unless confirmed is true. Local data on this device is kept; other
// devices receive the empty collections.
func (e *Engine) WipeRemote(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	m, err := e.activeMirror()
	if err != nil {
		return err
	}

	for _, c := range store.Replicated {
		e.rememberPush(c, []byte("[]"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := m.Put(ctx, RootPath, []byte("null")); err != nil {
		for _, c := range store.Replicated {
			e.forgetPush(c, []byte("[]"))
		}
		err = fmt.Errorf("wipe mirror: %w", err)
		e.recordError(err)
		return err
	}
	e.logger.Warn("mirror root wiped")
	return nil
}

// Close disables the engine, waits for in-flight pushes and detaches it from
// the store.
func (e *Engine) Close(ctx context.Context) {
	e.Disable(ctx)
	e.Wait()
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}
