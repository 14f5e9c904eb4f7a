package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/avicontrol/internal/config"
	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/events"
	"github.com/mamadbah2/avicontrol/internal/replication"
	"github.com/mamadbah2/avicontrol/internal/repository/kv"
	"github.com/mamadbah2/avicontrol/internal/store"
)

type fakePusher struct {
	calls int
	err   error
}

func (f *fakePusher) PushAllCollections(context.Context) error {
	f.calls++
	return f.err
}

type fakeExporter struct{ calls int }

func (f *fakeExporter) ExportActiveBatches(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

type fakeArchiver struct {
	name    string
	payload []byte
}

func (f *fakeArchiver) Archive(_ context.Context, name string, payload []byte) (string, error) {
	f.name, f.payload = name, payload
	return "key", nil
}

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig, jobs Jobs) (*Scheduler, *store.Store) {
	t.Helper()
	st := store.New(kv.NewMemory(), events.NewBus(), zaptest.NewLogger(t))
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Lima"
	}
	s, err := NewScheduler(cfg, st, jobs, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, st
}

func TestNewScheduler_BadTimezone(t *testing.T) {
	_, err := NewScheduler(config.SchedulerConfig{Timezone: "Mars/Olympus"}, nil, Jobs{}, nil)
	assert.Error(t, err)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{BackupSchedule: "every day"}, Jobs{Pusher: &fakePusher{}})
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{BackupSchedule: "0 3 * * *", ExportSchedule: "0 20 * * *"},
		Jobs{Pusher: &fakePusher{}, Exporter: &fakeExporter{}})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}

func TestBackup_SkipsWhenReplicationDisabled(t *testing.T) {
	pusher := &fakePusher{err: replication.ErrDisabled}
	s, _ := newTestScheduler(t, config.SchedulerConfig{}, Jobs{Pusher: pusher})

	assert.NoError(t, s.Backup(context.Background()))
	assert.Equal(t, 1, pusher.calls)

	pusher.err = errors.New("timeout")
	assert.ErrorContains(t, s.Backup(context.Background()), "timeout")
}

func TestBackup_ArchivesAllCollections(t *testing.T) {
	archiver := &fakeArchiver{}
	s, st := newTestScheduler(t, config.SchedulerConfig{}, Jobs{Archiver: archiver})
	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1", Name: "Lote"}))

	require.NoError(t, s.Backup(context.Background()))
	assert.Equal(t, "snapshot", archiver.name)

	var doc struct {
		Data map[string][]map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(archiver.payload, &doc))
	assert.Len(t, doc.Data["users"], 1)
	assert.Len(t, doc.Data["batches"], 1)
	assert.Empty(t, doc.Data["orders"])
}

func TestExport(t *testing.T) {
	exporter := &fakeExporter{}
	s, _ := newTestScheduler(t, config.SchedulerConfig{}, Jobs{Exporter: exporter})
	require.NoError(t, s.Export(context.Background()))
	assert.Equal(t, 1, exporter.calls)
}
