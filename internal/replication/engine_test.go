package replication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/events"
	"github.com/mamadbah2/avicontrol/internal/repository/kv"
	"github.com/mamadbah2/avicontrol/internal/store"
)

func validCreds() models.CloudCredentials {
	return models.CloudCredentials{
		APIKey:      "key-1",
		ProjectID:   "granja-norte",
		DatabaseURL: "https://granja-norte.firebaseio.com",
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store, *MemoryDialer) {
	t.Helper()
	st := store.New(kv.NewMemory(), events.NewBus(), zaptest.NewLogger(t))
	dialer := NewMemoryDialer()
	opts = append([]Option{WithTimeout(time.Second), WithReconnectDelay(10 * time.Millisecond)}, opts...)
	e := NewEngine(st, dialer, zaptest.NewLogger(t), opts...)
	t.Cleanup(func() { e.Close(context.Background()) })
	return e, st, dialer
}

func TestValidateCredentials(t *testing.T) {
	schemes := []string{"https://"}
	tests := []struct {
		name  string
		mod   func(*models.CloudCredentials)
		field string
	}{
		{name: "missing api key", mod: func(c *models.CloudCredentials) { c.APIKey = "  " }, field: "apiKey"},
		{name: "missing project", mod: func(c *models.CloudCredentials) { c.ProjectID = "" }, field: "projectId"},
		{name: "missing url", mod: func(c *models.CloudCredentials) { c.DatabaseURL = "" }, field: "databaseURL"},
		{name: "plain http", mod: func(c *models.CloudCredentials) { c.DatabaseURL = "http://x.firebaseio.com" }, field: "databaseURL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := validCreds()
			tt.mod(&creds)
			err := ValidateCredentials(creds, schemes)
			var credErr *CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Equal(t, tt.field, credErr.Field)
		})
	}

	assert.NoError(t, ValidateCredentials(validCreds(), schemes))
}

func TestEnable_RejectsBadCredentialsAndStaysDisabled(t *testing.T) {
	e, _, dialer := newTestEngine(t)
	creds := validCreds()
	creds.APIKey = ""

	err := e.Enable(context.Background(), creds)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, StateDisabled, e.State())
	assert.Contains(t, e.Status().LastError, "apiKey")
	assert.Zero(t, dialer.Puts())
}

func TestEnable_DialFailureStaysDisabled(t *testing.T) {
	e, _, dialer := newTestEngine(t)
	dialer.FailWith(errors.New("network unreachable"), nil)

	err := e.Enable(context.Background(), validCreds())

	require.Error(t, err)
	assert.Equal(t, StateDisabled, e.State())
	assert.Contains(t, e.Status().LastError, "network unreachable")
}

func TestEnable_PullOverwritesLocalCollections(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, st.SaveBatch(models.Batch{ID: "local", Name: "Local"}))
	dialer.Write("batches", []byte(`[{"id":"remote","name":"Remote","status":"ACTIVE"}]`))

	require.NoError(t, e.Enable(context.Background(), validCreds()))

	batches := st.GetBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, "remote", batches[0].ID)
	assert.Equal(t, StateEnabled, e.State())
	assert.False(t, e.Status().LastPull.IsZero())
}

func TestEnable_EmptyMirrorKeepsLocalData(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1", Name: "Lote 1"}))
	dialer.Write("batches", []byte(`null`))

	require.NoError(t, e.Enable(context.Background(), validCreds()))

	batches := st.GetBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].ID)
	assert.Len(t, st.GetUsers(), 1)
}

func TestLocalMutation_PushesSnapshot(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, e.Enable(context.Background(), validCreds()))

	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1", Name: "Lote 1", Status: models.BatchActive}))
	e.Wait()

	assert.JSONEq(t, `[{"id":"b1","name":"Lote 1","createdAt":0,"totalCratesLimit":0,"status":"ACTIVE"}]`,
		string(dialer.Stored("batches")))
	assert.False(t, e.Status().LastPush.IsZero())
}

func TestConfigChanges_AreNotReplicated(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, e.Enable(context.Background(), validCreds()))

	cfg := st.GetConfig()
	cfg.CompanyName = "OTRA"
	require.NoError(t, st.SaveConfig(cfg))
	e.Wait()

	assert.Zero(t, dialer.Puts())
}

func TestRemoteWrite_ReplacesLocalCollection(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, e.Enable(context.Background(), validCreds()))

	dialer.Write("orders", []byte(`{"0":{"id":"o1","clientName":"ROSA","batchId":"b1"}}`))

	require.Eventually(t, func() bool {
		orders := st.GetOrders()
		return len(orders) == 1 && orders[0].ID == "o1"
	}, time.Second, 5*time.Millisecond)

	e.Wait()
	assert.Zero(t, dialer.Puts(), "remote applies must not be pushed back")
}

func TestRemoteDeleteOfLastItem_EmptiesLocalCollection(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, e.Enable(context.Background(), validCreds()))

	dialer.Write("batches", []byte(`[{"id":"b1"}]`))
	require.Eventually(t, func() bool { return len(st.GetBatches()) == 1 }, time.Second, 5*time.Millisecond)

	dialer.Write("batches", []byte(`null`))
	require.Eventually(t, func() bool { return len(st.GetBatches()) == 0 }, time.Second, 5*time.Millisecond)

	e.Wait()
	assert.Zero(t, dialer.Puts())
}

func TestLocalReset_IsNotPushed(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, e.Enable(context.Background(), validCreds()))
	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1"}))
	e.Wait()
	puts := dialer.Puts()

	require.NoError(t, st.Reset())
	e.Wait()

	assert.Equal(t, puts, dialer.Puts())
	assert.Contains(t, string(dialer.Stored("batches")), `"b1"`)
}

func TestDisable_StopsPushingAndKeepsData(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, e.Enable(context.Background(), validCreds()))
	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1"}))
	e.Wait()
	before := dialer.Puts()

	e.Disable(context.Background())
	require.NoError(t, st.SaveBatch(models.Batch{ID: "b2"}))
	e.Wait()

	assert.Equal(t, StateDisabled, e.State())
	assert.Equal(t, before, dialer.Puts())
	assert.Len(t, st.GetBatches(), 2)

	dialer.Write("batches", []byte(`[{"id":"zz"}]`))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, st.GetBatches(), 2)
}

func newDevice(t *testing.T, dialer *MemoryDialer) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(kv.NewMemory(), events.NewBus(), zaptest.NewLogger(t))
	e := NewEngine(st, dialer, zaptest.NewLogger(t), WithReconnectDelay(10*time.Millisecond))
	t.Cleanup(func() { e.Close(context.Background()) })
	require.NoError(t, e.Enable(context.Background(), validCreds()))
	return e, st
}

func orderIDs(st *store.Store) []string {
	ids := make([]string, 0)
	for _, o := range st.GetOrders() {
		ids = append(ids, o.ID)
	}
	return ids
}

func eventuallyOrders(t *testing.T, st *store.Store, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, orderIDs(st))
	}, time.Second, 5*time.Millisecond, "want orders %v", want)
}

func TestTwoDevices_RoundTrip(t *testing.T) {
	dialer := NewMemoryDialer()
	a, stA := newDevice(t, dialer)
	_, stB := newDevice(t, dialer)

	require.NoError(t, stA.SaveOrder(models.ClientOrder{ID: "o1", ClientName: "ROSA", BatchID: "b1"}))
	a.Wait()

	require.Eventually(t, func() bool {
		o, ok := stB.GetOrder("o1")
		return ok && o.ClientName == "ROSA"
	}, time.Second, 5*time.Millisecond)
}

func TestTwoDevices_ReturnToEarlierStateIsApplied(t *testing.T) {
	dialer := NewMemoryDialer()
	a, stA := newDevice(t, dialer)
	b, stB := newDevice(t, dialer)

	require.NoError(t, stA.SaveOrder(models.ClientOrder{ID: "x", BatchID: "b1"}))
	a.Wait()
	eventuallyOrders(t, stB, "x")

	require.NoError(t, stB.SaveOrder(models.ClientOrder{ID: "y", BatchID: "b1"}))
	b.Wait()
	eventuallyOrders(t, stA, "x", "y")

	require.NoError(t, stB.DeleteOrder("y"))
	b.Wait()
	eventuallyOrders(t, stA, "x")

	require.NoError(t, stA.SaveOrder(models.ClientOrder{ID: "z", BatchID: "b1"}))
	a.Wait()
	eventuallyOrders(t, stB, "x", "z")
	assert.NotContains(t, string(dialer.Stored("orders")), `"y"`)
}

func TestTwoDevices_DeleteLastItemPropagates(t *testing.T) {
	dialer := NewMemoryDialer()
	a, stA := newDevice(t, dialer)
	b, stB := newDevice(t, dialer)

	require.NoError(t, stA.SaveOrder(models.ClientOrder{ID: "x", BatchID: "b1"}))
	a.Wait()
	eventuallyOrders(t, stB, "x")

	require.NoError(t, stB.DeleteOrder("x"))
	b.Wait()
	eventuallyOrders(t, stA)

	require.NoError(t, stA.SaveOrder(models.ClientOrder{ID: "z", BatchID: "b1"}))
	a.Wait()
	eventuallyOrders(t, stB, "z")
	assert.NotContains(t, string(dialer.Stored("orders")), `"x"`)
}

func TestTestConnection_DoesNotChangeState(t *testing.T) {
	e, _, dialer := newTestEngine(t)

	res := e.TestConnection(context.Background(), validCreds())
	assert.True(t, res.OK)
	assert.Equal(t, StateDisabled, e.State())

	bad := validCreds()
	bad.DatabaseURL = "ftp://nope"
	res = e.TestConnection(context.Background(), bad)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "databaseURL")

	dialer.FailWith(errors.New("refused"), nil)
	res = e.TestConnection(context.Background(), validCreds())
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "refused")
}

func TestPushAllCollections(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	assert.ErrorIs(t, e.PushAllCollections(context.Background()), ErrDisabled)

	require.NoError(t, e.Enable(context.Background(), validCreds()))
	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1"}))
	e.Wait()

	require.NoError(t, e.PushAllCollections(context.Background()))
	for _, c := range store.Replicated {
		assert.NotEmpty(t, dialer.Stored(string(c)), c)
	}

	dialer.FailWith(nil, errors.New("quota exceeded"))
	err := e.PushAllCollections(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestWipeRemote(t *testing.T) {
	e, st, dialer := newTestEngine(t)
	require.NoError(t, e.Enable(context.Background(), validCreds()))
	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1"}))
	e.Wait()

	assert.ErrorIs(t, e.WipeRemote(context.Background(), false), ErrConfirmationRequired)
	assert.NotEmpty(t, dialer.Stored("batches"))

	require.NoError(t, e.WipeRemote(context.Background(), true))
	assert.Empty(t, dialer.Stored("batches"))
	assert.Len(t, st.GetBatches(), 1, "wipe never touches local data")
}

func TestEnableFromConfig_PersistsFlag(t *testing.T) {
	e, st, _ := newTestEngine(t)
	cfg := st.GetConfig()
	cfg.FirebaseConfig = validCreds()
	require.NoError(t, st.SaveConfig(cfg))

	require.NoError(t, e.EnableFromConfig(context.Background()))
	assert.True(t, st.GetConfig().CloudEnabled)

	require.NoError(t, e.Deactivate(context.Background()))
	assert.False(t, st.GetConfig().CloudEnabled)
	assert.Equal(t, StateDisabled, e.State())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e, st, _ := newTestEngine(t, WithMetrics(m))

	require.NoError(t, e.Enable(context.Background(), validCreds()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.enabled))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pulls.WithLabelValues("batches", "ok")))

	require.NoError(t, st.SaveBatch(models.Batch{ID: "b1"}))
	e.Wait()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pushes.WithLabelValues("batches", "ok")))

	e.Disable(context.Background())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.enabled))
}
