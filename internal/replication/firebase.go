package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/pkg/clients/firebase"
)

// ErrSubscriptionRevoked is returned when the server cancels a stream.
var ErrSubscriptionRevoked = errors.New("mirror subscription revoked")

// FirebaseDialer opens Realtime Database connections over REST.
type FirebaseDialer struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewFirebaseDialer builds a dialer whose requests time out after timeout.
func NewFirebaseDialer(timeout time.Duration, logger *zap.Logger) *FirebaseDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirebaseDialer{timeout: timeout, logger: logger}
}

// Schemes implements Dialer.
func (d *FirebaseDialer) Schemes() []string { return []string{"https://"} }

// Dial implements Dialer. REST is connectionless, so dialing only builds the
// client; Ping is what proves the credentials work.
func (d *FirebaseDialer) Dial(_ context.Context, creds models.CloudCredentials) (Mirror, error) {
	client := firebase.NewClient(firebase.Config{
		DatabaseURL: creds.DatabaseURL,
		AuthToken:   creds.APIKey,
		Timeout:     d.timeout,
	})
	return &firebaseMirror{client: client, logger: d.logger}, nil
}

type firebaseMirror struct {
	client firebase.Client
	logger *zap.Logger
}

func (m *firebaseMirror) Fetch(ctx context.Context, path string) ([]byte, error) {
	return m.client.Get(ctx, path)
}

func (m *firebaseMirror) Put(ctx context.Context, path string, payload []byte) error {
	return m.client.Put(ctx, path, payload)
}

// Watch turns the event stream into whole-collection notifications. A put at
// the subscribed root already carries the full value; any narrower put or
// patch triggers a fresh read of the collection.
func (m *firebaseMirror) Watch(ctx context.Context, path string, onChange func([]byte)) error {
	var revoked error
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := m.client.Stream(streamCtx, path, func(evt firebase.Event) {
		switch evt.Name {
		case "put", "patch":
			var payload firebase.StreamPayload
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				m.logger.Warn("undecodable stream event", zap.String("path", path), zap.Error(err))
				return
			}
			if evt.Name == "put" && strings.Trim(payload.Path, "/") == "" {
				onChange(payload.Data)
				return
			}
			full, err := m.client.Get(streamCtx, path)
			if err != nil {
				m.logger.Warn("refetch after partial update failed", zap.String("path", path), zap.Error(err))
				return
			}
			onChange(full)
		case "cancel", "auth_revoked":
			revoked = fmt.Errorf("%w: %s", ErrSubscriptionRevoked, evt.Name)
			cancel()
		}
	})
	if revoked != nil {
		return revoked
	}
	return err
}

func (m *firebaseMirror) Ping(ctx context.Context) error {
	_, err := m.client.Get(ctx, ".info/serverTimeOffset")
	return err
}

func (m *firebaseMirror) Close(context.Context) error { return nil }
