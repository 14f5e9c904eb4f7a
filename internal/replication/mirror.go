package replication

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
)

// RootPath addresses the whole mirror.
const RootPath = ""

// Mirror is one open connection to a remote document store. Paths are
// hierarchical and payloads are JSON.
type Mirror interface {
	// Fetch reads the full value at path; an empty node reads as nil or "null".
	Fetch(ctx context.Context, path string) ([]byte, error)
	// Put overwrites the value at path. A "null" payload clears it.
	Put(ctx context.Context, path string, payload []byte) error
	// Watch calls onChange with the full value at path whenever it changes,
	// blocking until ctx is done or the subscription fails.
	Watch(ctx context.Context, path string, onChange func([]byte)) error
	// Ping verifies the credentials reach the store.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens Mirror connections.
type Dialer interface {
	Dial(ctx context.Context, creds models.CloudCredentials) (Mirror, error)
	// Schemes lists the accepted database URL prefixes.
	Schemes() []string
}

// CredentialError names the credential field that blocked activation.
type CredentialError struct {
	Field  string
	Reason string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("cloud credential %s: %s", e.Field, e.Reason)
}

// ValidateCredentials checks the fields required before dialing.
func ValidateCredentials(c models.CloudCredentials, schemes []string) error {
	c = c.Trimmed()
	switch {
	case c.APIKey == "":
		return &CredentialError{Field: "apiKey", Reason: "must be provided"}
	case c.ProjectID == "":
		return &CredentialError{Field: "projectId", Reason: "must be provided"}
	case c.DatabaseURL == "":
		return &CredentialError{Field: "databaseURL", Reason: "must be provided"}
	}
	for _, s := range schemes {
		if strings.HasPrefix(strings.ToLower(c.DatabaseURL), s) {
			return nil
		}
	}
	return &CredentialError{Field: "databaseURL", Reason: fmt.Sprintf("must start with %s", strings.Join(schemes, " or "))}
}

// isEmpty reports whether a payload carries no data.
func isEmpty(payload []byte) bool {
	p := bytes.TrimSpace(payload)
	return len(p) == 0 || bytes.Equal(p, []byte("null")) || bytes.Equal(p, []byte("[]")) || bytes.Equal(p, []byte("{}"))
}
