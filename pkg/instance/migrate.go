package instance

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/pocketumami/pocketumami/pkg/storage"
)

const schemaVersionKey = "schema/version"

// schemaVersion is the version the current code expects. Bump it when adding
// a migration below.
const schemaVersion = 1

// migration upgrades the stored layout by one version. Migrations run in
// order, exactly once, before any session or cache operation touches the
// stores.
type migration func(ctx context.Context, plain, secret storage.Store) error

var migrations = []migration{
	migrateLegacySingleInstance, // 0 -> 1
}

// Migrate runs any pending storage migrations to completion. It must be
// called at startup before the instance store is used.
func Migrate(ctx context.Context, plain, secret storage.Store) error {
	version, err := currentVersion(ctx, plain)
	if err != nil {
		return err
	}

	for v := version; v < schemaVersion; v++ {
		if err := migrations[v](ctx, plain, secret); err != nil {
			return fmt.Errorf("migration %d -> %d failed: %w", v, v+1, err)
		}
		if err := plain.Set(ctx, schemaVersionKey, []byte(strconv.Itoa(v+1))); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", v+1, err)
		}
	}
	return nil
}

func currentVersion(ctx context.Context, plain storage.Store) (int, error) {
	data, err := plain.Get(ctx, schemaVersionKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	version, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", data, err)
	}
	return version, nil
}

// legacyInstance is the pre-1.0 flat record: a single unnamed instance under
// fixed keys with loose secrets beside it.
type legacyInstance struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	SetupType string `json:"setupType"`
	Username  string `json:"username,omitempty"`
}

// migrateLegacySingleInstance moves the old flat "instance" + loose secret
// keys into the instances/<id> + secrets/<id> layout.
func migrateLegacySingleInstance(ctx context.Context, plain, secret storage.Store) error {
	data, err := plain.Get(ctx, "instance")
	if errors.Is(err, storage.ErrNotFound) {
		return nil // fresh install, nothing to move
	}
	if err != nil {
		return err
	}

	var legacy legacyInstance
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("corrupt legacy instance record: %w", err)
	}

	host, err := NormalizeHost(legacy.Host)
	if err != nil {
		return err
	}

	setup := SetupType(legacy.SetupType)
	if setup != SetupCloud {
		setup = SetupSelfHosted
	}

	store := NewStore(plain, secret)
	inst := &Instance{
		ID:        uuid.NewString(),
		Name:      legacy.Name,
		Host:      host,
		SetupType: setup,
		Username:  legacy.Username,
	}
	if err := store.Create(ctx, inst); err != nil {
		return err
	}

	var sec Secrets
	for _, key := range []string{"token", "password", "apiKey"} {
		value, err := secret.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		switch key {
		case "token":
			sec.Token = string(value)
		case "password":
			sec.Password = string(value)
		case "apiKey":
			sec.APIKey = string(value)
		}
	}
	if err := store.SetSecrets(ctx, inst.ID, sec); err != nil {
		return err
	}

	// Drop the legacy keys only once everything is copied.
	if err := plain.Delete(ctx, "instance"); err != nil {
		return err
	}
	for _, key := range []string{"token", "password", "apiKey"} {
		if err := secret.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
