package instance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/pocketumami/pocketumami/pkg/storage"
)

// ErrNoInstance is returned when no instance is configured (or none is
// active). Callers should redirect to setup.
var ErrNoInstance = errors.New("instance: no active instance configured")

const (
	instancePrefix = "instances/"
	currentKey     = "instances/current"
	secretsPrefix  = "secrets/"
)

// Store persists instance records in the plain tier and their secrets in the
// secret tier.
type Store struct {
	plain  storage.Store
	secret storage.Store
}

// NewStore creates an instance store over the two persistence tiers.
func NewStore(plain, secret storage.Store) *Store {
	return &Store{plain: plain, secret: secret}
}

// Create persists a new instance and marks it active. A fresh ID is
// assigned; any previously active instance is deactivated (single active
// instance model).
func (s *Store) Create(ctx context.Context, inst *Instance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	inst.IsActive = true

	if err := s.save(ctx, inst); err != nil {
		return err
	}
	return s.SetCurrent(ctx, inst.ID)
}

// Save updates an existing instance record.
func (s *Store) Save(ctx context.Context, inst *Instance) error {
	inst.UpdatedAt = time.Now().UTC()
	return s.save(ctx, inst)
}

func (s *Store) save(ctx context.Context, inst *Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to encode instance: %w", err)
	}
	if err := s.plain.Set(ctx, instancePrefix+inst.ID, data); err != nil {
		return fmt.Errorf("failed to persist instance: %w", err)
	}
	return nil
}

// Get returns the instance with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Instance, error) {
	data, err := s.plain.Get(ctx, instancePrefix+id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoInstance
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instance: %w", err)
	}

	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("failed to decode instance: %w", err)
	}
	return &inst, nil
}

// Current returns the active instance, or ErrNoInstance.
func (s *Store) Current(ctx context.Context) (*Instance, error) {
	id, err := s.plain.Get(ctx, currentKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoInstance
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current instance id: %w", err)
	}
	return s.Get(ctx, string(id))
}

// SetCurrent marks the given instance as the single active one.
func (s *Store) SetCurrent(ctx context.Context, id string) error {
	if err := s.plain.Set(ctx, currentKey, []byte(id)); err != nil {
		return fmt.Errorf("failed to set current instance: %w", err)
	}
	return nil
}

// Delete removes an instance, its secrets, and the current marker if it
// pointed at this instance. The caller clears the instance's query cache.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.plain.Delete(ctx, instancePrefix+id); err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if err := s.secret.Delete(ctx, secretsPrefix+id); err != nil {
		return fmt.Errorf("failed to delete instance secrets: %w", err)
	}

	current, err := s.plain.Get(ctx, currentKey)
	if err == nil && string(current) == id {
		if err := s.plain.Delete(ctx, currentKey); err != nil {
			return fmt.Errorf("failed to clear current instance: %w", err)
		}
	}
	return nil
}

// Secrets returns the stored secrets for an instance. A missing record
// yields empty Secrets, not an error: absent credentials are a normal state
// that triggers re-auth.
func (s *Store) Secrets(ctx context.Context, id string) (Secrets, error) {
	data, err := s.secret.Get(ctx, secretsPrefix+id)
	if errors.Is(err, storage.ErrNotFound) {
		return Secrets{}, nil
	}
	if err != nil {
		return Secrets{}, fmt.Errorf("failed to read secrets: %w", err)
	}

	var sec Secrets
	if err := json.Unmarshal(data, &sec); err != nil {
		return Secrets{}, fmt.Errorf("failed to decode secrets: %w", err)
	}
	return sec, nil
}

// SetSecrets replaces the stored secrets for an instance.
func (s *Store) SetSecrets(ctx context.Context, id string, sec Secrets) error {
	data, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("failed to encode secrets: %w", err)
	}
	if err := s.secret.Set(ctx, secretsPrefix+id, data); err != nil {
		return fmt.Errorf("failed to persist secrets: %w", err)
	}
	return nil
}

// SetToken replaces only the bearer token, keeping password/apiKey intact.
func (s *Store) SetToken(ctx context.Context, id, token string) error {
	sec, err := s.Secrets(ctx, id)
	if err != nil {
		return err
	}
	sec.Token = token
	return s.SetSecrets(ctx, id, sec)
}
