package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/models"
)

// StorageKey is where the profile record lives in the key-value backend.
const StorageKey = "doctorFoodProfile"

// KV is the key-value backend behind the store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store persists the single user profile.
type Store struct {
	kv     KV
	logger *zap.Logger
}

func NewStore(kv KV, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the stored profile. Any problem with the stored record is
// reported as "no profile" so the user is asked to enter it again.
func (s *Store) Load(ctx context.Context) (models.UserProfile, bool) {
	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.logger.Warn("profile load failed", zap.Error(err))
		return models.UserProfile{}, false
	}
	if !ok {
		return models.UserProfile{}, false
	}

	var form models.ProfileForm
	if err := json.Unmarshal([]byte(raw), &form); err != nil {
		s.logger.Warn("stored profile is not valid json", zap.Error(err))
		return models.UserProfile{}, false
	}
	p, err := form.Parse()
	if err != nil {
		s.logger.Warn("stored profile rejected", zap.Error(err))
		return models.UserProfile{}, false
	}
	return p, true
}

// Save overwrites the stored profile.
func (s *Store) Save(ctx context.Context, p models.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(p.Form())
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Clear removes the stored profile.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear profile: %w", err)
	}
	return nil
}
