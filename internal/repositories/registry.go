package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrpay/internal/models"
	"qrpay/internal/repositories/cache"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// RegistryQuery identifies the registry entry a scanned code refers to.
// RegistryID is optional; when empty the newest entry of the owner is used.
type RegistryQuery struct {
	Kind       string
	OwnerID    string
	RegistryID string
}

type RegistryRepository struct {
	db *gorm.DB
}

func NewRegistryRepository(db *gorm.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// Lookup returns the matching entry whatever its state; callers judge activity and expiry.
func (r *RegistryRepository) Lookup(ctx context.Context, q RegistryQuery) (*models.QRRegistryEntry, error) {
	var entry models.QRRegistryEntry
	tx := r.db.WithContext(ctx).Where("kind = ? AND owner_id = ?", q.Kind, q.OwnerID)
	if q.RegistryID != "" {
		tx = tx.Where("id = ?", q.RegistryID)
	}
	err := tx.Order("active DESC").Order("created_at DESC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistryNotFound
		}
		return nil, fmt.Errorf("failed to look up qr registry: %w", err)
	}
	return &entry, nil
}

// RegistryStatus is the mutable part of a registry entry.
type RegistryStatus struct {
	Active    bool
	ExpiresAt *time.Time
}

// Status re-reads activity and expiry of one entry.
func (r *RegistryRepository) Status(ctx context.Context, id string) (RegistryStatus, error) {
	var st RegistryStatus
	err := r.db.WithContext(ctx).
		Model(&models.QRRegistryEntry{}).
		Select("active", "expires_at").
		Where("id = ?", id).
		Take(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RegistryStatus{}, ErrRegistryNotFound
		}
		return RegistryStatus{}, fmt.Errorf("failed to read qr registry status: %w", err)
	}
	return st, nil
}

// RegistryCache is the subset of the cache service used for registry entries.
type RegistryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type registrySource interface {
	Lookup(ctx context.Context, q RegistryQuery) (*models.QRRegistryEntry, error)
	Status(ctx context.Context, id string) (RegistryStatus, error)
}

// CachedRegistry keeps the descriptive fields of active entries in Redis.
// Activity and expiry are read from the database on every lookup, so a
// deactivated code stops resolving immediately. Route, fare and name edits
// become visible within the cache TTL. Misses and inactive entries are never cached.
type CachedRegistry struct {
	next  registrySource
	cache RegistryCache
	ttl   time.Duration
}

func NewCachedRegistry(next registrySource, c RegistryCache, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{next: next, cache: c, ttl: ttl}
}

func (r *CachedRegistry) Lookup(ctx context.Context, q RegistryQuery) (*models.QRRegistryEntry, error) {
	key := cache.GenerateKey(cache.EntityQRRegistry, cache.KeyOwner, q.Kind, q.OwnerID, q.RegistryID)

	var cached models.QRRegistryEntry
	found, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warnf("registry cache read failed for %s: %v", key, err)
	}
	if found {
		st, err := r.next.Status(ctx, cached.ID)
		switch {
		case err == nil && st.Active:
			cached.Active = true
			cached.ExpiresAt = st.ExpiresAt
			return &cached, nil
		case err != nil && !errors.Is(err, ErrRegistryNotFound):
			return nil, err
		}
		// Deactivated or removed; the owner may have a newer active entry.
		if err := r.cache.Delete(ctx, key); err != nil {
			log.Warnf("registry cache evict failed for %s: %v", key, err)
		}
	}

	entry, err := r.next.Lookup(ctx, q)
	if err != nil {
		return nil, err
	}

	if entry.Active {
		if err := r.cache.SetWithTTL(ctx, key, entry, r.ttl); err != nil {
			log.Warnf("registry cache write failed for %s: %v", key, err)
		}
	}
	return entry, nil
}
