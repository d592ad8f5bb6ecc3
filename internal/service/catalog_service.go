package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eduhub/internal/models"
	"eduhub/internal/repository"
	"eduhub/pkg/kvstore"

	"github.com/sirupsen/logrus"
)

// CatalogService serves the public class page. Seat counters in the cached copy
// may lag by up to the TTL; enrollment always re-checks under lock.
type CatalogService struct {
	store repository.ClassStore
	cache kvstore.Cache
	ttl   time.Duration
	log   *logrus.Entry
}

func NewCatalogService(store repository.ClassStore, cache kvstore.Cache, ttl time.Duration, log logrus.FieldLogger) *CatalogService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CatalogService{store: store, cache: cache, ttl: ttl, log: log.WithField("component", "catalog")}
}

func classCacheKey(id uint) string {
	return fmt.Sprintf("class:%d", id)
}

func (s *CatalogService) GetClass(ctx context.Context, id uint) (*models.ClassOffering, error) {
	key := classCacheKey(id)
	if s.cache != nil {
		var cached models.ClassOffering
		found, err := kvstore.GetJSON(ctx, s.cache, key, &cached)
		if err != nil {
			s.log.WithError(err).Warn("[Catalog] cache read failed")
		}
		if found {
			return &cached, nil
		}
	}

	class, err := s.store.GetClass(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, err
	}
	if class.Schedules, err = s.store.ListSlots(ctx, id); err != nil {
		return nil, err
	}

	if s.cache != nil && s.ttl > 0 {
		if err := kvstore.SetJSON(ctx, s.cache, key, class, s.ttl); err != nil {
			s.log.WithError(err).Warn("[Catalog] cache write failed")
		}
	}
	return class, nil
}

// Invalidate drops the cached copy, e.g. after the class is completed.
func (s *CatalogService) Invalidate(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, classCacheKey(id)); err != nil {
		s.log.WithError(err).Warn("[Catalog] cache delete failed")
	}
}
