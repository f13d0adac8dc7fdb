package system_healthcheck

import (
	"context"
	"fmt"
	"time"
)

const healthcheckTimeout = 5 * time.Second

type OpenSearchPinger interface {
	Ping(ctx context.Context) error
}

type HealthcheckService struct {
	openSearch OpenSearchPinger
	// cacheCheck is nil when nothing depends on Valkey
	cacheCheck func() error
}

func NewHealthcheckService(openSearch OpenSearchPinger, cacheCheck func() error) *HealthcheckService {
	return &HealthcheckService{openSearch: openSearch, cacheCheck: cacheCheck}
}

func (s *HealthcheckService) IsAvailable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
	defer cancel()

	if err := s.openSearch.Ping(ctx); err != nil {
		return fmt.Errorf("OpenSearch check failed: %w", err)
	}

	if s.cacheCheck != nil {
		if err := s.cacheCheck(); err != nil {
			return fmt.Errorf("cache check failed: %w", err)
		}
	}

	return nil
}
