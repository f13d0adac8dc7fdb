package system_healthcheck

import (
	"sync"

	"debuglens/internal/cache"
	"debuglens/internal/config"
	entries_core "debuglens/internal/features/entries/core"
	cache_utils "debuglens/internal/util/cache"
)

var (
	once                  sync.Once
	healthcheckController *HealthcheckController
)

func GetHealthcheckController() *HealthcheckController {
	once.Do(func() {
		var cacheCheck func() error
		if config.GetEnv().FamilyLockEnabled {
			cacheCheck = func() error {
				valkeyClient, err := cache.GetCache()
				if err != nil {
					return err
				}
				return cache_utils.TestCacheConnection(valkeyClient)
			}
		}

		healthcheckController = &HealthcheckController{
			NewHealthcheckService(entries_core.GetOpenSearchClient(), cacheCheck),
		}
	})

	return healthcheckController
}
