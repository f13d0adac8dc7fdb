package entries_controllers

import (
	"sync"

	"debuglens/internal/config"
	entries_core "debuglens/internal/features/entries/core"
	"debuglens/internal/util/logger"

	"golang.org/x/time/rate"
)

var (
	once            sync.Once
	entryController *EntryController
)

func GetEntryController() *EntryController {
	once.Do(func() {
		rps := config.GetEnv().StoreRateLimitRPS

		entryController = NewEntryController(
			entries_core.GetEntryRepository(),
			rate.NewLimiter(rate.Limit(rps), rps*2), // bursts up to two seconds of traffic
			logger.GetLogger(),
		)
	})

	return entryController
}
