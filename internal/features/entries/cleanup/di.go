package entries_cleanup

import (
	"sync"

	"debuglens/internal/config"
	entries_core "debuglens/internal/features/entries/core"
	"debuglens/internal/util/logger"
)

var (
	once                          sync.Once
	entryCleanupBackgroundService *EntryCleanupBackgroundService
)

func GetEntryCleanupBackgroundService() *EntryCleanupBackgroundService {
	once.Do(func() {
		env := config.GetEnv()

		entryCleanupBackgroundService = NewEntryCleanupBackgroundService(
			entries_core.GetEntryRepository(),
			env.PruneRetention(),
			env.PruneKeepExceptions,
			logger.GetLogger(),
		)
	})

	return entryCleanupBackgroundService
}
