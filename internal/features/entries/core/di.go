package entries_core

import (
	"fmt"
	"os"
	"sync"
	"time"

	"debuglens/internal/cache"
	"debuglens/internal/config"
	"debuglens/internal/opensearch"
	cache_utils "debuglens/internal/util/cache"
	"debuglens/internal/util/logger"
)

var (
	once             sync.Once
	openSearchClient *opensearch.Client
	entryIndex       *EntryIndex
	entryRepository  *EntryRepository
)

func setup() {
	env := config.GetEnv()
	log := logger.GetLogger()

	openSearchClient = opensearch.NewClient(opensearch.ClientConfig{
		BaseURL:            fmt.Sprintf("%s:%s", env.OpenSearchURL, env.OpenSearchAPIPort),
		Username:           env.OpenSearchUsername,
		Password:           env.OpenSearchPassword,
		InsecureSkipVerify: env.OpenSearchInsecureSkipVerify,
		CompressRequests:   env.OpenSearchCompressRequests,
		BulkRefresh:        env.OpenSearchBulkRefresh,
		Timeout:            5 * time.Minute,
	}, log)

	entryIndex = NewEntryIndex(openSearchClient, IndexSettings{
		Name:         env.OpenSearchIndex,
		SuffixLayout: env.OpenSearchIndexSuffixFormat,
		Shards:       env.OpenSearchShards,
		Replicas:     env.OpenSearchReplicas,
	}, log)

	var familyLocker FamilyLocker
	if env.FamilyLockEnabled {
		valkeyClient, err := cache.GetCache()
		if err != nil {
			log.Error("Failed to connect to Valkey for family locks", "error", err)
			os.Exit(1)
		}

		familyLocker = cache_utils.NewFamilyLock(valkeyClient, log)
	}

	entryRepository = NewEntryRepository(openSearchClient, entryIndex, familyLocker, log)
}

func GetOpenSearchClient() *opensearch.Client {
	once.Do(setup)
	return openSearchClient
}

func GetEntryIndex() *EntryIndex {
	once.Do(setup)
	return entryIndex
}

func GetEntryRepository() *EntryRepository {
	once.Do(setup)
	return entryRepository
}
