package cache_utils

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"debuglens/internal/util/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/valkey-io/valkey-go"
)

func Test_Lock_WhenSameFamilyLockedConcurrently_HoldersDoNotOverlap(t *testing.T) {
	lock := NewFamilyLock(createTestClient(t), logger.GetLogger())
	familyHash := uuid.New().String()

	var holders, maxHolders atomic.Int32
	var wg sync.WaitGroup

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock, err := lock.Lock(context.Background(), familyHash)
			if !assert.NoError(t, err) {
				return
			}

			current := holders.Add(1)
			for {
				observed := maxHolders.Load()
				if current <= observed || maxHolders.CompareAndSwap(observed, current) {
					break
				}
			}

			time.Sleep(10 * time.Millisecond)
			holders.Add(-1)
			unlock()
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), maxHolders.Load())
}

func Test_Lock_WhenLockIsHeld_TimesOut(t *testing.T) {
	lock := NewFamilyLock(createTestClient(t), logger.GetLogger())
	lock.timeout = 100 * time.Millisecond
	familyHash := uuid.New().String()

	unlock, err := lock.Lock(context.Background(), familyHash)
	assert.NoError(t, err)
	defer unlock()

	_, err = lock.Lock(context.Background(), familyHash)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func Test_Lock_WhenUnlocked_CanBeAcquiredAgain(t *testing.T) {
	lock := NewFamilyLock(createTestClient(t), logger.GetLogger())
	familyHash := uuid.New().String()

	unlock, err := lock.Lock(context.Background(), familyHash)
	assert.NoError(t, err)
	unlock()

	unlock, err = lock.Lock(context.Background(), familyHash)
	assert.NoError(t, err)
	unlock()
}

func createTestClient(t *testing.T) valkey.Client {
	host := os.Getenv("VALKEY_HOST")
	if host == "" {
		t.Skip("VALKEY_HOST is not set")
	}

	port := os.Getenv("VALKEY_PORT")
	if port == "" {
		port = "6379"
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{host + ":" + port},
		Username:    os.Getenv("VALKEY_USERNAME"),
		Password:    os.Getenv("VALKEY_PASSWORD"),
	})
	if err != nil {
		t.Fatalf("failed to connect to valkey: %v", err)
	}
	t.Cleanup(client.Close)

	assert.NoError(t, TestCacheConnection(client))

	return client
}
