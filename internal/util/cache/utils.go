package cache_utils

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const DefaultCacheTimeout = 10 * time.Second

// TestCacheConnection round-trips a key to make sure Valkey is reachable
// and writable before the server starts taking traffic.
func TestCacheConnection(client valkey.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCacheTimeout)
	defer cancel()

	const testKey = "connection_test"
	const testValue = "valkey_is_working"

	err := client.Do(ctx, client.B().Set().Key(testKey).Value(testValue).Ex(time.Minute).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to write test key: %w", err)
	}

	retrieved, err := client.Do(ctx, client.B().Get().Key(testKey).Build()).ToString()
	if err != nil {
		return fmt.Errorf("failed to read test key: %w", err)
	}
	if retrieved != testValue {
		return fmt.Errorf("retrieved value %q does not match expected", retrieved)
	}

	return client.Do(ctx, client.B().Del().Key(testKey).Build()).Error()
}
