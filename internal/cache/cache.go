package cache

import (
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"debuglens/internal/config"

	"github.com/valkey-io/valkey-go"
)

var ErrCacheNotConfigured = errors.New("VALKEY_HOST is not configured")

var (
	once         sync.Once
	valkeyClient valkey.Client
	cacheErr     error
)

// GetCache returns the shared Valkey client, connecting on first use so
// deployments without family locking never dial Valkey.
func GetCache() (valkey.Client, error) {
	once.Do(func() {
		env := config.GetEnv()
		if env.ValkeyHost == "" {
			cacheErr = ErrCacheNotConfigured
			return
		}

		options := valkey.ClientOption{
			InitAddress: []string{env.ValkeyHost + ":" + env.ValkeyPort},
			Password:    env.ValkeyPassword,
			Username:    env.ValkeyUsername,
			// only used for locks, client side caching would never hit
			DisableCache:     true,
			ConnWriteTimeout: 5 * time.Second,
		}

		if env.ValkeyIsSsl {
			options.TLSConfig = &tls.Config{
				ServerName: env.ValkeyHost,
			}
		}

		valkeyClient, cacheErr = valkey.NewClient(options)
	})

	return valkeyClient, cacheErr
}
