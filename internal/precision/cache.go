package precision

import (
	"encoding/json"
	"os"
	"sync"

	"bitvavo-trading-core/internal/types"
)

// Cache is a file-backed, process-local cache of accepted amount-decimals
// per market. Writes are atomic: write to a temp file in the same
// directory, then rename — the same pattern internal/store/store.go used
// for position persistence in the original bot.
type Cache struct {
	mu   sync.Mutex
	path string
	data types.PrecisionCache
}

// Open loads path if it exists, or starts empty. The directory must
// already exist.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, data: types.PrecisionCache{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the accepted decimals for market and whether an entry exists.
func (c *Cache) Get(market string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.data[market]
	return n, ok
}

// Set records the accepted decimals for market and persists the cache.
func (c *Cache) Set(market string, decimals int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[market] = decimals
	return c.saveLocked()
}

func (c *Cache) saveLocked() error {
	raw, err := json.Marshal(c.data)
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
