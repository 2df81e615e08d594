package cache

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/domino14/connect4/config"
)

// The cache holds large read-only objects, such as opening books, that
// should be loaded once per process no matter how many solvers use them.

type cache struct {
	sync.Mutex
	objects map[string]any
}

type loadFunc func(cfg *config.Config, key string) (any, error)

// GlobalObjectCache is our global object cache, of course.
var GlobalObjectCache *cache

var createOnce sync.Once

func (c *cache) load(cfg *config.Config, key string, loadFunc loadFunc) (any, error) {
	log.Debug().Str("key", key).Msg("loading into cache")

	obj, err := loadFunc(cfg, key)
	if err != nil {
		return nil, err
	}
	c.objects[key] = obj
	return obj, nil
}

func (c *cache) get(cfg *config.Config, key string, loadFunc loadFunc) (any, error) {
	c.Lock()
	defer c.Unlock()
	if obj, ok := c.objects[key]; ok {
		log.Debug().Str("key", key).Msg("getting obj from cache")
		return obj, nil
	}
	return c.load(cfg, key, loadFunc)
}

func (c *cache) evict(key string) {
	c.Lock()
	defer c.Unlock()
	delete(c.objects, key)
}

func CreateGlobalObjectCache() {
	GlobalObjectCache = &cache{objects: make(map[string]any)}
}

// Load returns the object cached under name, calling loadFunc to create it
// on first use. Failed loads are not cached.
func Load(cfg *config.Config, name string, loadFunc loadFunc) (any, error) {
	createOnce.Do(func() {
		if GlobalObjectCache == nil {
			CreateGlobalObjectCache()
		}
	})
	return GlobalObjectCache.get(cfg, name, loadFunc)
}

// Evict drops name from the cache so the next Load reads it again.
func Evict(name string) {
	createOnce.Do(func() {
		if GlobalObjectCache == nil {
			CreateGlobalObjectCache()
		}
	})
	GlobalObjectCache.evict(name)
}
