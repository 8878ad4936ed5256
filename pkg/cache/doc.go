// Package cache implements the two-level (optionally three-level) cache used
// for read-mostly data such as the service catalog and provisioning inbound
// listings.
//
// MemoryTier and DiskTier each bound their own entry count and evict the
// entry nearest to expiry when full. RedisTier adds a shared level backed by
// github.com/redis/go-redis/v9. Tiered reads through the tiers in order,
// promotes lower-tier hits upward with their remaining lifetime and runs an
// optional sweeper that drops expired entries in the background.
//
//	mem := cache.NewMemoryTier(cache.WithMemoryMaxEntries(1000))
//	disk, err := cache.NewDiskTier(cfg.Dir)
//	if err != nil {
//		return err
//	}
//	c, err := cache.NewTiered([]cache.Tier{mem, disk}, cache.WithSweepInterval(time.Minute))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	services, err := cache.Fetch(ctx, c, "catalog:active", 5*time.Minute, loadServices)
package cache
