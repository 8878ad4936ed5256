// Package catalog manages the service templates users can buy.
//
// The active listing is served through the tiered cache from pkg/cache and
// invalidated whenever a template is created, updated or seeded. Templates
// can be bootstrapped from a YAML seed file:
//
//	cat := catalog.New(store, catalog.WithCache(tiered, 10*time.Minute))
//	n, err := cat.SeedFile(ctx, "catalog.yaml")
//
// Editing a template never changes subscriptions that were already issued.
package catalog
