package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/subledger/svc/ledger"
)

const gigabyte = int64(1) << 30

// seedDocument is the YAML layout of a catalog seed file:
//
//	services:
//	  - name: Basic
//	    price: "100000"
//	    duration_days: 30
//	    data_limit_gb: 50
//	    inbound_id: 1
//	    active: true
type seedDocument struct {
	Services []seedService `yaml:"services"`
}

type seedService struct {
	Name         string `yaml:"name"`
	Price        string `yaml:"price"`
	DurationDays int    `yaml:"duration_days"`
	DataLimitGB  int64  `yaml:"data_limit_gb"`
	InboundID    int    `yaml:"inbound_id"`
	Active       *bool  `yaml:"active"`
}

// ParseSeed decodes a YAML seed document into validated service inputs.
func ParseSeed(r io.Reader) ([]ServiceInput, error) {
	var doc seedDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrInvalidSeed, err)
	}

	out := make([]ServiceInput, 0, len(doc.Services))
	for i, s := range doc.Services {
		price, err := decimal.NewFromString(strings.TrimSpace(s.Price))
		if err != nil {
			return nil, errors.Join(ErrInvalidSeed, fmt.Errorf("service %d: price %q: %w", i, s.Price, err))
		}
		in := ServiceInput{
			Name:         s.Name,
			Price:        price,
			DurationDays: s.DurationDays,
			DataLimit:    s.DataLimitGB * gigabyte,
			InboundID:    s.InboundID,
			IsActive:     s.Active == nil || *s.Active,
		}
		if err := in.Validate(); err != nil {
			return nil, errors.Join(ErrInvalidSeed, fmt.Errorf("service %d: %w", i, err))
		}
		out = append(out, in)
	}
	return out, nil
}

// Seed creates the services from a seed document that do not already exist
// by name. It returns the number of services created.
func (c *Catalog) Seed(ctx context.Context, r io.Reader) (int, error) {
	inputs, err := ParseSeed(r)
	if err != nil {
		return 0, err
	}

	var created int
	err = c.store.Tx(ctx, func(tx ledger.Tx) error {
		created = 0
		existing, err := tx.ListServices(ctx, false)
		if err != nil {
			return err
		}
		names := make(map[string]struct{}, len(existing))
		for _, s := range existing {
			names[strings.ToLower(s.Name)] = struct{}{}
		}

		for _, in := range inputs {
			key := strings.ToLower(strings.TrimSpace(in.Name))
			if _, ok := names[key]; ok {
				continue
			}
			svc := &ledger.Service{
				Name:         strings.TrimSpace(in.Name),
				Price:        in.Price,
				DurationDays: in.DurationDays,
				DataLimit:    in.DataLimit,
				InboundID:    in.InboundID,
				IsActive:     in.IsActive,
			}
			if err := tx.CreateService(ctx, svc); err != nil {
				return err
			}
			names[key] = struct{}{}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		c.invalidate(ctx)
	}
	c.logger.InfoContext(ctx, "catalog seeded", slog.Int("created", created), slog.Int("total", len(inputs)))
	return created, nil
}

// SeedFile is Seed reading from the file at path.
func (c *Catalog) SeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Join(ErrSeedFileAccess, err)
	}
	defer f.Close()
	return c.Seed(ctx, f)
}
