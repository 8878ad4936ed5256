package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/notify"
	"github.com/dmitrymomot/subledger/svc/provisioning"
)

// Resource names reported by the sampler.
const (
	ResourceDisk   = "disk"
	ResourceMemory = "memory"
)

// Usage is one sampled host resource.
type Usage struct {
	Resource string
	Percent  float64
}

// Sampler reads host resource usage.
type Sampler func(ctx context.Context) ([]Usage, error)

// HostSampler samples the disk holding path and virtual memory.
func HostSampler(path string) Sampler {
	return func(ctx context.Context) ([]Usage, error) {
		d, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("disk usage of %s: %w", path, err)
		}
		m, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("virtual memory: %w", err)
		}
		return []Usage{
			{Resource: ResourceDisk, Percent: d.UsedPercent},
			{Resource: ResourceMemory, Percent: m.UsedPercent},
		}, nil
	}
}

// HealthReport summarizes one health check.
type HealthReport struct {
	SessionOK bool
	Usage     []Usage
	Alerts    int
}

// HealthMonitor checks the store, the panel session and host resources.
type HealthMonitor struct {
	store     ledger.Store
	prov      provisioning.Provisioner
	alerter   *Alerter
	sampler   Sampler
	formatter *notify.Formatter
	threshold float64
	logger    *slog.Logger
}

// NewHealthMonitor creates the monitor. A nil sampler samples the host at
// cfg.DiskPath; a nil alerter only records warnings.
func NewHealthMonitor(store ledger.Store, prov provisioning.Provisioner, alerter *Alerter, sampler Sampler, cfg Config, opts ...Option) *HealthMonitor {
	if store == nil || prov == nil {
		panic("jobs: health monitor requires a store and a provisioner")
	}
	if sampler == nil {
		sampler = HostSampler(cfg.DiskPath)
	}
	o := collectOptions(opts)
	return &HealthMonitor{
		store:     store,
		prov:      prov,
		alerter:   alerter,
		sampler:   sampler,
		formatter: o.formatter,
		threshold: cfg.ResourceThreshold,
		logger:    o.logger.With(logger.Job(HealthJob)),
	}
}

func (h *HealthMonitor) Name() string { return HealthJob }

func (h *HealthMonitor) Run(ctx context.Context) error {
	_, err := h.Check(ctx)
	return err
}

// Check runs one health check. An unreachable store ends the check with an
// error; every other problem is logged, recorded and reported.
func (h *HealthMonitor) Check(ctx context.Context) (*HealthReport, error) {
	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "ledger store unreachable", logger.Error(err))
		return nil, errors.Join(ErrHealthCheckFailed, err)
	}

	report := &HealthReport{SessionOK: true}
	if err := provisioning.CheckSession(ctx, h.prov); err != nil {
		report.SessionOK = false
		h.logger.ErrorContext(ctx, "panel session check failed", logger.Error(err))
		h.record(ctx, ledger.LevelError, "Panel connection failed", map[string]any{"error": err.Error()})
	}

	usage, err := h.sampler(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "resource sampling failed", logger.Error(err))
		return report, nil
	}
	report.Usage = usage

	for _, u := range usage {
		resourceUsage.WithLabelValues(u.Resource).Set(u.Percent)
		if u.Percent <= h.threshold {
			continue
		}
		report.Alerts++
		operatorAlerts.WithLabelValues(u.Resource).Inc()

		h.logger.WarnContext(ctx, "high resource usage",
			slog.String("resource", u.Resource),
			slog.Float64("usage_percent", u.Percent),
		)
		h.record(ctx, ledger.LevelWarning, fmt.Sprintf("High %s usage", u.Resource), map[string]any{"usage_percent": u.Percent})

		if h.alerter != nil {
			text := h.formatter.ResourceAlert(u.Resource, u.Percent)
			if err := h.alerter.Alert(ctx, "High "+u.Resource+" usage", text); err != nil {
				h.logger.ErrorContext(ctx, "operator alert failed", logger.Error(err))
			}
		}
	}
	return report, nil
}

func (h *HealthMonitor) record(ctx context.Context, level ledger.LogLevel, message string, details map[string]any) {
	raw, _ := json.Marshal(details)
	err := h.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.CreateSystemLog(ctx, &ledger.SystemLog{
			Level:   level,
			Module:  "SystemMonitor",
			Message: message,
			Details: raw,
		})
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record system log", logger.Error(err))
	}
}
