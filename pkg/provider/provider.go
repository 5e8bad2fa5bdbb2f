package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/metrics"
	"github.com/homefuse/homefuse/pkg/types"
)

// Provider is a vendor integration that can enumerate its devices as
// normalized records. ListDevices either returns the provider's full device
// set or an error; it never returns a partial set alongside an error.
type Provider interface {
	ID() string
	ListDevices(ctx context.Context) ([]types.DeviceRecord, error)
}

// CommandSender is implemented by providers that can dispatch commands to
// their devices. The bool result mirrors the vendor's accept/reject; an error
// is reserved for failures to reach the vendor at all.
type CommandSender interface {
	SendCommand(ctx context.Context, deviceID, capability, command string, args []any) (bool, error)
}

// Map aggregates device listings across every registered provider. One
// provider failing, timing out or being unconfigured never affects another;
// a failed provider contributes zero devices to that call's result.
type Map struct {
	providers []Provider
}

// NewMap returns an empty provider Map.
func NewMap() *Map {
	return &Map{}
}

// Register adds a provider. Registration order fixes the order in which each
// provider's devices appear in aggregated results.
func (m *Map) Register(p Provider) {
	m.providers = append(m.providers, p)
}

// Providers returns the registered providers in registration order.
func (m *Map) Providers() []Provider {
	return m.providers
}

// ListDevices fans out to every registered provider concurrently and
// concatenates the successful results in registration order. The returned
// slice is always non-nil, even when every provider fails.
func (m *Map) ListDevices(ctx context.Context) []types.DeviceRecord {
	results := make([][]types.DeviceRecord, len(m.providers))

	var wg sync.WaitGroup
	for i, p := range m.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			pctx := log.WithAttrs(ctx, slog.String("provider", p.ID()))
			start := time.Now()
			devices, err := p.ListDevices(pctx)
			if err != nil {
				kind := Kind(err)
				metrics.ObserveFetch(p.ID(), metrics.ResultError, time.Since(start))
				metrics.IncProviderFailure(p.ID(), kind)
				log.Ctx(pctx).WarnContext(pctx, "provider fetch failed",
					slog.String("kind", kind), slog.Any("error", err))
				return
			}
			metrics.ObserveFetch(p.ID(), metrics.ResultSuccess, time.Since(start))
			metrics.SetProviderDevices(p.ID(), len(devices))
			results[i] = devices
		}(i, p)
	}
	wg.Wait()

	all := make([]types.DeviceRecord, 0)
	for _, devices := range results {
		all = append(all, devices...)
	}
	return all
}

// SendCommand routes a command to the first registered provider that can send
// commands. It returns false both when no such provider exists and when the
// vendor rejects the command; callers see a uniform accepted/rejected result.
func (m *Map) SendCommand(ctx context.Context, deviceID string, req types.CommandRequest) bool {
	for _, p := range m.providers {
		sender, ok := p.(CommandSender)
		if !ok {
			continue
		}
		pctx := log.WithAttrs(ctx,
			slog.String("provider", p.ID()), slog.String("deviceID", deviceID))
		accepted, err := sender.SendCommand(pctx, deviceID, req.Capability, req.Command, req.Arguments)
		if err != nil {
			log.Ctx(pctx).WarnContext(pctx, "command dispatch failed",
				slog.String("kind", Kind(err)), slog.Any("error", err))
			metrics.IncCommandResult(metrics.ResultError)
			return false
		}
		if accepted {
			metrics.IncCommandResult(metrics.ResultSuccess)
		} else {
			metrics.IncCommandResult("rejected")
		}
		return accepted
	}
	log.Ctx(ctx).WarnContext(ctx, "no command-capable provider registered",
		slog.String("deviceID", deviceID))
	metrics.IncCommandResult("unroutable")
	return false
}
