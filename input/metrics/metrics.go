// Package metrics provides the metrics input: it polls host CPU, memory,
// disk and network statistics and emits one structured record per category
// per poll. Metrics are transient — there is no checkpointing and
// acknowledgements are discarded.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"

	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/event"
	"github.com/log-store/log-ship/pipe"
	"github.com/log-store/log-ship/plugin"
)

// TypeName is the configuration type of this input
const TypeName = "metrics"

// Poll interval bounds in seconds
const (
	MinInterval = 5
	MaxInterval = 3600
)

// Category defaults, in seconds
const (
	defaultCPUInterval  = 5
	defaultMemInterval  = 5
	defaultDiskInterval = 30
	defaultNetInterval  = 5
)

// collector polls one category
type collector struct {
	name     string
	interval time.Duration
	collect  func(ctx context.Context) (map[string]any, error)
}

// Input polls host statistics at per-category intervals
type Input struct {
	name       string
	collectors []collector
	logger     *slog.Logger
	seq        atomic.Uint64
}

// New creates a metrics input from its configured arguments. The optional
// "metrics" list restricts the polled categories; each category's interval
// arg ("cpu_interval", ...) must fall in [5, 3600] seconds.
func New(name string, args plugin.Args, deps plugin.Dependencies) (plugin.Source, error) {
	enabled := map[string]bool{"cpu": true, "memory": true, "disk": true, "network": true}
	if selected := args.StringSlice("metrics"); len(selected) > 0 {
		enabled = map[string]bool{}
		for _, m := range selected {
			switch m {
			case "cpu", "memory", "disk", "network":
				enabled[m] = true
			default:
				return nil, errors.WrapFatal(
					fmt.Errorf("unknown metric %q; valid metrics are cpu, memory, disk, network", m),
					TypeName, "New", "metric selection check")
			}
		}
	}

	intervalFor := func(key string, def int) (time.Duration, error) {
		v := args.Int(key, def)
		if v < MinInterval || v > MaxInterval {
			return 0, errors.WrapFatal(
				fmt.Errorf("%s %d out of range [%d, %d] seconds", key, v, MinInterval, MaxInterval),
				TypeName, "New", "interval check")
		}
		return time.Duration(v) * time.Second, nil
	}

	in := &Input{
		name:   name,
		logger: deps.ComponentLogger(TypeName, name),
	}

	type category struct {
		name    string
		argKey  string
		def     int
		collect func(ctx context.Context) (map[string]any, error)
	}
	for _, c := range []category{
		{"cpu", "cpu_interval", defaultCPUInterval, collectCPU},
		{"memory", "mem_interval", defaultMemInterval, collectMemory},
		{"disk", "disk_interval", defaultDiskInterval, collectDisk},
		{"network", "net_interval", defaultNetInterval, collectNetwork},
	} {
		if !enabled[c.name] {
			continue
		}
		interval, err := intervalFor(c.argKey, c.def)
		if err != nil {
			return nil, err
		}
		in.collectors = append(in.collectors, collector{name: c.name, interval: interval, collect: c.collect})
	}

	if len(in.collectors) == 0 {
		return nil, errors.WrapFatal(
			errors.New("no metrics enabled"),
			TypeName, "New", "metric selection check")
	}

	return in, nil
}

// Name implements plugin.Source
func (m *Input) Name() string { return m.name }

// Run polls every enabled category until ctx is cancelled
func (m *Input) Run(ctx context.Context, out *pipe.Pipe) error {
	// Acks carry nothing durable here; discard them
	ackDone := make(chan struct{})
	go func() {
		defer close(ackDone)
		for range out.Acks {
		}
	}()

	var wg sync.WaitGroup
	for _, c := range m.collectors {
		wg.Add(1)
		go func(c collector) {
			defer wg.Done()
			m.poll(ctx, out, c)
		}(c)
	}

	wg.Wait()
	close(out.Records)
	<-ackDone
	return nil
}

// poll runs one category's collection loop. The wait after each poll is
// shortened by the time collection took, so the category never drifts past
// its configured interval.
func (m *Input) poll(ctx context.Context, out *pipe.Pipe, c collector) {
	for {
		start := time.Now()

		fields, err := c.collect(ctx)
		if err != nil {
			m.logger.Warn("metric collection failed", "category", c.name, "error", err)
		} else {
			rec := event.NewStructured("", m.seq.Add(1), nil, fields)
			if err := out.Send(ctx, rec); err != nil {
				return
			}
		}

		elapsed := time.Since(start)
		wait := c.interval - elapsed
		if wait <= 0 {
			m.logger.Warn("collection took longer than the poll interval",
				"category", c.name, "elapsed", elapsed, "interval", c.interval)
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func collectCPU(ctx context.Context) (map[string]any, error) {
	fields := map[string]any{}

	times, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	for i, t := range times {
		fields[fmt.Sprintf("cpu%d.user", i)] = t.User
		fields[fmt.Sprintf("cpu%d.system", i)] = t.System
		fields[fmt.Sprintf("cpu%d.idle", i)] = t.Idle
	}

	load, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(load) > 0 {
		fields["load_percent"] = load[0]
	}

	return fields, nil
}

func collectMemory(ctx context.Context) (map[string]any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"memory.total_bytes":     vm.Total,
		"memory.free_bytes":      vm.Free,
		"memory.used_bytes":      vm.Used,
		"memory.available_bytes": vm.Available,
		"memory.used_percent":    vm.UsedPercent,
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		fields["swap.total_bytes"] = swap.Total
		fields["swap.used_bytes"] = swap.Used
		fields["swap.free_bytes"] = swap.Free
	}

	return fields, nil
}

func collectDisk(ctx context.Context) (map[string]any, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(counters)*4)
	for device, c := range counters {
		fields[device+".read_bytes"] = c.ReadBytes
		fields[device+".write_bytes"] = c.WriteBytes
		fields[device+".read_count"] = c.ReadCount
		fields[device+".write_count"] = c.WriteCount
	}
	return fields, nil
}

func collectNetwork(ctx context.Context) (map[string]any, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(counters)*4)
	for _, c := range counters {
		fields[c.Name+".bytes_sent"] = c.BytesSent
		fields[c.Name+".bytes_recv"] = c.BytesRecv
		fields[c.Name+".packets_sent"] = c.PacketsSent
		fields[c.Name+".packets_recv"] = c.PacketsRecv
	}
	return fields, nil
}

// Register registers the metrics input with the given registry
func Register(registry *plugin.Registry) error {
	return registry.RegisterSourceType(TypeName, New)
}
