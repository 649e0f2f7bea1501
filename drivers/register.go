// Package drivers registers every built-in plugin driver with a registry.
// It is the single place that knows the full driver catalog, keeping the
// engine free of per-driver imports.
package drivers

import (
	"github.com/log-store/log-ship/plugin"

	fileinput "github.com/log-store/log-ship/input/file"
	"github.com/log-store/log-ship/input/journald"
	"github.com/log-store/log-ship/input/metrics"
	"github.com/log-store/log-ship/input/stdin"

	"github.com/log-store/log-ship/transform/insertfield"
	"github.com/log-store/log-ship/transform/insertts"
	"github.com/log-store/log-ship/transform/logfmtparse"
	"github.com/log-store/log-ship/transform/script"

	"github.com/log-store/log-ship/output/kafka"
	"github.com/log-store/log-ship/output/natspub"
	"github.com/log-store/log-ship/output/socket"
	"github.com/log-store/log-ship/output/speedtest"
	"github.com/log-store/log-ship/output/stdout"
	"github.com/log-store/log-ship/output/udpsocket"
)

// RegisterAll registers every built-in driver type
func RegisterAll(registry *plugin.Registry) error {
	registrations := []func(*plugin.Registry) error{
		// inputs
		fileinput.Register,
		journald.Register,
		metrics.Register,
		stdin.Register,
		// transforms
		script.Register,
		insertfield.Register,
		insertts.Register,
		logfmtparse.Register,
		// outputs
		socket.Register,
		stdout.Register,
		speedtest.Register,
		udpsocket.Register,
		natspub.Register,
		kafka.Register,
	}

	for _, register := range registrations {
		if err := register(registry); err != nil {
			return err
		}
	}
	return nil
}
