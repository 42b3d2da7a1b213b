// Package collector implements a Prometheus collector over the daemon's
// last published status.
package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trackIT-Systems/tsscheduled/internal/daemon"
	"github.com/trackIT-Systems/tsscheduled/pkg/pubsub"
)

var (
	scheduleActive = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "schedule", "active"),
		"1 if the schedule says the device should be powered",
		nil,
		nil,
	)
	scheduleForceOn = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "schedule", "force_on"),
		"1 if the device is forced on unconditionally",
		nil,
		nil,
	)
	nextStartup = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "", "next_startup_timestamp_seconds"),
		"Unix timestamp of the next programmed startup alarm",
		nil,
		nil,
	)
	nextShutdown = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "", "next_shutdown_timestamp_seconds"),
		"Unix timestamp of the next programmed shutdown alarm",
		nil,
		nil,
	)
	rtcDrift = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "rtc", "drift_seconds"),
		"Difference between the hardware clock and the system clock in seconds",
		nil,
		nil,
	)
	powerVoltageIn = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "power", "voltage_in_volts"),
		"Input voltage reported by the power management hardware",
		nil,
		nil,
	)
	powerVoltageOut = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "power", "voltage_out_volts"),
		"Output voltage reported by the power management hardware",
		nil,
		nil,
	)
	powerCurrentOut = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "power", "current_out_amperes"),
		"Output current reported by the power management hardware",
		nil,
		nil,
	)
	powerTemperature = prometheus.NewDesc(
		prometheus.BuildFQName("tsscheduled", "power", "temperature_celsius"),
		"Temperature reported by the power management hardware",
		nil,
		nil,
	)
)

type Collector struct {
	Publisher  *pubsub.Publisher[daemon.Status]
	Logger     *slog.Logger
	lock       sync.RWMutex
	lastStatus *daemon.Status
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Publisher.Subscribe()
	defer c.Publisher.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case status := <-ch:
			c.lock.Lock()
			c.lastStatus = &status
			c.lock.Unlock()
		}
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- scheduleActive
	ch <- scheduleForceOn
	ch <- nextStartup
	ch <- nextShutdown
	ch <- rtcDrift
	ch <- powerVoltageIn
	ch <- powerVoltageOut
	ch <- powerCurrentOut
	ch <- powerTemperature
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.lastStatus == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(scheduleActive, prometheus.GaugeValue, boolValue(c.lastStatus.Active))
	ch <- prometheus.MustNewConstMetric(scheduleForceOn, prometheus.GaugeValue, boolValue(c.lastStatus.ForceOn))
	if c.lastStatus.NextStartup != nil {
		ch <- prometheus.MustNewConstMetric(nextStartup, prometheus.GaugeValue, float64(c.lastStatus.NextStartup.Unix()))
	}
	if c.lastStatus.NextShutdown != nil {
		ch <- prometheus.MustNewConstMetric(nextShutdown, prometheus.GaugeValue, float64(c.lastStatus.NextShutdown.Unix()))
	}
	ch <- prometheus.MustNewConstMetric(rtcDrift, prometheus.GaugeValue, c.lastStatus.DriftSeconds)

	if telemetry := c.lastStatus.Telemetry; telemetry != nil {
		ch <- prometheus.MustNewConstMetric(powerVoltageIn, prometheus.GaugeValue, telemetry.VoltageIn)
		ch <- prometheus.MustNewConstMetric(powerVoltageOut, prometheus.GaugeValue, telemetry.VoltageOut)
		ch <- prometheus.MustNewConstMetric(powerCurrentOut, prometheus.GaugeValue, telemetry.CurrentOut)
		ch <- prometheus.MustNewConstMetric(powerTemperature, prometheus.GaugeValue, telemetry.Temperature)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
