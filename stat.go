package mqttd

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stat is the broker's Prometheus metric set, registered once at startup.
type Stat struct {
	Uptime            prometheus.Counter
	ActiveConnections prometheus.Gauge
	PacketReceived    prometheus.Counter
	PacketSent        prometheus.Counter
	SessionCount      prometheus.Gauge
	TopicCount        prometheus.Gauge
	QueueDepth        prometheus.Gauge
}

var stat = Stat{
	Uptime:            prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttd_uptime_seconds", Help: "The uptime in seconds"}),
	ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttd_active_connections", Help: "The number of currently connected clients"}),
	PacketReceived:    prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttd_packets_received_total", Help: "The total number of received MQTT packets"}),
	PacketSent:        prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttd_packets_sent_total", Help: "The total number of sent MQTT packets"}),
	SessionCount:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttd_sessions", Help: "The number of sessions tracked, connected or not"}),
	TopicCount:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttd_topics", Help: "The number of distinct topic names ever published or subscribed to"}),
	QueueDepth:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttd_publish_queue_depth", Help: "The number of in-flight QoS 1/2 exchanges"}),
}

// StartMetrics registers every metric, starts the uptime counter, and starts
// sampling srv's registries onto the gauges every interval. Intended to be
// called once from cmd/mqttd's main.
func StartMetrics(srv *Server, interval time.Duration) {
	stat.Register()
	stat.RefreshUptime()
	stat.RefreshGauges(srv, interval)
}

// Register adds every metric to the default registry. Call once at startup.
func (s *Stat) Register() {
	prometheus.MustRegister(
		s.Uptime, s.ActiveConnections, s.PacketReceived, s.PacketSent,
		s.SessionCount, s.TopicCount, s.QueueDepth,
	)
}

// RefreshUptime increments Uptime once a second for the life of the process.
func (s *Stat) RefreshUptime() {
	go func() {
		tick := time.NewTicker(time.Second)
		for range tick.C {
			s.Uptime.Inc()
		}
	}()
}

// RefreshGauges samples the broker's live registries onto the SessionCount,
// TopicCount and QueueDepth gauges every interval.
func (s *Stat) RefreshGauges(srv *Server, interval time.Duration) {
	go func() {
		tick := time.NewTicker(interval)
		for range tick.C {
			s.SessionCount.Set(float64(srv.Sessions.Count()))
			s.TopicCount.Set(float64(srv.Topics.Count()))
			s.QueueDepth.Set(float64(srv.Queue.Len()))
		}
	}()
}
