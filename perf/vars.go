package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DispatchLatency   = NewHistogram("1m1s", "dispatch_latency_microseconds", "Time spent running one dispatched function.")
	DiscoveryLatency  = NewHistogram("1m1s", "discovery_latency_milliseconds", "Time from the first route request to a usable route.")
	ControlSent       = NewCounter("10s1s", "control_sent_total", "Control messages sent.")
	ControlRecv       = NewCounter("10s1s", "control_received_total", "Control messages received.")
	ControlDropped    = NewCounter("10s1s", "control_dropped_total", "Control messages dropped as malformed.")
	SendErrors        = NewCounter("1m1s", "send_errors_total", "Control messages the transport failed to send.")
	SentBytes         = NewCounter("10s1s", "control_sent_bytes_total", "Bytes of control traffic sent.")
	RecvBytes         = NewCounter("10s1s", "control_received_bytes_total", "Bytes of control traffic received.")
	DiscoveryFailures = NewCounter("1m1s", "discovery_failures_total", "Route discoveries that ran out of retries.")
	RouteErrorsSent   = NewCounter("1m1s", "route_errors_sent_total", "Route error messages originated or relayed.")
	LinkBreaks        = NewCounter("1m1s", "link_breaks_total", "Neighbours declared unreachable.")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	http.Handle("/metrics", promhttp.Handler())
	expvar.Publish("aodv:ControlSent/s", ControlSent)
	expvar.Publish("aodv:ControlRecv/s", ControlRecv)
	expvar.Publish("aodv:ControlDropped/s", ControlDropped)
	expvar.Publish("aodv:SendErrors", SendErrors)
	expvar.Publish("aodv:SentBytes/s", SentBytes)
	expvar.Publish("aodv:RecvBytes/s", RecvBytes)
	expvar.Publish("aodv:DiscoveryFailures", DiscoveryFailures)
	expvar.Publish("aodv:RouteErrorsSent", RouteErrorsSent)
	expvar.Publish("aodv:LinkBreaks", LinkBreaks)
	expvar.Publish("aodv:DiscoveryLatency (ms)", DiscoveryLatency)
	expvar.Publish("aodv:DispatchLatency (µs)", DispatchLatency)
}
