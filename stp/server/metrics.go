// metrics.go
package server

import (
	"context"
	"github.com/pkg/errors"
	stp "github.com/oshothebig/l2/stp/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const metricsHandlerTimeout = 10 * time.Second

var (
	bpduRxDesc = prometheus.NewDesc("stp_bpdu_received_total",
		"BPDUs accepted on a port.", []string{"port"}, nil)
	bpduTxDesc = prometheus.NewDesc("stp_bpdu_sent_total",
		"BPDUs transmitted on a port.", []string{"port"}, nil)
	portRoleDesc = prometheus.NewDesc("stp_port_role",
		"Current port role, 1 for the role in the label.", []string{"port", "role"}, nil)
	portStateDesc = prometheus.NewDesc("stp_port_state",
		"Current port state, 1 for the state in the label.", []string{"port", "state"}, nil)
	topoChangeDesc = prometheus.NewDesc("stp_topology_changes_total",
		"Topology changes detected by this bridge.", nil, nil)
	isRootDesc = prometheus.NewDesc("stp_is_root_bridge",
		"1 when this bridge is the root of the tree.", nil, nil)
	rootCostDesc = prometheus.NewDesc("stp_root_path_cost",
		"Path cost to the root bridge.", nil, nil)
)

type portSample struct {
	id     stp.InterfaceId
	role   stp.PortRole
	state  stp.PortState
	rx, tx uint64
}

// engineCollector exports the last snapshot taken by the dispatch loop, the
// engine itself is never touched from the scrape goroutine
type engineCollector struct {
	mu       sync.Mutex
	ports    []portSample
	changes  uint64
	isRoot   bool
	rootCost uint32
}

var _ prometheus.Collector = (*engineCollector)(nil)

func newEngineCollector() *engineCollector {
	return &engineCollector{}
}

func (c *engineCollector) observe(e stp.Engine) {
	ports := make([]portSample, 0, e.Ports().Len())
	e.Ports().ForEachPort(func(p *stp.StpPort) {
		ports = append(ports, portSample{id: p.Id, role: p.Role, state: p.State, rx: p.BpduRx, tx: p.BpduTx})
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports = ports
	c.changes = e.TopologyChangeCount()
	c.isRoot = e.IsRootBridge()
	c.rootCost = e.RootPathCost()
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bpduRxDesc
	ch <- bpduTxDesc
	ch <- portRoleDesc
	ch <- portStateDesc
	ch <- topoChangeDesc
	ch <- isRootDesc
	ch <- rootCostDesc
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.ports {
		port := strconv.Itoa(int(p.id))
		ch <- prometheus.MustNewConstMetric(bpduRxDesc, prometheus.CounterValue, float64(p.rx), port)
		ch <- prometheus.MustNewConstMetric(bpduTxDesc, prometheus.CounterValue, float64(p.tx), port)
		for role, name := range stp.PortRoleStrMap {
			ch <- prometheus.MustNewConstMetric(portRoleDesc, prometheus.GaugeValue, boolValue(role == p.role), port, name)
		}
		for state, name := range stp.PortStateStrMap {
			ch <- prometheus.MustNewConstMetric(portStateDesc, prometheus.GaugeValue, boolValue(state == p.state), port, name)
		}
	}
	ch <- prometheus.MustNewConstMetric(topoChangeDesc, prometheus.CounterValue, float64(c.changes))
	ch <- prometheus.MustNewConstMetric(isRootDesc, prometheus.GaugeValue, boolValue(c.isRoot))
	ch <- prometheus.MustNewConstMetric(rootCostDesc, prometheus.GaugeValue, float64(c.rootCost))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ServeMetrics exports reg on addr until ctx is done, an empty addr disables it
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		reg,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Timeout: metricsHandlerTimeout}),
	))
	log.Info("exporting prometheus metrics", zap.String("addr", addr))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serving prometheus metrics")
	}
	return nil
}
