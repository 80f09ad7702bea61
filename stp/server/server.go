// server.go
//
// Package server runs one spanning tree engine against the host: BPDUs come
// and go through pcap, carrier follows netlink and timers run on the wall
// clock.  All engine calls are made from a single dispatch goroutine.
package server

import (
	"context"
	"github.com/oshothebig/l2/stp/config"
	"github.com/oshothebig/l2/stp/fdb"
	stp "github.com/oshothebig/l2/stp/protocol"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"net"
	"sort"
)

const rxQueueLen = 64

type Options struct {
	Config *config.Config
	// defaults to NetlinkSource
	Links LinkSource
	// defaults to OpenPcap
	Open     Opener
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

type serverPort struct {
	name string
	addr net.HardwareAddr
	conn FrameConn
}

type rxBpdu struct {
	port stp.InterfaceId
	src  net.HardwareAddr
	pdu  *stp.Bpdu
}

type request struct {
	fn   func(stp.Engine)
	done chan struct{}
}

type Server struct {
	cfg       *config.Config
	addr      net.HardwareAddr
	engine    stp.Engine
	fdb       *fdb.Table
	clock     *Clock
	links     LinkSource
	ports     map[stp.InterfaceId]*serverPort
	rxCh      chan rxBpdu
	linkCh    chan LinkEvent
	reqCh     chan request
	collector *engineCollector
	registry  *prometheus.Registry
	log       *zap.Logger
}

var _ stp.Transport = (*Server)(nil)

// New binds the configured ports to host interfaces, builds the engine and
// opens a frame endpoint per port.  Nothing runs until Run.
func New(o Options) (*Server, error) {
	if o.Config == nil {
		return nil, errors.New("server requires a config")
	}
	if o.Links == nil {
		o.Links = NetlinkSource{}
	}
	if o.Open == nil {
		o.Open = OpenPcap
	}
	if o.Registry == nil {
		o.Registry = prometheus.NewRegistry()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	links, err := o.Links.List()
	if err != nil {
		return nil, err
	}
	brg := o.Config.Bridge.StpConfig()
	if brg.Address == "" {
		addr, err := stp.SelectBridgeAddress(linkInterfaces(links))
		if err != nil {
			return nil, err
		}
		brg.Address = addr.String()
	}
	addr, err := net.ParseMAC(brg.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "bridge address %q", brg.Address)
	}
	bound, err := bindPorts(o.Config.Ports, links)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       o.Config,
		addr:      addr,
		clock:     NewClock(),
		fdb:       fdb.New(fdb.DefaultAgingTime, o.Logger.Named("fdb")),
		links:     o.Links,
		ports:     make(map[stp.InterfaceId]*serverPort, len(bound)),
		rxCh:      make(chan rxBpdu, rxQueueLen),
		linkCh:    make(chan LinkEvent),
		reqCh:     make(chan request),
		collector: newEngineCollector(),
		registry:  o.Registry,
		log:       o.Logger,
	}

	portCfgs := make([]stp.StpPortConfig, 0, len(bound))
	for _, b := range bound {
		portCfgs = append(portCfgs, b.cfg)
	}
	s.engine, err = stp.NewEngine(brg, portCfgs, stp.Collaborators{
		Transport: s,
		Scheduler: s.clock,
		Fdb:       s.fdb,
		Logger:    o.Logger.Named("stp"),
	})
	if err != nil {
		return nil, err
	}
	for _, b := range bound {
		if !b.up {
			s.engine.OnCarrierChanged(stp.InterfaceId(b.cfg.IfIndex), false)
		}
	}

	for _, b := range bound {
		conn, err := o.Open(b.name)
		if err != nil {
			s.closePorts()
			return nil, err
		}
		s.ports[stp.InterfaceId(b.cfg.IfIndex)] = &serverPort{name: b.name, addr: b.addr, conn: conn}
	}

	s.collector.observe(s.engine)
	if err := s.registry.Register(s.collector); err != nil {
		s.closePorts()
		return nil, errors.Wrap(err, "registering stp metrics")
	}
	s.log.Info("bridge configured", zap.Stringer("id", s.engine.Id()), zap.Int("ports", len(s.ports)))
	return s, nil
}

func (s *Server) Address() net.HardwareAddr { return s.addr }

func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Run serves until ctx is done or one of its goroutines fails
func (s *Server) Run(ctx context.Context) error {
	g, errCtx := errgroup.WithContext(ctx)
	for id, sp := range s.ports {
		id, sp := id, sp
		g.Go(func() error { return s.receive(errCtx, id, sp) })
	}
	g.Go(func() error { return s.links.Subscribe(errCtx, s.linkCh) })
	g.Go(func() error { return ServeMetrics(errCtx, s.cfg.Metrics.Listen, s.registry, s.log) })
	g.Go(func() error { return s.dispatch(errCtx) })
	err := g.Wait()
	s.closePorts()
	return err
}

func (s *Server) closePorts() {
	for id, sp := range s.ports {
		if err := sp.conn.Close(); err != nil {
			s.log.Warn("closing port", zap.String("port", sp.name), zap.Error(err))
		}
		delete(s.ports, id)
	}
}

func (s *Server) receive(ctx context.Context, id stp.InterfaceId, sp *serverPort) error {
	for ctx.Err() == nil {
		data, err := sp.conn.ReadFrame()
		if err == ErrReadTimeout {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "reading from %s", sp.name)
		}
		pdu, src, err := stp.DecodeBpduFrame(data)
		if err != nil {
			s.log.Debug("dropping frame", zap.String("port", sp.name), zap.Error(err))
			continue
		}
		select {
		case s.rxCh <- rxBpdu{port: id, src: src, pdu: pdu}:
		case <-ctx.Done():
		}
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context) error {
	s.fdb.Start()
	defer s.fdb.Stop()
	s.engine.Start()
	s.collector.observe(s.engine)
	defer func() {
		s.engine.Stop()
		s.clock.Close()
		s.collector.observe(s.engine)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case rx := <-s.rxCh:
			s.engine.OnBpduReceived(rx.port, rx.src, rx.pdu)
		case ev := <-s.linkCh:
			id := stp.InterfaceId(ev.Index)
			if !s.engine.Ports().Has(id) {
				continue
			}
			s.engine.OnCarrierChanged(id, ev.Up)
		case f := <-s.clock.C():
			if !s.clock.Take(f) {
				continue
			}
			s.engine.OnTimerFired(f.name)
		case req := <-s.reqCh:
			req.fn(s.engine)
			close(req.done)
		}
		s.collector.observe(s.engine)
	}
}

// Do runs fn on the dispatch goroutine and waits for it
func (s *Server) Do(ctx context.Context, fn func(stp.Engine)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case s.reqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-req.done
	return nil
}

func (s *Server) SetBridgePriority(ctx context.Context, prio uint16) error {
	var err error
	if doErr := s.Do(ctx, func(e stp.Engine) { err = e.SetBridgePriority(prio) }); doErr != nil {
		return doErr
	}
	return err
}

// PortInfo is a point in time view of one port
type PortInfo struct {
	Name  string
	Id    stp.InterfaceId
	Role  stp.PortRole
	State stp.PortState
}

// Status snapshots every port, ordered by interface index
func (s *Server) Status(ctx context.Context) ([]PortInfo, error) {
	var out []PortInfo
	err := s.Do(ctx, func(e stp.Engine) {
		e.Ports().ForEachPort(func(p *stp.StpPort) {
			info := PortInfo{Id: p.Id, Role: p.Role, State: p.State}
			if sp, ok := s.ports[p.Id]; ok {
				info.Name = sp.name
			}
			out = append(out, info)
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, err
}

// SendBpdu frames pdu with the port's own address as source, falling back to
// the bridge address for interfaces without one
func (s *Server) SendBpdu(port stp.InterfaceId, dst net.HardwareAddr, pdu *stp.Bpdu) {
	sp, ok := s.ports[port]
	if !ok {
		s.log.Warn("bpdu for unbound port", zap.Int32("port", int32(port)))
		return
	}
	src := sp.addr
	if len(src) != 6 {
		src = s.addr
	}
	frame, err := stp.BuildBpduFrame(src, dst, pdu)
	if err != nil {
		s.log.Error("encoding bpdu", zap.String("port", sp.name), zap.Error(err))
		return
	}
	if err := sp.conn.WriteFrame(frame); err != nil {
		s.log.Warn("sending bpdu", zap.String("port", sp.name), zap.Error(err))
	}
}
