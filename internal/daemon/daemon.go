// Package daemon wires the per-VM endpoint multiplexer: one IPMI UDP
// listener and one Redfish TLS listener per managed VM, sharing a single
// vSphere adapter, task registry, and event store.
package daemon

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vbridge/vbridge/internal/config"
	"github.com/vbridge/vbridge/internal/ipmi"
	"github.com/vbridge/vbridge/internal/logging"
	"github.com/vbridge/vbridge/internal/redfish"
	"github.com/vbridge/vbridge/internal/state"
	"github.com/vbridge/vbridge/internal/vsphere"
)

// ErrBind wraps listener setup failures so main can exit with the
// bind-failed code.
var ErrBind = errors.New("bind failed")

const disconnectTimeout = 5 * time.Second

// Service holds everything the bridge runs: shared state, the adapter, and
// the per-VM listener pairs.
type Service struct {
	cfg      *config.Config
	log      *logrus.Logger
	adapter  *vsphere.Adapter
	vms      *state.Registry
	events   *state.EventStore
	tasks    *state.TaskRegistry
	metrics  *Metrics
	redactor *logging.Redactor

	ipmiServers    []*ipmi.Server
	redfishServers []*redfish.Server
	metricsLn      net.Listener
}

// NewService builds the shared state and binds every listener; any port
// that cannot be bound fails startup with ErrBind.
func NewService(cfg *config.Config, log *logrus.Logger) (*Service, error) {
	names := make([]string, 0, len(cfg.VMs))
	for _, vm := range cfg.VMs {
		names = append(names, vm.Name)
	}

	redactor := logging.NewRedactor(cfg.VMware.Password)
	for _, vm := range cfg.VMs {
		redactor.AddValues(vm.IPMIPassword, vm.RedfishPassword)
	}
	log.AddHook(logging.NewHook(redactor))

	backend := vsphere.NewClient(vsphere.ClientConfig{
		Host:       cfg.VMware.Host,
		Port:       cfg.VMware.Port,
		Username:   cfg.VMware.User,
		Password:   cfg.VMware.Password,
		Insecure:   cfg.VMware.Insecure(),
		Datacenter: cfg.VMware.Datacenter,
	}, log.WithField("component", "vsphere"))

	metrics := NewMetrics()
	s := &Service{
		cfg: cfg,
		log: log,
		adapter: vsphere.NewAdapter(backend, log.WithField("component", "vsphere")).
			WithStats(vsphereStats{m: metrics}),
		vms:    state.NewRegistry(names),
		events: state.NewEventStore(names, time.Now().UTC()),
		tasks: state.NewTaskRegistry(state.EngineOptions{
			OnTransition: func(from, to state.TaskState) {
				metrics.TaskTransition(string(from), string(to))
			},
		}),
		metrics:  metrics,
		redactor: redactor,
	}

	tlsConfig, err := s.tlsConfig()
	if err != nil {
		s.closeListeners()
		return nil, err
	}

	for _, vmCfg := range cfg.VMs {
		var defaultISO *vsphere.ISORef
		if vmCfg.DefaultISO != nil {
			defaultISO = &vsphere.ISORef{
				Datastore: vmCfg.DefaultISO.Datastore,
				Path:      vmCfg.DefaultISO.Path,
			}
		}

		ipmiServer, err := ipmi.NewServer(ipmi.Options{
			VMName:     vmCfg.Name,
			Addr:       fmt.Sprintf("0.0.0.0:%d", vmCfg.IPMIPort),
			Users:      map[string]string{vmCfg.IPMIUser: vmCfg.IPMIPassword},
			DefaultISO: defaultISO,
			Adapter:    s.adapter,
			VM:         s.vms.Get(vmCfg.Name),
			Events:     s.events.Log(vmCfg.Name),
			Log:        log.WithFields(logrus.Fields{"vm": vmCfg.Name, "listener": "ipmi"}),
			Stats:      ipmiStats{m: s.metrics, vm: vmCfg.Name},
		})
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("%w: ipmi %s: %v", ErrBind, vmCfg.Name, err)
		}
		s.ipmiServers = append(s.ipmiServers, ipmiServer)

		redfishServer, err := redfish.NewServer(redfish.Options{
			VMName:     vmCfg.Name,
			Addr:       fmt.Sprintf("0.0.0.0:%d", vmCfg.RedfishPort),
			Users:      map[string]string{vmCfg.RedfishUser: vmCfg.RedfishPassword},
			TLSConfig:  tlsConfig,
			Adapter:    s.adapter,
			VM:         s.vms.Get(vmCfg.Name),
			Events:     s.events.Log(vmCfg.Name),
			Tasks:      s.tasks,
			DefaultISO: defaultISO,
			Log:        log.WithFields(logrus.Fields{"vm": vmCfg.Name, "listener": "redfish"}),
			Redactor:   redactor,
			Stats:      redfishStats{m: s.metrics, vm: vmCfg.Name},
		})
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("%w: redfish %s: %v", ErrBind, vmCfg.Name, err)
		}
		s.redfishServers = append(s.redfishServers, redfishServer)

		log.WithFields(logrus.Fields{
			"vm":           vmCfg.Name,
			"ipmi_port":    vmCfg.IPMIPort,
			"redfish_port": vmCfg.RedfishPort,
		}).Info("bmc endpoints bound")
	}

	if cfg.MetricsListen != "" {
		ln, err := net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("%w: metrics %s: %v", ErrBind, cfg.MetricsListen, err)
		}
		s.metricsLn = ln
	}

	return s, nil
}

func (s *Service) tlsConfig() (*tls.Config, error) {
	if s.cfg.SSL.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.SSL.CertPath, s.cfg.SSL.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load ssl keypair: %w", err)
		}
		return redfish.ServerTLSConfig(cert), nil
	}
	cert, err := redfish.SelfSignedCertificate(s.cfg.VMware.Host, "localhost", "127.0.0.1")
	if err != nil {
		return nil, err
	}
	return redfish.ServerTLSConfig(cert), nil
}

func (s *Service) closeListeners() {
	for _, server := range s.ipmiServers {
		_ = server.Close()
	}
	for _, server := range s.redfishServers {
		_ = server.Close()
	}
	if s.metricsLn != nil {
		_ = s.metricsLn.Close()
	}
}

// Serve runs every listener and the task driver until ctx is canceled or a
// listener fails. Shutdown disconnects vCenter last.
func (s *Service) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.ipmiServers)+len(s.redfishServers)+1)

	go s.tasks.Run(runCtx)

	for _, server := range s.ipmiServers {
		go func(server *ipmi.Server) {
			if err := server.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("ipmi listener: %w", err)
			}
		}(server)
	}
	for _, server := range s.redfishServers {
		go func(server *redfish.Server) {
			if err := server.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("redfish listener: %w", err)
			}
		}(server)
	}
	if s.metricsLn != nil {
		metricsSrv := &http.Server{Handler: s.metrics.Handler()}
		go func() {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := metricsSrv.Serve(s.metricsLn); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
		s.log.WithField("addr", s.cfg.MetricsListen).Info("metrics listener bound")
	}

	s.log.WithField("vms", len(s.cfg.VMs)).Info("vbridged serving")

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		cancel()
	}

	disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancelDisconnect()
	if cerr := s.adapter.Close(disconnectCtx); cerr != nil {
		s.log.WithError(cerr).Debug("vcenter disconnect failed")
	}
	s.log.Info("vbridged stopped")
	return err
}

// Run is the daemon entry point: build the service, serve until ctx ends.
func Run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	service, err := NewService(cfg, log)
	if err != nil {
		return err
	}
	return service.Serve(ctx)
}
