package redfish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/vbridge/vbridge/internal/logging"
	"github.com/vbridge/vbridge/internal/state"
	"github.com/vbridge/vbridge/internal/vsphere"
)

const (
	// powerReadTimeout bounds synchronous cache refreshes in GET handlers.
	powerReadTimeout = 3 * time.Second

	// mediaOpTimeout bounds the synchronous part of virtual media changes.
	mediaOpTimeout = 5 * time.Second

	// shutdownGrace is how long in-flight handlers get on shutdown.
	shutdownGrace = 5 * time.Second

	maxBodyBytes = 1 << 20
)

// Stats receives request metrics; the daemon wires Prometheus.
type Stats interface {
	Request(method string, status int, elapsed time.Duration)
}

type nopStats struct{}

func (nopStats) Request(string, int, time.Duration) {}

// Options configure one per-VM Redfish endpoint.
type Options struct {
	VMName     string
	Addr       string
	Users      map[string]string
	TLSConfig  *tls.Config
	Adapter    *vsphere.Adapter
	VM         *state.VM
	Events     *state.EventLog
	Tasks      *state.TaskRegistry
	DefaultISO *vsphere.ISORef
	Log        *logrus.Entry
	Redactor   *logging.Redactor
	Stats      Stats
}

// Server is one per-VM Redfish endpoint.
type Server struct {
	vmName     string
	users      map[string]string
	adapter    *vsphere.Adapter
	vm         *state.VM
	events     *state.EventLog
	tasks      *state.TaskRegistry
	defaultISO *vsphere.ISORef
	log        *logrus.Entry
	redactor   *logging.Redactor
	stats      Stats

	listener net.Listener
	httpSrv  *http.Server
	tokens   *sessionStore
	subs     *subscriptionStore
}

// NewServer binds the TCP listener immediately so port conflicts surface at
// startup; TLS is layered on in Run.
func NewServer(opts Options) (*Server, error) {
	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", opts.Addr, err)
	}
	stats := opts.Stats
	if stats == nil {
		stats = nopStats{}
	}
	s := &Server{
		vmName:     opts.VMName,
		users:      opts.Users,
		adapter:    opts.Adapter,
		vm:         opts.VM,
		events:     opts.Events,
		tasks:      opts.Tasks,
		defaultISO: opts.DefaultISO,
		log:        opts.Log,
		redactor:   opts.Redactor,
		stats:      stats,
		listener:   listener,
		tokens:     newSessionStore(),
		subs:       newSubscriptionStore(opts.Log),
	}

	router := chi.NewRouter()
	router.Use(s.recoverer)
	router.Use(s.requestLog)
	router.Use(s.requireAuth)
	router.MethodNotAllowed(s.methodNotAllowed)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI",
			"The resource at "+r.URL.Path+" was not found")
	})
	s.routes(router)

	s.httpSrv = &http.Server{
		Handler:   router,
		TLSConfig: opts.TLSConfig,
		// TLS handshake failures (plaintext probes, scanners) are reported
		// as connection parse errors without echoing request bytes.
		ErrorLog: log.New(&tlsNoiseWriter{log: opts.Log}, "", 0),
	}
	return s, nil
}

// LocalAddr reports the bound address; tests bind port 0.
func (s *Server) LocalAddr() net.Addr {
	return s.listener.Addr()
}

// Close releases the socket without serving; used when a sibling listener
// fails during startup.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Run serves TLS until ctx is canceled, then drains in-flight handlers.
func (s *Server) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()
	go s.purgeLoop(ctx)

	var err error
	if s.httpSrv.TLSConfig != nil {
		err = s.httpSrv.ServeTLS(s.listener, "", "")
	} else {
		// Plain HTTP is only used by tests.
		err = s.httpSrv.Serve(s.listener)
	}
	<-done
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tokens.purge(now)
		}
	}
}

// tlsNoiseWriter receives net/http's error log lines. Handshake noise is
// demoted to debug so port scans do not pollute the log.
type tlsNoiseWriter struct {
	log *logrus.Entry
}

func (w *tlsNoiseWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if strings.Contains(line, "TLS handshake error") {
		w.log.Debug("incoming connection parse error")
	} else if logging.Printable(p) {
		w.log.Warn(line)
	} else {
		w.log.Warn("http server error (unprintable detail suppressed)")
	}
	return len(p), nil
}

// recoverer converts handler panics into a schema-valid empty payload; the
// bridge must not answer a polled path with a 5xx.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.WithField("panic", fmt.Sprint(rec)).WithField("path", r.URL.Path).
					Error("handler fault; serving fallback")
				s.writeJSON(w, http.StatusOK, map[string]any{
					"Status": statusOK(),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLog traces every request with redacted fields.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		s.stats.Request(r.Method, rec.status, elapsed)
		s.log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    s.redactor.Redact(r.URL.Path),
			"status":  rec.status,
			"elapsed": elapsed.Round(time.Millisecond).String(),
			"remote":  r.RemoteAddr,
		}).Debug("redfish request")
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET")
	s.writeError(w, http.StatusMethodNotAllowed, "Base.1.0.ActionNotSupported",
		r.Method+" is not allowed on "+r.URL.Path)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("OData-Version", "4.0")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("response write failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	var e redfishError
	e.Error.Code = code
	e.Error.Message = message
	s.writeJSON(w, status, e)
}

// decodeBody parses a bounded JSON request body.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Base.1.0.MalformedJSON",
			"The request body could not be parsed")
		return false
	}
	return true
}

// vmFromPath returns the VM cache entry when the path's system ID matches
// this endpoint's VM, else nil (the caller answers 404).
func (s *Server) vmFromPath(w http.ResponseWriter, id string) *state.VM {
	if id != s.vmName {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI",
			"No such system "+id)
		return nil
	}
	return s.vm
}

// refreshPower updates the cached power state from vCenter under a short
// timeout; on failure the cache (or the deterministic Off default) stands.
func (s *Server) refreshPower(ctx context.Context) string {
	opCtx, cancel := context.WithTimeout(ctx, powerReadTimeout)
	defer cancel()
	if ps, err := s.adapter.PowerState(opCtx, s.vmName); err == nil {
		s.vm.SetPowerState(ps)
	}
	switch s.vm.PowerState() {
	case vsphere.PowerOn:
		return "On"
	default:
		return "Off"
	}
}

// inventory returns the freshest inventory available, falling back to a
// minimal valid snapshot when vCenter is unreachable.
func (s *Server) inventory(ctx context.Context) *vsphere.Inventory {
	opCtx, cancel := context.WithTimeout(ctx, powerReadTimeout)
	defer cancel()
	if inv, err := s.adapter.Inventory(opCtx, s.vmName); err == nil {
		return inv
	}
	return &vsphere.Inventory{
		NumCPU:   1,
		MemoryMB: 1024,
		GuestOS:  "Unknown",
		NICs:     []vsphere.NIC{{Name: "Network adapter 1", MAC: "00:00:00:00:00:00"}},
		Disks:    []vsphere.Disk{{Label: "Hard disk 1", CapacityBytes: 1 << 30}},
	}
}

// Resource path helpers.

func (s *Server) systemPath() string  { return "/redfish/v1/Systems/" + s.vmName }
func (s *Server) managerID() string   { return s.vmName + "-BMC" }
func (s *Server) managerPath() string { return "/redfish/v1/Managers/" + s.managerID() }
func (s *Server) chassisID() string   { return s.vmName + "-Chassis" }
func (s *Server) chassisPath() string { return "/redfish/v1/Chassis/" + s.chassisID() }

func taskPath(id string) string {
	return "/redfish/v1/TaskService/Tasks/" + id
}
