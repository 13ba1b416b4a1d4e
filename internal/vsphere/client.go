package vsphere

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/fault"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/session/keepalive"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	vimtypes "github.com/vmware/govmomi/vim25/types"
)

// Idle time before the session keepalive pings vCenter.
const keepAliveIdleTime = 5 * time.Minute

// ClientConfig holds the vCenter endpoint settings.
type ClientConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Insecure   bool
	Datacenter string // optional; default datacenter when empty
}

// Client is the govmomi-backed Backend. It maintains a single logical
// session, established lazily and re-established after authentication
// expiry or transport failure.
type Client struct {
	cfg ClientConfig
	log *logrus.Entry

	mu     sync.Mutex // guards connect/disconnect
	vim    *vim25.Client
	sm     *session.Manager
	finder *find.Finder
}

// NewClient returns an unconnected client; the session is established on
// first use so the daemon can start while vCenter is down.
func NewClient(cfg ClientConfig, log *logrus.Entry) *Client {
	return &Client{cfg: cfg, log: log}
}

// soapKeepAliveHandler re-authenticates the session when the keepalive
// probe reports NotAuthenticated, which happens after long vCenter outages.
func (c *Client) soapKeepAliveHandler(sc *soap.Client, sm *session.Manager, userInfo *url.Userinfo) func() error {
	return func() error {
		ctx := context.Background()
		if _, err := methods.GetCurrentTime(ctx, sc); err != nil && isNotAuthenticated(err) {
			c.log.Info("re-authenticating vim client")
			if err := sm.Login(ctx, userInfo); err != nil {
				if isInvalidLogin(err) {
					c.log.WithError(err).Error("invalid login in keepalive handler")
					return err
				}
			}
		} else if err != nil {
			c.log.WithError(err).Warn("vim keepalive probe failed")
		}
		return nil
	}
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.vim != nil && c.vim.Valid() {
		return nil
	}
	c.vim = nil

	soapURL, err := soap.ParseURL(net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port)))
	if err != nil {
		return fmt.Errorf("parse vcenter url %s:%d: %w", c.cfg.Host, c.cfg.Port, err)
	}

	soapClient := soap.NewClient(soapURL, c.cfg.Insecure)
	vimClient, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		return fmt.Errorf("new vim client for %v: %w", soapURL, err)
	}
	if err := vimClient.UseServiceVersion(); err != nil {
		return fmt.Errorf("set vim client version for %v: %w", soapURL, err)
	}

	userInfo := url.UserPassword(c.cfg.Username, c.cfg.Password)
	sm := session.NewManager(vimClient)
	vimClient.RoundTripper = keepalive.NewHandlerSOAP(
		soapClient, keepAliveIdleTime, c.soapKeepAliveHandler(soapClient, sm, userInfo))

	if err := sm.Login(ctx, userInfo); err != nil {
		return fmt.Errorf("vcenter login %s: %w", c.cfg.Host, err)
	}

	finder := find.NewFinder(vimClient, false)
	var dc *object.Datacenter
	if c.cfg.Datacenter != "" {
		dc, err = finder.Datacenter(ctx, c.cfg.Datacenter)
	} else {
		dc, err = finder.DefaultDatacenter(ctx)
	}
	if err != nil {
		_ = sm.Logout(ctx)
		return fmt.Errorf("find datacenter: %w", err)
	}
	finder.SetDatacenter(dc)

	c.vim = vimClient
	c.sm = sm
	c.finder = finder
	c.log.WithField("host", c.cfg.Host).Info("vcenter session established")
	return nil
}

// ensure returns a connected finder, dialing if necessary.
func (c *Client) ensure(ctx context.Context) (*find.Finder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.finder, nil
}

// invalidate drops the cached session after an authentication failure so the
// next operation reconnects.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.vim = nil
	c.sm = nil
	c.finder = nil
	c.mu.Unlock()
}

// vm resolves a VM by inventory name, reconnecting once on session expiry.
func (c *Client) vm(ctx context.Context, name string) (*object.VirtualMachine, error) {
	finder, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	vm, err := finder.VirtualMachine(ctx, name)
	if err != nil {
		if isNotAuthenticated(err) {
			c.invalidate()
			if finder, err = c.ensure(ctx); err != nil {
				return nil, err
			}
			vm, err = finder.VirtualMachine(ctx, name)
		}
		if err != nil {
			var nf *find.NotFoundError
			if errors.As(err, &nf) {
				return nil, fmt.Errorf("%w: %s", ErrVMNotFound, name)
			}
			return nil, err
		}
	}
	return vm, nil
}

// Close logs out the session. Called once at process shutdown.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sm == nil {
		return nil
	}
	err := c.sm.Logout(ctx)
	c.vim = nil
	c.sm = nil
	c.finder = nil
	return err
}

func (c *Client) properties(ctx context.Context, vm *object.VirtualMachine, props []string) (*mo.VirtualMachine, error) {
	var mvm mo.VirtualMachine
	pc := property.DefaultCollector(c.vimClient())
	if err := pc.RetrieveOne(ctx, vm.Reference(), props, &mvm); err != nil {
		return nil, err
	}
	return &mvm, nil
}

func (c *Client) vimClient() *vim25.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vim
}

func isNotAuthenticated(err error) bool {
	return fault.Is(err, &vimtypes.NotAuthenticated{})
}

func isInvalidLogin(err error) bool {
	return fault.Is(err, &vimtypes.InvalidLogin{})
}
