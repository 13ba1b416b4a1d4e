// Package config loads and validates the bridge configuration file.
//
// The canonical format is JSON; files named *.yaml or *.yml are decoded as
// YAML with the same structure. The file is read once at startup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultVCenterPort is used when vmware.port is omitted.
	DefaultVCenterPort = 443

	// MaxIPMIPasswordLen is the IPMI 2.0 limit for RAKP user passwords.
	MaxIPMIPasswordLen = 20
)

// ErrInvalid wraps all validation failures so callers can map them to the
// config-invalid exit code.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root of the bridge configuration file.
type Config struct {
	VMware        VMware `json:"vmware" yaml:"vmware"`
	SSL           SSL    `json:"ssl" yaml:"ssl"`
	MetricsListen string `json:"metrics_listen" yaml:"metrics_listen"`
	VMs           []VM   `json:"vms" yaml:"vms"`
}

// VMware describes the single vCenter endpoint the bridge talks to.
type VMware struct {
	Host       string `json:"host" yaml:"host"`
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	Port       int    `json:"port" yaml:"port"`
	DisableSSL *bool  `json:"disable_ssl" yaml:"disable_ssl"`
	Datacenter string `json:"datacenter" yaml:"datacenter"`
}

// Insecure reports whether certificate verification is disabled for the
// vCenter connection. Defaults to true, matching lab deployments.
func (v VMware) Insecure() bool {
	if v.DisableSSL == nil {
		return true
	}
	return *v.DisableSSL
}

// SSL optionally points at a certificate pair for the Redfish listeners.
// When empty, a self-signed certificate is generated at startup.
type SSL struct {
	CertPath string `json:"cert_path" yaml:"cert_path"`
	KeyPath  string `json:"key_path" yaml:"key_path"`
}

// DefaultISO names an ISO on a datastore to mount when a CD boot override is
// requested over IPMI without an explicit image.
type DefaultISO struct {
	Datastore string `json:"datastore" yaml:"datastore"`
	Path      string `json:"path" yaml:"path"`
}

// VM is one managed VM entry: a vSphere inventory name plus the network
// identity and credentials of its simulated BMC.
type VM struct {
	Name            string      `json:"name" yaml:"name"`
	IPMIPort        int         `json:"ipmi_port" yaml:"ipmi_port"`
	RedfishPort     int         `json:"redfish_port" yaml:"redfish_port"`
	IPMIUser        string      `json:"ipmi_user" yaml:"ipmi_user"`
	IPMIPassword    string      `json:"ipmi_password" yaml:"ipmi_password"`
	RedfishUser     string      `json:"redfish_user" yaml:"redfish_user"`
	RedfishPassword string      `json:"redfish_password" yaml:"redfish_password"`
	DisableSSL      *bool       `json:"disable_ssl" yaml:"disable_ssl"`
	DefaultISO      *DefaultISO `json:"default_iso" yaml:"default_iso"`
}

// Load reads, decodes, applies defaults to, and validates the file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.VMware.Port == 0 {
		c.VMware.Port = DefaultVCenterPort
	}
}

// Validate checks the invariants from the configuration contract: unique VM
// names and ports, ports in range, non-empty credentials, and the IPMI
// password length limit.
func (c *Config) Validate() error {
	if c.VMware.Host == "" {
		return fmt.Errorf("%w: vmware.host is required", ErrInvalid)
	}
	if c.VMware.User == "" {
		return fmt.Errorf("%w: vmware.user is required", ErrInvalid)
	}
	if c.VMware.Password == "" {
		return fmt.Errorf("%w: vmware.password is required", ErrInvalid)
	}
	if c.VMware.Port < 1 || c.VMware.Port > 65535 {
		return fmt.Errorf("%w: vmware.port %d out of range", ErrInvalid, c.VMware.Port)
	}
	if (c.SSL.CertPath == "") != (c.SSL.KeyPath == "") {
		return fmt.Errorf("%w: ssl.cert_path and ssl.key_path must be set together", ErrInvalid)
	}
	if len(c.VMs) == 0 {
		return fmt.Errorf("%w: at least one vm is required", ErrInvalid)
	}

	names := make(map[string]struct{}, len(c.VMs))
	ports := make(map[int]string, len(c.VMs)*2)
	for i, vm := range c.VMs {
		where := fmt.Sprintf("vms[%d]", i)
		if vm.Name != "" {
			where = fmt.Sprintf("vms[%d] (%s)", i, vm.Name)
		}
		if vm.Name == "" {
			return fmt.Errorf("%w: %s: name is required", ErrInvalid, where)
		}
		if _, dup := names[vm.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate vm name", ErrInvalid, where)
		}
		names[vm.Name] = struct{}{}

		for _, p := range []struct {
			label string
			port  int
		}{
			{"ipmi_port", vm.IPMIPort},
			{"redfish_port", vm.RedfishPort},
		} {
			if p.port < 1 || p.port > 65535 {
				return fmt.Errorf("%w: %s: %s %d out of range", ErrInvalid, where, p.label, p.port)
			}
			if owner, dup := ports[p.port]; dup {
				return fmt.Errorf("%w: %s: %s %d already used by %s", ErrInvalid, where, p.label, p.port, owner)
			}
			ports[p.port] = vm.Name
		}

		if vm.IPMIUser == "" || vm.IPMIPassword == "" {
			return fmt.Errorf("%w: %s: ipmi credentials are required", ErrInvalid, where)
		}
		if vm.RedfishUser == "" || vm.RedfishPassword == "" {
			return fmt.Errorf("%w: %s: redfish credentials are required", ErrInvalid, where)
		}
		if len(vm.IPMIPassword) > MaxIPMIPasswordLen {
			return fmt.Errorf("%w: %s: ipmi_password exceeds %d bytes", ErrInvalid, where, MaxIPMIPasswordLen)
		}
		if vm.DefaultISO != nil && (vm.DefaultISO.Datastore == "" || vm.DefaultISO.Path == "") {
			return fmt.Errorf("%w: %s: default_iso requires datastore and path", ErrInvalid, where)
		}
	}
	return nil
}

// FindVM returns the entry for name, or nil.
func (c *Config) FindVM(name string) *VM {
	for i := range c.VMs {
		if c.VMs[i].Name == name {
			return &c.VMs[i]
		}
	}
	return nil
}
