package daemon

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vbridge/vbridge/internal/config"
)

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe tcp port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe udp port: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		VMware: config.VMware{
			// Unreachable on purpose: the daemon must soft-start.
			Host: "127.0.0.1", User: "admin", Password: "secret", Port: 1,
		},
		VMs: []config.VM{{
			Name:            "worker-1",
			IPMIPort:        freeUDPPort(t),
			RedfishPort:     freeTCPPort(t),
			IPMIUser:        "admin",
			IPMIPassword:    "password",
			RedfishUser:     "admin",
			RedfishPassword: "password",
		}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestServiceSoftStartWithoutVCenter(t *testing.T) {
	cfg := testConfig(t)
	service, err := NewService(cfg, quietLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Serve(ctx) }()

	// Redfish answers over TLS even though vCenter is down.
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	url := "https://127.0.0.1:" + strconv.Itoa(cfg.VMs[0].RedfishPort) + "/redfish/v1/"
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = client.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("service root over TLS: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("service root = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop after cancel")
	}
}

func TestServiceBindConflict(t *testing.T) {
	cfg := testConfig(t)

	// Occupy the Redfish port before the service starts.
	ln, err := net.Listen("tcp", "0.0.0.0:"+strconv.Itoa(cfg.VMs[0].RedfishPort))
	if err != nil {
		t.Skipf("cannot occupy port: %v", err)
	}
	defer ln.Close()

	_, err = NewService(cfg, quietLogger())
	if !errors.Is(err, ErrBind) {
		t.Fatalf("err = %v, want ErrBind", err)
	}
}
