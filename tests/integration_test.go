// Package tests exercises the daemon end to end: a config file on disk, a
// running Service, and both protocol surfaces probed over the loopback.
package tests

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbridge/vbridge/internal/config"
	"github.com/vbridge/vbridge/internal/daemon"
)

func freePort(t *testing.T, network string) int {
	t.Helper()
	switch network {
	case "tcp":
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		return ln.Addr().(*net.TCPAddr).Port
	default:
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		defer conn.Close()
		return conn.LocalAddr().(*net.UDPAddr).Port
	}
}

func TestDaemonFromConfigFile(t *testing.T) {
	ipmiPort := freePort(t, "udp")
	redfishPort := freePort(t, "tcp")

	raw := fmt.Sprintf(`{
  "vmware": {"host": "127.0.0.1", "user": "admin", "password": "secret", "port": 1},
  "vms": [
    {"name": "worker-1", "ipmi_port": %d, "redfish_port": %d,
     "ipmi_user": "admin", "ipmi_password": "password",
     "redfish_user": "admin", "redfish_password": "password"}
  ]
}`, ipmiPort, redfishPort)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	service, err := daemon.NewService(cfg, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Serve(ctx) }()

	t.Run("redfish surface", func(t *testing.T) {
		client := &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
		base := fmt.Sprintf("https://127.0.0.1:%d", redfishPort)

		var resp *http.Response
		require.Eventually(t, func() bool {
			var err error
			resp, err = client.Get(base + "/redfish/v1/")
			return err == nil
		}, 5*time.Second, 20*time.Millisecond)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "4.0", resp.Header.Get("OData-Version"))

		var root map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&root))
		assert.Equal(t, "#ServiceRoot.v1_5_0.ServiceRoot", root["@odata.type"])

		// Authenticated path without credentials.
		resp2, err := client.Get(base + "/redfish/v1/Systems/worker-1")
		require.NoError(t, err)
		resp2.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

		// With Basic credentials, even though vCenter is unreachable the
		// system resource answers with deterministic defaults.
		req, err := http.NewRequest(http.MethodGet, base+"/redfish/v1/Systems/worker-1", nil)
		require.NoError(t, err)
		req.SetBasicAuth("admin", "password")
		resp3, err := client.Do(req)
		require.NoError(t, err)
		defer resp3.Body.Close()
		assert.Equal(t, http.StatusOK, resp3.StatusCode)

		var sys map[string]any
		require.NoError(t, json.NewDecoder(resp3.Body).Decode(&sys))
		assert.Equal(t, "Off", sys["PowerState"])
		assert.Equal(t, "OK", sys["Status"].(map[string]any)["Health"])
	})

	t.Run("ipmi discovery", func(t *testing.T) {
		conn, err := net.Dial("udp4", fmt.Sprintf("127.0.0.1:%d", ipmiPort))
		require.NoError(t, err)
		defer conn.Close()

		// RMCP + IPMI 1.5 sessionless Get Channel Authentication
		// Capabilities for channel 0x0E at Administrator privilege.
		packet := []byte{
			0x06, 0x00, 0xFF, 0x07, // RMCP
			0x00,                   // auth type none
			0x00, 0x00, 0x00, 0x00, // sequence
			0x00, 0x00, 0x00, 0x00, // session id
			0x09,                   // message length
			0x20, 0x18, 0xC8, 0x81, 0x00, 0x38, 0x0E, 0x04, 0x35,
		}
		require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
		_, err = conn.Write(packet)
		require.NoError(t, err)

		buf := make([]byte, 512)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		require.Greater(t, n, 16)

		// RMCP class preserved, completion code 0x00, IPMI 2.0 bit set.
		assert.Equal(t, byte(0x07), buf[3])
		assert.Equal(t, byte(0x00), buf[20])
		assert.NotZero(t, buf[22]&0x80)
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
