package redfish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vbridge/vbridge/internal/logging"
	"github.com/vbridge/vbridge/internal/state"
	"github.com/vbridge/vbridge/internal/vsphere"
)

type testEndpoint struct {
	server  *Server
	backend *vsphere.FakeBackend
	vm      *state.VM
	tasks   *state.TaskRegistry
	base    string
	client  *http.Client
}

func newTestEndpoint(t *testing.T) *testEndpoint {
	t.Helper()
	backend := vsphere.NewFakeBackend()
	backend.AddVM("worker-1")

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	vm := state.NewVM("worker-1")
	events := state.NewEventLog(time.Now().UTC())
	tasks := state.NewTaskRegistry(state.EngineOptions{
		Tick:       2 * time.Millisecond,
		StartDelay: time.Millisecond,
		RunDelay:   time.Millisecond,
	})

	server, err := NewServer(Options{
		VMName:  "worker-1",
		Addr:    "127.0.0.1:0",
		Users:   map[string]string{"admin": "password"},
		Adapter: vsphere.NewAdapter(backend, entry),
		VM:      vm,
		Events:  events,
		Tasks:   tasks,
		DefaultISO: &vsphere.ISORef{
			Datastore: "datastore1",
			Path:      "isos/install.iso",
		},
		Log:      entry,
		Redactor: logging.NewRedactor(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tasks.Run(ctx)
	go func() { _ = server.Run(ctx) }()

	return &testEndpoint{
		server:  server,
		backend: backend,
		vm:      vm,
		tasks:   tasks,
		base:    "http://" + server.LocalAddr().String(),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (e *testEndpoint) request(t *testing.T, method, path string, body any, auth bool) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.base+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if auth {
		req.SetBasicAuth("admin", "password")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, raw
}

func (e *testEndpoint) getJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	resp, raw := e.request(t, http.MethodGet, path, nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d: %s", path, resp.StatusCode, raw)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("GET %s: bad JSON: %v", path, err)
	}
	return out
}

func TestPublicAndAuthenticatedPaths(t *testing.T) {
	e := newTestEndpoint(t)

	for _, path := range []string{
		"/redfish/v1/", "/redfish/v1/Systems", "/redfish/v1/Managers",
		"/redfish/v1/Chassis", "/redfish/v1/SessionService",
	} {
		resp, _ := e.request(t, http.MethodGet, path, nil, false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("public path %s = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, _ := e.request(t, http.MethodGet, "/redfish/v1/Systems/worker-1", nil, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated system GET = %d, want 401", resp.StatusCode)
	}
	resp, _ = e.request(t, http.MethodGet, "/redfish/v1/Systems/worker-1", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated system GET = %d, want 200", resp.StatusCode)
	}
}

func TestSessionTokenLifecycle(t *testing.T) {
	e := newTestEndpoint(t)

	resp, raw := e.request(t, http.MethodPost, "/redfish/v1/SessionService/Sessions",
		map[string]string{"UserName": "admin", "Password": "password"}, false)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("session create = %d: %s", resp.StatusCode, raw)
	}
	token := resp.Header.Get("X-Auth-Token")
	location := resp.Header.Get("Location")
	if token == "" || !strings.HasPrefix(location, "/redfish/v1/SessionService/Sessions/") {
		t.Fatalf("token %q location %q", token, location)
	}

	req, _ := http.NewRequest(http.MethodGet, e.base+"/redfish/v1/Systems/worker-1", nil)
	req.Header.Set("X-Auth-Token", token)
	tokenResp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	_ = tokenResp.Body.Close()
	if tokenResp.StatusCode != http.StatusOK {
		t.Fatalf("token GET = %d, want 200", tokenResp.StatusCode)
	}

	resp, _ = e.request(t, http.MethodDelete, location, nil, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("session delete = %d, want 204", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, e.base+"/redfish/v1/Systems/worker-1", nil)
	req.Header.Set("X-Auth-Token", token)
	tokenResp, err = e.client.Do(req)
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	_ = tokenResp.Body.Close()
	if tokenResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deleted token GET = %d, want 401", tokenResp.StatusCode)
	}

	resp, _ = e.request(t, http.MethodPost, "/redfish/v1/SessionService/Sessions",
		map[string]string{"UserName": "admin", "Password": "wrong"}, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials = %d, want 401", resp.StatusCode)
	}
}

func TestSystemPayloadShape(t *testing.T) {
	e := newTestEndpoint(t)

	sys := e.getJSON(t, "/redfish/v1/Systems/worker-1")
	if sys["@odata.type"] != "#ComputerSystem.v1_13_0.ComputerSystem" {
		t.Fatalf("@odata.type = %v", sys["@odata.type"])
	}
	if sys["PowerState"] != "Off" {
		t.Fatalf("PowerState = %v, want Off", sys["PowerState"])
	}
	status := sys["Status"].(map[string]any)
	if status["Health"] != "OK" {
		t.Fatalf("Health = %v", status["Health"])
	}
	boot := sys["Boot"].(map[string]any)
	if boot["BootSourceOverrideTarget"] != "None" {
		t.Fatalf("BootSourceOverrideTarget = %v", boot["BootSourceOverrideTarget"])
	}
}

func TestBootOverridePersistenceAndConsumption(t *testing.T) {
	e := newTestEndpoint(t)

	resp, raw := e.request(t, http.MethodPatch, "/redfish/v1/Systems/worker-1", map[string]any{
		"Boot": map[string]string{
			"BootSourceOverrideTarget":  "Pxe",
			"BootSourceOverrideEnabled": "Once",
		},
	}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PATCH = %d: %s", resp.StatusCode, raw)
	}
	if resp.Header.Get("ETag") == "" {
		t.Fatal("PATCH response missing ETag")
	}

	boot := e.getJSON(t, "/redfish/v1/Systems/worker-1")["Boot"].(map[string]any)
	if boot["BootSourceOverrideTarget"] != "Pxe" || boot["BootSourceOverrideEnabled"] != "Once" {
		t.Fatalf("boot after PATCH = %v", boot)
	}

	resp, raw = e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "ForceRestart"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset = %d: %s", resp.StatusCode, raw)
	}

	boot = e.getJSON(t, "/redfish/v1/Systems/worker-1")["Boot"].(map[string]any)
	if boot["BootSourceOverrideEnabled"] != "Disabled" {
		t.Fatalf("one-shot override not consumed: %v", boot)
	}
}

func TestResetTypes(t *testing.T) {
	e := newTestEndpoint(t)

	resp, _ := e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "On"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset On = %d", resp.StatusCode)
	}
	waitFor(t, func() bool { return e.backend.PowerStateOf("worker-1") == vsphere.PowerOn })

	resp, _ = e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "ForceOff"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset ForceOff = %d", resp.StatusCode)
	}
	waitFor(t, func() bool { return e.backend.PowerStateOf("worker-1") == vsphere.PowerOff })

	resp, _ = e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "WarpSpeed"}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad reset type = %d, want 400", resp.StatusCode)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestVirtualMediaInsertEjectIdempotent(t *testing.T) {
	e := newTestEndpoint(t)
	insert := map[string]any{"Image": "http://repo/install.iso", "Inserted": true}

	for i := 0; i < 2; i++ {
		resp, raw := e.request(t, http.MethodPost,
			"/redfish/v1/Managers/worker-1-BMC/VirtualMedia/CD/Actions/VirtualMedia.InsertMedia",
			insert, true)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("insert %d = %d: %s", i, resp.StatusCode, raw)
		}
	}

	media := e.getJSON(t, "/redfish/v1/Managers/worker-1-BMC/VirtualMedia/CD")
	if media["Inserted"] != true || media["Image"] != "http://repo/install.iso" {
		t.Fatalf("media after insert = %v", media)
	}
	// URL image resolved onto the default ISO datastore.
	if got := e.backend.MountedISO("worker-1"); got != "[datastore1] isos/install.iso" {
		t.Fatalf("mounted iso = %q", got)
	}

	for i := 0; i < 2; i++ {
		resp, _ := e.request(t, http.MethodPost,
			"/redfish/v1/Managers/worker-1-BMC/VirtualMedia/CD/Actions/VirtualMedia.EjectMedia",
			map[string]any{}, true)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("eject %d = %d", i, resp.StatusCode)
		}
	}
	media = e.getJSON(t, "/redfish/v1/Managers/worker-1-BMC/VirtualMedia/CD")
	if media["Inserted"] != false {
		t.Fatalf("media after eject = %v", media)
	}
	if got := e.backend.MountedISO("worker-1"); got != "" {
		t.Fatalf("iso still mounted: %q", got)
	}
}

func TestFirmwareUpdateTaskLifecycle(t *testing.T) {
	e := newTestEndpoint(t)

	resp, raw := e.request(t, http.MethodPost,
		"/redfish/v1/UpdateService/Actions/UpdateService.SimpleUpdate",
		map[string]string{"ImageURI": "http://repo/fw.bin", "TransferProtocol": "HTTPS"}, true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("simple update = %d: %s", resp.StatusCode, raw)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/redfish/v1/TaskService/Tasks/") {
		t.Fatalf("location = %q", location)
	}

	last := -1
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("task never completed")
		}
		task := e.getJSON(t, location)
		percent := int(task["PercentComplete"].(float64))
		if percent < last {
			t.Fatalf("percent went backwards: %d -> %d", last, percent)
		}
		last = percent
		if task["TaskState"] == "Completed" {
			if task["TaskStatus"] != "OK" || percent != 100 {
				t.Fatalf("final task = %v", task)
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTaskServicePrePopulated(t *testing.T) {
	e := newTestEndpoint(t)

	tasks := e.getJSON(t, "/redfish/v1/TaskService/Tasks")
	if int(tasks["Members@odata.count"].(float64)) < 2 {
		t.Fatalf("historical tasks missing: %v", tasks)
	}

	svc := e.getJSON(t, "/redfish/v1/TaskService")
	if svc["CompletedTaskOverWritePolicy"] != "Oldest" {
		t.Fatalf("overwrite policy = %v", svc["CompletedTaskOverWritePolicy"])
	}
}

func TestVolumeCreationThroughTask(t *testing.T) {
	e := newTestEndpoint(t)

	resp, raw := e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Storage/1/Volumes",
		map[string]any{"Name": "scratch", "RAIDType": "RAID1", "CapacityBytes": 1 << 30}, true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("volume create = %d: %s", resp.StatusCode, raw)
	}

	waitFor(t, func() bool {
		vols := e.getJSON(t, "/redfish/v1/Systems/worker-1/Storage/1/Volumes")
		return int(vols["Members@odata.count"].(float64)) == 1
	})

	vols := e.getJSON(t, "/redfish/v1/Systems/worker-1/Storage/1/Volumes")
	member := vols["Members"].([]any)[0].(map[string]any)["@odata.id"].(string)

	resp, _ = e.request(t, http.MethodDelete, member, nil, true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("volume delete = %d, want 202", resp.StatusCode)
	}
	waitFor(t, func() bool {
		vols := e.getJSON(t, "/redfish/v1/Systems/worker-1/Storage/1/Volumes")
		return int(vols["Members@odata.count"].(float64)) == 0
	})
}

func TestUpstreamOutageTransparency(t *testing.T) {
	e := newTestEndpoint(t)

	// Establish a cached power state, then cut vCenter.
	resp, _ := e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "On"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset = %d", resp.StatusCode)
	}
	waitFor(t, func() bool { return e.backend.PowerStateOf("worker-1") == vsphere.PowerOn })
	e.backend.SetFailure(fmt.Errorf("connection refused"))

	sys := e.getJSON(t, "/redfish/v1/Systems/worker-1")
	if sys["PowerState"] != "On" {
		t.Fatalf("PowerState during outage = %v, want cached On", sys["PowerState"])
	}
	if sys["Status"].(map[string]any)["Health"] != "OK" {
		t.Fatal("Health must stay OK during an outage")
	}

	// A reset during the outage still answers 204 and its task completes
	// OK with a warning message.
	resp, _ = e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "ForceOff"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset during outage = %d, want 204", resp.StatusCode)
	}

	waitFor(t, func() bool {
		for _, snap := range e.tasks.List() {
			if snap.Name == "Reset Task" && snap.Terminal() {
				if snap.State != state.TaskCompleted {
					t.Fatalf("task state = %v", snap.State)
				}
				for _, m := range snap.Messages {
					if m.Message == "Upstream unavailable; operation deferred." {
						return true
					}
				}
			}
		}
		return false
	})

	// Restore vCenter; the next reset takes real effect.
	e.backend.SetFailure(nil)
	resp, _ = e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "ForceOff"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset after restore = %d", resp.StatusCode)
	}
	waitFor(t, func() bool { return e.backend.PowerStateOf("worker-1") == vsphere.PowerOff })
}

func TestNoFailureSurfaceOnPolledPaths(t *testing.T) {
	e := newTestEndpoint(t)
	e.backend.SetFailure(fmt.Errorf("vcenter down"))

	paths := []string{
		"/redfish/v1/",
		"/redfish/v1/Systems",
		"/redfish/v1/Systems/worker-1",
		"/redfish/v1/Systems/worker-1/Processors",
		"/redfish/v1/Systems/worker-1/Memory",
		"/redfish/v1/Systems/worker-1/EthernetInterfaces",
		"/redfish/v1/Systems/worker-1/Storage",
		"/redfish/v1/Systems/worker-1/Storage/1",
		"/redfish/v1/Systems/worker-1/Bios",
		"/redfish/v1/Systems/worker-1/SecureBoot",
		"/redfish/v1/Managers/worker-1-BMC",
		"/redfish/v1/Managers/worker-1-BMC/VirtualMedia/CD",
		"/redfish/v1/Managers/worker-1-BMC/LogServices/SEL/Entries",
		"/redfish/v1/Chassis/worker-1-Chassis",
		"/redfish/v1/Chassis/worker-1-Chassis/Power",
		"/redfish/v1/Chassis/worker-1-Chassis/Thermal",
		"/redfish/v1/UpdateService",
		"/redfish/v1/UpdateService/FirmwareInventory",
		"/redfish/v1/UpdateService/FirmwareInventory/BIOS",
		"/redfish/v1/TaskService",
		"/redfish/v1/TaskService/Tasks",
		"/redfish/v1/EventService",
	}
	for _, path := range paths {
		resp, raw := e.request(t, http.MethodGet, path, nil, true)
		if resp.StatusCode >= 400 {
			t.Fatalf("GET %s = %d during outage: %s", path, resp.StatusCode, raw)
		}
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	e := newTestEndpoint(t)

	resp, _ := e.request(t, http.MethodGet, "/redfish/v1/Systems/ghost", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown system = %d, want 404", resp.StatusCode)
	}
	resp, _ = e.request(t, http.MethodGet, "/redfish/v1/UpdateService/FirmwareInventory/Flux", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown component = %d, want 404", resp.StatusCode)
	}

	resp, _ = e.request(t, http.MethodDelete, "/redfish/v1/Systems/worker-1", nil, true)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE system = %d, want 405", resp.StatusCode)
	}
	if resp.Header.Get("Allow") == "" {
		t.Fatal("405 response missing Allow header")
	}
}

func TestBiosAttributesPatchAndReset(t *testing.T) {
	e := newTestEndpoint(t)

	bios := e.getJSON(t, "/redfish/v1/Systems/worker-1/Bios")
	attrs := bios["Attributes"].(map[string]any)
	if attrs["BootMode"] != "Uefi" {
		t.Fatalf("BootMode = %v", attrs["BootMode"])
	}

	resp, _ := e.request(t, http.MethodPatch, "/redfish/v1/Systems/worker-1/Bios",
		map[string]any{"Attributes": map[string]any{"Hyperthreading": "Disabled"}}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("bios patch = %d", resp.StatusCode)
	}
	attrs = e.getJSON(t, "/redfish/v1/Systems/worker-1/Bios")["Attributes"].(map[string]any)
	if attrs["Hyperthreading"] != "Disabled" {
		t.Fatalf("Hyperthreading = %v after patch", attrs["Hyperthreading"])
	}

	resp, _ = e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Bios/Actions/Bios.ResetBios", map[string]any{}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("bios reset = %d", resp.StatusCode)
	}
	attrs = e.getJSON(t, "/redfish/v1/Systems/worker-1/Bios")["Attributes"].(map[string]any)
	if attrs["Hyperthreading"] != "Enabled" {
		t.Fatalf("Hyperthreading = %v after reset", attrs["Hyperthreading"])
	}
}

func TestLogServiceClear(t *testing.T) {
	e := newTestEndpoint(t)

	entries := e.getJSON(t, "/redfish/v1/Managers/worker-1-BMC/LogServices/EventLog/Entries")
	if int(entries["Members@odata.count"].(float64)) == 0 {
		t.Fatal("seeded event log is empty")
	}

	resp, _ := e.request(t, http.MethodPost,
		"/redfish/v1/Managers/worker-1-BMC/LogServices/EventLog/Actions/LogService.ClearLog",
		map[string]any{}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear log = %d", resp.StatusCode)
	}

	entries = e.getJSON(t, "/redfish/v1/Managers/worker-1-BMC/LogServices/EventLog/Entries")
	if int(entries["Members@odata.count"].(float64)) != 0 {
		t.Fatal("log not cleared")
	}
}

func TestEventSubscriptionDelivery(t *testing.T) {
	e := newTestEndpoint(t)

	var delivered atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	resp, raw := e.request(t, http.MethodPost, "/redfish/v1/EventService/Subscriptions",
		map[string]any{"Destination": sink.URL, "EventTypes": []string{"Alert"}}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("subscription = %d: %s", resp.StatusCode, raw)
	}
	location := resp.Header.Get("Location")

	// Fire an alert-generating action.
	resp, _ = e.request(t, http.MethodPost,
		"/redfish/v1/Systems/worker-1/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": "On"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset = %d", resp.StatusCode)
	}
	waitFor(t, func() bool { return delivered.Load() > 0 })

	resp, _ = e.request(t, http.MethodDelete, location, nil, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("subscription delete = %d", resp.StatusCode)
	}
}

func TestIsolationBetweenMediaSlots(t *testing.T) {
	e := newTestEndpoint(t)

	resp, _ := e.request(t, http.MethodPost,
		"/redfish/v1/Managers/worker-1-BMC/VirtualMedia/Floppy/Actions/VirtualMedia.InsertMedia",
		map[string]any{"Image": "http://repo/boot.img"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("floppy insert = %d", resp.StatusCode)
	}

	cd := e.getJSON(t, "/redfish/v1/Managers/worker-1-BMC/VirtualMedia/CD")
	if cd["Inserted"] != false {
		t.Fatal("floppy insert leaked into CD slot")
	}
	// Floppy media never touches the vSphere CD-ROM.
	if got := e.backend.MountedISO("worker-1"); got != "" {
		t.Fatalf("floppy insert mounted an iso: %q", got)
	}
}
