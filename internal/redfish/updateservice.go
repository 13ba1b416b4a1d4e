package redfish

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vbridge/vbridge/internal/state"
)

// firmwareComponent is one fixed FirmwareInventory member. The versions are
// stable constants so repeated inspections agree.
type firmwareComponent struct {
	id          string
	description string
	version     string
	manufacturer string
	releaseDate string
}

var firmwareComponents = []firmwareComponent{
	{"BIOS", "System BIOS", "P89 v1.66", "VMware", "2024-01-15T00:00:00Z"},
	{"BMC", "Baseboard Management Controller", bmcFirmwareVersion, "VMware", "2024-02-01T00:00:00Z"},
	{"NIC.Slot.1", "Network Interface Controller", "18.8.9", "VMware", "2024-01-20T00:00:00Z"},
	{"Storage", "SCSI Storage Controller", "6.7.0", "VMware", "2024-01-10T00:00:00Z"},
	{"CPU", "CPU Microcode", "0x21", "Intel", "2024-01-01T00:00:00Z"},
	{"PSU", "Power Supply Firmware", "00.1B.53", "VMware", "2024-01-05T00:00:00Z"},
	{"PCIe", "PCIe Root Complex", "1.2.3", "VMware", "2024-01-01T00:00:00Z"},
}

func firmwareComponentByID(id string) (firmwareComponent, bool) {
	for _, c := range firmwareComponents {
		if c.id == id {
			return c, true
		}
	}
	return firmwareComponent{}, false
}

func (s *Server) getUpdateService(w http.ResponseWriter, _ *http.Request) {
	u := UpdateService{
		OdataContext:         "/redfish/v1/$metadata#UpdateService.UpdateService",
		OdataID:              "/redfish/v1/UpdateService",
		OdataType:            "#UpdateService.v1_5_0.UpdateService",
		ID:                   "UpdateService",
		Name:                 "Update Service",
		ServiceEnabled:       true,
		MultipartHttpPushURI: "/redfish/v1/UpdateService/update-multipart",
		FirmwareInventory:    Link{OdataID: "/redfish/v1/UpdateService/FirmwareInventory"},
		SoftwareInventory:    Link{OdataID: "/redfish/v1/UpdateService/SoftwareInventory"},
		Status:               statusOK(),
	}
	u.Actions.SimpleUpdate.Target = "/redfish/v1/UpdateService/Actions/UpdateService.SimpleUpdate"
	u.Actions.SimpleUpdate.TransferProtocolValues = []string{"HTTP", "HTTPS", "NFS", "CIFS"}
	u.Actions.StartUpdate.Target = "/redfish/v1/UpdateService/Actions/UpdateService.StartUpdate"
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) inventoryCollection(w http.ResponseWriter, kind string) {
	base := "/redfish/v1/UpdateService/" + kind
	members := make([]Link, 0, len(firmwareComponents))
	for _, c := range firmwareComponents {
		members = append(members, Link{OdataID: base + "/" + c.id})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#SoftwareInventoryCollection.SoftwareInventoryCollection",
		OdataID:      base,
		OdataType:    "#SoftwareInventoryCollection.SoftwareInventoryCollection",
		Name:         kind,
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) getFirmwareInventory(w http.ResponseWriter, _ *http.Request) {
	s.inventoryCollection(w, "FirmwareInventory")
}

func (s *Server) getSoftwareInventory(w http.ResponseWriter, _ *http.Request) {
	s.inventoryCollection(w, "SoftwareInventory")
}

func (s *Server) inventoryComponent(w http.ResponseWriter, kind, id string) {
	c, ok := firmwareComponentByID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such component "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, SoftwareInventory{
		OdataContext:           "/redfish/v1/$metadata#SoftwareInventory.SoftwareInventory",
		OdataID:                "/redfish/v1/UpdateService/" + kind + "/" + id,
		OdataType:              "#SoftwareInventory.v1_4_0.SoftwareInventory",
		ID:                     c.id,
		Name:                   c.id + " Firmware",
		Description:            c.description,
		Version:                c.version,
		Manufacturer:           c.manufacturer,
		ReleaseDate:            c.releaseDate,
		SoftwareID:             "vmware-" + c.id,
		LowestSupportedVersion: c.version,
		Updateable:             true,
		Status:                 statusOK(),
		RelatedItem:            []Link{{OdataID: s.systemPath()}},
	})
}

func (s *Server) getFirmwareComponent(w http.ResponseWriter, r *http.Request) {
	s.inventoryComponent(w, "FirmwareInventory", chi.URLParam(r, "componentID"))
}

func (s *Server) getSoftwareComponent(w http.ResponseWriter, r *http.Request) {
	s.inventoryComponent(w, "SoftwareInventory", chi.URLParam(r, "componentID"))
}

// startUpdateTask creates the simulated firmware update task and answers
// 202 with the task's location.
func (s *Server) startUpdateTask(w http.ResponseWriter, name string) {
	snap := s.tasks.Create(state.TaskOptions{
		Name:      name,
		TargetURI: "/redfish/v1/UpdateService",
		Rate:      state.RateFirmware,
	})
	s.events.Append(state.SeverityOK, name+" started", "Redfish", time.Now().UTC())
	s.subs.notify("StatusChange", name+" started", "/redfish/v1/UpdateService")

	w.Header().Set("Location", taskPath(snap.ID))
	s.writeJSON(w, http.StatusAccepted, s.taskResource(snap))
}

func (s *Server) postSimpleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImageURI         string `json:"ImageURI"`
		TransferProtocol string `json:"TransferProtocol"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	s.log.WithFields(map[string]any{
		"image":    s.redactor.Redact(body.ImageURI),
		"protocol": body.TransferProtocol,
	}).Info("simulating firmware update")
	s.startUpdateTask(w, "Firmware Update Task")
}

func (s *Server) postStartUpdate(w http.ResponseWriter, _ *http.Request) {
	s.startUpdateTask(w, "Firmware Update Task")
}
