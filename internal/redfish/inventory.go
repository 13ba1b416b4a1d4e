package redfish

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vbridge/vbridge/internal/state"
)

const storageID = "1"

func (s *Server) getProcessors(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	inv := s.inventory(r.Context())
	members := make([]Link, 0, inv.NumCPU)
	for i := 1; i <= int(inv.NumCPU); i++ {
		members = append(members, Link{OdataID: fmt.Sprintf("%s/Processors/CPU%d", s.systemPath(), i)})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#ProcessorCollection.ProcessorCollection",
		OdataID:      s.systemPath() + "/Processors",
		OdataType:    "#ProcessorCollection.ProcessorCollection",
		Name:         "Processors Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) getProcessor(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	id := chi.URLParam(r, "processorID")
	n, err := strconv.Atoi(strings.TrimPrefix(id, "CPU"))
	inv := s.inventory(r.Context())
	if err != nil || n < 1 || n > int(inv.NumCPU) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such processor "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, Processor{
		OdataContext:          "/redfish/v1/$metadata#Processor.Processor",
		OdataID:               s.systemPath() + "/Processors/" + id,
		OdataType:             "#Processor.v1_4_0.Processor",
		ID:                    id,
		Name:                  "Processor " + id,
		ProcessorType:         "CPU",
		ProcessorArchitecture: "x86",
		InstructionSet:        "x86-64",
		Manufacturer:          "Intel(R) Corporation",
		Model:                 "Intel(R) Xeon(R) CPU",
		MaxSpeedMHz:           2400,
		TotalCores:            1,
		TotalThreads:          2,
		Status:                statusOK(),
	})
}

func (s *Server) getMemoryCollection(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#MemoryCollection.MemoryCollection",
		OdataID:      s.systemPath() + "/Memory",
		OdataType:    "#MemoryCollection.MemoryCollection",
		Name:         "Memory Module Collection",
		MembersCount: 1,
		Members:      []Link{{OdataID: s.systemPath() + "/Memory/DIMM1"}},
	})
}

func (s *Server) getMemory(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	id := chi.URLParam(r, "memoryID")
	if id != "DIMM1" {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such memory module "+id)
		return
	}
	inv := s.inventory(r.Context())
	s.writeJSON(w, http.StatusOK, Memory{
		OdataContext:      "/redfish/v1/$metadata#Memory.Memory",
		OdataID:           s.systemPath() + "/Memory/DIMM1",
		OdataType:         "#Memory.v1_7_0.Memory",
		ID:                "DIMM1",
		Name:              "DIMM 1",
		CapacityMiB:       int64(inv.MemoryMB),
		MemoryDeviceType:  "DDR4",
		Manufacturer:      "VMware",
		OperatingSpeedMhz: 2666,
		Status:            statusOK(),
	})
}

func (s *Server) getEthernetInterfaces(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	inv := s.inventory(r.Context())
	members := make([]Link, 0, len(inv.NICs))
	for i := range inv.NICs {
		members = append(members, Link{OdataID: fmt.Sprintf("%s/EthernetInterfaces/NIC%d", s.systemPath(), i+1)})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#EthernetInterfaceCollection.EthernetInterfaceCollection",
		OdataID:      s.systemPath() + "/EthernetInterfaces",
		OdataType:    "#EthernetInterfaceCollection.EthernetInterfaceCollection",
		Name:         "Ethernet Interface Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) getEthernetInterface(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	id := chi.URLParam(r, "interfaceID")
	n, err := strconv.Atoi(strings.TrimPrefix(id, "NIC"))
	inv := s.inventory(r.Context())
	if err != nil || n < 1 || n > len(inv.NICs) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such interface "+id)
		return
	}
	nic := inv.NICs[n-1]
	link := "LinkDown"
	if nic.Connected {
		link = "LinkUp"
	}
	s.writeJSON(w, http.StatusOK, EthernetInterface{
		OdataContext: "/redfish/v1/$metadata#EthernetInterface.EthernetInterface",
		OdataID:      s.systemPath() + "/EthernetInterfaces/" + id,
		OdataType:    "#EthernetInterface.v1_4_1.EthernetInterface",
		ID:           id,
		Name:         nic.Name,
		MACAddress:   nic.MAC,
		SpeedMbps:    10000,
		LinkStatus:   link,
		Status:       statusOK(),
	})
}

func (s *Server) getStorageCollection(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#StorageCollection.StorageCollection",
		OdataID:      s.systemPath() + "/Storage",
		OdataType:    "#StorageCollection.StorageCollection",
		Name:         "Storage Collection",
		MembersCount: 1,
		Members:      []Link{{OdataID: s.systemPath() + "/Storage/" + storageID}},
	})
}

func (s *Server) getStorage(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	sid := chi.URLParam(r, "storageID")
	if sid != storageID {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such storage subsystem "+sid)
		return
	}
	inv := s.inventory(r.Context())
	base := s.systemPath() + "/Storage/" + storageID
	drives := make([]Link, 0, len(inv.Disks))
	for i := range inv.Disks {
		drives = append(drives, Link{OdataID: fmt.Sprintf("%s/Drives/%d", base, i+1)})
	}
	s.writeJSON(w, http.StatusOK, Storage{
		OdataContext: "/redfish/v1/$metadata#Storage.Storage",
		OdataID:      base,
		OdataType:    "#Storage.v1_7_0.Storage",
		ID:           storageID,
		Name:         "Local Storage Controller",
		Status:       statusOK(),
		StorageControllers: []StorageController{{
			OdataID:            base + "#/StorageControllers/0",
			MemberID:           "0",
			Name:               "PVSCSI Storage Controller",
			Manufacturer:       "VMware",
			Model:              "PVSCSI",
			FirmwareVersion:    "6.7.0",
			SupportedRAIDTypes: []string{"RAID0", "RAID1", "RAID5", "RAID10"},
			Status:             statusOK(),
		}},
		Drives:      drives,
		DrivesCount: len(drives),
		Volumes:     Link{OdataID: base + "/Volumes"},
	})
}

func (s *Server) getDrive(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	sid := chi.URLParam(r, "storageID")
	id := chi.URLParam(r, "driveID")
	n, err := strconv.Atoi(id)
	inv := s.inventory(r.Context())
	if sid != storageID || err != nil || n < 1 || n > len(inv.Disks) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such drive "+id)
		return
	}
	disk := inv.Disks[n-1]
	s.writeJSON(w, http.StatusOK, Drive{
		OdataContext:  "/redfish/v1/$metadata#Drive.Drive",
		OdataID:       fmt.Sprintf("%s/Storage/%s/Drives/%s", s.systemPath(), storageID, id),
		OdataType:     "#Drive.v1_4_0.Drive",
		ID:            id,
		Name:          disk.Label,
		MediaType:     "SSD",
		CapacityBytes: disk.CapacityBytes,
		Protocol:      "SAS",
		Status:        statusOK(),
	})
}

func (s *Server) volumePath(id string) string {
	return s.systemPath() + "/Storage/" + storageID + "/Volumes/" + id
}

func (s *Server) getVolumes(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	if chi.URLParam(r, "storageID") != storageID {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such storage subsystem")
		return
	}
	vols := vm.Volumes()
	members := make([]Link, 0, len(vols))
	for _, v := range vols {
		members = append(members, Link{OdataID: s.volumePath(v.ID)})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#VolumeCollection.VolumeCollection",
		OdataID:      s.systemPath() + "/Storage/" + storageID + "/Volumes",
		OdataType:    "#VolumeCollection.VolumeCollection",
		Name:         "Volume Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

// postVolume accepts a RAID specification and answers 202 with a task; the
// volume joins the collection when the task completes.
func (s *Server) postVolume(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	if chi.URLParam(r, "storageID") != storageID {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such storage subsystem")
		return
	}
	var body struct {
		Name          string `json:"Name"`
		RAIDType      string `json:"RAIDType"`
		CapacityBytes int64  `json:"CapacityBytes"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		body.Name = "Volume"
	}
	if body.RAIDType == "" {
		body.RAIDType = "RAID0"
	}

	volID := vm.NextVolumeID()
	vol := state.Volume{
		ID:            volID,
		Name:          body.Name,
		RAIDType:      body.RAIDType,
		CapacityBytes: body.CapacityBytes,
	}
	snap := s.tasks.Create(state.TaskOptions{
		Name:       "Volume Creation Task",
		TargetURI:  s.volumePath(volID),
		Rate:       state.RateVolume,
		OnComplete: func() { vm.AddVolume(vol) },
	})
	s.events.Append(state.SeverityOK, "Volume creation started: "+body.Name, "Redfish", time.Now().UTC())

	w.Header().Set("Location", taskPath(snap.ID))
	s.writeJSON(w, http.StatusAccepted, s.taskResource(snap))
}

func (s *Server) getVolume(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	id := chi.URLParam(r, "volumeID")
	for _, v := range vm.Volumes() {
		if v.ID == id {
			s.writeJSON(w, http.StatusOK, Volume{
				OdataContext:  "/redfish/v1/$metadata#Volume.Volume",
				OdataID:       s.volumePath(id),
				OdataType:     "#Volume.v1_0_3.Volume",
				ID:            v.ID,
				Name:          v.Name,
				RAIDType:      v.RAIDType,
				CapacityBytes: v.CapacityBytes,
				Status:        statusOK(),
			})
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such volume "+id)
}

// deleteVolume mirrors creation: 202 plus a task that removes the volume on
// completion.
func (s *Server) deleteVolume(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	id := chi.URLParam(r, "volumeID")
	if !vm.HasVolume(id) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such volume "+id)
		return
	}
	snap := s.tasks.Create(state.TaskOptions{
		Name:       "Volume Deletion Task",
		TargetURI:  s.volumePath(id),
		Rate:       state.RateVolume,
		OnComplete: func() { vm.RemoveVolume(id) },
	})
	s.events.Append(state.SeverityOK, "Volume deletion started: "+id, "Redfish", time.Now().UTC())

	w.Header().Set("Location", taskPath(snap.ID))
	s.writeJSON(w, http.StatusAccepted, s.taskResource(snap))
}
