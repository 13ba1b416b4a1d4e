package redfish

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vbridge/vbridge/internal/state"
)

// bmcFirmwareVersion is the fixed manager firmware string; the IPMI Get
// Device ID response advertises the same 2.88 revision.
const bmcFirmwareVersion = "2.88.00"

func (s *Server) managerFromPath(w http.ResponseWriter, id string) bool {
	if id != s.managerID() {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such manager "+id)
		return false
	}
	return true
}

func (s *Server) getManagersCollection(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#ManagerCollection.ManagerCollection",
		OdataID:      "/redfish/v1/Managers",
		OdataType:    "#ManagerCollection.ManagerCollection",
		Name:         "Manager Collection",
		MembersCount: 1,
		Members:      []Link{{OdataID: s.managerPath()}},
	})
}

func (s *Server) getManager(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	m := Manager{
		OdataContext:       "/redfish/v1/$metadata#Manager.Manager",
		OdataID:            s.managerPath(),
		OdataType:          "#Manager.v1_5_0.Manager",
		ID:                 s.managerID(),
		Name:               "Manager",
		ManagerType:        "BMC",
		Model:              "vbridge BMC",
		UUID:               "58893887-8974-2487-2389-" + padVMHex(s.vmName),
		FirmwareVersion:    bmcFirmwareVersion,
		Status:             statusOK(),
		VirtualMedia:       Link{OdataID: s.managerPath() + "/VirtualMedia"},
		LogServices:        Link{OdataID: s.managerPath() + "/LogServices"},
		EthernetInterfaces: Link{OdataID: s.managerPath() + "/EthernetInterfaces"},
	}
	m.Actions.Reset.Target = s.managerPath() + "/Actions/Manager.Reset"
	m.Actions.Reset.AllowableValues = []string{"GracefulRestart", "ForceRestart"}
	m.Links.ManagerForServers = []Link{{OdataID: s.systemPath()}}
	m.Links.ManagerForChassis = []Link{{OdataID: s.chassisPath()}}
	s.writeJSON(w, http.StatusOK, m)
}

// postManagerReset acknowledges a BMC restart; there is nothing to restart
// on a simulated controller.
func (s *Server) postManagerReset(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	var body struct {
		ResetType string `json:"ResetType"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	s.log.WithField("reset_type", body.ResetType).Info("manager reset acknowledged")
	s.events.Append(state.SeverityOK, "BMC reset requested", "Redfish", time.Now().UTC())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getManagerEthernetInterfaces(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#EthernetInterfaceCollection.EthernetInterfaceCollection",
		OdataID:      s.managerPath() + "/EthernetInterfaces",
		OdataType:    "#EthernetInterfaceCollection.EthernetInterfaceCollection",
		Name:         "Manager Ethernet Interface Collection",
		MembersCount: 1,
		Members:      []Link{{OdataID: s.managerPath() + "/EthernetInterfaces/NIC1"}},
	})
}

func (s *Server) getManagerEthernetInterface(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	if chi.URLParam(r, "interfaceID") != "NIC1" {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such interface")
		return
	}
	s.writeJSON(w, http.StatusOK, EthernetInterface{
		OdataContext: "/redfish/v1/$metadata#EthernetInterface.EthernetInterface",
		OdataID:      s.managerPath() + "/EthernetInterfaces/NIC1",
		OdataType:    "#EthernetInterface.v1_4_1.EthernetInterface",
		ID:           "NIC1",
		Name:         "Manager Network Interface",
		MACAddress:   "00:50:56:bb:00:01",
		SpeedMbps:    1000,
		LinkStatus:   "LinkUp",
		Status:       statusOK(),
	})
}

func mediaDeviceFromID(id string) (state.MediaDevice, bool) {
	switch id {
	case "CD":
		return state.MediaCD, true
	case "Floppy":
		return state.MediaFloppy, true
	default:
		return "", false
	}
}

func (s *Server) getVirtualMediaCollection(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#VirtualMediaCollection.VirtualMediaCollection",
		OdataID:      s.managerPath() + "/VirtualMedia",
		OdataType:    "#VirtualMediaCollection.VirtualMediaCollection",
		Name:         "Virtual Media Services",
		MembersCount: 2,
		Members: []Link{
			{OdataID: s.managerPath() + "/VirtualMedia/CD"},
			{OdataID: s.managerPath() + "/VirtualMedia/Floppy"},
		},
	})
}

func (s *Server) getVirtualMedia(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	id := chi.URLParam(r, "mediaID")
	dev, ok := mediaDeviceFromID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such media device "+id)
		return
	}
	media := s.vm.Media(dev)

	mediaTypes := []string{"CD", "DVD"}
	connectedVia := "NotConnected"
	if dev == state.MediaFloppy {
		mediaTypes = []string{"Floppy", "USBStick"}
	}
	if media.Inserted {
		connectedVia = "URI"
	}
	imageName := ""
	if media.ImageURI != "" {
		parts := strings.Split(media.ImageURI, "/")
		imageName = parts[len(parts)-1]
	}

	vm := VirtualMedia{
		OdataContext:   "/redfish/v1/$metadata#VirtualMedia.VirtualMedia",
		OdataID:        s.managerPath() + "/VirtualMedia/" + id,
		OdataType:      "#VirtualMedia.v1_3_0.VirtualMedia",
		ID:             id,
		Name:           "Virtual " + id,
		MediaTypes:     mediaTypes,
		Image:          media.ImageURI,
		ImageName:      imageName,
		ConnectedVia:   connectedVia,
		Inserted:       media.Inserted,
		WriteProtected: media.WriteProtected,
	}
	vm.Actions.Insert.Target = s.managerPath() + "/VirtualMedia/" + id + "/Actions/VirtualMedia.InsertMedia"
	vm.Actions.Eject.Target = s.managerPath() + "/VirtualMedia/" + id + "/Actions/VirtualMedia.EjectMedia"
	s.writeJSON(w, http.StatusOK, vm)
}

// isoRefFor maps a media image reference onto a datastore ISO path. Direct
// "[datastore] path" references pass through; for URL images the datastore
// comes from the configured default ISO, with the URL basename as the file.
func (s *Server) isoRefFor(image string) (datastore, path string, ok bool) {
	if strings.HasPrefix(image, "[") {
		if end := strings.Index(image, "] "); end > 1 {
			return image[1:end], image[end+2:], true
		}
		return "", "", false
	}
	if s.defaultISO == nil {
		return "", "", false
	}
	parts := strings.Split(image, "/")
	name := parts[len(parts)-1]
	dir := ""
	if idx := strings.LastIndex(s.defaultISO.Path, "/"); idx >= 0 {
		dir = s.defaultISO.Path[:idx+1]
	}
	return s.defaultISO.Datastore, dir + name, true
}

// postInsertMedia mounts the ISO and updates the cache. Re-inserting the
// same image is idempotent; a vCenter outage degrades to a cache-only
// insert so the orchestrator's sequence still succeeds.
func (s *Server) postInsertMedia(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	id := chi.URLParam(r, "mediaID")
	dev, ok := mediaDeviceFromID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such media device "+id)
		return
	}
	var body struct {
		Image          string `json:"Image"`
		Inserted       *bool  `json:"Inserted"`
		WriteProtected *bool  `json:"WriteProtected"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Image == "" {
		s.writeError(w, http.StatusBadRequest, "Base.1.0.PropertyMissing", "Image is required")
		return
	}

	if dev == state.MediaCD {
		if ds, path, ok := s.isoRefFor(body.Image); ok {
			ctx, cancel := context.WithTimeout(r.Context(), mediaOpTimeout)
			defer cancel()
			if err := s.adapter.MountISO(ctx, s.vmName, ds, path); err != nil {
				s.log.WithError(err).Warn("iso mount deferred")
			}
		} else {
			s.log.WithField("image", s.redactor.Redact(body.Image)).
				Warn("no datastore mapping for image; cache-only insert")
		}
	}

	media := state.VirtualMedia{
		ImageURI:       body.Image,
		Inserted:       true,
		WriteProtected: true,
	}
	if body.Inserted != nil {
		media.Inserted = *body.Inserted
	}
	if body.WriteProtected != nil {
		media.WriteProtected = *body.WriteProtected
	}
	s.vm.SetMedia(dev, media)
	s.events.Append(state.SeverityOK, "Virtual media inserted on "+id, "Redfish", time.Now().UTC())
	w.WriteHeader(http.StatusNoContent)
}

// postEjectMedia unmounts and clears the cache; ejecting empty media is
// idempotent success.
func (s *Server) postEjectMedia(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	id := chi.URLParam(r, "mediaID")
	dev, ok := mediaDeviceFromID(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such media device "+id)
		return
	}

	if dev == state.MediaCD {
		ctx, cancel := context.WithTimeout(r.Context(), mediaOpTimeout)
		defer cancel()
		if err := s.adapter.UnmountISO(ctx, s.vmName); err != nil {
			s.log.WithError(err).Warn("iso eject deferred")
		}
	}
	s.vm.SetMedia(dev, state.VirtualMedia{})
	s.events.Append(state.SeverityOK, "Virtual media ejected from "+id, "Redfish", time.Now().UTC())
	w.WriteHeader(http.StatusNoContent)
}

var logServiceIDs = []string{"EventLog", "SEL"}

func (s *Server) getLogServices(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	members := make([]Link, 0, len(logServiceIDs))
	for _, id := range logServiceIDs {
		members = append(members, Link{OdataID: s.managerPath() + "/LogServices/" + id})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#LogServiceCollection.LogServiceCollection",
		OdataID:      s.managerPath() + "/LogServices",
		OdataType:    "#LogServiceCollection.LogServiceCollection",
		Name:         "Log Service Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func validLogID(id string) bool {
	return id == "EventLog" || id == "SEL"
}

func (s *Server) getLogService(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	id := chi.URLParam(r, "logID")
	if !validLogID(id) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such log service "+id)
		return
	}
	name := "Event Log Service"
	if id == "SEL" {
		name = "System Event Log Service"
	}
	svc := LogService{
		OdataContext:       "/redfish/v1/$metadata#LogService.LogService",
		OdataID:            s.managerPath() + "/LogServices/" + id,
		OdataType:          "#LogService.v1_1_0.LogService",
		ID:                 id,
		Name:               name,
		OverWritePolicy:    "WrapsWhenFull",
		MaxNumberOfRecords: state.MaxEventEntries,
		Status:             statusOK(),
		Entries:            Link{OdataID: s.managerPath() + "/LogServices/" + id + "/Entries"},
	}
	svc.Actions.ClearLog.Target = s.managerPath() + "/LogServices/" + id + "/Actions/LogService.ClearLog"
	s.writeJSON(w, http.StatusOK, svc)
}

func (s *Server) logEntryResource(logID string, e state.EventEntry) LogEntry {
	entryType := "Event"
	if logID == "SEL" {
		entryType = "SEL"
	}
	return LogEntry{
		OdataContext: "/redfish/v1/$metadata#LogEntry.LogEntry",
		OdataID:      s.managerPath() + "/LogServices/" + logID + "/Entries/" + strconv.Itoa(int(e.RecordID)),
		OdataType:    "#LogEntry.v1_4_0.LogEntry",
		ID:           strconv.Itoa(int(e.RecordID)),
		Name:         "Log Entry " + strconv.Itoa(int(e.RecordID)),
		EntryType:    entryType,
		Severity:     string(e.Severity),
		Created:      e.Timestamp.UTC().Format(time.RFC3339),
		Message:      e.Message,
	}
}

func (s *Server) getLogEntries(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	id := chi.URLParam(r, "logID")
	if !validLogID(id) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such log service "+id)
		return
	}
	entries := s.events.Entries()
	members := make([]Link, 0, len(entries))
	for _, e := range entries {
		members = append(members, Link{
			OdataID: s.managerPath() + "/LogServices/" + id + "/Entries/" + strconv.Itoa(int(e.RecordID)),
		})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#LogEntryCollection.LogEntryCollection",
		OdataID:      s.managerPath() + "/LogServices/" + id + "/Entries",
		OdataType:    "#LogEntryCollection.LogEntryCollection",
		Name:         "Log Entry Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) getLogEntry(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	logID := chi.URLParam(r, "logID")
	if !validLogID(logID) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such log service "+logID)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "entryID"))
	if err != nil || n < 0 || n > 0xFFFF {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such log entry")
		return
	}
	entry, ok := s.events.Entry(uint16(n))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such log entry")
		return
	}
	s.writeJSON(w, http.StatusOK, s.logEntryResource(logID, entry))
}

func (s *Server) postClearLog(w http.ResponseWriter, r *http.Request) {
	if !s.managerFromPath(w, chi.URLParam(r, "managerID")) {
		return
	}
	if !validLogID(chi.URLParam(r, "logID")) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such log service")
		return
	}
	s.events.Clear()
	w.WriteHeader(http.StatusNoContent)
}
