package redfish

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getBios(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	bios := Bios{
		OdataContext: "/redfish/v1/$metadata#Bios.Bios",
		OdataID:      s.systemPath() + "/Bios",
		OdataType:    "#Bios.v1_1_0.Bios",
		ID:           "Bios",
		Name:         "BIOS Configuration Current Settings",
		Attributes:   vm.BiosAttributes(),
	}
	bios.Actions.ResetBios.Target = s.systemPath() + "/Bios/Actions/Bios.ResetBios"
	s.writeJSON(w, http.StatusOK, bios)
}

// patchBios merges attributes into the cache; no vSphere call is made.
func (s *Server) patchBios(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	var body struct {
		Attributes map[string]any `json:"Attributes"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if len(body.Attributes) > 0 {
		vm.MergeBiosAttributes(body.Attributes)
	}
	w.Header().Set("ETag", vm.ETag())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postBiosReset(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	vm.ResetBios()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSecureBoot(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	enabled := vm.SecureBootEnabled()
	current := "Disabled"
	if enabled {
		current = "Enabled"
	}
	sb := SecureBoot{
		OdataContext:          "/redfish/v1/$metadata#SecureBoot.SecureBoot",
		OdataID:               s.systemPath() + "/SecureBoot",
		OdataType:             "#SecureBoot.v1_0_0.SecureBoot",
		ID:                    "SecureBoot",
		Name:                  "UEFI Secure Boot",
		SecureBootEnable:      enabled,
		SecureBootCurrentBoot: current,
		SecureBootMode:        "UserMode",
	}
	sb.Actions.ResetKeys.Target = s.systemPath() + "/SecureBoot/Actions/SecureBoot.ResetKeys"
	s.writeJSON(w, http.StatusOK, sb)
}

func (s *Server) patchSecureBoot(w http.ResponseWriter, r *http.Request) {
	vm := s.vmFromPath(w, chi.URLParam(r, "systemID"))
	if vm == nil {
		return
	}
	var body struct {
		SecureBootEnable *bool `json:"SecureBootEnable"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.SecureBootEnable != nil {
		vm.SetSecureBoot(*body.SecureBootEnable)
	}
	w.Header().Set("ETag", vm.ETag())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postSecureBootResetKeys(w http.ResponseWriter, r *http.Request) {
	if s.vmFromPath(w, chi.URLParam(r, "systemID")) == nil {
		return
	}
	// Key reset on a simulated platform clears nothing; acknowledge.
	w.WriteHeader(http.StatusNoContent)
}
