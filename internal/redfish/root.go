package redfish

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getServiceRoot(w http.ResponseWriter, _ *http.Request) {
	root := ServiceRoot{
		OdataContext:   "/redfish/v1/$metadata#ServiceRoot.ServiceRoot",
		OdataID:        "/redfish/v1/",
		OdataType:      "#ServiceRoot.v1_5_0.ServiceRoot",
		ID:             "RootService",
		Name:           "vbridge Redfish Service",
		RedfishVersion: "1.6.0",
		UUID:           "92384634-2938-2342-8820-" + padVMHex(s.vmName),
		Systems:        Link{OdataID: "/redfish/v1/Systems"},
		Chassis:        Link{OdataID: "/redfish/v1/Chassis"},
		Managers:       Link{OdataID: "/redfish/v1/Managers"},
		SessionService: Link{OdataID: "/redfish/v1/SessionService"},
		UpdateService:  Link{OdataID: "/redfish/v1/UpdateService"},
		TaskService:    Link{OdataID: "/redfish/v1/TaskService"},
		EventService:   Link{OdataID: "/redfish/v1/EventService"},
	}
	root.Links.Sessions = Link{OdataID: "/redfish/v1/SessionService/Sessions"}
	s.writeJSON(w, http.StatusOK, root)
}

func (s *Server) getSessionService(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, SessionService{
		OdataContext:   "/redfish/v1/$metadata#SessionService.SessionService",
		OdataID:        "/redfish/v1/SessionService",
		OdataType:      "#SessionService.v1_1_7.SessionService",
		ID:             "SessionService",
		Name:           "Session Service",
		ServiceEnabled: true,
		SessionTimeout: int(sessionTimeout.Seconds()),
		Sessions:       Link{OdataID: "/redfish/v1/SessionService/Sessions"},
	})
}

func (s *Server) getSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.tokens.list()
	members := make([]Link, 0, len(ids))
	for _, id := range ids {
		members = append(members, Link{OdataID: "/redfish/v1/SessionService/Sessions/" + id})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#SessionCollection.SessionCollection",
		OdataID:      "/redfish/v1/SessionService/Sessions",
		OdataType:    "#SessionCollection.SessionCollection",
		Name:         "Session Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) postSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserName string `json:"UserName"`
		Password string `json:"Password"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	want, ok := s.users[body.UserName]
	if !ok || want != body.Password {
		s.writeError(w, http.StatusUnauthorized, "Base.1.0.GeneralError",
			"Invalid user name or password")
		return
	}

	id, token := s.tokens.create(body.UserName)
	location := "/redfish/v1/SessionService/Sessions/" + id
	w.Header().Set("X-Auth-Token", token)
	w.Header().Set("Location", location)
	s.writeJSON(w, http.StatusCreated, Session{
		OdataContext: "/redfish/v1/$metadata#Session.Session",
		OdataID:      location,
		OdataType:    "#Session.v1_0_0.Session",
		ID:           id,
		Name:         "User Session",
		UserName:     body.UserName,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.tokens.get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such session")
		return
	}
	s.writeJSON(w, http.StatusOK, Session{
		OdataContext: "/redfish/v1/$metadata#Session.Session",
		OdataID:      "/redfish/v1/SessionService/Sessions/" + id,
		OdataType:    "#Session.v1_0_0.Session",
		ID:           id,
		Name:         "User Session",
		UserName:     sess.user,
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.tokens.remove(id) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// padVMHex derives a stable hex suffix from the VM name for synthetic UUIDs.
func padVMHex(name string) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 12)
	for i := range out {
		var b byte
		if i < len(name) {
			b = name[i]
		}
		out[i] = hexDigits[b&0x0F]
	}
	return string(out)
}
