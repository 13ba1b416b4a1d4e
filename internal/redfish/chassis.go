package redfish

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) chassisFromPath(w http.ResponseWriter, id string) bool {
	if id != s.chassisID() {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such chassis "+id)
		return false
	}
	return true
}

func (s *Server) getChassisCollection(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#ChassisCollection.ChassisCollection",
		OdataID:      "/redfish/v1/Chassis",
		OdataType:    "#ChassisCollection.ChassisCollection",
		Name:         "Chassis Collection",
		MembersCount: 1,
		Members:      []Link{{OdataID: s.chassisPath()}},
	})
}

func (s *Server) getChassis(w http.ResponseWriter, r *http.Request) {
	if !s.chassisFromPath(w, chi.URLParam(r, "chassisID")) {
		return
	}
	c := Chassis{
		OdataContext:    "/redfish/v1/$metadata#Chassis.Chassis",
		OdataID:         s.chassisPath(),
		OdataType:       "#Chassis.v1_9_0.Chassis",
		ID:              s.chassisID(),
		Name:            "Computer System Chassis",
		ChassisType:     "RackMount",
		Manufacturer:    "VMware",
		Model:           "VMware Virtual Platform",
		SerialNumber:    "VMware-" + padVMHex(s.vmName),
		PowerState:      s.refreshPower(r.Context()),
		Status:          statusOK(),
		Power:           Link{OdataID: s.chassisPath() + "/Power"},
		Thermal:         Link{OdataID: s.chassisPath() + "/Thermal"},
		NetworkAdapters: Link{OdataID: s.chassisPath() + "/NetworkAdapters"},
	}
	c.Links.ComputerSystems = []Link{{OdataID: s.systemPath()}}
	c.Links.ManagedBy = []Link{{OdataID: s.managerPath()}}
	s.writeJSON(w, http.StatusOK, c)
}

// Synthetic sensor constants. Stable values keep repeated inspections
// byte-for-byte identical.
const (
	powerConsumedWatts = 180.0
	powerCapacityWatts = 750.0
	cpuTempCelsius     = 45.0
	systemTempCelsius  = 35.0
	fan1RPM            = 4200
	fan2RPM            = 3800
)

func (s *Server) getChassisPower(w http.ResponseWriter, r *http.Request) {
	if !s.chassisFromPath(w, chi.URLParam(r, "chassisID")) {
		return
	}
	base := s.chassisPath() + "/Power"
	s.writeJSON(w, http.StatusOK, Power{
		OdataContext: "/redfish/v1/$metadata#Power.Power",
		OdataID:      base,
		OdataType:    "#Power.v1_5_0.Power",
		ID:           "Power",
		Name:         "Power",
		PowerControl: []PowerControl{{
			OdataID:            base + "#/PowerControl/0",
			MemberID:           "0",
			Name:               "System Power Control",
			PowerConsumedWatts: powerConsumedWatts,
			PowerCapacityWatts: powerCapacityWatts,
			Status:             statusOK(),
		}},
		Voltages: []PowerVoltage{
			{OdataID: base + "#/Voltages/0", MemberID: "0", Name: "VRM1 Voltage", ReadingVolts: 12.0, Status: statusOK()},
			{OdataID: base + "#/Voltages/1", MemberID: "1", Name: "VRM2 Voltage", ReadingVolts: 5.0, Status: statusOK()},
			{OdataID: base + "#/Voltages/2", MemberID: "2", Name: "VRM3 Voltage", ReadingVolts: 3.3, Status: statusOK()},
		},
		PowerSupplies: []PowerSupply{
			{
				OdataID: base + "#/PowerSupplies/0", MemberID: "0", Name: "Power Supply 1",
				PowerSupplyType: "AC", PowerCapacityWatts: powerCapacityWatts,
				Model: "VMware PSU", Status: statusOK(),
			},
			{
				OdataID: base + "#/PowerSupplies/1", MemberID: "1", Name: "Power Supply 2",
				PowerSupplyType: "AC", PowerCapacityWatts: powerCapacityWatts,
				Model: "VMware PSU", Status: statusOK(),
			},
		},
	})
}

func (s *Server) getChassisThermal(w http.ResponseWriter, r *http.Request) {
	if !s.chassisFromPath(w, chi.URLParam(r, "chassisID")) {
		return
	}
	base := s.chassisPath() + "/Thermal"
	s.writeJSON(w, http.StatusOK, Thermal{
		OdataContext: "/redfish/v1/$metadata#Thermal.Thermal",
		OdataID:      base,
		OdataType:    "#Thermal.v1_4_0.Thermal",
		ID:           "Thermal",
		Name:         "Thermal",
		Temperatures: []Temperature{
			{
				OdataID: base + "#/Temperatures/0", MemberID: "0", Name: "CPU1 Temp",
				ReadingCelsius: cpuTempCelsius, UpperThresholdCritical: 90, UpperThresholdNonCritical: 80,
				Status: statusOK(),
			},
			{
				OdataID: base + "#/Temperatures/1", MemberID: "1", Name: "System Board Temp",
				ReadingCelsius: systemTempCelsius, UpperThresholdCritical: 70, UpperThresholdNonCritical: 60,
				Status: statusOK(),
			},
		},
		Fans: []Fan{
			{OdataID: base + "#/Fans/0", MemberID: "0", Name: "Fan 1", Reading: fan1RPM, ReadingUnits: "RPM", Status: statusOK()},
			{OdataID: base + "#/Fans/1", MemberID: "1", Name: "Fan 2", Reading: fan2RPM, ReadingUnits: "RPM", Status: statusOK()},
		},
	})
}

func (s *Server) getNetworkAdapters(w http.ResponseWriter, r *http.Request) {
	if !s.chassisFromPath(w, chi.URLParam(r, "chassisID")) {
		return
	}
	inv := s.inventory(r.Context())
	members := make([]Link, 0, len(inv.NICs))
	for i := range inv.NICs {
		members = append(members, Link{
			OdataID: s.chassisPath() + "/NetworkAdapters/NIC" + strconv.Itoa(i+1),
		})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#NetworkAdapterCollection.NetworkAdapterCollection",
		OdataID:      s.chassisPath() + "/NetworkAdapters",
		OdataType:    "#NetworkAdapterCollection.NetworkAdapterCollection",
		Name:         "Network Adapter Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) getNetworkAdapter(w http.ResponseWriter, r *http.Request) {
	if !s.chassisFromPath(w, chi.URLParam(r, "chassisID")) {
		return
	}
	id := chi.URLParam(r, "adapterID")
	inv := s.inventory(r.Context())
	found := false
	for i := range inv.NICs {
		if id == "NIC"+strconv.Itoa(i+1) {
			found = true
			break
		}
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such adapter "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, NetworkAdapter{
		OdataContext: "/redfish/v1/$metadata#NetworkAdapter.NetworkAdapter",
		OdataID:      s.chassisPath() + "/NetworkAdapters/" + id,
		OdataType:    "#NetworkAdapter.v1_0_0.NetworkAdapter",
		ID:           id,
		Name:         "Network Adapter " + id,
		Manufacturer: "VMware",
		Model:        "VMXNET3",
		Status:       statusOK(),
	})
}
