package redfish

import "github.com/go-chi/chi/v5"

// routes declares the full resource tree. Every server hosts exactly one
// system; parametric segments still 404 on unknown identifiers.
func (s *Server) routes(r chi.Router) {
	r.Get("/redfish/v1", s.getServiceRoot)
	r.Get("/redfish/v1/", s.getServiceRoot)

	// Systems.
	r.Get("/redfish/v1/Systems", s.getSystemsCollection)
	r.Route("/redfish/v1/Systems/{systemID}", func(r chi.Router) {
		r.Get("/", s.getSystem)
		r.Patch("/", s.patchSystem)
		r.Post("/Actions/ComputerSystem.Reset", s.postSystemReset)

		r.Get("/Processors", s.getProcessors)
		r.Get("/Processors/{processorID}", s.getProcessor)
		r.Get("/Memory", s.getMemoryCollection)
		r.Get("/Memory/{memoryID}", s.getMemory)
		r.Get("/EthernetInterfaces", s.getEthernetInterfaces)
		r.Get("/EthernetInterfaces/{interfaceID}", s.getEthernetInterface)

		r.Get("/Storage", s.getStorageCollection)
		r.Get("/Storage/{storageID}", s.getStorage)
		r.Get("/Storage/{storageID}/Drives/{driveID}", s.getDrive)
		r.Get("/Storage/{storageID}/Volumes", s.getVolumes)
		r.Post("/Storage/{storageID}/Volumes", s.postVolume)
		r.Get("/Storage/{storageID}/Volumes/{volumeID}", s.getVolume)
		r.Delete("/Storage/{storageID}/Volumes/{volumeID}", s.deleteVolume)

		r.Get("/Bios", s.getBios)
		r.Patch("/Bios", s.patchBios)
		r.Post("/Bios/Actions/Bios.ResetBios", s.postBiosReset)
		r.Get("/SecureBoot", s.getSecureBoot)
		r.Patch("/SecureBoot", s.patchSecureBoot)
		r.Post("/SecureBoot/Actions/SecureBoot.ResetKeys", s.postSecureBootResetKeys)
	})

	// Managers.
	r.Get("/redfish/v1/Managers", s.getManagersCollection)
	r.Route("/redfish/v1/Managers/{managerID}", func(r chi.Router) {
		r.Get("/", s.getManager)
		r.Post("/Actions/Manager.Reset", s.postManagerReset)
		r.Get("/EthernetInterfaces", s.getManagerEthernetInterfaces)
		r.Get("/EthernetInterfaces/{interfaceID}", s.getManagerEthernetInterface)

		r.Get("/VirtualMedia", s.getVirtualMediaCollection)
		r.Get("/VirtualMedia/{mediaID}", s.getVirtualMedia)
		r.Post("/VirtualMedia/{mediaID}/Actions/VirtualMedia.InsertMedia", s.postInsertMedia)
		r.Post("/VirtualMedia/{mediaID}/Actions/VirtualMedia.EjectMedia", s.postEjectMedia)

		r.Get("/LogServices", s.getLogServices)
		r.Get("/LogServices/{logID}", s.getLogService)
		r.Get("/LogServices/{logID}/Entries", s.getLogEntries)
		r.Get("/LogServices/{logID}/Entries/{entryID}", s.getLogEntry)
		r.Post("/LogServices/{logID}/Actions/LogService.ClearLog", s.postClearLog)
	})

	// Chassis.
	r.Get("/redfish/v1/Chassis", s.getChassisCollection)
	r.Route("/redfish/v1/Chassis/{chassisID}", func(r chi.Router) {
		r.Get("/", s.getChassis)
		r.Get("/Power", s.getChassisPower)
		r.Get("/Thermal", s.getChassisThermal)
		r.Get("/NetworkAdapters", s.getNetworkAdapters)
		r.Get("/NetworkAdapters/{adapterID}", s.getNetworkAdapter)
	})

	// UpdateService.
	r.Get("/redfish/v1/UpdateService", s.getUpdateService)
	r.Get("/redfish/v1/UpdateService/FirmwareInventory", s.getFirmwareInventory)
	r.Get("/redfish/v1/UpdateService/FirmwareInventory/{componentID}", s.getFirmwareComponent)
	r.Get("/redfish/v1/UpdateService/SoftwareInventory", s.getSoftwareInventory)
	r.Get("/redfish/v1/UpdateService/SoftwareInventory/{componentID}", s.getSoftwareComponent)
	r.Post("/redfish/v1/UpdateService/Actions/UpdateService.SimpleUpdate", s.postSimpleUpdate)
	r.Post("/redfish/v1/UpdateService/Actions/UpdateService.StartUpdate", s.postStartUpdate)

	// TaskService.
	r.Get("/redfish/v1/TaskService", s.getTaskService)
	r.Get("/redfish/v1/TaskService/Tasks", s.getTasks)
	r.Get("/redfish/v1/TaskService/Tasks/{taskID}", s.getTask)
	r.Get("/redfish/v1/TaskService/Tasks/{taskID}/Monitor", s.getTaskMonitor)

	// EventService.
	r.Get("/redfish/v1/EventService", s.getEventService)
	r.Get("/redfish/v1/EventService/Subscriptions", s.getSubscriptions)
	r.Post("/redfish/v1/EventService/Subscriptions", s.postSubscription)
	r.Get("/redfish/v1/EventService/Subscriptions/{subscriptionID}", s.getSubscription)
	r.Delete("/redfish/v1/EventService/Subscriptions/{subscriptionID}", s.deleteSubscription)

	// SessionService.
	r.Get("/redfish/v1/SessionService", s.getSessionService)
	r.Get("/redfish/v1/SessionService/Sessions", s.getSessions)
	r.Post("/redfish/v1/SessionService/Sessions", s.postSession)
	r.Get("/redfish/v1/SessionService/Sessions/{sessionID}", s.getSession)
	r.Delete("/redfish/v1/SessionService/Sessions/{sessionID}", s.deleteSession)
}
