// Package redfish serves the DMTF Redfish resource tree for one managed VM:
// Systems, Managers, Chassis, UpdateService, TaskService, EventService, and
// SessionService, over TLS with Basic and token authentication.
//
// The tree is read-mostly and designed so the paths an orchestrator polls
// never fail: when vCenter is unreachable, handlers serve cached or
// synthetic payloads with Status.Health "OK" instead of errors.
package redfish

// Link is a reference to another resource by identity.
type Link struct {
	OdataID string `json:"@odata.id"`
}

// Status is the common Redfish status block.
type Status struct {
	State        string `json:"State"`
	Health       string `json:"Health"`
	HealthRollup string `json:"HealthRollup,omitempty"`
}

func statusOK() Status {
	return Status{State: "Enabled", Health: "OK", HealthRollup: "OK"}
}

// Collection is the generic Redfish resource collection shape.
type Collection struct {
	OdataContext string `json:"@odata.context"`
	OdataID      string `json:"@odata.id"`
	OdataType    string `json:"@odata.type"`
	Name         string `json:"Name"`
	MembersCount int    `json:"Members@odata.count"`
	Members      []Link `json:"Members"`
}

// ServiceRoot is the entry point at /redfish/v1/.
type ServiceRoot struct {
	OdataContext   string `json:"@odata.context"`
	OdataID        string `json:"@odata.id"`
	OdataType      string `json:"@odata.type"`
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	RedfishVersion string `json:"RedfishVersion"`
	UUID           string `json:"UUID"`
	Systems        Link   `json:"Systems"`
	Chassis        Link   `json:"Chassis"`
	Managers       Link   `json:"Managers"`
	SessionService Link   `json:"SessionService"`
	UpdateService  Link   `json:"UpdateService"`
	TaskService    Link   `json:"TaskService"`
	EventService   Link   `json:"EventService"`
	Links          struct {
		Sessions Link `json:"Sessions"`
	} `json:"Links"`
}

// Boot is the ComputerSystem boot block.
type Boot struct {
	BootSourceOverrideTarget  string   `json:"BootSourceOverrideTarget"`
	BootSourceOverrideEnabled string   `json:"BootSourceOverrideEnabled"`
	BootSourceOverrideMode    string   `json:"BootSourceOverrideMode"`
	AllowableValues           []string `json:"BootSourceOverrideTarget@Redfish.AllowableValues"`
}

// ProcessorSummary summarizes CPU inventory.
type ProcessorSummary struct {
	Count  int    `json:"Count"`
	Model  string `json:"Model"`
	Status Status `json:"Status"`
}

// MemorySummary summarizes memory inventory.
type MemorySummary struct {
	TotalSystemMemoryGiB float64 `json:"TotalSystemMemoryGiB"`
	Status               Status  `json:"Status"`
}

// ComputerSystem is one VM presented as a physical server.
type ComputerSystem struct {
	OdataContext     string           `json:"@odata.context"`
	OdataID          string           `json:"@odata.id"`
	OdataType        string           `json:"@odata.type"`
	ID               string           `json:"Id"`
	Name             string           `json:"Name"`
	SystemType       string           `json:"SystemType"`
	AssetTag         string           `json:"AssetTag"`
	Manufacturer     string           `json:"Manufacturer"`
	Model            string           `json:"Model"`
	SerialNumber     string           `json:"SerialNumber"`
	UUID             string           `json:"UUID"`
	PowerState       string           `json:"PowerState"`
	Status           Status           `json:"Status"`
	Boot             Boot             `json:"Boot"`
	BiosVersion      string           `json:"BiosVersion"`
	ProcessorSummary ProcessorSummary `json:"ProcessorSummary"`
	MemorySummary    MemorySummary    `json:"MemorySummary"`
	Processors       Link             `json:"Processors"`
	Memory           Link             `json:"Memory"`
	EthernetInterfaces Link `json:"EthernetInterfaces"`
	Storage          Link             `json:"Storage"`
	Bios             Link             `json:"Bios"`
	SecureBoot       Link             `json:"SecureBoot"`
	LogServices      Link             `json:"LogServices"`
	Actions          struct {
		Reset struct {
			Target          string   `json:"target"`
			AllowableValues []string `json:"ResetType@Redfish.AllowableValues"`
		} `json:"#ComputerSystem.Reset"`
	} `json:"Actions"`
	Links struct {
		ManagedBy []Link `json:"ManagedBy"`
		Chassis   []Link `json:"Chassis"`
	} `json:"Links"`
}

// Processor is one CPU package.
type Processor struct {
	OdataContext          string `json:"@odata.context"`
	OdataID               string `json:"@odata.id"`
	OdataType             string `json:"@odata.type"`
	ID                    string `json:"Id"`
	Name                  string `json:"Name"`
	ProcessorType         string `json:"ProcessorType"`
	ProcessorArchitecture string `json:"ProcessorArchitecture"`
	InstructionSet        string `json:"InstructionSet"`
	Manufacturer          string `json:"Manufacturer"`
	Model                 string `json:"Model"`
	MaxSpeedMHz           int    `json:"MaxSpeedMHz"`
	TotalCores            int    `json:"TotalCores"`
	TotalThreads          int    `json:"TotalThreads"`
	Status                Status `json:"Status"`
}

// Memory is one DIMM.
type Memory struct {
	OdataContext     string `json:"@odata.context"`
	OdataID          string `json:"@odata.id"`
	OdataType        string `json:"@odata.type"`
	ID               string `json:"Id"`
	Name             string `json:"Name"`
	CapacityMiB      int64  `json:"CapacityMiB"`
	MemoryDeviceType string `json:"MemoryDeviceType"`
	Manufacturer     string `json:"Manufacturer"`
	OperatingSpeedMhz int   `json:"OperatingSpeedMhz"`
	Status           Status `json:"Status"`
}

// EthernetInterface is one NIC.
type EthernetInterface struct {
	OdataContext string `json:"@odata.context"`
	OdataID      string `json:"@odata.id"`
	OdataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	MACAddress   string `json:"MACAddress"`
	SpeedMbps    int    `json:"SpeedMbps"`
	LinkStatus   string `json:"LinkStatus"`
	Status       Status `json:"Status"`
}

// Storage is one storage subsystem.
type Storage struct {
	OdataContext       string              `json:"@odata.context"`
	OdataID            string              `json:"@odata.id"`
	OdataType          string              `json:"@odata.type"`
	ID                 string              `json:"Id"`
	Name               string              `json:"Name"`
	Status             Status              `json:"Status"`
	StorageControllers []StorageController `json:"StorageControllers"`
	Drives             []Link              `json:"Drives"`
	DrivesCount        int                 `json:"Drives@odata.count"`
	Volumes            Link                `json:"Volumes"`
}

// StorageController is an embedded controller description.
type StorageController struct {
	OdataID                      string   `json:"@odata.id"`
	MemberID                     string   `json:"MemberId"`
	Name                         string   `json:"Name"`
	Manufacturer                 string   `json:"Manufacturer"`
	Model                        string   `json:"Model"`
	FirmwareVersion              string   `json:"FirmwareVersion"`
	SupportedRAIDTypes           []string `json:"SupportedRAIDTypes"`
	Status                       Status   `json:"Status"`
}

// Drive is one disk.
type Drive struct {
	OdataContext  string `json:"@odata.context"`
	OdataID       string `json:"@odata.id"`
	OdataType     string `json:"@odata.type"`
	ID            string `json:"Id"`
	Name          string `json:"Name"`
	MediaType     string `json:"MediaType"`
	CapacityBytes int64  `json:"CapacityBytes"`
	Protocol      string `json:"Protocol"`
	Status        Status `json:"Status"`
}

// Volume is one simulated RAID volume.
type Volume struct {
	OdataContext  string `json:"@odata.context"`
	OdataID       string `json:"@odata.id"`
	OdataType     string `json:"@odata.type"`
	ID            string `json:"Id"`
	Name          string `json:"Name"`
	RAIDType      string `json:"RAIDType"`
	CapacityBytes int64  `json:"CapacityBytes"`
	Status        Status `json:"Status"`
}

// Bios carries the attribute map.
type Bios struct {
	OdataContext string         `json:"@odata.context"`
	OdataID      string         `json:"@odata.id"`
	OdataType    string         `json:"@odata.type"`
	ID           string         `json:"Id"`
	Name         string         `json:"Name"`
	Attributes   map[string]any `json:"Attributes"`
	Actions      struct {
		ResetBios struct {
			Target string `json:"target"`
		} `json:"#Bios.ResetBios"`
	} `json:"Actions"`
}

// SecureBoot reports and controls the secure boot flag.
type SecureBoot struct {
	OdataContext          string `json:"@odata.context"`
	OdataID               string `json:"@odata.id"`
	OdataType             string `json:"@odata.type"`
	ID                    string `json:"Id"`
	Name                  string `json:"Name"`
	SecureBootEnable      bool   `json:"SecureBootEnable"`
	SecureBootCurrentBoot string `json:"SecureBootCurrentBoot"`
	SecureBootMode        string `json:"SecureBootMode"`
	Actions               struct {
		ResetKeys struct {
			Target string `json:"target"`
		} `json:"#SecureBoot.ResetKeys"`
	} `json:"Actions"`
}

// Manager is the simulated BMC.
type Manager struct {
	OdataContext    string `json:"@odata.context"`
	OdataID         string `json:"@odata.id"`
	OdataType       string `json:"@odata.type"`
	ID              string `json:"Id"`
	Name            string `json:"Name"`
	ManagerType     string `json:"ManagerType"`
	Model           string `json:"Model"`
	UUID            string `json:"UUID"`
	FirmwareVersion string `json:"FirmwareVersion"`
	Status          Status `json:"Status"`
	VirtualMedia    Link   `json:"VirtualMedia"`
	LogServices     Link   `json:"LogServices"`
	EthernetInterfaces Link `json:"EthernetInterfaces"`
	Actions         struct {
		Reset struct {
			Target          string   `json:"target"`
			AllowableValues []string `json:"ResetType@Redfish.AllowableValues"`
		} `json:"#Manager.Reset"`
	} `json:"Actions"`
	Links struct {
		ManagerForServers []Link `json:"ManagerForServers"`
		ManagerForChassis []Link `json:"ManagerForChassis"`
	} `json:"Links"`
}

// VirtualMedia is one removable media slot.
type VirtualMedia struct {
	OdataContext   string   `json:"@odata.context"`
	OdataID        string   `json:"@odata.id"`
	OdataType      string   `json:"@odata.type"`
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	MediaTypes     []string `json:"MediaTypes"`
	Image          string   `json:"Image"`
	ImageName      string   `json:"ImageName"`
	ConnectedVia   string   `json:"ConnectedVia"`
	Inserted       bool     `json:"Inserted"`
	WriteProtected bool     `json:"WriteProtected"`
	Actions        struct {
		Insert struct {
			Target string `json:"target"`
		} `json:"#VirtualMedia.InsertMedia"`
		Eject struct {
			Target string `json:"target"`
		} `json:"#VirtualMedia.EjectMedia"`
	} `json:"Actions"`
}

// Chassis is the synthetic enclosure.
type Chassis struct {
	OdataContext string `json:"@odata.context"`
	OdataID      string `json:"@odata.id"`
	OdataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	ChassisType  string `json:"ChassisType"`
	Manufacturer string `json:"Manufacturer"`
	Model        string `json:"Model"`
	SerialNumber string `json:"SerialNumber"`
	PowerState   string `json:"PowerState"`
	Status       Status `json:"Status"`
	Power        Link   `json:"Power"`
	Thermal      Link   `json:"Thermal"`
	NetworkAdapters Link `json:"NetworkAdapters"`
	Links        struct {
		ComputerSystems []Link `json:"ComputerSystems"`
		ManagedBy       []Link `json:"ManagedBy"`
	} `json:"Links"`
}

// PowerControl is one power domain reading.
type PowerControl struct {
	OdataID            string  `json:"@odata.id"`
	MemberID           string  `json:"MemberId"`
	Name               string  `json:"Name"`
	PowerConsumedWatts float64 `json:"PowerConsumedWatts"`
	PowerCapacityWatts float64 `json:"PowerCapacityWatts"`
	Status             Status  `json:"Status"`
}

// PowerVoltage is one voltage rail reading.
type PowerVoltage struct {
	OdataID      string  `json:"@odata.id"`
	MemberID     string  `json:"MemberId"`
	Name         string  `json:"Name"`
	ReadingVolts float64 `json:"ReadingVolts"`
	Status       Status  `json:"Status"`
}

// PowerSupply is one PSU.
type PowerSupply struct {
	OdataID            string  `json:"@odata.id"`
	MemberID           string  `json:"MemberId"`
	Name               string  `json:"Name"`
	PowerSupplyType    string  `json:"PowerSupplyType"`
	PowerCapacityWatts float64 `json:"PowerCapacityWatts"`
	Model              string  `json:"Model"`
	Status             Status  `json:"Status"`
}

// Power is the Chassis Power sub-resource.
type Power struct {
	OdataContext  string         `json:"@odata.context"`
	OdataID       string         `json:"@odata.id"`
	OdataType     string         `json:"@odata.type"`
	ID            string         `json:"Id"`
	Name          string         `json:"Name"`
	PowerControl  []PowerControl `json:"PowerControl"`
	Voltages      []PowerVoltage `json:"Voltages"`
	PowerSupplies []PowerSupply  `json:"PowerSupplies"`
}

// Temperature is one thermal probe reading.
type Temperature struct {
	OdataID                   string  `json:"@odata.id"`
	MemberID                  string  `json:"MemberId"`
	Name                      string  `json:"Name"`
	ReadingCelsius            float64 `json:"ReadingCelsius"`
	UpperThresholdCritical    float64 `json:"UpperThresholdCritical"`
	UpperThresholdNonCritical float64 `json:"UpperThresholdNonCritical"`
	Status                    Status  `json:"Status"`
}

// Fan is one cooling device reading.
type Fan struct {
	OdataID  string `json:"@odata.id"`
	MemberID string `json:"MemberId"`
	Name     string `json:"Name"`
	Reading  int    `json:"Reading"`
	ReadingUnits string `json:"ReadingUnits"`
	Status   Status `json:"Status"`
}

// Thermal is the Chassis Thermal sub-resource.
type Thermal struct {
	OdataContext string        `json:"@odata.context"`
	OdataID      string        `json:"@odata.id"`
	OdataType    string        `json:"@odata.type"`
	ID           string        `json:"Id"`
	Name         string        `json:"Name"`
	Temperatures []Temperature `json:"Temperatures"`
	Fans         []Fan         `json:"Fans"`
}

// NetworkAdapter is one chassis-level NIC.
type NetworkAdapter struct {
	OdataContext string `json:"@odata.context"`
	OdataID      string `json:"@odata.id"`
	OdataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	Manufacturer string `json:"Manufacturer"`
	Model        string `json:"Model"`
	Status       Status `json:"Status"`
}

// LogService is one log endpoint (EventLog or SEL).
type LogService struct {
	OdataContext    string `json:"@odata.context"`
	OdataID         string `json:"@odata.id"`
	OdataType       string `json:"@odata.type"`
	ID              string `json:"Id"`
	Name            string `json:"Name"`
	OverWritePolicy string `json:"OverWritePolicy"`
	MaxNumberOfRecords int `json:"MaxNumberOfRecords"`
	Status          Status `json:"Status"`
	Entries         Link   `json:"Entries"`
	Actions         struct {
		ClearLog struct {
			Target string `json:"target"`
		} `json:"#LogService.ClearLog"`
	} `json:"Actions"`
}

// LogEntry is one event record.
type LogEntry struct {
	OdataContext string `json:"@odata.context"`
	OdataID      string `json:"@odata.id"`
	OdataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	EntryType    string `json:"EntryType"`
	Severity     string `json:"Severity"`
	Created      string `json:"Created"`
	Message      string `json:"Message"`
	SensorType   string `json:"SensorType,omitempty"`
}

// SoftwareInventory is one firmware or software component.
type SoftwareInventory struct {
	OdataContext           string `json:"@odata.context"`
	OdataID                string `json:"@odata.id"`
	OdataType              string `json:"@odata.type"`
	ID                     string `json:"Id"`
	Name                   string `json:"Name"`
	Description            string `json:"Description"`
	Version                string `json:"Version"`
	Manufacturer           string `json:"Manufacturer"`
	ReleaseDate            string `json:"ReleaseDate"`
	SoftwareID             string `json:"SoftwareId"`
	LowestSupportedVersion string `json:"LowestSupportedVersion"`
	Updateable             bool   `json:"Updateable"`
	Status                 Status `json:"Status"`
	RelatedItem            []Link `json:"RelatedItem"`
}

// UpdateService is the firmware update front end.
type UpdateService struct {
	OdataContext      string `json:"@odata.context"`
	OdataID           string `json:"@odata.id"`
	OdataType         string `json:"@odata.type"`
	ID                string `json:"Id"`
	Name              string `json:"Name"`
	ServiceEnabled    bool   `json:"ServiceEnabled"`
	MultipartHttpPushURI string `json:"MultipartHttpPushUri"`
	FirmwareInventory Link   `json:"FirmwareInventory"`
	SoftwareInventory Link   `json:"SoftwareInventory"`
	Status            Status `json:"Status"`
	Actions           struct {
		SimpleUpdate struct {
			Target                  string   `json:"target"`
			TransferProtocolValues  []string `json:"TransferProtocol@Redfish.AllowableValues"`
		} `json:"#UpdateService.SimpleUpdate"`
		StartUpdate struct {
			Target string `json:"target"`
		} `json:"#UpdateService.StartUpdate"`
	} `json:"Actions"`
}

// TaskMessage is one message in a task.
type TaskMessage struct {
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
	Severity  string `json:"Severity"`
}

// Task is one asynchronous operation resource.
type Task struct {
	OdataContext    string        `json:"@odata.context"`
	OdataID         string        `json:"@odata.id"`
	OdataType       string        `json:"@odata.type"`
	ID              string        `json:"Id"`
	Name            string        `json:"Name"`
	TaskState       string        `json:"TaskState"`
	TaskStatus      string        `json:"TaskStatus"`
	PercentComplete int           `json:"PercentComplete"`
	StartTime       string        `json:"StartTime"`
	EndTime         string        `json:"EndTime,omitempty"`
	TargetURI       string        `json:"TargetUri,omitempty"`
	Messages        []TaskMessage `json:"Messages"`
}

// TaskService is the task front end.
type TaskService struct {
	OdataContext                    string `json:"@odata.context"`
	OdataID                         string `json:"@odata.id"`
	OdataType                       string `json:"@odata.type"`
	ID                              string `json:"Id"`
	Name                            string `json:"Name"`
	DateTime                        string `json:"DateTime"`
	CompletedTaskOverWritePolicy    string `json:"CompletedTaskOverWritePolicy"`
	LifeCycleEventOnTaskStateChange bool   `json:"LifeCycleEventOnTaskStateChange"`
	ServiceEnabled                  bool   `json:"ServiceEnabled"`
	Status                          Status `json:"Status"`
	Tasks                           Link   `json:"Tasks"`
}

// EventService advertises subscription capabilities.
type EventService struct {
	OdataContext               string   `json:"@odata.context"`
	OdataID                    string   `json:"@odata.id"`
	OdataType                  string   `json:"@odata.type"`
	ID                         string   `json:"Id"`
	Name                       string   `json:"Name"`
	ServiceEnabled             bool     `json:"ServiceEnabled"`
	DeliveryRetryAttempts      int      `json:"DeliveryRetryAttempts"`
	DeliveryRetryIntervalSeconds int    `json:"DeliveryRetryIntervalSeconds"`
	EventTypesForSubscription  []string `json:"EventTypesForSubscription"`
	Subscriptions              Link     `json:"Subscriptions"`
	Status                     Status   `json:"Status"`
}

// EventDestination is one push subscription.
type EventDestination struct {
	OdataContext string   `json:"@odata.context"`
	OdataID      string   `json:"@odata.id"`
	OdataType    string   `json:"@odata.type"`
	ID           string   `json:"Id"`
	Name         string   `json:"Name"`
	Destination  string   `json:"Destination"`
	EventTypes   []string `json:"EventTypes"`
	Context      string   `json:"Context"`
	Protocol     string   `json:"Protocol"`
}

// SessionService is the session front end.
type SessionService struct {
	OdataContext   string `json:"@odata.context"`
	OdataID        string `json:"@odata.id"`
	OdataType      string `json:"@odata.type"`
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	ServiceEnabled bool   `json:"ServiceEnabled"`
	SessionTimeout int    `json:"SessionTimeout"`
	Sessions       Link   `json:"Sessions"`
}

// Session is one authenticated session resource.
type Session struct {
	OdataContext string `json:"@odata.context"`
	OdataID      string `json:"@odata.id"`
	OdataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	UserName     string `json:"UserName"`
}

// redfishError is the standard error envelope.
type redfishError struct {
	Error struct {
		Code         string `json:"code"`
		Message      string `json:"message"`
		ExtendedInfo []struct {
			MessageID string `json:"MessageId"`
			Message   string `json:"Message"`
		} `json:"@Message.ExtendedInfo"`
	} `json:"error"`
}
