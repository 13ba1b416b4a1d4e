package vsphere

import "errors"

var (
	// ErrUpstreamUnavailable is returned after retry exhaustion on any
	// transient vCenter failure. Protocol handlers translate it into their
	// soft-success fallback; it must never surface to the orchestrator.
	ErrUpstreamUnavailable = errors.New("vcenter unavailable")

	// ErrVMNotFound is returned when the inventory lookup for a VM name
	// fails. It is not retried.
	ErrVMNotFound = errors.New("vm not found")
)
