// internal/domain/models/service.go
package models

// Service identifies one of the platform's independently billed offerings.
type Service string

const (
	ServiceAdvertiser Service = "advertiser"
	ServiceRecruiter  Service = "recruiter"
)

// Valid reports whether s names a known service.
func (s Service) Valid() bool {
	return s == ServiceAdvertiser || s == ServiceRecruiter
}

// Role returns the role tag granted when the service is paid-active.
// Services and roles share names on purpose: the claim set mirrors
// the service status one-to-one.
func (s Service) Role() string { return string(s) }

// BillingCycle is the charge interval a checkout session is scoped to.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// Valid reports whether c names a known billing cycle.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

// ServiceStatus is the canonical per-service subscription status.
type ServiceStatus string

const (
	StatusNone            ServiceStatus = "none"
	StatusPendingCheckout ServiceStatus = "pending_checkout"
	StatusPendingInvoice  ServiceStatus = "pending_invoice"
	StatusActive          ServiceStatus = "active"
	StatusCanceled        ServiceStatus = "canceled"
)
