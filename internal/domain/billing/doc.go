// Package billing provides the domain model for lease billing in a tenant database.
//
// This package implements the billing bounded context, which is responsible for:
//   - Generating rent invoices with date-based proration and per-month sequential numbers
//   - Tracking invoice lifecycle (draft, posted, paid, cancelled) as payments are applied
//   - Keeping meter reading consumption consistent with the full ordered reading history
//   - Allocating a building-level meter reading across unit sub-meters
//
// Key Aggregates:
//   - Contract: A lease of a unit to a customer, billed monthly or daily
//   - Invoice: A billing document with rent, service and meter lines
//   - Meter: A building-level or unit-level meter tied to a service
//
// Every repository in this package operates on the database of the tenant
// resolved for the current operation; none of them carry a tenant column.
package billing
