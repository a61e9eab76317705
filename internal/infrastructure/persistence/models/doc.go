// Package models contains GORM persistence models. Domain types carry no ORM tags;
// each model converts to and from its domain type with ToDomain / FromDomain.
//
// ControlModels live in the control database; TenantModels are created in every
// tenant database.
package models
