// Package models contains the GORM persistence models of the sync engine.
// Domain types carry no ORM tags; each model converts to and from its domain
// type with ToDomain and <Model>FromDomain.
package models
