// Package domain defines the core domain types and interfaces.
//
// Model structs, lifecycle enumerations, sentinel errors, repository
// contracts, and the collaborator interfaces (assessor, notifier, locker).
// No implementation code lives here; keeping the interfaces on the consumer
// side prevents circular imports between the pipeline packages.
package domain
