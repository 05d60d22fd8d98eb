// Package app provides the application service layer.
//
// Orchestrates use cases: item intake through the dedup gate, signal claim
// workers, threshold evaluation with per-target locking, predictor
// invalidation and the maintenance sweep. Sits between HTTP handlers and
// domain repositories. Depends on domain interfaces, not concrete
// implementations.
package app
