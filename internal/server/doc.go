// Package server provides the HTTP surface: item intake, signal and target
// evaluation triggers, read endpoints and the observability routes.
package server
