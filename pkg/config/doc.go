// Package config loads shelf configuration from SHELF_* environment
// variables and validates it before any component is constructed. All
// external collaborators (database, blob store, cache) receive their
// settings through explicit constructor arguments, never ambient state.
package config
