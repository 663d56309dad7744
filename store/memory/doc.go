// Package memory implements store.Store entirely in process memory.
//
// Commits hold a single store-wide lock while checking guards and applying
// writes, which gives serializable transitions. The store is intended for
// unit tests and development; nothing survives a restart.
package memory
