// Package util provides small helpers shared across the library that don't
// fit into domain-specific packages.
package util
