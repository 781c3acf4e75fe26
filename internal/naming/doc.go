// Package naming turns module identifiers into canonical resource names and
// fetch URLs. It normalizes relative identifiers, applies context-scoped ID
// maps, and looks up registered URL prefixes. Results depend only on the
// identifier and the current table contents; nothing is cached.
package naming
