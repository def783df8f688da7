package content

import "errors"

// Sentinel errors returned (wrapped with fmt.Errorf and %w) by
// the fetch operations in this package, matching the error kinds named in
// spec §4.A's operation table.
var (
	ErrNotInMapping      = errors.New("path not present in content mapping")
	ErrNetwork           = errors.New("network error fetching content")
	ErrParse             = errors.New("failed to parse content")
	ErrDependencyMissing = errors.New("gltf dependency could not be resolved")
	ErrDecode            = errors.New("failed to decode content")
	ErrIO                = errors.New("local storage io error")
	ErrNotFound          = errors.New("content not found")
)
