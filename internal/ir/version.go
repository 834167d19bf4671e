package ir

import (
	"fmt"
	"strings"
)

// MalformedIRError reports a field that failed construction or decode
// validation.
type MalformedIRError struct {
	Field  string
	Reason string
}

func (e *MalformedIRError) Error() string {
	return fmt.Sprintf("malformed ir: %s: %s", e.Field, e.Reason)
}

// VersionError reports an ir_version this generation cannot consume.
type VersionError struct {
	Got string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported ir_version %q (supported: %s.x)", e.Got, supportedMajor)
}

const supportedMajor = "1"

// CheckVersion gates a serialized ir_version. An unrecognized major version
// is a hard reject; any 1.x minor is accepted.
func CheckVersion(version string) error {
	if version == "" {
		return &VersionError{Got: version}
	}
	major, _, found := strings.Cut(version, ".")
	if !found || major != supportedMajor {
		return &VersionError{Got: version}
	}
	return nil
}
