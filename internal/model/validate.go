package model

import (
	"runtime"
	"strings"

	"github.com/omniscope/libr/internal/errs"
)

// MaxNameLength is the longest folder name accepted, matching the common
// filesystem component limit.
const MaxNameLength = 255

// Names reserved by Windows regardless of extension.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

func errRequired(field string) error {
	return errs.Validationf("%s is required", field)
}

func errInvalidKind(kind string) error {
	return errs.Validationf("unknown folder kind %q", kind)
}

func errRootHasParent() error {
	return errs.Validationf("library root cannot have a parent")
}

func errVirtualDiskPath(name string) error {
	return errs.Validationf("virtual folder %q cannot own a disk path", name)
}

// ValidateName checks a folder or file component name against the rules every
// mutation enforces before touching disk: non-empty, at most 255 characters,
// no path separators or null bytes, not "." or "..", no leading or trailing
// whitespace, and no platform-reserved names on platforms that reserve them.
func ValidateName(name string) error {
	if name == "" {
		return errs.Validationf("name is empty")
	}
	if len(name) > MaxNameLength {
		return errs.Validationf("name exceeds %d characters (got %d)", MaxNameLength, len(name))
	}
	if name == "." || name == ".." {
		return errs.Validationf("name %q is reserved", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return errs.Validationf("name %q contains a path separator", name)
	}
	if strings.ContainsRune(name, 0) {
		return errs.Validationf("name contains a null byte")
	}
	if name != strings.TrimSpace(name) {
		return errs.Validationf("name %q has leading or trailing whitespace", name)
	}
	if runtime.GOOS == "windows" {
		stem := name
		if i := strings.IndexByte(stem, '.'); i >= 0 {
			stem = stem[:i]
		}
		if windowsReserved[strings.ToUpper(stem)] {
			return errs.Validationf("name %q is reserved on this platform", name)
		}
	}
	return nil
}
