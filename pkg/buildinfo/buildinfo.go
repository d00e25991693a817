// Package buildinfo exposes the sitekeeper version.
package buildinfo

import "runtime/debug"

// BinaryVersion is set at build time via -ldflags. Defaults to "dev".
var BinaryVersion = "dev"

// ModuleVersion returns the module version embedded by the Go toolchain (when available).
func ModuleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return ""
}

// Version returns the most specific version known: the ldflags value unless it
// is still "dev", in which case the module version is preferred.
func Version() string {
	if BinaryVersion != "dev" {
		return BinaryVersion
	}
	if mv := ModuleVersion(); mv != "" && mv != "(devel)" {
		return mv
	}
	return BinaryVersion
}
