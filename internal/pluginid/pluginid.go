// Package pluginid derives the stable plugin_id used to key every other
// per-plugin resource (VFS root, sidecar config file, registries) from an
// npm-style package name (spec §3).
package pluginid

import "strings"

// FromPackageName derives a plugin_id from a package.json `name` field.
// Scoped names (`@org/name`) are sanitized to `org-name`; unscoped names
// are used verbatim. The mapping is deterministic but not collision-free:
// a scoped name and the unscoped name equal to its sanitized form give the
// same id (`@org/name` and `org-name`), and so do scoped names that split
// the same hyphenated string at a different point (`@a/b-c` and `@a-b/c`).
func FromPackageName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "@") {
		return name
	}
	rest := strings.TrimPrefix(name, "@")
	org, pkg, found := strings.Cut(rest, "/")
	if !found {
		return rest
	}
	return org + "-" + pkg
}
