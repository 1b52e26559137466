package reconciler

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"siteinit/internal/config"
)

// registryName is the shape of a safe registry identifier. Anything else in
// a bare name is either a typo or an attempt to smuggle arguments into the
// package-management subprocess; both are rejected, not sanitized.
var registryName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// shellMeta matches characters that must never appear in any identifier
// handed to the subprocess.
var shellMeta = regexp.MustCompile("[;&|`$<>(){}!*?'\"\\\\\x00\\s]")

// versionSuffix strips trailing ".x.y.z" or "-x.y.z" noise from archive
// basenames when deriving a stable identifier.
var versionSuffix = regexp.MustCompile(`[.-]v?[0-9]+(\.[0-9]+)*$`)

// desiredItem is one classified, validated desired extension.
type desiredItem struct {
	cfg    config.DesiredExtension
	source Source

	// id is the stable identifier the installed extension will carry.
	id string
	// spec is the argument handed to the install call.
	spec string
}

// classify determines an item's source and stable identifier, rejecting
// unsafe identifiers. Rejection is an item-level warning for the caller, not
// an abort.
func classify(ext config.DesiredExtension) (desiredItem, error) {
	item := desiredItem{cfg: ext}

	switch {
	case ext.URL != "":
		u, err := url.Parse(ext.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return item, fmt.Errorf("unusable url %q", ext.URL)
		}
		item.source = SourceDirectURL
		item.spec = ext.URL
		item.id = ext.Name
		if item.id == "" {
			item.id = stableIDFromArchive(path.Base(u.Path))
		}

	case strings.HasSuffix(ext.Name, ".zip"):
		if err := checkPathSafe(ext.Name); err != nil {
			return item, err
		}
		item.source = SourceExternalPackage
		item.spec = ext.Name
		item.id = stableIDFromArchive(path.Base(ext.Name))

	case ext.Version != "":
		item.source = SourceRegistryVersioned
		item.spec = ext.Name
		item.id = ext.Name

	default:
		item.source = SourceRegistry
		item.spec = ext.Name
		item.id = ext.Name
	}

	if item.id == "" {
		return item, fmt.Errorf("no stable identifier could be derived")
	}
	if err := checkIdentifierSafe(item.id); err != nil {
		return item, err
	}
	if item.source == SourceRegistry || item.source == SourceRegistryVersioned {
		if !registryName.MatchString(item.id) {
			return item, fmt.Errorf("unsafe registry name %q", item.id)
		}
	}
	return item, nil
}

func stableIDFromArchive(base string) string {
	id := strings.TrimSuffix(base, ".zip")
	id = strings.TrimSuffix(id, ".tar.gz")
	return versionSuffix.ReplaceAllString(id, "")
}

func checkIdentifierSafe(id string) error {
	if strings.HasPrefix(id, "-") {
		return fmt.Errorf("identifier %q would be parsed as a flag", id)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("identifier %q contains a path traversal sequence", id)
	}
	if shellMeta.MatchString(id) {
		return fmt.Errorf("identifier %q contains shell metacharacters", id)
	}
	return nil
}

func checkPathSafe(p string) error {
	if strings.HasPrefix(p, "-") {
		return fmt.Errorf("package path %q would be parsed as a flag", p)
	}
	if strings.Contains(p, "..") {
		return fmt.Errorf("package path %q contains a path traversal sequence", p)
	}
	if shellMeta.MatchString(p) {
		return fmt.Errorf("package path %q contains shell metacharacters", p)
	}
	return nil
}
