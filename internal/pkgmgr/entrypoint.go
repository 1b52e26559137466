package pkgmgr

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// headerProbeLimit bounds how much of a candidate file is scanned for the
// declaration header.
const headerProbeLimit = 8 * 1024

// EntryPoint resolves the canonical identifier the store's auto-update
// option expects. Themes are identified by their directory; plugins by
// "dir/file.php", where the file is usually, but not always, named after the
// directory. When the convention does not hold, the plugin's files are
// inspected for the declaration header.
func (c *Client) EntryPoint(kind Kind, name string) (string, error) {
	if kind == KindTheme {
		return name, nil
	}

	pluginsDir := filepath.Join(c.cfg.Path, "wp-content", "plugins")
	dir := filepath.Join(pluginsDir, name)

	// Conventional layout first.
	conventional := filepath.Join(dir, name+".php")
	if hasDeclarationHeader(conventional) {
		return name + "/" + name + ".php", nil
	}

	// Single-file plugins sit directly in the plugins directory.
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		single := filepath.Join(pluginsDir, name+".php")
		if hasDeclarationHeader(single) {
			return name + ".php", nil
		}
		return "", fmt.Errorf("plugin %q: no package directory or single-file entry point", name)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("plugin %q: reading package directory: %w", name, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".php") {
			continue
		}
		if hasDeclarationHeader(filepath.Join(dir, entry.Name())) {
			return name + "/" + entry.Name(), nil
		}
	}
	return "", fmt.Errorf("plugin %q: no file carries a declaration header", name)
}

// hasDeclarationHeader reports whether the file's leading bytes carry the
// "Plugin Name:" declaration that marks an entry point.
func hasDeclarationHeader(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(io.LimitReader(f, headerProbeLimit))
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "Plugin Name:") {
			return true
		}
	}
	return false
}
