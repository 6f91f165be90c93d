// Package hostsfile adds and removes the temporary hosts entries PR-preview
// environments need so their per-PR hostnames resolve locally.
package hostsfile

import (
	"fmt"
	"os"
	"strings"
)

// marker tags every line this tool writes so Remove never touches entries a
// human added.
const marker = "# managed by student-mgmt-pipeline"

// Manager binds the hosts-file path and the ingress IP so callers only name
// the host they want resolvable.
type Manager struct {
	path string
	ip   string
}

func NewManager(path, ip string) *Manager {
	return &Manager{path: path, ip: ip}
}

func (m *Manager) Ensure(host string) error {
	return Ensure(m.path, m.ip, host)
}

func (m *Manager) Remove(host string) error {
	return Remove(m.path, host)
}

// Ensure appends "ip host" to the hosts file if no managed entry for host is
// present yet.
func Ensure(path, ip, host string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if isManagedEntry(line, host) {
			return nil
		}
	}
	entry := fmt.Sprintf("%s %s %s\n", ip, host, marker)
	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		entry = "\n" + entry
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append hosts entry: %w", err)
	}
	return nil
}

// Remove deletes the managed entry for host. Absent entries are not an error;
// teardown must be idempotent.
func Remove(path, host string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")
	kept := make([]string, 0, len(lines))
	removed := false
	for _, line := range lines {
		if isManagedEntry(line, host) {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return nil
	}
	if err := os.WriteFile(path, []byte(strings.Join(kept, "\n")), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func isManagedEntry(line, host string) bool {
	if !strings.Contains(line, marker) {
		return false
	}
	fields := strings.Fields(line)
	for _, f := range fields {
		if f == host {
			return true
		}
		if f == "#" {
			break
		}
	}
	return false
}
