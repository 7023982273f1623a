package reconciler

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// isPortFree reports whether port can be bound right now, exactly
// _is_port_free's bind-then-release probe.
func isPortFree(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// readCurrentPort reads the PROM_PORT= line from <envDir>/<market>.env,
// or returns ok=false if the file or key is absent.
func readCurrentPort(envDir, market string) (int, bool) {
	path := filepath.Join(envDir, market+".env")
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "PROM_PORT="); ok {
			port, err := strconv.Atoi(rest)
			if err != nil {
				return 0, false
			}
			return port, true
		}
	}
	return 0, false
}

// writeEnv writes <envDir>/<market>.env with PROM_PORT=<port>.
func writeEnv(envDir, market string, port int) (string, error) {
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return "", fmt.Errorf("reconciler: mkdir %s: %w", envDir, err)
	}
	path := filepath.Join(envDir, market+".env")
	content := fmt.Sprintf("PROM_PORT=%d\n", port)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("reconciler: write %s: %w", path, err)
	}
	return path, nil
}

// AssignPorts gives each market in desired a unique, currently-free
// port, preferring its previously-assigned port when that port is
// still free and not already claimed this round, else scanning forward
// from base — _assign_ports ported 1:1, including the linear
// "never go backwards" advance of the scan cursor.
func AssignPorts(envDir string, desired []string, base, rangeHops int) map[string]int {
	mapping := make(map[string]int, len(desired))
	used := make(map[int]bool, len(desired))
	p := base

	for _, m := range desired {
		cur, hadCur := readCurrentPort(envDir, m)
		candidate := p
		if hadCur && !used[cur] && isPortFree(cur) {
			candidate = cur
		}

		hops := 0
		for used[candidate] || !isPortFree(candidate) {
			candidate++
			hops++
			if hops > rangeHops+512 {
				break
			}
		}

		mapping[m] = candidate
		used[candidate] = true
		if candidate+1 > p {
			p = candidate + 1
		}
	}
	return mapping
}
