package bench

import (
	"bufio"
	"os"
	"runtime"
	"strings"
)

// Processor names the CPU the run executes on. It reads /proc/cpuinfo and
// falls back to GOOS/GOARCH elsewhere.
func Processor() string {
	f, err := os.Open("/proc/cpuinfo")
	if err == nil {
		defer f.Close()
		if name := parseModelName(bufio.NewScanner(f)); name != "" {
			return name
		}
	}
	return runtime.GOOS + "/" + runtime.GOARCH
}

func parseModelName(sc *bufio.Scanner) string {
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
