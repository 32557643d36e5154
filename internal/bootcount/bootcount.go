// ABOUTME: Restart counter persisted across process restarts
// ABOUTME: Zero on first-ever boot, incremented exactly once per startup
package bootcount

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Next reads the boot counter stored at path, increments it, writes it
// back, and returns the new value. A missing file means first boot and
// yields 1. The counter is diagnostics only; after startup it is never
// written again for the lifetime of the process.
func Next(path string) (int, error) {
	count := 0

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		n, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr != nil {
			return 0, fmt.Errorf("boot counter corrupt (%s): %w", path, perr)
		}
		count = n
	case os.IsNotExist(err):
		// first-ever boot
	default:
		return 0, fmt.Errorf("boot counter read failed (%s): %w", path, err)
	}

	count++
	if err := os.WriteFile(path, []byte(strconv.Itoa(count)+"\n"), 0o644); err != nil {
		return 0, fmt.Errorf("boot counter write failed (%s): %w", path, err)
	}
	return count, nil
}
