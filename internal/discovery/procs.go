package discovery

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// pgrepLookup finds live agent processes with pgrep and resolves each
// pid's working directory. Resolution is /proc on Linux and lsof
// elsewhere; a pid whose cwd cannot be read is dropped, which at worst
// reports a running session as dead until the next refresh.
type pgrepLookup struct {
	binary string
}

func (p *pgrepLookup) LiveAgentDirs(ctx context.Context) map[string]int {
	out, err := exec.CommandContext(ctx, "pgrep", "-x", p.binary).Output()
	if err != nil {
		return nil
	}
	dirs := make(map[string]int)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || pid <= 0 {
			continue
		}
		cwd, err := processCwd(ctx, pid)
		if err != nil || cwd == "" {
			continue
		}
		dirs[cwd] = pid
	}
	return dirs
}

func processCwd(ctx context.Context, pid int) (string, error) {
	if runtime.GOOS == "linux" {
		return os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	}
	out, err := exec.CommandContext(ctx, "lsof", "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn").Output()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "n") {
			return strings.TrimPrefix(line, "n"), nil
		}
	}
	return "", fmt.Errorf("no cwd record for pid %d", pid)
}
