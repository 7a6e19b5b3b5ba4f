package agent

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

// Memory — снимок памяти хоста в мегабайтах.
type Memory struct {
	TotalMB int64
	UsedMB  int64
}

// ReadMemory читает /proc/meminfo. На платформах без procfs возвращает нули.
func ReadMemory() Memory {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return Memory{}
	}
	defer f.Close()
	return parseMeminfo(bufio.NewScanner(f))
}

func parseMeminfo(scanner *bufio.Scanner) Memory {
	var memTotal, memAvailable int64
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		val, _ := strconv.ParseInt(parts[1], 10, 64)
		switch strings.TrimSuffix(parts[0], ":") {
		case "MemTotal":
			memTotal = val
		case "MemAvailable":
			memAvailable = val
		}
	}

	// значения в kB
	m := Memory{TotalMB: memTotal / 1024}
	if memTotal > memAvailable {
		m.UsedMB = (memTotal - memAvailable) / 1024
	}
	return m
}

// Snapshot собирает данные для регистрации. hostname == "" — имя хоста из ОС.
func Snapshot(hostname string) (domain.Registration, error) {
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return domain.Registration{}, err
		}
		hostname = h
	}
	mem := ReadMemory()
	return domain.Registration{
		Hostname:   hostname,
		OS:         runtime.GOOS,
		CPUCores:   runtime.NumCPU(),
		RAMTotalMB: mem.TotalMB,
		RAMUsedMB:  mem.UsedMB,
	}, nil
}
