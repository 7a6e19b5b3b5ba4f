package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

// Command описывает разрешенную команду. Таблица статична и не меняется в рантайме.
type Command struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Platforms   []string `json:"platforms"` // значения runtime.GOOS
	Executable  string   `json:"executable"`
}

// SupportsPlatform проверяет, можно ли исполнить команду на данной ОС.
func (c Command) SupportsPlatform(goos string) bool {
	return slices.Contains(c.Platforms, goos)
}

var (
	unix = []string{"linux", "darwin"}
	all  = []string{"linux", "darwin", "windows"}
)

var commands = map[string]Command{
	"echo":     {ID: "echo", Name: "Echo", Description: "Print text to console", Platforms: all, Executable: "echo"},
	"ls":       {ID: "ls", Name: "List directory", Description: "List directory contents", Platforms: unix, Executable: "ls"},
	"pwd":      {ID: "pwd", Name: "Working directory", Description: "Print working directory", Platforms: unix, Executable: "pwd"},
	"date":     {ID: "date", Name: "Date", Description: "Print system date and time", Platforms: unix, Executable: "date"},
	"whoami":   {ID: "whoami", Name: "Who am I", Description: "Print effective user name", Platforms: all, Executable: "whoami"},
	"hostname": {ID: "hostname", Name: "Hostname", Description: "Print host name", Platforms: all, Executable: "hostname"},
	"uptime":   {ID: "uptime", Name: "Uptime", Description: "Show system uptime", Platforms: unix, Executable: "uptime"},
	"df":       {ID: "df", Name: "Disk free", Description: "Report file system disk usage", Platforms: unix, Executable: "df"},
	"free":     {ID: "free", Name: "Memory", Description: "Display free and used memory", Platforms: []string{"linux"}, Executable: "free"},
}

// CommandID возвращает первый токен команды, разделенный пробельными символами.
// Нормализации нет: регистр и аргументы не трогаем.
func CommandID(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Lookup ищет команду по идентификатору (точное совпадение).
func Lookup(id string) (Command, bool) {
	c, ok := commands[id]
	return c, ok
}

// Authorize проверяет только ведущий токен. Все, что после него
// (аргументы, метасимволы шелла), передается агенту без проверки.
func Authorize(command string) (Command, error) {
	id := CommandID(command)
	c, ok := commands[id]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q (allowed: %s)", domain.ErrCommandNotWhitelisted, id, strings.Join(IDs(), ", "))
	}
	return c, nil
}

// IDs — отсортированный список разрешенных идентификаторов.
func IDs() []string {
	ids := make([]string, 0, len(commands))
	for id := range commands {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All возвращает копию таблицы для каталога в API.
func All() []Command {
	out := make([]Command, 0, len(commands))
	for _, id := range IDs() {
		c := commands[id]
		c.Platforms = slices.Clone(c.Platforms)
		out = append(out, c)
	}
	return out
}
