package tournament

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type Type string

const (
	TypeDaily    Type = "daily"
	TypeWeekly   Type = "weekly"
	TypeMonthly  Type = "monthly"
	TypeMarathon Type = "marathon"
	TypeWorldCup Type = "world_cup"
	TypeCustom   Type = "custom"
)

// TimeControls are the controls scheduled arenas draw from.
var TimeControls = []string{"1+0", "3+2", "5+0"}

// TypeInfo is one row of the type table.
type TypeInfo struct {
	Name     string        `yaml:"name"`
	Minutes  int           `yaml:"duration"`
	Color    string        `yaml:"color"`
	Duration time.Duration `yaml:"-"`
}

//go:embed types.yaml
var typesYAML []byte

var typeTable = mustLoadTypes(typesYAML)

func mustLoadTypes(raw []byte) map[Type]TypeInfo {
	t, err := loadTypes(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func loadTypes(raw []byte) (map[Type]TypeInfo, error) {
	var rows map[string]TypeInfo
	if err := yaml.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("tournament types: %w", err)
	}
	title := cases.Title(language.English)
	out := make(map[Type]TypeInfo, len(rows))
	for key, info := range rows {
		if info.Minutes <= 0 {
			return nil, fmt.Errorf("tournament type %q: duration must be positive", key)
		}
		if info.Name == "" {
			info.Name = title.String(strings.ReplaceAll(key, "_", " ")) + " Arena"
		}
		info.Duration = time.Duration(info.Minutes) * time.Minute
		out[Type(key)] = info
	}
	return out, nil
}

// Info returns the table row of t.
func Info(t Type) (TypeInfo, bool) {
	info, ok := typeTable[t]
	return info, ok
}

// ParseType accepts the table keys plus "worldcup".
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "worldcup" {
		s = string(TypeWorldCup)
	}
	if _, ok := typeTable[Type(s)]; !ok {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalid, s)
	}
	return Type(s), nil
}

func validTimeControl(tc string) bool {
	for _, c := range TimeControls {
		if c == tc {
			return true
		}
	}
	return false
}
