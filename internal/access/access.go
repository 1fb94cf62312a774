// Package access maps admin levels to the administrative actions they may run.
package access

import (
	"errors"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

// Level is an ordered admin rank. Higher levels include every lower level's actions.
type Level int

const (
	None Level = iota
	Admin
	Dragon
	Galaxy
	Creator
)

var levelNames = map[Level]string{
	None:    "",
	Admin:   "admin",
	Dragon:  "dragon",
	Galaxy:  "galaxy",
	Creator: "creator",
}

func (l Level) String() string { return levelNames[l] }

// ParseLevel returns None for unknown names.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s && s != "" {
			return l
		}
	}
	return None
}

// Action is an administrative command.
type Action string

const (
	ActionBan              Action = "ban"
	ActionUnban            Action = "unban"
	ActionBanList          Action = "banlist"
	ActionSpawnTournament  Action = "spawn_tournament"
	ActionPromote          Action = "promote"
	ActionDemote           Action = "demote"
	ActionAnnounce         Action = "announce"
	ActionSetElo           Action = "setelo"
	ActionRemoveTitle      Action = "remove_title"
	ActionReset            Action = "reset"
	ActionCreateTournament Action = "create_tournament"
	ActionEndTournament    Action = "end_tournament"
	ActionListTournaments  Action = "list_tournaments"
	ActionAbortMatch       Action = "abort_match"
)

// minLevel is the lowest level allowed to run each action.
var minLevel = map[Action]Level{
	ActionBan:              Admin,
	ActionUnban:            Admin,
	ActionBanList:          Admin,
	ActionSpawnTournament:  Admin,
	ActionPromote:          Dragon,
	ActionDemote:           Dragon,
	ActionAnnounce:         Dragon,
	ActionSetElo:           Creator,
	ActionRemoveTitle:      Creator,
	ActionReset:            Creator,
	ActionCreateTournament: Creator,
	ActionEndTournament:    Creator,
	ActionListTournaments:  Creator,
	ActionAbortMatch:       Creator,
}

// Allowed reports whether level may run action.
func Allowed(level Level, action Action) bool {
	need, ok := minLevel[action]
	if !ok || level == None {
		return false
	}
	return level >= need
}

// Check is Allowed as an error.
func Check(level Level, action Action) error {
	if !Allowed(level, action) {
		return ErrForbidden
	}
	return nil
}

// Actions lists what level may run.
func Actions(level Level) []Action {
	var out []Action
	for _, a := range orderedActions {
		if Allowed(level, a) {
			out = append(out, a)
		}
	}
	return out
}

var orderedActions = []Action{
	ActionBan, ActionUnban, ActionBanList, ActionSpawnTournament,
	ActionPromote, ActionDemote, ActionAnnounce,
	ActionSetElo, ActionRemoveTitle, ActionReset,
	ActionCreateTournament, ActionEndTournament, ActionListTournaments, ActionAbortMatch,
}

// CanPromote: only to a real rank strictly below the promoter's own.
func CanPromote(promoter, target Level) bool {
	return promoter > target && target > None
}

// CanDemote: only ranks strictly below the demoter's own, and never a creator.
func CanDemote(demoter, target Level) bool {
	if target == Creator {
		return false
	}
	return demoter > target
}
