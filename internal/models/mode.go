package models

import "fmt"

// Mode is a persona selector. It changes the greeting and the instruction given to the model.
type Mode struct {
	ID    string
	Label string
}

// Modes lists every selectable mode in display order.
var Modes = []Mode{
	{ID: "general", Label: "General Assistant"},
	{ID: "coding", Label: "Coding Mode"},
	{ID: "learning", Label: "Learning Mode"},
	{ID: "ielts", Label: "IELTS Trainer"},
	{ID: "problem", Label: "Problem Solver"},
	{ID: "project", Label: "Project Builder"},
}

// DefaultMode is the mode a new session starts in.
var DefaultMode = Modes[0]

// ModeByID looks a mode up by its identifier.
func ModeByID(id string) (Mode, bool) {
	for _, m := range Modes {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}

// Greeting returns the model message every conversation in the given mode starts with.
func Greeting(m Mode) string {
	return fmt.Sprintf("Hello! I'm Rimns AI, your %s. How can I assist you today?", m.Label)
}

// Instruction combines the base system instruction with the active mode.
func Instruction(base string, m Mode) string {
	if base == "" {
		return "Active mode: " + m.Label
	}
	return base + "\n\nActive mode: " + m.Label
}
