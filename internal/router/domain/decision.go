// Package domain defines route decisions, routing rules and the routing table.
package domain

import (
	"strings"
)

// CommandPrefix marks explicit commands.
const CommandPrefix = "/"

// DecisionKind distinguishes explicit commands from free text.
type DecisionKind int

const (
	// FreeText is input without a command prefix.
	FreeText DecisionKind = iota
	// Command is input starting with CommandPrefix.
	Command
)

func (k DecisionKind) String() string {
	if k == Command {
		return "command"
	}
	return "free_text"
}

// Decision is the classified form of one raw input.
type Decision struct {
	Kind DecisionKind
	Name string // Command name, lower-cased and without the prefix
	Args string // Text after the command name
	Text string // Whole input for FreeText
}

// NewCommand returns a Command decision.
func NewCommand(name, args string) Decision {
	return Decision{Kind: Command, Name: NormalizeCommand(name), Args: args}
}

// NewFreeText returns a FreeText decision.
func NewFreeText(text string) Decision {
	return Decision{Kind: FreeText, Text: text}
}

// IsCommand reports whether the decision is an explicit command.
func (d Decision) IsCommand() bool {
	return d.Kind == Command
}

// Payload returns the text handed to the capability: the arguments of a command or the
// whole free text.
func (d Decision) Payload() string {
	if d.Kind == Command {
		return d.Args
	}
	return d.Text
}

// Session carries per-conversation routing state. It is passed explicitly so concurrent
// conversations never share it.
type Session struct {
	Research bool // Research mode routes free text to the research capability
}

// NormalizeCommand lower-cases a command and strips the prefix.
func NormalizeCommand(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), CommandPrefix))
}
