package domain

// HelpEntry is one line of the help listing.
type HelpEntry struct {
	Usage       string
	Description string
}

// Built-in commands answered by the assistant itself, never dispatched.
const (
	BuiltinHelp     = "help"
	BuiltinStatus   = "status"
	BuiltinHealth   = "health"
	BuiltinResearch = "research"
)

// Builtins lists the built-in commands in help order.
var Builtins = []HelpEntry{
	{Usage: "/help", Description: "Show this help"},
	{Usage: "/status", Description: "Show vault, credential and registry status"},
	{Usage: "/health", Description: "Check capability health"},
	{Usage: "/research on|off", Description: "Route free text to the research capability"},
}

// IsBuiltin reports whether name is reserved for a built-in command.
func IsBuiltin(name string) bool {
	switch NormalizeCommand(name) {
	case BuiltinHelp, BuiltinStatus, BuiltinHealth, BuiltinResearch:
		return true
	default:
		return false
	}
}
