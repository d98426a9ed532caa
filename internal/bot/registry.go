package bot

import (
	"fmt"
	"log/slog"

	"matrixbot/internal/domain"
)

// Registry maps trigger tokens to commands. It is populated once at
// startup from an explicit list; duplicate triggers are a startup error
// rather than a silent last-wins overwrite.
type Registry struct {
	commands map[string]domain.Command
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		commands: make(map[string]domain.Command),
		logger:   logger,
	}
}

// Register adds a command. Fails when the trigger is empty or already taken.
func (r *Registry) Register(cmd domain.Command) error {
	trigger := cmd.Trigger()
	if trigger == "" {
		return fmt.Errorf("command has empty trigger")
	}
	if _, exists := r.commands[trigger]; exists {
		return fmt.Errorf("duplicate trigger %q", trigger)
	}
	r.commands[trigger] = cmd
	r.logger.Debug("registered command", "trigger", trigger)
	return nil
}

// MustRegister registers a list of commands, panicking on duplicates.
// Intended for the startup wiring path only.
func (r *Registry) MustRegister(cmds ...domain.Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the command for the trigger, nil when unknown.
// Triggers are compared case-sensitively, marker character included.
func (r *Registry) Lookup(trigger string) domain.Command {
	return r.commands[trigger]
}

// Triggers returns the registered trigger tokens.
func (r *Registry) Triggers() []string {
	out := make([]string, 0, len(r.commands))
	for t := range r.commands {
		out = append(out, t)
	}
	return out
}
