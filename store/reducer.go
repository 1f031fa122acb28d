package store

import (
	"fmt"
	"strings"

	"github.com/timzifer/viewstate/status"
)

// CommandKind identifies a lifecycle command.
type CommandKind uint8

const (
	// CommandStartLoading marks one operation as loading.
	CommandStartLoading CommandKind = iota + 1
	// CommandReset removes the status of several operations.
	CommandReset
	// CommandError moves several operations into the error state.
	CommandError
)

// String returns the command name used in logs and metrics.
func (k CommandKind) String() string {
	switch k {
	case CommandStartLoading:
		return "start_loading"
	case CommandReset:
		return "reset"
	case CommandError:
		return "error"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// ErrorTarget pairs an operation id with the payload it fails with.
type ErrorTarget struct {
	ID      string
	Payload any
}

// Command is a normalized store write produced from an external event.
type Command struct {
	Kind CommandKind
	// ID is set for CommandStartLoading.
	ID string
	// IDs is set for CommandReset.
	IDs []string
	// Targets is set for CommandError.
	Targets []ErrorTarget
}

// StartLoading builds a command marking id as loading.
func StartLoading(id string) Command {
	return Command{Kind: CommandStartLoading, ID: id}
}

// Reset builds a command clearing the status of ids.
func Reset(ids ...string) Command {
	return Command{Kind: CommandReset, IDs: ids}
}

// Error builds a command moving every id into the error state with the same
// payload.
func Error(payload any, ids ...string) Command {
	targets := make([]ErrorTarget, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, ErrorTarget{ID: id, Payload: payload})
	}
	return Command{Kind: CommandError, Targets: targets}
}

// String renders the command for logs.
func (c Command) String() string {
	switch c.Kind {
	case CommandStartLoading:
		return fmt.Sprintf("start_loading(%s)", c.ID)
	case CommandReset:
		return fmt.Sprintf("reset(%s)", strings.Join(c.IDs, ","))
	case CommandError:
		ids := make([]string, 0, len(c.Targets))
		for _, target := range c.Targets {
			ids = append(ids, target.ID)
		}
		return fmt.Sprintf("error(%s)", strings.Join(ids, ","))
	default:
		return c.Kind.String()
	}
}

// Reduce applies cmd to c through the four collection operations. Unknown
// commands leave c untouched.
func Reduce(c *Collection, cmd Command) *Collection {
	switch cmd.Kind {
	case CommandStartLoading:
		return UpsertOne(Entry{ID: cmd.ID, Status: status.Loading()}, c)
	case CommandReset:
		return RemoveMany(cmd.IDs, c)
	case CommandError:
		entries := make([]Entry, 0, len(cmd.Targets))
		for _, target := range cmd.Targets {
			entries = append(entries, Entry{ID: target.ID, Status: status.Error(target.Payload)})
		}
		return UpsertMany(entries, c)
	default:
		return c
	}
}
