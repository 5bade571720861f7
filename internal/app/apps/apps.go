// Package apps wires the chat client and server into runnable applications.
package apps

import "context"

// App is a runnable application command.
type App interface {
	Run(ctx context.Context, args []string) error
}
