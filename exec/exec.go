// Package exec defines the consumer-facing contract an installer uses
// to run a payload whose delivery is an execute handler rather than a
// slot: a name-keyed Registry invoked once the payload's reconstructed
// body has been fully written to a temp file.
//
// What the handler actually does with that body (apply it as a
// firmware blob, run it as a post-install script, hand it to some
// other subsystem) is entirely the registry's business; this package
// only fixes the calling contract.
package exec

import "context"

// Registry runs the handler registered under name against a payload's
// fully reconstructed body.
type Registry interface {
	// Run invokes the handler named by name with the payload body
	// available at bodyPath. An unregistered name is an error.
	Run(ctx context.Context, name string, bodyPath string) error
}

// Handler is the behavior registered under one execute-handler name.
type Handler func(ctx context.Context, bodyPath string) error
