package transport

import "github.com/doeshing/extscan-go/internal/ports"

// Detached is a host environment with no live hooks. Static analysis uses it so the
// monitor reads as unavailable.
type Detached struct{}

// Available always reports false.
func (Detached) Available() bool { return false }

// Register accepts the sink and never calls it.
func (Detached) Register(ports.EventSink) error { return nil }

var _ ports.HostEnvironment = Detached{}
