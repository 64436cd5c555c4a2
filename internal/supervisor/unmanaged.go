package supervisor

import "context"

// unmanagedSupervisor is used when no engine binary is configured: something
// else owns the engine process. Every operation is a safe no-op so callers
// behave identically in managed and unmanaged environments.
type unmanagedSupervisor struct{}

var _ Supervisor = unmanagedSupervisor{}

func (unmanagedSupervisor) Start(context.Context) error { return nil }
func (unmanagedSupervisor) Stop(context.Context) error  { return nil }
func (unmanagedSupervisor) Running() bool               { return false }
func (unmanagedSupervisor) Pid() int                    { return 0 }
func (unmanagedSupervisor) Managed() bool               { return false }
func (unmanagedSupervisor) SetCloseBehavior(bool) error { return nil }
func (unmanagedSupervisor) CloseBehavior() bool         { return false }
func (unmanagedSupervisor) IsAutostartEnabled() bool    { return false }
func (unmanagedSupervisor) EnableAutostart() error      { return nil }
func (unmanagedSupervisor) DisableAutostart() error     { return nil }
