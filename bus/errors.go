package bus

// ConfigurationError reports a problem with how the bus was wired:
// registering the same command twice, unregistering a handler that is not
// registered, or scanning a relative package path. Registration does not
// check declared dependency names; an unresolvable required dependency is
// reported by Handle as a MissingDependencyError.
type ConfigurationError struct{ Msg string }

func (e *ConfigurationError) Error() string { return e.Msg }

// MissingDependencyError reports that a handler declared a required
// dependency that was never registered or passed transiently.
type MissingDependencyError struct{ Msg string }

func (e *MissingDependencyError) Error() string { return e.Msg }
