package cli

// MustGet is used with a [pflag.FlagSet] getter to panic if the flag is not defined, or is not the right type.
// The developer usually knows whether a get call will fail, so this keeps flag access terse.
func MustGet[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// RequireArgs returns a [UsageError] if there are fewer than minArgs arguments.
// The names describe the expected arguments in the error message.
func RequireArgs(args []string, minArgs int, names ...string) error {
	if len(args) >= minArgs {
		return nil
	}
	if len(names) > 0 {
		return NewUsageError("expected at least %d argument(s) %v, got %d", minArgs, names, len(args))
	}
	return NewUsageError("expected at least %d argument(s), got %d", minArgs, len(args))
}
