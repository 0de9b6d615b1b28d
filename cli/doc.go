/*
Package cli provides an opinionated structure for a CLI with sub-commands.

  - User-visible output goes to STDERR by default, through a configurable [Printer].
  - Output is only styled when the [Printer] is writing to a terminal.
  - This package uses [pflag] for posix style flags.
  - Flags are NOT interspersed by default, which keeps flag and argument parsing predictable.
  - Flags apply to the command at hand. Shared setup, like configuring logging from flags, belongs in a [PreExec] hook.
  - Sub-command aliases are supported as additional, optional parameters to [CommandSet.AddCommand].

# Invocation

Invoking a CLI with sub-commands always follows this form:

	CLI_NAME [SUB-COMMAND...] [FLAGS...] [ARGS...]

Just calling CLI_NAME prints usage information for the tool, as long as the CLI calls [CommandSet.RespondUsage].

# Usage by default

The '-h' and '--help' flags are set up for every [Command], and print the short description, the usage line from [Command.Usage], flag usages, and sub-command usages.
A [UsageError] returned from a [Command] is printed together with that usage information.

[pflag]: https://github.com/spf13/pflag
*/
package cli
