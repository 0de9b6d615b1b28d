package cli

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	HelpPatterns      = []string{"--help", "-h", "help"} // HelpPatterns are first arguments that make [CommandSet.RespondUsage] print usage.

	keyCleansePattern = regexp.MustCompile(`\s`)
)

// CommandFunc is a function that may be executed within a [Command].
type CommandFunc = func(flags *flag.FlagSet, printer *Printer) error

// PreExec runs after a [Command]'s flags are parsed, and before its [CommandFunc].
// Returning an error prevents the [CommandFunc] from running.
type PreExec = func(flags *flag.FlagSet, printer *Printer) error

func cleanseKey(key string) string {
	return keyCleansePattern.ReplaceAllString(strings.ToLower(key), "")
}

// CommandSet is a group of [Command].
type CommandSet struct {
	commands map[string]*Command
	aliases  map[string]*Command
	printer  *Printer
	parent   string
	owner    *CommandSet
	preExec  []PreExec
}

// NewCommandSet is used to set up a top level [CommandSet] as the root of a CLI's command structure.
// The parent strings are the words used to invoke the CLI, and are included in usage output.
func NewCommandSet(parent ...string) *CommandSet {
	return &CommandSet{printer: NewPrinter(), parent: strings.Join(parent, " ")}
}

// Parent retrieves the parent [CommandSet] name.
func (s *CommandSet) Parent() string {
	return s.parent
}

// Printer returns the shared [Printer] for this [CommandSet].
func (s *CommandSet) Printer() *Printer {
	if s.printer == nil {
		s.printer = NewPrinter()
	}
	return s.printer
}

// PreExec adds a hook that runs before any [Command] in this set, including nested ones, is executed.
// Hooks from outer sets run first.
func (s *CommandSet) PreExec(fn PreExec) *CommandSet {
	if fn != nil {
		s.preExec = append(s.preExec, fn)
	}
	return s
}

func (s *CommandSet) runPreExec(flags *flag.FlagSet, printer *Printer) error {
	if s.owner != nil {
		if err := s.owner.runPreExec(flags, printer); err != nil {
			return err
		}
	}
	for _, fn := range s.preExec {
		if err := fn(flags, printer); err != nil {
			return err
		}
	}
	return nil
}

// AddCommand adds a sub-command to this [CommandSet].
// The key is lower-cased with spaces removed, and aliases are treated the same way.
func (s *CommandSet) AddCommand(key, shortUsage string, aliases ...string) *Command {
	key = cleanseKey(key)
	cmd := newCommand(key, s, shortUsage)
	if s.commands == nil {
		s.commands = map[string]*Command{}
	}
	s.commands[key] = cmd
	for _, alias := range aliases {
		alias = cleanseKey(alias)
		if len(alias) == 0 {
			continue
		}
		if s.aliases == nil {
			s.aliases = map[string]*Command{}
		}
		s.aliases[alias] = cmd
		cmd.aliases = append(cmd.aliases, alias)
	}
	slices.Sort(cmd.aliases)
	return cmd
}

// Exec executes this [CommandSet].
// The first argument must be the key or alias of a sub-command, matched case-insensitively.
func (s *CommandSet) Exec(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no arguments", ErrUnknownCommand)
	}
	key := strings.ToLower(args[0])
	cmd, ok := s.commands[key]
	if !ok {
		cmd, ok = s.aliases[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
		}
	}
	return cmd.Exec(args[1:])
}

// RespondUsage prints usage information for the [CommandSet] if args is empty, or starts with one of [HelpPatterns].
// Returns true if usage was printed.
func (s *CommandSet) RespondUsage(args []string, format string, vals ...any) bool {
	if len(args) > 0 && !slices.Contains(HelpPatterns, args[0]) {
		return false
	}
	text := fmt.Sprintf(format, vals...)
	if len(text) > 0 {
		text = "\n\n" + strings.TrimSuffix(text, "\n")
	}
	s.Printer().Printf("%s%s\n\nCOMMANDS\n%s", s.parent, text, s.CommandUsages())
	return true
}

// CommandUsages lists the sub-commands of this [CommandSet] with their aliases, sorted by key.
func (s *CommandSet) CommandUsages() string {
	keys := make([]string, 0, len(s.commands))
	for key := range s.commands {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var (
		buf    strings.Builder
		names  = make([]string, len(keys))
		maxLen int
	)
	for i, key := range keys {
		names[i] = strings.Join(append([]string{key}, s.commands[key].aliases...), ", ")
		maxLen = max(maxLen, len(names[i]))
	}
	fmtStr := fmt.Sprintf("  %%-%ds\t%%s\n", maxLen)
	for i, key := range keys {
		buf.WriteString(fmt.Sprintf(fmtStr, names[i], s.commands[key].shortUsage))
	}
	return buf.String()
}

// Command is an executable function in a CLI.
// A Command is also a [CommandSet], so it may have its own sub-commands.
type Command struct {
	CommandSet
	flags      *flag.FlagSet
	exec       CommandFunc
	key        string
	shortUsage string
	usage      string
	aliases    []string
}

func newCommand(key string, owner *CommandSet, shortUsage string) *Command {
	fs := flag.NewFlagSet(key, flag.ContinueOnError)
	fs.BoolP("help", "h", false, "Prints this usage information")
	fs.SetInterspersed(false)
	cmd := &Command{
		CommandSet: CommandSet{
			printer: owner.Printer(),
			parent:  strings.TrimSpace(owner.parent + " " + key),
			owner:   owner,
		},
		flags:      fs,
		key:        key,
		shortUsage: shortUsage,
	}
	fs.Usage = cmd.printUsage
	return cmd
}

// Does specifies the [CommandFunc] that should be executed by this [Command].
// Without one, the Command prints its usage.
func (c *Command) Does(commandFunc CommandFunc) *Command {
	if commandFunc != nil {
		c.exec = commandFunc
	}
	return c
}

// Key returns the normalized key of this [Command].
func (c *Command) Key() string {
	return c.key
}

// Flags returns the [flag.FlagSet] for this [Command].
func (c *Command) Flags() *flag.FlagSet {
	return c.flags
}

// Usage sets a usage line, printed after the short description when help is requested.
// The invocation path of the [Command] is prepended to it.
func (c *Command) Usage(format string, args ...any) *Command {
	c.usage = fmt.Sprintf(format, args...)
	return c
}

func (c *Command) printUsage() {
	var buf strings.Builder
	buf.WriteString(c.shortUsage + "\n")
	if len(c.usage) > 0 {
		buf.WriteString("\nUSAGE:\n" + c.parent + " " + strings.TrimSuffix(c.usage, "\n") + "\n")
	}
	buf.WriteString("\nFLAGS\n")
	buf.WriteString(c.flags.FlagUsages())
	if len(c.commands) > 0 {
		buf.WriteString("\nCOMMANDS\n")
		buf.WriteString(c.CommandUsages())
	}
	c.printer.Print(buf.String())
}

// Exec executes the command with the given arguments.
// If the first argument names a sub-command, then that is executed instead.
// A [UsageError] returned from the [CommandFunc] is printed along with usage information, and then returned.
func (c *Command) Exec(args []string) error {
	if len(c.commands) > 0 {
		err := c.CommandSet.Exec(args)
		if !errors.Is(err, ErrUnknownCommand) {
			return err
		}
	}
	if err := c.flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return c.usageError(NewUsageError("%w", err))
	}
	if MustGet(c.flags.GetBool("help")) || c.exec == nil {
		c.printUsage()
		return nil
	}
	if err := c.runPreExec(c.flags, c.printer); err != nil {
		return err
	}
	err := c.exec(c.flags, c.printer)
	if errors.Is(err, &UsageError{}) {
		return c.usageError(err)
	}
	return err
}

func (c *Command) usageError(err error) error {
	c.printer.Println(err)
	c.printer.Println()
	c.printUsage()
	return err
}
