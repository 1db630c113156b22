package ftpc

import (
	"strings"
)

// Command is a single control channel command: a verb followed by its
// arguments. Empty arguments are dropped when the command is built.
type Command struct {
	Verb string
	Args []string
}

// NewCommand builds a Command, dropping empty arguments.
//
// Example:
//
//	cmd := ftpc.NewCommand("SITE", "CHMOD", "755", "/bin/run.sh")
//	resp, err := client.Do(cmd)
func NewCommand(verb string, args ...string) Command {
	cmd := Command{Verb: verb}
	for _, a := range args {
		if a != "" {
			cmd.Args = append(cmd.Args, a)
		}
	}
	return cmd
}

// String returns the command line without the CRLF terminator.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Verb
	}
	return c.Verb + " " + strings.Join(c.Args, " ")
}

// Pret returns the PRET-wrapped variant of the command, announcing it to
// servers that need to know the upcoming transfer before PASV.
func (c Command) Pret() Command {
	return Command{
		Verb: "PRET",
		Args: append([]string{c.Verb}, c.Args...),
	}
}

// wire returns the bytes sent on the control connection.
func (c Command) wire() []byte {
	return []byte(c.String() + "\r\n")
}

// redacted returns the command line with password arguments masked, for
// logging and error messages.
func (c Command) redacted() string {
	if strings.EqualFold(c.Verb, "PASS") && len(c.Args) > 0 {
		return c.Verb + " ****"
	}
	return c.String()
}

// valid reports whether the command can be sent without breaking the line
// framing of the control connection.
func (c Command) valid() bool {
	return c.Verb != "" && !strings.ContainsAny(c.String(), "\r\n")
}
