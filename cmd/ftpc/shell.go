package main

import (
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// shellCommands are handled by the shell itself rather than by a file
// command.
var shellCommands = []prompt.Suggest{
	{Text: "cd", Description: "Change the working directory"},
	{Text: "help", Description: "Show available commands"},
	{Text: "exit", Description: "Close the session and leave the shell"},
}

// argCommands take a remote path as first argument.
var argCommands = map[string]bool{
	"cd": true, "ls": true, "get": true, "rm": true, "rmdir": true,
	"mtime": true, "touch": true, "stat": true,
}

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			a.interactive = true
			defer func() { a.interactive = false }()

			color.New(color.FgGreen).Fprintln(a.out, "Type 'help' for commands, 'exit' to quit")

			p := prompt.New(
				a.execute,
				a.complete,
				prompt.OptionTitle("ftpc"),
				prompt.OptionLivePrefix(func() (string, bool) {
					return "ftp:" + c.WorkingDir() + "> ", true
				}),
				prompt.OptionPrefixTextColor(prompt.Green),
				prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
				prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
				prompt.OptionSuggestionBGColor(prompt.DarkGray),
				prompt.OptionCompletionWordSeparator(" "),
				prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
					return breakline && isExit(in)
				}),
			)
			p.Run()
			return a.finish()
		},
	}
}

func isExit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit", "bye":
		return true
	}
	return false
}

// execute runs one shell line.
func (a *app) execute(line string) {
	args := strings.Fields(line)
	if len(args) == 0 || isExit(line) {
		return
	}

	if err := a.dispatch(args); err != nil {
		color.New(color.FgRed).Fprintln(a.errOut, "Error:", err)
	}
}

func (a *app) dispatch(args []string) error {
	switch args[0] {
	case "cd":
		if len(args) != 2 {
			return fmt.Errorf("usage: cd dir")
		}
		c, err := a.session()
		if err != nil {
			return err
		}
		return c.ChangeDir(args[1])
	case "help":
		for _, s := range a.commandSuggestions() {
			fmt.Fprintf(a.out, "  %-8s %s\n", s.Text, s.Description)
		}
		return nil
	}

	// A fresh tree per line, so flags such as -p do not stick.
	root := &cobra.Command{Use: "ftpc", SilenceUsage: true, SilenceErrors: true}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.AddCommand(a.commands()...)
	root.SetArgs(args)
	return root.Execute()
}

func (a *app) commandSuggestions() []prompt.Suggest {
	var out []prompt.Suggest
	for _, cmd := range a.commands() {
		out = append(out, prompt.Suggest{Text: cmd.Name(), Description: cmd.Short})
	}
	return append(out, shellCommands...)
}

// complete suggests command names for the first word and names from the
// last listing for a path argument.
func (a *app) complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	words := strings.Fields(text)
	word := d.GetWordBeforeCursor()

	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(text, " ")) {
		return prompt.FilterHasPrefix(a.commandSuggestions(), word, true)
	}
	if !argCommands[words[0]] {
		return nil
	}

	suggestions := make([]prompt.Suggest, 0, len(a.names))
	for _, name := range a.names {
		suggestions = append(suggestions, prompt.Suggest{Text: name})
	}
	return prompt.FilterHasPrefix(suggestions, word, false)
}
