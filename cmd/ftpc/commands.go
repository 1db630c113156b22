package main

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpc"
)

// commands returns the file commands shared by the command line and the
// shell.
func (a *app) commands() []*cobra.Command {
	return []*cobra.Command{
		a.lsCmd(),
		a.getCmd(),
		a.putCmd(),
		a.mkdirCmd(),
		a.rmdirCmd(),
		a.rmCmd(),
		a.mtimeCmd(),
		a.touchCmd(),
		a.statCmd(),
		a.pwdCmd(),
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			entries, err := c.List(dir)
			if err != nil {
				return err
			}
			slices.SortFunc(entries, func(x, y *ftpc.Entry) int {
				return strings.Compare(x.Name, y.Name)
			})

			a.names = a.names[:0]
			for _, e := range entries {
				a.names = append(a.names, e.Name)
			}
			return renderEntries(a.out, entries)
		}),
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get remote [local]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			remote := args[0]
			local := path.Base(remote)
			if len(args) == 2 {
				local = args[1]
			}
			if err := c.RetrieveTo(remote, local); err != nil {
				return err
			}
			success(a.out, "downloaded %s -> %s", remote, local)
			return nil
		}),
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put local [remote]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			local := args[0]
			remote := filepath.Base(local)
			if len(args) == 2 {
				remote = args[1]
			}
			if err := c.StoreFrom(remote, local); err != nil {
				return err
			}
			success(a.out, "uploaded %s -> %s", local, remote)
			return nil
		}),
	}
}

func (a *app) mkdirCmd() *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir dir",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			if parents {
				return c.MakeDirAll(args[0])
			}
			return c.MakeDir(args[0])
		}),
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parent directories")
	return cmd
}

func (a *app) rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir dir",
		Short: "Remove an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			return c.RemoveDir(args[0])
		}),
	}
}

func (a *app) rmCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rm file",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			if !force {
				return c.Delete(args[0])
			}
			deleted, err := c.TryDelete(args[0])
			if err != nil {
				return err
			}
			if !deleted {
				info(a.out, "%s not deleted", args[0])
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "ignore files the server refuses to delete")
	return cmd
}

func (a *app) mtimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mtime path",
		Short: "Print the modification time of a file",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			t, err := c.ModTime(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, t.Format(time.RFC3339))
			return nil
		}),
	}
}

func (a *app) touchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch path [time]",
		Short: "Set the modification time of a file (default now)",
		Long: `Set the modification time of a file. The time is given in RFC 3339
(2024-01-15T17:30:00Z) or as YYYYMMDDHHMMSS in UTC.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			t := time.Now()
			if len(args) == 2 {
				var err error
				if t, err = parseTime(args[1]); err != nil {
					return err
				}
			}
			return c.SetModTime(args[0], t)
		}),
	}
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat path",
		Short: "Show information about a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			entry, err := c.Stat(args[0])
			if errors.Is(err, ftpc.ErrUnsupported) {
				// No MLST: fall back to whatever the server can tell
				resp, perr := c.Probe(args[0])
				if perr != nil {
					return perr
				}
				fmt.Fprintf(a.out, "%s: %d %s\n", args[0], resp.Code, resp.Message)
				return nil
			}
			if err != nil {
				return err
			}
			return renderEntries(a.out, []*ftpc.Entry{entry})
		}),
	}
}

func (a *app) pwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pwd",
		Short: "Print the server's working directory",
		Args:  cobra.NoArgs,
		RunE: a.run(func(c *ftpc.Client, args []string) error {
			dir, err := c.CurrentDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, dir)
			return nil
		}),
	}
}

// parseTime accepts RFC 3339 or the compact MDTM form.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("20060102150405", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func success(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprintf(w, format+"\n", args...)
}

func info(w io.Writer, format string, args ...any) {
	color.New(color.FgYellow).Fprintf(w, format+"\n", args...)
}
