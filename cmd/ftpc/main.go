// Command ftpc is a command line FTP and FTPS client.
//
// Usage:
//
//	ftpc --url ftp://user@ftp.example.com/pub ls
//	ftpc --url ftps://ftp.example.com get report.pdf
//	ftpc --url ftp://ftp.example.com shell
//
// Flags can also be set in ~/.ftpc.yaml or through FTPC_* environment
// variables, e.g. FTPC_URL or FTPC_ASK_PASSWORD.
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd(newApp(os.Stdout, os.Stderr)).Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
