package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/gonzalop/ftpc"
	"github.com/gonzalop/ftpc/internal/metrics"
)

const (
	envPrefix         = "FTPC"
	defaultConfigName = ".ftpc"
)

// settings holds the resolved values of the persistent flags.
type settings struct {
	URL         string
	User        string
	Password    string
	AskPassword bool
	TLS         string
	Insecure    bool
	NoPRET      bool
	PassiveIP   string
	PassivePeer bool
	Timeout     time.Duration
	NoLock      bool
	Encoding    string
	Limit       int64
	Debug       bool
	Progress    bool
	MetricsFile string
}

// app is the state shared by every command of one invocation, including
// all commands run from the shell.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer

	cfgFile     string
	interactive bool

	client   *ftpc.Client
	metrics  *metrics.Metrics
	progress *progressPrinter
	s        settings

	// names seen in the last listing, offered by the shell completer
	names []string
}

func newApp(out, errOut io.Writer) *app {
	return &app{v: viper.New(), out: out, errOut: errOut}
}

// readPassword prompts on the terminal without echo.
var readPassword = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ftpc",
		Short:         "FTP and FTPS client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ~/.ftpc.yaml)")
	flags.String("url", "", "server URL: ftp://, ftps:// (implicit TLS) or ftp+explicit://")
	flags.StringP("user", "u", "", "user name, overrides the URL")
	flags.StringP("password", "p", "", "password, overrides the URL")
	flags.Bool("ask-password", false, "prompt for the password")
	flags.String("tls", "", "TLS mode: none, explicit or implicit (default from the URL scheme)")
	flags.Bool("insecure", false, "do not verify the server certificate")
	flags.Bool("no-pret", false, "never send PRET")
	flags.String("passive-ip", "", "connect data channels to this IP instead of the advertised one")
	flags.Bool("passive-peer", false, "connect data channels to the control connection's peer address")
	flags.Duration("timeout", ftpc.DefaultTimeout, "network timeout")
	flags.Bool("no-lock", false, "do not lock the URL path as the base directory")
	flags.String("encoding", "utf-8", "listing encoding: utf-8, latin1 or windows-1252")
	flags.Int64("limit", 0, "bandwidth limit in bytes per second (0 = unlimited)")
	flags.Bool("debug", false, "log the protocol exchange")
	flags.Bool("progress", false, "show transfer progress")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")

	_ = a.v.BindPFlags(flags)

	root.AddCommand(a.commands()...)
	root.AddCommand(a.shellCmd())
	return root
}

// loadConfig reads the config file, if any, and resolves the settings from
// flags, environment and file in that order of precedence.
func (a *app) loadConfig() error {
	v := a.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("config file: %w", err)
			}
		}
	}

	a.s = settings{
		URL:         v.GetString("url"),
		User:        v.GetString("user"),
		Password:    v.GetString("password"),
		AskPassword: v.GetBool("ask-password"),
		TLS:         strings.ToLower(v.GetString("tls")),
		Insecure:    v.GetBool("insecure"),
		NoPRET:      v.GetBool("no-pret"),
		PassiveIP:   v.GetString("passive-ip"),
		PassivePeer: v.GetBool("passive-peer"),
		Timeout:     v.GetDuration("timeout"),
		NoLock:      v.GetBool("no-lock"),
		Encoding:    v.GetString("encoding"),
		Limit:       v.GetInt64("limit"),
		Debug:       v.GetBool("debug"),
		Progress:    v.GetBool("progress"),
		MetricsFile: v.GetString("metrics-file"),
	}
	return nil
}

// session returns the client, creating it on first use. The client logs
// in lazily, on its first operation.
func (a *app) session() (*ftpc.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	addr, opts, err := a.clientOptions()
	if err != nil {
		return nil, err
	}
	c, err := ftpc.New(addr, opts...)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// clientOptions turns the settings into the server address and client
// options.
func (a *app) clientOptions() (string, []ftpc.Option, error) {
	s := a.s
	if s.URL == "" {
		return "", nil, errors.New("no server given: use --url or set url in ~/.ftpc.yaml")
	}
	u, err := ftpc.ParseURL(s.URL)
	if err != nil {
		return "", nil, err
	}

	opts := []ftpc.Option{
		ftpc.WithTimeout(s.Timeout),
		ftpc.WithLogger(newLogger(a.errOut, s.Debug)),
	}

	user, password := u.User, u.Password
	if s.User != "" {
		user = s.User
	}
	if s.Password != "" {
		password = s.Password
	}
	if s.AskPassword {
		if password, err = readPassword(fmt.Sprintf("Password for %s@%s: ", user, u.Host)); err != nil {
			return "", nil, err
		}
	}
	if user != "" {
		opts = append(opts, ftpc.WithCredentials(user, password))
	}

	mode := s.TLS
	if mode == "" {
		mode = tlsModeForScheme(u.Scheme)
	}
	tlsConfig := &tls.Config{ServerName: u.Host, InsecureSkipVerify: s.Insecure}
	switch mode {
	case "none":
	case "explicit":
		opts = append(opts, ftpc.WithExplicitTLS(tlsConfig))
	case "implicit":
		opts = append(opts, ftpc.WithImplicitTLS(tlsConfig))
	default:
		return "", nil, fmt.Errorf("invalid --tls %q: want none, explicit or implicit", s.TLS)
	}

	if u.Path != "" {
		opts = append(opts, ftpc.WithInitialDir(u.Path))
	}
	if s.NoLock {
		opts = append(opts, ftpc.WithoutBaseLock())
	}
	if s.NoPRET {
		opts = append(opts, ftpc.WithoutPRET())
	}
	if s.PassiveIP != "" {
		opts = append(opts, ftpc.WithPassiveIP(s.PassiveIP))
	}
	if s.PassivePeer {
		opts = append(opts, ftpc.WithPassivePeerAddress())
	}
	if s.Limit > 0 {
		opts = append(opts, ftpc.WithBandwidthLimit(s.Limit))
	}

	enc, err := parseEncoding(s.Encoding)
	if err != nil {
		return "", nil, err
	}
	if enc != nil {
		opts = append(opts, ftpc.WithListingEncoding(enc))
	}

	if s.Progress {
		a.progress = newProgressPrinter(a.errOut)
		opts = append(opts, ftpc.WithProgress(a.progress.report))
	}
	if s.MetricsFile != "" {
		a.metrics = metrics.New()
		opts = append(opts, ftpc.WithMetrics(a.metrics))
	}

	return u.Addr(), opts, nil
}

func tlsModeForScheme(scheme string) string {
	switch scheme {
	case "ftps":
		return "implicit"
	case "ftp+explicit":
		return "explicit"
	default:
		return "none"
	}
}

// parseEncoding maps an --encoding value to a decoder. UTF-8 needs none.
func parseEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// newLogger logs warnings to w, and the protocol exchange as well when
// debug is set.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// finish closes the session and writes the metrics file.
func (a *app) finish() error {
	if a.client != nil {
		_ = a.client.Close()
		a.client = nil
	}
	if a.metrics != nil && a.s.MetricsFile != "" {
		path, err := homedir.Expand(a.s.MetricsFile)
		if err != nil {
			return err
		}
		if err := a.metrics.WriteToTextfile(path); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// run wraps a command body: it opens the session and, outside the shell,
// closes it when the command is done.
func (a *app) run(fn func(c *ftpc.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := a.session()
		if err != nil {
			return err
		}
		err = fn(c, args)
		a.progress.done()
		if a.interactive {
			return err
		}
		if ferr := a.finish(); err == nil {
			err = ferr
		}
		return err
	}
}
