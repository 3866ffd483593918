package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gossh/internal/config"
	"github.com/dantte-lp/gossh/internal/kex"
	"github.com/dantte-lp/gossh/internal/knownhosts"
	"github.com/dantte-lp/gossh/internal/sshclient"
	"github.com/dantte-lp/gossh/internal/sshmetrics"
	"github.com/dantte-lp/gossh/internal/userauth"
)

func connectCmd() *cobra.Command {
	var (
		host                string
		port                int
		user                string
		timeout             time.Duration
		passwordEnvVar      string
		identityPath        string
		knownHostsPath      string
		globalKnownHosts    string
		checkGlobalKnown    bool
		proxyURL            string
		assumeYesOnNewHosts bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Dial an SSH server, negotiate algorithms, and authenticate",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			settings, err := buildSettings(settingsInput{
				host:                host,
				port:                port,
				user:                user,
				timeout:             timeout,
				passwordEnvVar:      passwordEnvVar,
				identityPath:        identityPath,
				knownHostsPath:      knownHostsPath,
				globalKnownHosts:    globalKnownHosts,
				checkGlobalKnown:    checkGlobalKnown,
				proxyURL:            proxyURL,
				assumeYesOnNewHosts: assumeYesOnNewHosts,
			})
			if err != nil {
				return fmt.Errorf("build connection settings: %w", err)
			}

			collector := sshmetrics.NewCollector(prometheus.DefaultRegisterer)
			collector.RegisterConnection(settings.Host)
			defer collector.UnregisterConnection(settings.Host)
			settings.Metrics = collector

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			conn, err := sshclient.Connect(ctx, settings)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", settings.Host, err)
			}
			defer conn.Close()

			collector.IncKeyExchange(settings.Host, conn.Info.Algorithms.Kex)
			printConnectionInfo(conn.Info)

			// Keep the connection's reader loop alive, tied to an
			// errgroup alongside the signal-driven shutdown goroutine
			// (Transport.WaitGroupRun's documented use case), until the
			// connection fails or the user interrupts with SIGINT/SIGTERM.
			g, gctx := errgroup.WithContext(ctx)
			conn.WaitGroupRun(g)
			g.Go(func() error {
				<-gctx.Done()
				conn.Close()
				return nil
			})
			return g.Wait()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&host, "host", "", "SSH server hostname or IP address (required)")
	flags.IntVar(&port, "port", 0, "SSH server port (default 22)")
	flags.StringVar(&user, "user", "", "username to authenticate as (required)")
	flags.DurationVar(&timeout, "timeout", 0, "connect timeout (default 30s)")
	flags.StringVar(&passwordEnvVar, "password-env", "", "environment variable holding the password credential")
	flags.StringVar(&identityPath, "identity", "", "path to a PEM private key for publickey authentication")
	flags.StringVar(&knownHostsPath, "known-hosts", "", "user known_hosts file path")
	flags.StringVar(&globalKnownHosts, "global-known-hosts", "/etc/ssh/ssh_known_hosts", "system-wide known_hosts file path")
	flags.BoolVar(&checkGlobalKnown, "check-global-known-hosts", true, "also consult the global known_hosts file")
	flags.StringVar(&proxyURL, "proxy", "", "socks5://host:port proxy to dial through")
	flags.BoolVar(&assumeYesOnNewHosts, "yes", false, "automatically trust unknown/changed host keys without prompting (dangerous)")

	return cmd
}

type settingsInput struct {
	host, user              string
	port                    int
	timeout                 time.Duration
	passwordEnvVar          string
	identityPath            string
	knownHostsPath          string
	globalKnownHosts        string
	checkGlobalKnown        bool
	proxyURL                string
	assumeYesOnNewHosts     bool
}

// buildSettings merges an optional --config file with CLI flags into an
// sshclient.Settings, flags always winning over the file. When no --config
// is given, the flags (plus config.DefaultConfig()'s ambient defaults) are
// the entire source of truth.
func buildSettings(in settingsInput) (sshclient.Settings, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return sshclient.Settings{}, fmt.Errorf("load config %s: %w", configPath, err)
		}
		cfg = loaded
	}

	if in.host != "" {
		cfg.Connect.Host = in.host
	}
	if in.user != "" {
		cfg.Connect.User = in.user
	}
	if in.port != 0 {
		cfg.Connect.Port = in.port
	}
	if in.timeout != 0 {
		cfg.Connect.Timeout = in.timeout
	}
	if in.proxyURL != "" {
		cfg.Connect.ProxyURL = in.proxyURL
	}
	if in.passwordEnvVar != "" {
		cfg.Auth.PasswordEnvVar = in.passwordEnvVar
	}
	if in.identityPath != "" {
		cfg.Auth.PrivateKeyPath = in.identityPath
	}
	if in.knownHostsPath != "" {
		cfg.KnownHosts.Path = in.knownHostsPath
	}
	if in.globalKnownHosts != "" {
		cfg.KnownHosts.GlobalPath = in.globalKnownHosts
	}
	cfg.KnownHosts.CheckGlobalKnownHosts = in.checkGlobalKnown
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return sshclient.Settings{}, err
	}

	credentials, err := buildCredentials(cfg.Auth)
	if err != nil {
		return sshclient.Settings{}, err
	}

	return sshclient.Settings{
		User:                  cfg.Connect.User,
		Host:                  cfg.Connect.Host,
		Port:                  cfg.Connect.Port,
		ConnectTimeout:        cfg.Connect.Timeout,
		KnownHostsFilePath:    cfg.KnownHosts.Path,
		CheckGlobalKnownHosts: cfg.KnownHosts.CheckGlobalKnownHosts,
		GlobalKnownHostsPath:  cfg.KnownHosts.GlobalPath,
		HostAuthentication:    hostAuthenticationCallback(in.assumeYesOnNewHosts),
		Credentials:           credentials,
		Preferences:           preferencesFromConfig(cfg.Algorithms),
		ProxyURL:              cfg.Connect.ProxyURL,
		Logger:                loggerFromConfig(cfg.Log),
	}, nil
}

// loggerFromConfig builds the slog.Logger gosshctl threads through
// sshclient into transport/userauth/kex (SPEC_FULL.md Section 10),
// honoring the --log-level flag and config-file log format (matching the
// teacher's cmd/gobfd main.go convention of building one *slog.Logger at
// the entrypoint and passing it down, rather than each package reaching
// for slog.Default()).
func loggerFromConfig(lc config.LogConfig) *slog.Logger {
	level := config.ParseLogLevel(lc.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(lc.Format, "text") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func preferencesFromConfig(a config.AlgorithmsConfig) kex.Preferences {
	return kex.Preferences{
		KexAlgos:     a.Kex,
		HostKeyAlgos: a.HostKey,
		Ciphers:      a.Ciphers,
		MACs:         a.MACs,
	}
}

func buildCredentials(a config.AuthConfig) ([]userauth.Credential, error) {
	var credentials []userauth.Credential

	if a.PrivateKeyPath != "" {
		signer, err := userauth.LoadPrivateKeySigner(a.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load identity %s: %w", a.PrivateKeyPath, err)
		}
		credentials = append(credentials, userauth.PublicKey{Signer: signer})
	}

	if a.PasswordEnvVar != "" {
		password, ok := os.LookupEnv(a.PasswordEnvVar)
		if ok {
			credentials = append(credentials, userauth.Password(password))
		}
	}

	return credentials, nil
}

// hostAuthenticationCallback returns a knownhosts.Callback implementing
// OpenSSH's familiar interactive trust-on-first-use prompt, or one that
// accepts every key without prompting when assumeYes is set. A Revoked
// result is refused in both modes.
func hostAuthenticationCallback(assumeYes bool) knownhosts.Callback {
	return func(_ context.Context, result knownhosts.Result, host string, port int, keyType string, keyBlob []byte) (knownhosts.Decision, error) {
		if result == knownhosts.Revoked {
			return knownhosts.DecisionRevoked, nil
		}

		fingerprint := sshclient.FingerprintSHA256(keyBlob)
		if assumeYes {
			return knownhosts.DecisionAddKnownHost, nil
		}

		switch result {
		case knownhosts.Changed:
			fmt.Printf("WARNING: the %s host key for %s:%d has changed! Fingerprint: %s\n", keyType, host, port, fingerprint)
		default:
			fmt.Printf("The authenticity of host %s:%d (%s) can't be established.\nFingerprint: %s\n", host, port, keyType, fingerprint)
		}

		fmt.Print("Are you sure you want to continue connecting (yes/no)? ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(line)) != "yes" {
			return knownhosts.DecisionUnknown, nil
		}
		return knownhosts.DecisionAddKnownHost, nil
	}
}

func printConnectionInfo(info sshclient.ConnectionInfo) {
	fmt.Printf("Connected to %s:%d (%s)\n", info.Host, info.Port, info.ServerVersion)
	fmt.Printf("  Key exchange:    %s\n", info.Algorithms.Kex)
	fmt.Printf("  Host key type:   %s\n", info.ServerHostKeyType)
	fmt.Printf("  Host key:        %s\n", info.ServerKeySHA256Fingerprint)
	fmt.Printf("  Cipher (c->s):   %s\n", info.Algorithms.ClientToServer.Cipher)
	fmt.Printf("  Cipher (s->c):   %s\n", info.Algorithms.ServerToClient.Cipher)
	fmt.Printf("  Session ID:      %x\n", info.SessionID)
}
