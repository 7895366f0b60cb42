// Package main implements the passphrasex command line client. It wires
// the local SQLite store and the remote NATS store into the vault and
// exposes the credential operations as subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/srosati/passphrasex/config"
	"github.com/srosati/passphrasex/remote"
	"github.com/srosati/passphrasex/vault"
	"github.com/srosati/passphrasex/vault/storage"
)

// Version is set at build time
var Version = "dev"

const usage = `Usage: passphrasex [flags] <command> [args]

Commands:
  register                       Create a new identity, print its seed phrase
  login <seed phrase...>         Attach this device to an existing identity
  status                         Show registration and remote store status
  add <site> <username>          Add a credential (password read from terminal)
  get <site> [username]          Show stored credentials for a site
  edit <site> <username>         Replace a credential's password
  delete <site> <username>       Remove a credential
  sync                           Refresh the local cache from the remote store

Flags:
`

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to configuration file")
	remoteURL := flag.String("remote-url", "", "Remote store URL (overrides config)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *remoteURL != "" {
		cfg.Remote.URL = *remoteURL
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, args[0], args[1:]); err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Command failed")
	}
}

func run(cfg *config.Config, command string, args []string) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := remote.Dial(remote.Options{
		URL:             cfg.Remote.URL,
		CredentialsFile: cfg.Remote.CredentialsFile,
		Timeout:         time.Duration(cfg.Remote.Timeout) * time.Millisecond,
		ReconnectWait:   time.Duration(cfg.Remote.ReconnectWait) * time.Millisecond,
		MaxReconnects:   cfg.Remote.MaxReconnects,
	})
	var rs vault.RemoteStore
	if err != nil {
		// Reads still work against the local cache when the store is down.
		log.Warn().Err(err).Msg("Remote store unreachable, working offline")
		rs = remote.Offline{}
	} else {
		defer client.Close()
		rs = client
	}
	v := vault.New(store, rs)
	ctx := context.Background()

	switch command {
	case "register":
		return cmdRegister(ctx, v)
	case "login":
		return cmdLogin(ctx, v, args)
	case "status":
		return cmdStatus(ctx, v)
	case "add":
		return cmdAdd(ctx, v, args)
	case "get":
		return cmdGet(ctx, v, args)
	case "edit":
		return cmdEdit(ctx, v, args)
	case "delete":
		return cmdDelete(ctx, v, args)
	case "sync":
		return cmdSync(ctx, v)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func cmdRegister(ctx context.Context, v *vault.Vault) error {
	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	phrase, err := v.Register(ctx, password)
	if err != nil {
		return err
	}
	fmt.Println("Identity created. Write down this seed phrase and keep it safe:")
	fmt.Println()
	fmt.Println("  " + phrase.Phrase())
	fmt.Println()
	fmt.Println("It is the only way to recover the account on another device.")
	return nil
}

func cmdLogin(ctx context.Context, v *vault.Vault, args []string) error {
	phrase := strings.Join(args, " ")
	if phrase == "" {
		return fmt.Errorf("login requires the seed phrase")
	}
	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	if err := v.Authenticate(ctx, phrase, password); err != nil {
		return err
	}
	fmt.Println("Device attached.")
	return nil
}

func cmdStatus(ctx context.Context, v *vault.Vault) error {
	registered, unlocked, err := v.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("registered: %v\nunlocked:   %v\n", registered, unlocked)
	return nil
}

func cmdAdd(ctx context.Context, v *vault.Vault, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: add <site> <username>")
	}
	if err := unlock(ctx, v); err != nil {
		return err
	}
	password, err := promptSecret("Credential password: ")
	if err != nil {
		return err
	}
	if err := v.Add(ctx, args[0], args[1], password); err != nil {
		return err
	}
	fmt.Println("Credential stored.")
	return nil
}

func cmdGet(ctx context.Context, v *vault.Vault, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: get <site> [username]")
	}
	if err := unlock(ctx, v); err != nil {
		return err
	}

	if len(args) == 2 {
		cred, err := v.Get(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", cred.Site, cred.Username, cred.Password)
		return nil
	}

	creds, err := v.GetSite(args[0])
	if err != nil {
		return err
	}
	for _, cred := range creds {
		fmt.Printf("%s\t%s\t%s\n", cred.Site, cred.Username, cred.Password)
	}
	return nil
}

func cmdEdit(ctx context.Context, v *vault.Vault, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: edit <site> <username>")
	}
	if err := unlock(ctx, v); err != nil {
		return err
	}
	password, err := promptSecret("New credential password: ")
	if err != nil {
		return err
	}
	if err := v.Edit(ctx, args[0], args[1], password); err != nil {
		return err
	}
	fmt.Println("Credential updated.")
	return nil
}

func cmdDelete(ctx context.Context, v *vault.Vault, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delete <site> <username>")
	}
	if err := unlock(ctx, v); err != nil {
		return err
	}
	if err := v.Delete(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("Credential deleted.")
	return nil
}

func cmdSync(ctx context.Context, v *vault.Vault) error {
	if err := unlock(ctx, v); err != nil {
		return err
	}
	if err := v.Sync(ctx); err != nil {
		return err
	}
	fmt.Println("Cache refreshed.")
	return nil
}

// unlock prompts for the device password and opens the vault.
func unlock(ctx context.Context, v *vault.Vault) error {
	password, err := promptSecret("Device password: ")
	if err != nil {
		return err
	}
	return v.Unlock(ctx, password)
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

func promptNewPassword() (string, error) {
	password, err := promptSecret("New device password: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptSecret("Repeat device password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	if password == "" {
		return "", fmt.Errorf("device password must not be empty")
	}
	return password, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".passphrasex", "config.yaml")
}
