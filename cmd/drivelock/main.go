package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/awnumar/memguard"
	"github.com/saylorsolutions/drivelock/cmd/internal"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
	flag "github.com/spf13/pflag"
)

var version = "dev"

func main() {
	var (
		helpFlag      bool
		versionFlag   bool
		configFlag    string
		storeFlag     string
		rootFlag      string
		plaintextFlag bool
		logLevelFlag  string
		passwordFile  string
		yesFlag       bool
	)
	flags := flag.NewFlagSet("drivelock", flag.ContinueOnError)
	flags.BoolVarP(&helpFlag, "help", "h", false, "Prints this usage information.")
	flags.BoolVar(&versionFlag, "version", false, "Prints the version.")
	flags.StringVarP(&configFlag, "config", "c", "", "Reads settings from a YAML config file.")
	flags.StringVarP(&storeFlag, "store", "s", "", "Path to the store file.")
	flags.StringVarP(&rootFlag, "root", "r", "", "Name of the root folder in the store.")
	flags.BoolVar(&plaintextFlag, "plaintext", false, "Store names and content without encryption.")
	flags.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, or error.")
	flags.StringVarP(&passwordFile, "password-file", "p", "", "Reads the password from a file instead of "+passwordEnv+" or a prompt.")
	flags.BoolVarP(&yesFlag, "yes", "y", false, "Confirms destructive commands.")
	flags.Usage = func() {
		fmt.Printf(`
drivelock keeps files in a local store with encrypted names and content.
Each item gets its own key, which is wrapped by a master key derived from your password.
The first command that needs a password sets it, and later commands must use the same password.

USAGE:  drivelock [FLAGS] COMMAND [ARGS]

COMMANDS:
    init               Sets the password, or checks it if one is already set.
    ls [PATH]          Lists a folder, or the root if PATH is omitted.
    mkdir PATH         Creates a folder and any missing parents.
    put PATH [FILE]    Writes FILE, or stdin, to PATH.
    get PATH [FILE]    Writes the content at PATH to FILE, or stdout.
    mv PATH NEWNAME    Renames an item in place. NEWNAME is a name, not a path.
    rm PATH...         Deletes items, including everything in deleted folders.
    reset              Deletes everything in the root and forgets the password. Requires --yes.

FLAGS:
%s
CONFIG:
    The config file may set store, root, plaintext, log_level, and kdf (algorithm and iterations).
KDF settings are saved in the store when it's first used, and can't be changed later.
`, flags.FlagUsages())
	}
	if len(os.Args) == 1 {
		flags.Usage()
		return
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		flags.Usage()
		internal.Fatal("Error parsing flags: %v", err)
	}
	if helpFlag {
		flags.Usage()
		return
	}
	if versionFlag {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig(configFlag)
	if err != nil {
		internal.Fatal("Failed to load config: %v", err)
	}
	if flags.Changed("store") {
		cfg.Store = storeFlag
	}
	if flags.Changed("root") {
		cfg.Root = rootFlag
	}
	if flags.Changed("plaintext") {
		cfg.Plaintext = plaintextFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.validate(); err != nil {
		internal.Fatal("Invalid config: %v", err)
	}
	log, err := internal.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		internal.Fatal("Invalid config: %v", err)
	}

	c := &cli{
		cfg:    cfg,
		yes:    yesFlag,
		log:    log,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		getPassword: func(confirm bool) (passlock.Passphrase, error) {
			return readPassword(passwordFile, confirm)
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err = c.run(ctx, flags.Args())
	cancel()
	memguard.Purge()
	if err != nil {
		internal.Fatal("Error: %v", err)
	}
}
