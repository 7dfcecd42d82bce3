// Command timscan-deploy installs, upgrades and inspects timscan
// installations, either on this machine or on a remote host over SSH.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/timscan/internal/deploy"
)

const version = "0.3.0"

// verbose mirrors the --debug flag and gates command tracing.
var verbose bool

func debugLog(format string, args ...interface{}) {
	if verbose {
		fmt.Printf("[debug] "+format+"\n", args...)
	}
}

var commands = []struct {
	name    string
	summary string
	run     func(args []string)
}{
	{"install", "Set up timscan as a systemd service on a host", runInstall},
	{"upgrade", "Swap in a newer binary and migrate the schema", runUpgrade},
	{"status", "Show systemd status for the service", runStatus},
	{"health", "Check the service, API, acquisition and database", runHealth},
	{"rollback", "Restore the most recent on-host backup", runRollback},
	{"backup", "Pull the binary, database and unit file to this machine", runBackup},
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	name := flag.Arg(0)
	args := flag.Args()[1:]

	switch name {
	case "version":
		fmt.Printf("timscan-deploy version %s\n", version)
		return
	case "help":
		printUsage()
		return
	}

	for _, c := range commands {
		if c.name == name {
			c.run(args)
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage()
	os.Exit(1)
}

func printUsage() {
	fmt.Println("timscan-deploy - deployment manager for the timscan daemon")
	fmt.Println("\nUsage: timscan-deploy <command> [options]")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-10s %s\n", c.name, c.summary)
	}
	fmt.Printf("  %-10s %s\n", "version", "Show timscan-deploy version")
	fmt.Printf("  %-10s %s\n", "help", "Show this help message")
	fmt.Print(usageDetails)
}

const usageDetails = `
Options common to all commands:
  --target <host>      host to operate on; a name, an IP address or an
                       alias from ~/.ssh/config (default: localhost)
  --ssh-user <user>    SSH user; wins over ssh config and $USER
  --ssh-key <path>     SSH identity file; wins over ssh config
  --debug              trace every command the tool runs

When --target names a Host block in ~/.ssh/config, its HostName, User,
IdentityFile and IdentityAgent settings apply automatically. Explicit
flags always win over the config file.

Examples:
  # Install locally, pointing the daemon at the sensor
  timscan-deploy install --binary ./timscan-linux-arm64 --device 192.168.0.1:2112

  # Install over SSH using a config alias
  timscan-deploy install --target sensor-gw --binary ./timscan-linux-arm64

  # Upgrade a remote installation (runs schema migrations)
  timscan-deploy upgrade --target pi@192.168.1.50 --binary ./timscan-linux-arm64

  # Health check on a remote host
  timscan-deploy health --target sensor-gw

For more information, see: https://github.com/banshee-data/timscan
`

// targetFlags carries the flags every subcommand shares.
type targetFlags struct {
	target *string
	user   *string
	key    *string
	debug  *bool
}

func newTargetFlags(fs *flag.FlagSet) *targetFlags {
	return &targetFlags{
		target: fs.String("target", "localhost", "host to operate on (name, IP or ssh config alias)"),
		user:   fs.String("ssh-user", "", "SSH user, overriding ssh config"),
		key:    fs.String("ssh-key", "", "SSH identity file, overriding ssh config"),
		debug:  fs.Bool("debug", false, "trace every command the tool runs"),
	}
}

// host folds ~/.ssh/config into the parsed flags and builds the Host,
// falling back to the invoking user. Exits on a malformed config.
func (f *targetFlags) host(dryRun bool) *deploy.Host {
	verbose = *f.debug

	cfg, err := deploy.ResolveTarget(*f.target, *f.user, *f.key)
	if err != nil {
		fatalf("Failed to resolve SSH config: %v", err)
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}
	cfg.DryRun = dryRun

	h := deploy.NewHost(cfg)
	h.Trace = debugLog
	return h
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireBinary(fs *flag.FlagSet, binaryPath string) {
	if binaryPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --binary is required (e.g. --binary ./timscan-linux-arm64)")
		fs.Usage()
		os.Exit(1)
	}
}

func runInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	tf := newTargetFlags(fs)
	binary := fs.String("binary", "", "path to the timscan binary (required)")
	device := fs.String("device", "192.168.0.1:2112", "sensor address baked into the service unit")
	dbPath := fs.String("db-path", "", "existing database to adopt")
	dryRun := fs.Bool("dry-run", false, "print the commands without running them")
	fs.Parse(args)

	requireBinary(fs, *binary)

	inst := &Installer{
		Host:       tf.host(*dryRun),
		BinaryPath: *binary,
		Device:     *device,
		DBPath:     *dbPath,
	}
	if err := inst.Install(); err != nil {
		fatalf("Installation failed: %v", err)
	}
}

func runUpgrade(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	tf := newTargetFlags(fs)
	binary := fs.String("binary", "", "path to the new timscan binary (required)")
	dryRun := fs.Bool("dry-run", false, "print the commands without running them")
	noBackup := fs.Bool("no-backup", false, "skip the pre-upgrade backup")
	noMigrate := fs.Bool("no-migrate", false, "skip schema migrations")
	fs.Parse(args)

	requireBinary(fs, *binary)

	up := &Upgrader{
		Host:       tf.host(*dryRun),
		BinaryPath: *binary,
		NoBackup:   *noBackup,
		NoMigrate:  *noMigrate,
	}
	if err := up.Upgrade(); err != nil {
		fatalf("Upgrade failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	tf := newTargetFlags(fs)
	fs.Parse(args)

	mon := &Monitor{Host: tf.host(false)}

	status, err := mon.GetStatus()
	if err != nil {
		fatalf("Failed to get status: %v", err)
	}
	fmt.Print(status)
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	tf := newTargetFlags(fs)
	apiPort := fs.Int("api-port", 8080, "port the timscan API listens on")
	fs.Parse(args)

	mon := &Monitor{Host: tf.host(false), APIPort: *apiPort}

	health, err := mon.CheckHealth()
	if err != nil {
		fatalf("Health check failed: %v", err)
	}
	if !health.Healthy {
		fmt.Printf("Service is UNHEALTHY: %s\n%s\n", health.Message, health.Details)
		os.Exit(1)
	}
	fmt.Printf("Service is HEALTHY\n%s\n", health.Details)
}

func runRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	tf := newTargetFlags(fs)
	dryRun := fs.Bool("dry-run", false, "print the commands without running them")
	yes := fs.Bool("yes", false, "answer yes to all prompts")
	fs.Parse(args)

	rb := &Rollback{Host: tf.host(*dryRun), Yes: *yes}
	if err := rb.Execute(); err != nil {
		fatalf("Rollback failed: %v", err)
	}
}

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	tf := newTargetFlags(fs)
	outputDir := fs.String("output", ".", "directory the backup is written under")
	fs.Parse(args)

	bk := &Backup{Host: tf.host(false), OutputDir: *outputDir}
	if err := bk.Execute(); err != nil {
		fatalf("Backup failed: %v", err)
	}
}
