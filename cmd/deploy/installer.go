package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/banshee-data/timscan/internal/deploy"
)

const (
	serviceName  = "timscan"
	serviceFile  = "timscan.service"
	installPath  = "/usr/local/bin/timscan"
	dataDir      = "/var/lib/timscan"
	databasePath = "/var/lib/timscan/timscan.db"
	serviceUser  = "timscan"

	serviceTemplate = `[Unit]
Description=timscan rangefinder acquisition daemon
After=network.target

[Service]
User=timscan
Group=timscan
Type=simple
ExecStart=/usr/local/bin/timscan -device %s -db /var/lib/timscan/timscan.db
WorkingDirectory=/var/lib/timscan
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
SyslogIdentifier=timscan

[Install]
WantedBy=multi-user.target
`
)

// serviceUnit renders the systemd unit with the sensor address baked into
// ExecStart.
func serviceUnit(device string) string {
	return fmt.Sprintf(serviceTemplate, device)
}

// Installer provisions a host with the timscan daemon: service account,
// data directory, binary, systemd unit and database schema.
type Installer struct {
	Host       *deploy.Host
	BinaryPath string
	Device     string
	DBPath     string
}

// Install performs a fresh installation. A host that already carries the
// unit file is left alone.
func (i *Installer) Install() error {
	fmt.Println("Starting installation of timscan...")

	if err := i.validateBinary(); err != nil {
		return fmt.Errorf("binary validation failed: %w", err)
	}

	installed, err := serviceFilePresent(i.Host)
	if err != nil {
		return fmt.Errorf("failed to check existing installation: %w", err)
	}
	if installed {
		fmt.Println("timscan is already installed. Use 'upgrade' command to update.")
		return nil
	}
	fmt.Println("  ✓ No existing installation found")

	err = runSteps([]deployStep{
		{"create service user", i.createServiceUser},
		{"create data directory", i.createDataDir},
		{"install binary", i.installBinary},
		{"install systemd unit", i.installUnit},
		{"prepare database", i.prepareDatabase},
		{"start service", i.startService},
	})
	if err != nil {
		return err
	}

	fmt.Println("\n✓ Installation completed successfully!")
	fmt.Println("\nUseful commands:")
	fmt.Println("  Check status:  timscan-deploy status")
	fmt.Println("  Health check:  timscan-deploy health")
	fmt.Println("  View logs:     sudo journalctl -u timscan.service -f")

	return nil
}

func (i *Installer) validateBinary() error {
	fmt.Printf("Validating binary: %s\n", i.BinaryPath)

	info, err := os.Stat(i.BinaryPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("binary not found: %s", i.BinaryPath)
	}
	if err != nil {
		return err
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary is not executable: %s", i.BinaryPath)
	}

	fmt.Println("  ✓ Binary validated")
	return nil
}

func (i *Installer) createServiceUser() error {
	fmt.Printf("Creating service user '%s'...\n", serviceUser)

	out, err := i.Host.Run(fmt.Sprintf("id -u %s >/dev/null 2>&1 && echo present || echo absent", serviceUser))
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "present" {
		fmt.Printf("  ✓ User '%s' already exists\n", serviceUser)
		return nil
	}

	cmd := fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s", serviceUser)
	if _, err := i.Host.Sudo(cmd); err != nil {
		return fmt.Errorf("useradd: %w", err)
	}

	fmt.Printf("  ✓ User '%s' created\n", serviceUser)
	return nil
}

func (i *Installer) createDataDir() error {
	fmt.Printf("Creating data directory: %s\n", dataDir)

	cmd := fmt.Sprintf("mkdir -p %s && chown %s:%s %s", dataDir, serviceUser, serviceUser, dataDir)
	if _, err := i.Host.Sudo(cmd); err != nil {
		return err
	}

	fmt.Println("  ✓ Data directory created")
	return nil
}

func (i *Installer) installBinary() error {
	fmt.Printf("Installing binary to %s...\n", installPath)

	if err := i.Host.Push(i.BinaryPath, installPath); err != nil {
		return fmt.Errorf("copy binary: %w", err)
	}
	cmd := fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath)
	if _, err := i.Host.Sudo(cmd); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary installed")
	return nil
}

func (i *Installer) installUnit() error {
	fmt.Println("Installing systemd service...")

	staged := "/tmp/" + serviceFile
	if err := i.Host.Put(staged, serviceUnit(i.Device)); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	if _, err := i.Host.Sudo(fmt.Sprintf("mv %s /etc/systemd/system/%s", staged, serviceFile)); err != nil {
		return fmt.Errorf("install unit file: %w", err)
	}
	if _, err := i.Host.Sudo("systemctl daemon-reload"); err != nil {
		return fmt.Errorf("reload systemd: %w", err)
	}
	if _, err := i.Host.Sudo("systemctl enable " + serviceName); err != nil {
		return fmt.Errorf("enable service: %w", err)
	}

	fmt.Println("  ✓ Service installed and enabled")
	return nil
}

// prepareDatabase adopts an existing database when one was supplied, then
// brings the schema up to date. The daemon refuses to start against a
// stale schema, so migrations must run before the first boot.
func (i *Installer) prepareDatabase() error {
	if i.DBPath != "" {
		fmt.Printf("Adopting database from: %s\n", i.DBPath)
		if err := i.Host.Push(i.DBPath, databasePath); err != nil {
			return fmt.Errorf("copy database: %w", err)
		}
		fmt.Println("  ✓ Database adopted")
	}

	fmt.Println("Running schema migrations...")

	out, err := i.Host.Sudo(fmt.Sprintf("%s migrate up -db %s", installPath, databasePath))
	if err != nil {
		return fmt.Errorf("migrations failed: %w (output: %s)", err, out)
	}

	// Migrations ran as root; hand the files back to the service user.
	if _, err := i.Host.Sudo(fmt.Sprintf("chown -R %s:%s %s", serviceUser, serviceUser, dataDir)); err != nil {
		return fmt.Errorf("set database ownership: %w", err)
	}

	fmt.Println("  ✓ Schema up to date")
	return nil
}

func (i *Installer) startService() error {
	fmt.Printf("Starting %s service...\n", serviceName)

	if _, err := i.Host.Sudo("systemctl start " + serviceName); err != nil {
		return err
	}
	i.Host.Run(fmt.Sprintf("sleep %d", int(serviceStartGrace.Seconds())))

	if err := verifyActive(i.Host); err != nil {
		return fmt.Errorf("service failed to start properly")
	}

	fmt.Println("  ✓ Service started successfully")
	return nil
}
