package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.yaml interactively",
	Long: `Ask for the server mode, port, served directory or proxy backends and an
optional TLS pair, then write them as a config file that "sluice serve"
picks up.`,
	// The file is being created, there is nothing to load yet.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runInit,
}

func init() {
	initCmd.Flags().StringP("output", "o", "config.yaml", "file to write")
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	rootCmd.AddCommand(initCmd)
}

// initFile is the subset of the configuration init asks about.
type initFile struct {
	Server initServer  `yaml:"server"`
	Static *initStatic `yaml:"static,omitempty"`
	Proxy  *initProxy  `yaml:"proxy,omitempty"`
}

type initServer struct {
	Port int      `yaml:"port"`
	Mode string   `yaml:"mode"`
	TLS  *initTLS `yaml:"tls,omitempty"`
}

type initTLS struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type initStatic struct {
	Root string `yaml:"root"`
}

type initProxy struct {
	Backends []initBackend `yaml:"backends"`
}

type initBackend struct {
	Authority string `yaml:"authority"`
	Address   string `yaml:"address"`
}

func runInit(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(output); err == nil && !force {
		overwrite := promptui.Prompt{
			Label:     fmt.Sprintf("%s already exists. Overwrite", output),
			IsConfirm: true,
		}
		if _, promptErr := overwrite.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil //nolint:nilerr // User cancelled, not an error
		}
	}

	file, err := promptInitFile()
	if err != nil {
		return handlePromptError(err)
	}

	if err := writeInitFile(output, file); err != nil {
		return err
	}

	fmt.Printf("Wrote %s. Start with: sluice serve --config %s\n", output, output)
	return nil
}

func promptInitFile() (*initFile, error) {
	modeSelect := promptui.Select{
		Label: "Server mode",
		Items: []string{"static", "spa", "proxy"},
	}
	_, mode, err := modeSelect.Run()
	if err != nil {
		return nil, err
	}

	portPrompt := promptui.Prompt{
		Label:    "Port",
		Default:  "8080",
		Validate: validatePort,
	}
	portVal, err := portPrompt.Run()
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(portVal)

	file := &initFile{Server: initServer{Port: port, Mode: mode}}

	if mode == "proxy" {
		backends, err := promptBackends()
		if err != nil {
			return nil, err
		}
		file.Proxy = &initProxy{Backends: backends}
	} else {
		rootPrompt := promptui.Prompt{
			Label:   "Directory to serve",
			Default: "./public",
			Validate: func(input string) error {
				if input == "" {
					return errors.New("directory is required")
				}
				return nil
			},
		}
		root, err := rootPrompt.Run()
		if err != nil {
			return nil, err
		}
		file.Static = &initStatic{Root: root}
	}

	tlsPrompt := promptui.Prompt{
		Label:     "Serve over TLS",
		IsConfirm: true,
	}
	if _, err := tlsPrompt.Run(); err == nil {
		certPrompt := promptui.Prompt{Label: "Certificate file", Validate: validateExisting}
		cert, err := certPrompt.Run()
		if err != nil {
			return nil, err
		}
		keyPrompt := promptui.Prompt{Label: "Key file", Validate: validateExisting}
		key, err := keyPrompt.Run()
		if err != nil {
			return nil, err
		}
		file.Server.TLS = &initTLS{Cert: cert, Key: key}
	} else if !errors.Is(err, promptui.ErrAbort) {
		return nil, err
	}

	return file, nil
}

// promptBackends asks for backends until an empty authority is entered.
func promptBackends() ([]initBackend, error) {
	var backends []initBackend
	for {
		authorityPrompt := promptui.Prompt{
			Label: "Backend authority (empty to finish)",
		}
		authority, err := authorityPrompt.Run()
		if err != nil {
			return nil, err
		}
		if authority == "" {
			return backends, nil
		}

		addressPrompt := promptui.Prompt{
			Label:    fmt.Sprintf("Address for %s (host:port)", authority),
			Validate: validateHostPort,
		}
		address, err := addressPrompt.Run()
		if err != nil {
			return nil, err
		}

		backends = append(backends, initBackend{Authority: authority, Address: address})
	}
}

func writeInitFile(path string, file *initFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func validatePort(input string) error {
	port, err := strconv.Atoi(input)
	if err != nil || port < 1 || port > 65535 {
		return errors.New("port must be a number between 1 and 65535")
	}
	return nil
}

func validateHostPort(input string) error {
	if _, _, err := net.SplitHostPort(input); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return nil
}

func validateExisting(input string) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("cannot use file: %w", err)
	}
	return nil
}

func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}
	if errors.Is(err, promptui.ErrAbort) {
		fmt.Println("Cancelled.")
		return nil
	}
	return err
}
