// Command nyxar is the command-line messenger client.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shakilkhan1801/NYXAR/config"
	"github.com/shakilkhan1801/NYXAR/crypto"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cfg, cfgErr := config.LoadClient()

	cmd := &cobra.Command{
		Use:          "nyxar",
		Short:        "Nyxar end-to-end encrypted messenger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return config.ApplyLogLevel(cfg.LogLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&cfg.RelayAddr, "relay", cfg.RelayAddr, "relay host:port")
	cmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "identity store directory")
	cmd.PersistentFlags().BoolVar(&cfg.Noise, "noise", cfg.Noise, "use the encrypted channel to the relay")

	cmd.AddCommand(identityCommand(&cfg))
	cmd.AddCommand(directoryCommand(&cfg))
	cmd.AddCommand(sendCommand(&cfg))
	cmd.AddCommand(listenCommand(&cfg))
	return cmd
}

// identityFile is the keystore entry holding the serialized identity.
const identityFile = "identity"

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pass, nil
}

// openKeyStore prompts for the passphrase and unlocks the store.
func openKeyStore(cfg *config.Client) (*crypto.KeyStore, error) {
	pass, err := readPassphrase("Passphrase: ")
	if err != nil {
		return nil, err
	}
	return crypto.NewKeyStore(cfg.DataDir, pass)
}

// loadIdentity unlocks the keystore and restores the stored identity.
func loadIdentity(cfg *config.Client) (*crypto.Identity, error) {
	ks, err := openKeyStore(cfg)
	if err != nil {
		return nil, err
	}
	defer ks.Close()

	backup, err := ks.Load(identityFile)
	if err != nil {
		return nil, fmt.Errorf("no identity found (run \"nyxar identity new\"): %w", err)
	}
	identity, err := crypto.DeserializeIdentity(string(backup))
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "loadIdentity",
		"id":       identity.ID,
	}).Debug("Identity unlocked")
	return identity, nil
}
