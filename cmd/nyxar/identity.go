package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shakilkhan1801/NYXAR/config"
	"github.com/shakilkhan1801/NYXAR/crypto"
)

func identityCommand(cfg *config.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the local identity",
	}
	cmd.AddCommand(identityNewCommand(cfg))
	cmd.AddCommand(identityShowCommand(cfg))
	cmd.AddCommand(identityExportCommand(cfg))
	cmd.AddCommand(identityImportCommand(cfg))
	return cmd
}

func identityNewCommand(cfg *config.Client) *cobra.Command {
	var (
		username string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a new identity keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			if !force {
				if _, err := os.Stat(filepath.Join(cfg.DataDir, identityFile)); err == nil {
					return errors.New("an identity already exists; use --force to replace it")
				}
			}

			if err := crypto.VerifyStrongCrypto(); err != nil {
				return err
			}
			keys, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			identity := &crypto.Identity{
				ID:       uuid.NewString(),
				Username: username,
				KeyPair:  keys,
			}
			if err := saveIdentity(cfg, identity); err != nil {
				return err
			}
			fmt.Printf("Identity created.\n  id:       %s\n  username: %s\n", identity.ID, identity.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name for the directory")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing identity")
	return cmd
}

func identityShowCommand(cfg *config.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the identity's id and username",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := loadIdentity(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("id:       %s\nusername: %s\n", identity.ID, identity.Username)
			return nil
		},
	}
}

func identityExportCommand(cfg *config.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the identity backup string",
		Long:  "The backup string contains the private key. Store it somewhere safe and never share it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := loadIdentity(cfg)
			if err != nil {
				return err
			}
			backup, err := crypto.SerializeIdentity(identity)
			if err != nil {
				return err
			}
			fmt.Println(backup)
			return nil
		},
	}
}

func identityImportCommand(cfg *config.Client) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <backup-string>",
		Short: "Restore an identity from its backup string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(filepath.Join(cfg.DataDir, identityFile)); err == nil {
					return errors.New("an identity already exists; use --force to replace it")
				}
			}
			identity, err := crypto.DeserializeIdentity(args[0])
			if err != nil {
				return err
			}
			if err := saveIdentity(cfg, identity); err != nil {
				return err
			}
			fmt.Printf("Identity restored.\n  id:       %s\n  username: %s\n", identity.ID, identity.Username)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing identity")
	return cmd
}

func saveIdentity(cfg *config.Client, identity *crypto.Identity) error {
	ks, err := openKeyStore(cfg)
	if err != nil {
		return err
	}
	defer ks.Close()

	backup, err := crypto.SerializeIdentity(identity)
	if err != nil {
		return err
	}
	return ks.Save(identityFile, []byte(backup))
}
