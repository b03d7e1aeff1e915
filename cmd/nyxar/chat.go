package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	nyxar "github.com/shakilkhan1801/NYXAR"
	"github.com/shakilkhan1801/NYXAR/call"
	"github.com/shakilkhan1801/NYXAR/config"
	"github.com/shakilkhan1801/NYXAR/wire"
)

// directoryWait bounds how long commands wait for the initial roster.
const directoryWait = 5 * time.Second

// connect unlocks the identity and brings up a registered client.
func connect(cfg *config.Client) (*nyxar.Client, error) {
	identity, err := loadIdentity(cfg)
	if err != nil {
		return nil, err
	}
	client, err := nyxar.Connect(identity, nil, nyxar.Config{
		RelayAddr: cfg.RelayAddr,
		Noise:     cfg.Noise,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// waitForContact polls the roster until the id appears or the wait expires.
func waitForContact(client *nyxar.Client, id string) (nyxar.Contact, error) {
	deadline := time.Now().Add(directoryWait)
	for time.Now().Before(deadline) {
		if contact, ok := client.Contact(id); ok {
			return contact, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nyxar.Contact{}, fmt.Errorf("%s not found in directory", id)
}

func directoryCommand(cfg *config.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "directory",
		Short: "List known users",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Start(); err != nil {
				return err
			}

			// The roster arrives asynchronously right after registration.
			time.Sleep(500 * time.Millisecond)
			for _, contact := range client.Contacts() {
				state := "offline"
				if contact.Online {
					state = "online"
				}
				fmt.Printf("%-36s  %-20s  %s\n", contact.ID, contact.Username, state)
			}
			return nil
		},
	}
}

func sendCommand(cfg *config.Client) *cobra.Command {
	var (
		to      string
		message string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an encrypted message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" || message == "" {
				return errors.New("--to and --message are required")
			}

			client, err := connect(cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Start(); err != nil {
				return err
			}
			if _, err := waitForContact(client, to); err != nil {
				return err
			}

			msgID, err := client.SendMessage(to, []byte(message), wire.KindText)
			if err != nil {
				return err
			}
			fmt.Printf("sent %s\n", msgID)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient id")
	cmd.Flags().StringVar(&message, "message", "", "message text")
	return cmd
}

func listenCommand(cfg *config.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print incoming messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			client.OnMessage(func(m nyxar.Message) {
				fmt.Printf("[%s] %s: %s\n", m.SentAt.Format(time.RFC3339), m.SenderID, m.Content)
			})
			client.OnPresence(func(c nyxar.Contact) {
				state := "offline"
				if c.Online {
					state = "online"
				}
				fmt.Printf("* %s (%s) is %s\n", c.Username, c.ID, state)
			})
			client.OnTyping(func(senderID string) {
				fmt.Printf("* %s is typing...\n", senderID)
			})
			client.OnCallState(func(sc call.StateChange) {
				fmt.Printf("* call %s: %s\n", sc.Session.CallID, sc.State)
			})

			disconnected := make(chan error, 1)
			client.OnDisconnect(func(err error) { disconnected <- err })

			if err := client.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case <-ctx.Done():
				return nil
			case err := <-disconnected:
				return fmt.Errorf("relay connection lost: %w", err)
			}
		},
	}
}
