package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashdrive/hashdrive/internal/registry"
)

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage share links",
	}
	cmd.AddCommand(newShareEnableCmd())
	cmd.AddCommand(newShareDisableCmd())
	cmd.AddCommand(newShareShowCmd())
	return cmd
}

func newShareEnableCmd() *cobra.Command {
	var permission, password, expiresIn string
	cmd := &cobra.Command{
		Use:   "enable <id>",
		Short: "Create or re-enable a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			var expiresAt time.Time
			if expiresIn != "" {
				d, err := time.ParseDuration(expiresIn)
				if err != nil {
					return fmt.Errorf("parse --expires-in: %w", err)
				}
				expiresAt = time.Now().Add(d)
			}

			share, err := a.store.EnableShare(cmd.Context(), args[0], permission, password, expiresAt)
			if err != nil {
				return err
			}
			fmt.Printf("Share ID:   %s\n", share.ShareID)
			fmt.Printf("Permission: %s\n", share.Permission)
			if share.ExpiresAt > 0 {
				fmt.Printf("Expires:    %s\n", time.UnixMilli(share.ExpiresAt).Format(time.RFC3339))
			}
			if password != "" {
				fmt.Println("Password protected")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&permission, "permission", registry.PermissionViewer, "viewer or editor")
	cmd.Flags().StringVar(&password, "password", "", "optional share password")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "lifetime, e.g. 72h (never when empty)")
	return cmd
}

func newShareDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a record's share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.store.DisableShare(cmd.Context(), args[0])
		},
	}
}

func newShareShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <share-id>",
		Short: "Resolve a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := a.store.SharedRecord(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Name:       %s\n", rec.Name)
			fmt.Printf("ID:         %s\n", rec.ID)
			fmt.Printf("Permission: %s\n", rec.Share.Permission)
			fmt.Printf("Accesses:   %d\n", rec.Share.AccessCount)
			return nil
		},
	}
}
