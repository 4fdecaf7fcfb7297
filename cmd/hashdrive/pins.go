package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <file-id>",
		Short: "Pin a file's content so the network keeps it alive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			pinned, err := a.store.Pin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if pinned {
				fmt.Println("Pinned")
			} else {
				fmt.Println("Already pinned")
			}
			return nil
		},
	}
}

func newUnpinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <file-id>",
		Short: "Release a file's pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			unpinned, err := a.store.Unpin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if unpinned {
				fmt.Println("Unpinned")
			} else {
				fmt.Println("Not pinned")
			}
			return nil
		},
	}
}
