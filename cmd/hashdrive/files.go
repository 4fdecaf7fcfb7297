package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hashdrive/hashdrive/internal/config"
	"github.com/hashdrive/hashdrive/internal/registry"
	"github.com/hashdrive/hashdrive/pkg/bytesize"
)

func newInitCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file and local state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = defaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}

			cfg := config.Default()
			cfg.OwnerID = owner
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Printf("Config written to %s\n", path)
			fmt.Printf("Local state in %s\n", cfg.DataDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id for this registry")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newLsCmd() *cobra.Command {
	var trashed, starred bool
	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List folder contents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			switch {
			case trashed:
				printRecords(a.store.Trashed())
			case starred:
				printRecords(a.store.Starred())
			default:
				parentID := ""
				if len(args) == 1 {
					parentID = args[0]
				}
				if parentID != "" {
					for _, crumb := range a.store.Breadcrumbs(parentID) {
						fmt.Printf("%s/", crumb.Name)
					}
					fmt.Println()
				}
				printRecords(a.store.FolderContents(parentID))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trashed, "trashed", false, "list the trash instead")
	cmd.Flags().BoolVar(&starred, "starred", false, "list starred records instead")
	return cmd
}

func newUploadCmd() *cobra.Command {
	var parentID, mimeType string
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			name := filepath.Base(args[0])
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(name))
				if mimeType == "" {
					mimeType = "application/octet-stream"
				}
			}

			rec, err := a.store.AddFile(cmd.Context(), name, parentID, mimeType, data)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %s\n", rec.Name)
			fmt.Printf("  ID:      %s\n", rec.ID)
			fmt.Printf("  Content: %s\n", rec.ContentID)
			fmt.Printf("  Size:    %s\n", bytesize.Format(rec.SizeBytes))
			return nil
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "destination folder id (root when empty)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "mime type (detected from extension when empty)")
	return cmd
}

func newGetCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <file-id>",
		Short: "Download a file's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			// FetchContent stamps last-accessed and commits in the
			// background; drain it before the process exits.
			defer a.store.Flush()

			data, err := a.store.FetchContent(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if output == "" {
				rec, ok := a.store.Record(args[0])
				if !ok {
					output = args[0]
				} else {
					output = rec.Name
				}
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (\"-\" for stdout)")
	return cmd
}

func newMkdirCmd() *cobra.Command {
	var parentID string
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := a.store.CreateFolder(cmd.Context(), args[0], parentID)
			if err != nil {
				return err
			}
			fmt.Printf("Created folder %s (%s)\n", rec.Name, rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "parent folder id (root when empty)")
	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <id> <folder-id>",
		Short: "Move a file or folder (use \"\" for the root)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.store.Move(cmd.Context(), args[0], args[1])
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Rename a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.store.Rename(cmd.Context(), args[0], args[1])
		},
	}
}

func newTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trash <id>",
		Short: "Move a file or folder to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.store.Trash(cmd.Context(), args[0])
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a record from the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.store.Restore(cmd.Context(), args[0])
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a record permanently",
		Long: `Delete a record from the registry permanently. The content blob stays on
the storage network; without a pin it will eventually be garbage-collected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.store.DeletePermanently(cmd.Context(), args[0])
		},
	}
}

func newStarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "star <id>",
		Short: "Toggle a record's star",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			// The toggle commits in the background; drain it so the write
			// lands before the process exits.
			defer a.store.Flush()
			starred, err := a.store.ToggleStar(args[0])
			if err != nil {
				return err
			}
			if starred {
				fmt.Println("Starred")
			} else {
				fmt.Println("Unstarred")
			}
			return nil
		},
	}
}

func newRecentsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recents",
		Short: "List recently touched files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			printRecords(a.store.Recents(limit))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of files")
	return cmd
}

func newTagCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "tag <id> <tag>",
		Short: "Add or remove a tag on a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			if remove {
				return a.store.Untag(cmd.Context(), args[0], args[1])
			}
			return a.store.Tag(cmd.Context(), args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the tag instead of adding it")
	return cmd
}

func newVersionsCmd() *cobra.Command {
	var add, describe string
	cmd := &cobra.Command{
		Use:   "versions <file-id>",
		Short: "List a file's versions, or add one with --add",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			if add != "" {
				data, err := os.ReadFile(add)
				if err != nil {
					return fmt.Errorf("read %s: %w", add, err)
				}
				v, err := a.store.AddVersion(cmd.Context(), args[0], data, describe)
				if err != nil {
					return err
				}
				fmt.Printf("Added version %d (%s)\n", v.VersionNumber, v.ContentID)
				return nil
			}

			rec, ok := a.store.Record(args[0])
			if !ok {
				return fmt.Errorf("no record with id %s", args[0])
			}
			for _, v := range rec.Versions {
				line := fmt.Sprintf("v%-3d %s  %8d bytes  %s",
					v.VersionNumber, time.UnixMilli(v.CreatedAt).Format(time.RFC3339), v.Size, v.ContentID)
				if v.ChangeDescription != "" {
					line += "  " + v.ChangeDescription
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&add, "add", "", "path of new content to add as the next version")
	cmd.Flags().StringVar(&describe, "describe", "", "change description for --add")
	return cmd
}

// printRecords renders a record list in ls style.
func printRecords(records []*registry.FileRecord) {
	if len(records) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, r := range records {
		kind := "file"
		if r.IsFolder {
			kind = "dir "
		}
		var marks []string
		if r.Flags.Starred {
			marks = append(marks, "*")
		}
		if r.Pin.IsPinned {
			marks = append(marks, "pinned")
		}
		if r.Share != nil && r.Share.Enabled {
			marks = append(marks, "shared")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = "  [" + strings.Join(marks, ",") + "]"
		}
		fmt.Printf("%s  %-36s  %10s  %s%s\n", kind, r.ID, bytesize.Format(r.SizeBytes), r.Name, suffix)
	}
}
