package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

func newTrashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Manage deleted items",
		Long: `Items deleted locally or on the device are kept in the trash until they
are restored or wiped.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List items in the trash",
		Args:  cobra.NoArgs,
		RunE:  runTrashLs,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore [path]",
		Short: "Restore one item, or everything and sync",
		Long: `Restore one item from the trash into the archive. If its path is taken
meanwhile it is restored under a free name ("Card_1"). Without a path every
item is restored and a sync runs so the restored items reach the device.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTrashRestore,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "wipe [path]",
		Short: "Permanently delete one item, or empty the trash",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTrashWipe,
	})

	return cmd
}

func runTrashLs(cmd *cobra.Command, _ []string) error {
	s, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	return printItems(s.archive.Deleted())
}

func runTrashRestore(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return runRestoreAll(cmd)
	}

	p, err := archive.NewPath(args[0])
	if err != nil {
		return err
	}

	s, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.archive.Restore(cmd.Context(), p)
	if err != nil {
		return err
	}

	if item.Path != p {
		statusf(flagQuiet, "Restored %s as %s.\n", p, item.Path)
	} else {
		statusf(flagQuiet, "Restored %s.\n", p)
	}

	return nil
}

// runRestoreAll restores the whole trash and syncs, so it needs the device
// and the sync lock.
func runRestoreAll(cmd *cobra.Command) error {
	cfg := resolvedCfg
	if !hasDevice(cfg) {
		return errNoDevice
	}

	logger := buildLogger(cfg)

	lock, err := acquireSyncLock(pidPath(cfg))
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx := shutdownContext(cmd.Context(), logger)

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	restored := len(s.archive.Deleted())

	changes, err := s.archive.RestoreAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("restoring trash: %w", err)
	}

	statusf(flagQuiet, "Restored %d item(s); synced %d change(s).\n", restored, changes)

	return nil
}

func runTrashWipe(cmd *cobra.Command, args []string) error {
	s, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 0 {
		n := len(s.archive.Deleted())
		if err := s.archive.WipeAll(cmd.Context()); err != nil {
			return err
		}

		statusf(flagQuiet, "Wiped %d item(s) from the trash.\n", n)

		return nil
	}

	p, err := archive.NewPath(args[0])
	if err != nil {
		return err
	}

	if err := s.archive.Wipe(cmd.Context(), p); err != nil {
		return err
	}

	statusf(flagQuiet, "Wiped %s.\n", p)

	return nil
}
