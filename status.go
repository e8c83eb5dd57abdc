package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show archive and last sync status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

type statusJSON struct {
	DataDir string       `json:"data_dir"`
	Device  string       `json:"device"`
	Items   int          `json:"items"`
	Notes   int          `json:"notes"`
	Deleted int          `json:"deleted"`
	Tracked int          `json:"tracked"`
	SyncPID int          `json:"sync_pid,omitempty"`
	LastRun *lastRunJSON `json:"last_run,omitempty"`
}

type lastRunJSON struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Changes    int       `json:"changes"`
	Error      string    `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	s, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tracked, err := s.manifest.Len(cmd.Context())
	if err != nil {
		return err
	}

	out := statusJSON{
		DataDir: cfg.Storage.DataDir,
		Device:  deviceLabel(cfg.Device.URL, cfg.Device.Dir),
		Items:   len(s.archive.Items()),
		Notes:   len(s.archive.Notes()),
		Deleted: len(s.archive.Deleted()),
		Tracked: tracked,
	}

	if pid, ok := runningSync(pidPath(cfg)); ok {
		out.SyncPID = pid
	}

	run, ok, err := s.manifest.LastRun(cmd.Context())
	if err != nil {
		return err
	}

	if ok {
		out.LastRun = &lastRunJSON{
			RunID:      run.RunID,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Outcome:    run.Outcome.String(),
			Changes:    run.Changes,
			Error:      run.Err,
		}
	}

	if flagJSON {
		return printJSON(os.Stdout, out)
	}

	printStatusText(out)

	return nil
}

func deviceLabel(url, dir string) string {
	switch {
	case url != "":
		return url
	case dir != "":
		return dir
	default:
		return "(none)"
	}
}

func printStatusText(st statusJSON) {
	fmt.Printf("Data dir:  %s\n", st.DataDir)
	fmt.Printf("Device:    %s\n", st.Device)
	fmt.Printf("Items:     %d (%d notes, %d in trash)\n", st.Items, st.Notes, st.Deleted)
	fmt.Printf("Tracked:   %d\n", st.Tracked)

	if st.SyncPID != 0 {
		fmt.Printf("Sync:      running (pid %d)\n", st.SyncPID)
	}

	if st.LastRun == nil {
		fmt.Println("Last sync: never")
		return
	}

	r := st.LastRun
	fmt.Printf("Last sync: %s, %s, %d change(s)\n", formatTime(r.FinishedAt), r.Outcome, r.Changes)

	if r.Error != "" {
		fmt.Printf("Error:     %s\n", r.Error)
	}
}
