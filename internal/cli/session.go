package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/stride/pkg/ports"
)

// ListSessions writes one line per persisted session record.
func ListSessions(ctx context.Context, w io.Writer, store ports.SessionStateStore) error {
	ids, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No active sessions found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tUSER\tSTAGE\tPLAN\tLAST ACTIVITY")
	for _, id := range ids {
		rec, err := store.Load(ctx, id)
		if err != nil {
			// Removed between List and Load
			continue
		}
		plan := "-"
		if rec.PrescriptionExists {
			plan = "yes"
		} else if rec.GenerationTriggered {
			plan = "pending"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.SessionID, rec.UserID, rec.CurrentStage, plan,
			rec.LastActivityAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// RemoveSessions resets each record and reports per id. It returns an
// error if any removal failed.
func RemoveSessions(ctx context.Context, w io.Writer, store ports.SessionStateStore, ids []string) error {
	failed := 0
	for _, id := range ids {
		if err := store.Reset(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			failed++
			continue
		}
		fmt.Fprintf(w, "Removed session '%s'\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions could not be removed", failed, len(ids))
	}
	return nil
}
