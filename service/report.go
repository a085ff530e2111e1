// ABOUTME: Human-readable run and failure reports delivered to the sink channel
// ABOUTME: Plain text, one line per account, stable field order

package service

import (
	"fmt"
	"strings"
	"time"

	"media-archiver/models"
)

// BuildRunReport renders the aggregated end-of-run summary.
func BuildRunReport(summary *models.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "sync run %s\n", summary.RunID)
	fmt.Fprintf(&b, "started %s\n", summary.StartedAt.UTC().Format(time.RFC3339))

	if summary.SkippedByLock {
		b.WriteString("skipped: another run holds the job lock\n")
		return b.String()
	}

	for _, acct := range summary.Accounts {
		fmt.Fprintf(&b, "@%s: uploaded=%d skipped=%d failed=%d incremental=%d/%d backfill=%d/%d",
			acct.Handle,
			acct.Uploaded,
			acct.Skipped,
			acct.Failed,
			acct.IncrementalSelected,
			acct.IncrementalCandidates,
			acct.BackfillSelected,
			acct.BackfillCandidates)
		if acct.BackfillDone {
			b.WriteString(" backfill_done")
		}
		if acct.CooldownActive && acct.CooldownUntil != nil {
			fmt.Fprintf(&b, " cooldown_until=%s", acct.CooldownUntil.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "total uploaded: %d", summary.TotalUploaded())
	return b.String()
}

// BuildAccountFailureReport renders a single-account failure notice.
func BuildAccountFailureReport(handle string, failure error) string {
	return fmt.Sprintf("sync failed for @%s: %v", handle, failure)
}
