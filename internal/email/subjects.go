package email

import (
	"fmt"

	"supplier_dispute_backend/internal/disputes/report"
)

const (
	subjectRunReportFmt        = "Dispute run %s: %d updated, %d failed"
	subjectRunReportAbortedFmt = "Dispute run %s aborted"
)

// RunReportSubject summarizes the run in the subject line.
func RunReportSubject(rep *report.RunReport) string {
	if rep.Aborted {
		return fmt.Sprintf(subjectRunReportAbortedFmt, rep.RunID)
	}
	return fmt.Sprintf(subjectRunReportFmt, rep.RunID, rep.Actions(), rep.Failed())
}
