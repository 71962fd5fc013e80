package email

const (
	subjectLeadAssignedFmt = "New %s lead assigned: %s"
	subjectDailyReportFmt  = "Auto-assign daily report %s"
)
