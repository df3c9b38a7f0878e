package validator

type ReportStatus string

const (
	ReportStatus_Valid   ReportStatus = "valid"
	ReportStatus_Warning ReportStatus = "warning"
	ReportStatus_Error   ReportStatus = "error"
)

type ValidationReport struct {
	OverallStatus ReportStatus
	Results       []*ValidationResult
	ErrorCount    int
	WarningCount  int
}

// GenerateValidationReport composes whichever validation passes ran into
// one report. Any fatal error forces error status; any warning with no
// errors forces warning status.
func GenerateValidationReport(results ...*ValidationResult) *ValidationReport {
	report := &ValidationReport{
		OverallStatus: ReportStatus_Valid,
		Results:       make([]*ValidationResult, 0, len(results)),
	}

	for _, result := range results {
		if result == nil {
			continue
		}
		report.Results = append(report.Results, result)
		report.ErrorCount += len(result.Errors)
		report.WarningCount += len(result.Warnings)
	}

	if report.ErrorCount > 0 {
		report.OverallStatus = ReportStatus_Error
	} else if report.WarningCount > 0 {
		report.OverallStatus = ReportStatus_Warning
	}
	return report
}
