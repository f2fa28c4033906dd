package nodes

// Plan step names understood by the planner and the graph builder.
const (
	StepBrandingLoader     = "branding_loader"
	StepDataFetch          = "data_fetch"
	StepCalculation        = "calculation"
	StepReportGeneration   = "report_generation"
	StepBranding           = "branding"
	StepDocumentProcessing = "document_processing"
	StepDataExtraction     = "data_extraction"
	StepValidation         = "validation"
)

// Registered node types of the built-in library.
const (
	TypeBrandingLoader     = "branding_loader"
	TypeInvoiceFetch       = "invoice_fetch"
	TypeAgingCalculator    = "aging_calculator"
	TypeAgingReport        = "aging_report"
	TypeBrandingApplier    = "branding_applier"
	TypeDocumentProcessing = "document_processing"
	TypeDataExtraction     = "data_extraction"
	TypeInvoiceValidation  = "invoice_validation"

	TypeOutstandingCalculator = "outstanding_calculator"
	TypeRegisterReport        = "register_report"

	// TypeState reads and writes shared data; it has no plan step.
	TypeState = "state"
)

// Vocabulary is the closed set of plan steps, in canonical order.
var Vocabulary = []string{
	StepBrandingLoader,
	StepDataFetch,
	StepCalculation,
	StepReportGeneration,
	StepBranding,
	StepDocumentProcessing,
	StepDataExtraction,
	StepValidation,
}

// StepTypes maps each plan step to the node type that implements it.
var StepTypes = map[string]string{
	StepBrandingLoader:     TypeBrandingLoader,
	StepDataFetch:          TypeInvoiceFetch,
	StepCalculation:        TypeAgingCalculator,
	StepReportGeneration:   TypeAgingReport,
	StepBranding:           TypeBrandingApplier,
	StepDocumentProcessing: TypeDocumentProcessing,
	StepDataExtraction:     TypeDataExtraction,
	StepValidation:         TypeInvoiceValidation,
}

// registerStepTypes replaces StepTypes entries for register reports.
var registerStepTypes = map[string]string{
	StepCalculation:      TypeOutstandingCalculator,
	StepReportGeneration: TypeRegisterReport,
}

// StepType returns the node type implementing step for a report hint.
// Register hints swap the aging calculation and report for their register
// counterparts.
func StepType(step, hint string) (string, bool) {
	if IsRegisterReport(hint) {
		if typ, ok := registerStepTypes[step]; ok {
			return typ, true
		}
	}

	typ, ok := StepTypes[step]

	return typ, ok
}

// IsStep reports whether name is part of the vocabulary.
func IsStep(name string) bool {
	_, ok := StepTypes[name]
	return ok
}
