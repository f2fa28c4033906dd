package agent

import (
	"fmt"
	"sort"
)

// Report types with a predefined agent profile.
const (
	ReportAPAging    = "ap_aging"
	ReportARAging    = "ar_aging"
	ReportAPRegister = "ap_register"
	ReportARRegister = "ar_register"
	ReportGeneric    = "generic"
)

type profile struct {
	namePrefix   string
	description  string
	capabilities []Capability
	rules        map[string]Rule
}

func agingProfile(prefix, description string, required []string, analysis string) profile {
	return profile{
		namePrefix:  prefix,
		description: description,
		capabilities: []Capability{
			{Type: "data_fetching", Config: map[string]any{"required_data": toAny(required)}},
			{Type: "calculation", Config: map[string]any{"calculations": []any{"outstanding", "aging"}}},
			{Type: "analysis", Config: map[string]any{"analysis_type": analysis}},
		},
		rules: map[string]Rule{
			InputMap: {RequiresDataFetching: true, RequiresCalculation: true, RequiresAnalysis: true, RequiresReporting: true},
		},
	}
}

func registerProfile(prefix, description string, required []string) profile {
	return profile{
		namePrefix:  prefix,
		description: description,
		capabilities: []Capability{
			{Type: "data_fetching", Config: map[string]any{"required_data": toAny(required)}},
			{Type: "calculation", Config: map[string]any{"calculations": []any{"outstanding"}}},
			{Type: "reporting", Config: map[string]any{"report_type": "register"}},
		},
		rules: map[string]Rule{
			InputMap: {RequiresDataFetching: true, RequiresCalculation: true, RequiresReporting: true},
		},
	}
}

var profiles = map[string]profile{
	ReportAPAging:    agingProfile("APAgingAgent", "AP aging analysis agent", []string{"invoices", "payments"}, "aging_bucket_analysis"),
	ReportARAging:    agingProfile("ARAgingAgent", "AR aging analysis agent", []string{"sales_invoices", "customer_payments"}, "customer_aging_analysis"),
	ReportAPRegister: registerProfile("APRegisterAgent", "AP register agent", []string{"invoices", "payments"}),
	ReportARRegister: registerProfile("ARRegisterAgent", "AR register agent", []string{"sales_invoices", "customer_payments"}),
	ReportGeneric: {
		namePrefix:   "GenericAgent",
		description:  "Generic agent",
		capabilities: []Capability{{Type: "data_fetching"}, {Type: "reporting"}},
		rules: map[string]Rule{
			InputDefault: {RequiresDataFetching: true, RequiresReporting: true},
		},
	},
}

// Profile returns the agent configuration for a report type and user.
// Unknown report types fall back to the generic profile; ok reports whether
// the report type had a dedicated profile.
func Profile(reportType, userID string) (cfg Config, ok bool) {
	p, ok := profiles[reportType]
	if !ok {
		p = profiles[ReportGeneric]
	}

	caps := cloneCapabilities(p.capabilities)
	if ok && reportType != ReportGeneric {
		caps = append(caps, Capability{Type: "reporting", Config: map[string]any{"report_type": reportType}})
		caps = mergeCapabilities(nil, caps)
	}

	return Config{
		Name:          fmt.Sprintf("%s_%s", p.namePrefix, userID),
		Description:   p.description,
		Capabilities:  caps,
		BehaviorRules: cloneRules(p.rules),
		InitialState: map[string]any{
			"user_id":         userID,
			"report_type":     reportType,
			"execution_count": 0,
		},
	}, ok
}

// ProfileNames returns the report types with a predefined profile, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func lookupProfile(reportType string) (Config, bool) {
	p, ok := profiles[reportType]
	if !ok {
		return Config{}, false
	}

	return Config{
		Capabilities:  cloneCapabilities(p.capabilities),
		BehaviorRules: cloneRules(p.rules),
	}, true
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}

	return out
}
