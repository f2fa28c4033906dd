// Package agent implements DynamicAgent, a runtime-configurable agent whose
// behaviour is driven by data rather than code.
//
// A DynamicAgent is described by a Config: a name, a list of capabilities and
// behaviour rules keyed by input class ("map", "list", "string", "default").
// On Execute the agent classifies its input, picks the matching rule and runs
// the micro-plan it implies:
//
//	data_fetching -> calculation -> analysis -> reporting
//
// Each micro-step is a StepFunc and can be replaced with WithStep, so report
// specific logic plugs in without subclassing. Predefined report profiles
// (ap_aging, ar_aging, ap_register, ar_register, generic) are available via
// Profile and OptimizeForReportType.
//
// Handler adapts an agent into a core.AgentFunc so it can run as an Agent
// node of a workflow graph.
package agent
