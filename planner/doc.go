// Package planner turns a natural-language task and an agent-type hint into
// an ordered list of plan steps and builds a linear graph spec from them.
//
// Synthesis runs an ordered list of strategies, starting with a single LLM
// call whose answer is decoded strictly, then after JSON repair, then by
// regex extraction, before falling back to deterministic tables and keyword
// analysis. Failures are PlanParseError values that never leave the package
// boundary as errors; Synthesize always returns a plan.
package planner
