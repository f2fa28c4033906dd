// Package nodes provides the built-in node library used by synthesized
// report graphs: branding, invoice fetching, aging calculation, report
// generation and document processing.
//
// Plan steps map onto registered node types through StepTypes. The library
// reads its data through small source interfaces so it can be backed by a
// database or the in-memory sources shipped here.
package nodes
