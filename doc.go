// Package pricingflow is the step-workflow core of the pricing app.
//
// A Workflow is a linear chain of typed steps built with the builder
// package and run by the engine package. Step inputs and outputs are JSON so
// that a WorkflowStore can persist them; the output of each step is the
// input of the next. The pricing workflow itself lives in
// internal/workflows/pricing.
package pricingflow
