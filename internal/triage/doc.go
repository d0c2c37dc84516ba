// Package triage is the decision pipeline for support tickets. It defines the
// Service (validation, known-issue decision, next-step routing), the Provider
// interface with its rules-based and LLM-assisted implementations, the LLM
// backend interface, and the domain models.
package triage
