// Package orchestrator composes the learning engines into the single call
// surface used by the chat handler: TryRespond, LearnFromLLM,
// RecordFeedback, CloseSession, and SystemStats.
//
// A declined composition is invisible to the end user: TryRespond returns
// IsSelfSufficient=false and the caller serves an LLM answer instead,
// feeding it back through LearnFromLLM so the system learns from it.
package orchestrator
