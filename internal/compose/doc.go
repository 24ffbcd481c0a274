// Package compose assembles candidate responses from stored wisdom atoms
// and proven templates.
//
// A template is an ordered slot list (opener/body/action/closer); the
// composer fills each slot with the best matching atom for the current
// situation and phase, optionally interpolates a verse recommendation from
// the graph, and scores its own confidence. Returning nil is the designed
// "fall back to the LLM" signal, never an error.
package compose
