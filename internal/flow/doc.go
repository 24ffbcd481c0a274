// Package flow implements the per-session conversation phase state machine.
//
// A session moves through five ordered phases: CONNECT, LISTEN, UNDERSTAND,
// GUIDE, EMPOWER. The engine advances at most one phase forward per turn,
// either after a minimum number of turns in the current phase or immediately
// on an advice-seeking intent. A crisis signal resets the session to CONNECT
// from any phase.
//
// All state lives in the SessionStore; the engine itself is stateless and
// shared safely across sessions.
package flow
