// Package stream guards raw request streams and file reads.
//
// A Duplex wraps one request stream (an http.ResponseWriter and its
// *http.Request) and a Reader wraps one file or other byte source. Every
// operation on either is state-checked and returns a sluice.Outcome; nothing
// is ever attempted against a transport that has ended or been destroyed.
//
// State changes are delivered through explicitly registered callbacks:
//
//   - OnData fires once per chunk, never after the stream is destroyed
//   - OnEnd fires at most once, after the last OnData
//   - OnDuplexDestroy (Duplex) and OnDestroy (Reader) fire exactly once,
//     always, whichever side tore the stream down
//   - OnceDrain fires once when write pressure clears
//
// Pipe moves a Reader into a Duplex with backpressure. Watchdog guards
// against stalled operations.
package stream
