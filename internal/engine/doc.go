// Package engine is the heartbeat of the parking simulation.
//
// The Engine owns the lot and the single driven vehicle behind one mutex.
// Two tickers drive it: a fast physics tick that integrates the vehicle from
// the pressed-direction intents, and a slow guidance tick that asks the
// navigation guide for the next instruction. Image classification runs on the
// caller's goroutine, off both ticks, and is applied to the lot in one locked
// step only if the upload is still the latest one.
//
// ARCHITECTURAL RULE: observers, the announcer and the event log are called
// outside the engine lock. Nothing the engine calls out to may call back into
// it synchronously while holding the lock.
package engine
