// Package session classifies normalized thermostat readings into equipment
// runtime sessions. It has no I/O: time comes from the readings and session
// identifiers from an injected generator, so every decision is reproducible.
package session
