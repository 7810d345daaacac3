// Package scheduler plans and fires the randomized daily deposits of every
// active charger.
//
// Each planning pass draws between zero and MaxDaily slots inside the
// configured hour window and arms one timer per slot still in the future.
// Passes are additive: turning a charger on twice in a day arms two sets of
// timers, and the per-day fired counter caps the result. A daily reset stops
// every armed timer, zeroes the counters and re-plans the active fleet. An
// hourly sweep flips every charger's status at random.
//
// Time and randomness are injected so tests drive the whole cycle with a
// fake clock.
package scheduler
