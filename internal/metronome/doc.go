// Package metronome implements the lookahead tick scheduler.
//
// A Metronome keeps a virtual "next tick" time anchored to a clock.Clock and
// polls every PollInterval. Each poll fires every tick whose time falls before
// Now()+Lookahead: the pending tasks are swapped out, invoked in registration
// order, and the repeating ones merged back ahead of anything registered while
// they ran. A task scheduled from inside a callback therefore fires on the next
// tick, never the one in progress, so a self-rescheduling task cannot spin.
//
// Audible clicks are handed to the clock (when it implements Clicker) stamped
// with the exact virtual tick time, so audio timing does not inherit poll jitter;
// callbacks only have poll granularity.
package metronome
