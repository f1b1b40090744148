// Package transcribe converts the minimum-time kinematic-vehicle problem
// into an [nlp.Problem] by fixed-step collocation with a free time scale.
//
// The decision vector holds N+1 states, N controls and the horizon T,
// addressed through a [Layout]. Control k acts over the interval between
// state k and state k+1, so the control sequence is one shorter than the
// state sequence; every index is written out explicitly (State(N, i),
// never "the last state").
//
// Emitted rows, in order:
//
//	dynamics[k]       state[k+1] - step(state[k], control[k], T/N) == 0, k = 0..N-1
//	initial           state[0] == Initial
//	terminal          (x[N], y[N]) == Target
//	terminal_heading  heading[N] == TerminalHeading (only when set)
//	horizon_limit     0 <= T <= MaxDuration        (only when MaxDuration > 0)
//
// Speed and steering limits and T >= 0 are variable bounds, not rows.
package transcribe
