// Package normalizer converts raw feed frames into canonical model.Tick values.
//
// Accepted frame shapes:
//   - feed envelope: {"type": "live_feed", "feeds": {"<instrument key>": {...}}}
//     where each feed is {"ltpc": {...}}, {"ff": {"marketFF"|"indexFF": {...}}}
//     or {"fullFeed": {"marketFF"|"indexFF": {...}}}
//   - a flat object carrying "instrument_key"
//   - an array of flat objects
//
// Absent, null or unparseable numeric fields are left unset; zero is a valid
// price and volume and is never used as a placeholder. Frames that are not
// JSON are dropped and reported as *MalformedFrameError; they never stop the
// stream.
package normalizer
