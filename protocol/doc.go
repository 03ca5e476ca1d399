// Package protocol implements parsing and serialising for the Asterisk
// Gateway Interface (AGI), the line protocol a telephony server uses to let
// an external process drive a live call.
//
// The protocol is
//
// - line oriented, every line is terminated by `\n` (an optional `\r` before
//   it is tolerated on input)
// - strictly request/response, one command line gets exactly one reply line
// - not pipelined, there are no request IDs so replies are matched to
//   commands purely by arrival order
//
// - `Header`   - The block of `key: value` lines the server sends when a
//                session starts. It describes the active call.
// - `Command`  - An outbound line naming an action plus its arguments.
// - `Response` - The single reply line to one command.
//
// === Header block
//
//   ```
//   < agi_network: yes\n
//   < agi_channel: SIP/100-00000001\n
//   < agi_callerid: 555\n
//   < \n
//   ```
//
// The `agi_` prefix is stripped from every key, so the above is available
// as `channel` and `callerid`. The block ends at the first blank line.
//
// === Commands
//
//   ```
//   > SAY TIME 1700000000 ""\n
//   ```
//
// Command names are keywords separated by spaces. Arguments follow, single
// space separated. Absent or empty arguments are written as `""` so the
// reader never sees two consecutive separators.
//
// === Responses
//
//   ```
//   < 200 result=1 (timeout) endpos=1234\n
//   ```
//
// `200` is the status code, `result` is a signed integer which is often an
// ASCII character code (e.g. the DTMF digit pressed) rather than a number.
// The parenthesised note and the `endpos` value are both optional.
//
// Lines that do not match this shape are not errors at this layer, they
// parse into a Response whose fields are unset so callers can inspect the
// raw line and decide.
package protocol
