// Package logx configures sitealert's structured logging.
//
// Components receive a logx.Logger (a small value type over zerolog) and tag
// themselves with a "comp" field. The Service owning the sinks can be
// re-applied at runtime when the logging config changes:
//   - Console output readable (short timestamp + short caller), or JSON
//   - File output JSON-structured, append-only
package logx
