// Package logx wraps zerolog for sillyreader.
//
// Console output is human readable with a short caller. File output is JSON
// and rotated by lumberjack. Warn and above can be relayed to an operator
// channel through a rate-limited background worker.
package logx
