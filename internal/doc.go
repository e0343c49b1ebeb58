// Package internal contains the implementation packages of scriptserv.
//
// # Package Organization
//
// Request handling, from the socket inwards:
//
//   - server: acceptor, bounded worker pool and per-connection handling
//   - protocol: HTTP/1.1 request-head parsing and status texts
//   - session: SID issue, validation and expiry sweeping
//   - webctx: the request context a handler writes its response through
//   - dispatch: document-root sandbox, MIME table, template cache, routing
//   - workers: the named handlers reachable under /ext/ and via routes
//
// The template language:
//
//   - template: lexer, parser and node tree of .smscr documents
//   - engine: executes a document against a request context
//   - value: arithmetic over the dynamically typed operands
//   - multistack: per-variable stacks used by FOR loops
//
// Supporting packages:
//
//   - config: Viper-backed configuration with validation
//   - logging: slog-based structured logging
//   - errors: error taxonomy and status mapping
//   - watcher: fsnotify-based change detection for the template cache
//   - admin: health endpoint and websocket event stream
//   - version: build metadata
//   - testutils: fixtures shared by tests
//
// # Concurrency
//
// One goroutine accepts connections and never processes requests. A fixed
// pool of workers serves one request per connection. The session table, the
// template cache and each session's parameter map are safe for concurrent
// use; a request context belongs to the single worker serving it.
package internal
