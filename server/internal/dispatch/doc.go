// Package dispatch classifies every inbound request and hands it to the
// handler that serves it.
//
// Resolution order:
//  1. A raw path of exactly "/healthz" answers 200 "OK" whatever the prefix.
//  2. With a URL prefix configured, the raw path must equal the prefix or
//     continue with "/" after it. The prefix is stripped; an empty remainder
//     becomes "/". Anything else is 404.
//  3. The remaining raw path is matched against the route table. Routes
//     accept any method; an unmatched path is 404 "Not Found".
//
// Matching uses the percent-encoded path, so "/echo/a%2Fb" stays one segment
// and reaches the echo handler unchanged.
//
// Handler wraps the dispatcher in the access-log and panic-recovery
// middleware. Both pass http.Hijacker and http.Flusher through to the
// connection so WebSocket upgrades and SSE streams work behind them.
package dispatch
