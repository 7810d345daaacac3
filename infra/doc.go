// Package infra holds the adapters behind the core interfaces: the SQLite
// ledger, the Ethereum chain client, MQTT event publication, metrics sinks
// and Sentry reporting. Core packages never import them.
package infra
