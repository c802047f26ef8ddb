// Package api defines the public data model of the engine: workflow
// definitions, execution records, their status machine, and the JSON
// shapes exchanged over the HTTP surface
package api
