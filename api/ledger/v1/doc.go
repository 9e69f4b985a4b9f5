// Package ledgerv1 defines the ledger.v1.Ledger gRPC service: message
// types, the service descriptor, client and server bindings, and the JSON
// codec the service is carried with.
//
// Messages are plain Go structs encoded as JSON on the wire, so the same
// record shape is shared with the HTTP API.
package ledgerv1
