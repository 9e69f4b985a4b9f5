// Package client provides the `ledger` command-line client.
//
// The CLI talks to the ledger HTTP and gRPC endpoints to append, page,
// clear and tail session messages from a terminal. It is primarily intended
// for developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it is read
// from LEDGER_URL (default http://127.0.0.1:8080). The gRPC address is read
// from --grpc-addr or LEDGER_GRPC (default 127.0.0.1:9090).
//
// Usage
//
//	ledger session append -s chat-1 -q q-1 --data '{"role":"user","content":"hi"}'
//	ledger session append -s chat-1 --file spans.json
//
//	ledger session list -s chat-1 --limit 50 -o text
//	ledger session list --cursor 120 --max 10
//
//	# Follow a session; resumes after the last printed sequence on drop
//	ledger session tail -s chat-1
//	ledger session tail -s chat-1 --transport ws --filter 'json.role == "tool"'
//	ledger session tail --transport grpc --grpc-addr 127.0.0.1:9090 --count 5
//
//	ledger session clear -s chat-1
//	ledger session clear -s chat-1 -q q-1
//	ledger session clear --all --confirm
//
//	ledger session wait -s chat-2 --timeout 1m
//	ledger session ls
//	ledger stats
//
// Notes
//
//   - append, list, clear and tail honour --transport (http, ws or grpc;
//     ws only changes how tail receives pushes).
//   - wait, ls and stats use the HTTP API.
package client
