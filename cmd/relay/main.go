// Relay is the on-device download relay. The daemon accepts download calls
// from sandboxed clients on a Unix socket, gates them against the network
// usage policy and streams the HTTPS response back.
//
// Usage:
//
//	# Start the daemon
//	relay run --config /etc/relay/config.yaml
//
//	# Download through a running daemon
//	relay fetch https://cdn.example.com/model.bin --out model.bin
//
//	# Inspect the network usage audit log
//	relay usage query --since 24h --format csv
//
//	# Show effective runtime flags
//	relay flags get Relay__streaming_throttle_ms
package main

func main() {
	Execute()
}
