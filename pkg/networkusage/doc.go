// Package networkusage defines the admission and audit model for network
// access performed on behalf of local clients.
//
// Every outbound connection is described by a ConnectionType and a
// ConnectionKey. A policy table (package policy) lists the connections
// that are allowed; a Repository answers whether a connection is known,
// whether it must be rejected, and whether its outcome should be audited.
// Audited outcomes are persisted as immutable Entity records through a
// Storage backend (package storage) and pruned by age (package
// retention).
//
// # Basic Usage
//
//	details, err := networkusage.NewHTTPConnectionDetails(`https://cdn\.example\.com/.*`, "com.example.app")
//	if err != nil {
//	    return err
//	}
//	entity, err := networkusage.NewHTTPEntity(details, networkusage.StatusSucceeded, 1024,
//	    "https://cdn.example.com/model.bin")
//	if err != nil {
//	    return err
//	}
//	if repo.ShouldLogNetworkUsage(networkusage.ConnectionTypeHTTP, networkusage.HTTPKey(url)) {
//	    _ = repo.Insert(ctx, entity)
//	}
package networkusage
