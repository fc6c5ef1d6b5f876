/*
Package storage provides the pluggable key-value persistence layer.

# Store Interface

Two backends implement the Store interface:
  - memory: in-memory store for testing and ephemeral runs
  - badger: BadgerDB (LSM tree + Snappy compression) for durable storage

On top of either backend, two trust tiers are exposed to the rest of the
application:

  - plain tier: settings, the instance record, the query cache
  - secret tier: credentials and tokens, wrapped by secure.Wrap so values
    are sealed with ChaCha20-Poly1305 before they reach the backend

# Usage Example

	import (
	    "context"
	    "github.com/pocketumami/pocketumami/pkg/storage/badger"
	    "github.com/pocketumami/pocketumami/pkg/storage/secure"
	)

	plain, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal(err)
	}
	defer plain.Close()

	secret, err := secure.Wrap(plain, key) // key is 32 bytes
	if err != nil {
	    log.Fatal(err)
	}

	err = secret.Set(ctx, "secrets/abc123", payload)
	val, err := secret.Get(ctx, "secrets/abc123")

# Key Layout

Keys are slash-separated paths so whole areas can be dropped with one
DeletePrefix call:

	schema/version              migration bookkeeping
	instances/<id>              instance records (plain)
	instances/current           active instance id (plain)
	secrets/<id>                per-instance credentials (secret)
	cache/<id>/<hash>           query cache records (plain)

# Best Practices

 1. Always call Close() when done to flush pending writes
 2. Use context.WithTimeout() to bound storage calls
 3. Treat Get's ErrNotFound as a normal miss, not a failure
*/
package storage
