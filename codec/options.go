package codec

import (
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/finnur-hlynsson/bitspec/secure"
)

// Options configures one Read or Write call. The zero value is usable: a
// discard logger and empty key/hasher registries (Encrypt/Sign nodes will
// fail with SecureError if exercised without registering a key/hasher
// first). Plain-struct configuration mirrors the teacher's Server{...}
// convention rather than flags/env/files (SPEC_FULL.md §2).
type Options struct {
	// Logger receives non-fatal diagnostic traces only (e.g. "recomputed
	// checksum for field X"); it never influences control flow. Defaults to
	// a discard logger when nil.
	Logger *log.Logger

	// Keys resolves an Encrypt node's KeyName to a secure.Key.
	Keys secure.KeyRegistry

	// Hashers resolves a Sign node's HasherName to a secure.Hasher.
	Hashers secure.HasherRegistry

	// trace tags this call's diagnostic log lines; set by withTrace, not by
	// the caller of Read/Write.
	trace string
}

func (o *Options) logger() *log.Logger {
	if o == nil || o.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return o.Logger
}

func (o *Options) traceID() string {
	if o == nil {
		return ""
	}
	return o.trace
}

// withTrace returns a copy of o carrying a fresh per-call trace id, the way
// SnellerInc-sneller tags a tenant request's log lines with a correlation
// id. The returned Options resolves Logger/Keys/Hashers the same way o did.
func (o *Options) withTrace(id string) *Options {
	return &Options{Logger: o.logger(), Keys: o.keys(), Hashers: o.hashers(), trace: id}
}

func (o *Options) keys() secure.KeyRegistry {
	if o == nil || o.Keys == nil {
		return secure.KeyRegistry{}
	}
	return o.Keys
}

func (o *Options) hashers() secure.HasherRegistry {
	if o == nil || o.Hashers == nil {
		return secure.HasherRegistry{}
	}
	return o.Hashers
}

// newTraceID returns a correlation id for one Read/Write call's diagnostic
// log lines, the way SnellerInc-sneller's tenant path tags requests with a
// uuid (SPEC_FULL.md §3).
func newTraceID() string {
	return uuid.New().String()
}

// maxDepth guards against a cyclic or pathologically deep schema tree
// (spec.md §9, "Cyclic schemas"): the text loader cannot construct a cycle
// since Type is built bottom-up from json.RawMessage, but a hand-built
// schema.Type passed directly to Read/Write could still recurse forever, so
// the walk enforces a depth guard rather than trusting the loader alone.
const maxDepth = 10000
