package http2

// Pseudo-header and common regular-header names, interned once so
// callers building or matching HeaderFields never allocate a new byte
// slice per comparison.
var (
	StringMethod    = []byte(":method")
	StringScheme    = []byte(":scheme")
	StringAuthority = []byte(":authority")
	StringPath      = []byte(":path")
	StringStatus    = []byte(":status")

	StringServer        = []byte("server")
	StringContentLength = []byte("content-length")
	StringContentType   = []byte("content-type")
	StringUserAgent     = []byte("user-agent")
)

// ToLower lowercases b in place and returns it. HTTP/2 field names
// arriving from a non-HPACK source (e.g. a translated fasthttp
// response) must be forced lowercase before encoding; HPACK itself
// never produces a mixed-case name.
func ToLower(b []byte) []byte {
	for i := range b {
		b[i] |= 32
	}

	return b
}

// H2TLSProto is the ALPN protocol ID negotiated for HTTP/2 over TLS.
const H2TLSProto = "h2"
