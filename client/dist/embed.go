package clientdist

import _ "embed"

// ClientJS is the live search thin client.
//
// It is served at "/_live/client.js".
//
//go:embed storefront.js
var ClientJS []byte
