package webassets

import "embed"

// Files contains the embedded approval page served by the gateway at /.
//
//go:embed *.html
var Files embed.FS
