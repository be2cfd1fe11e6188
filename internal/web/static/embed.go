// Package static embeds the browser decider page.
package static

import (
	_ "embed"
)

//go:embed index.html
var index []byte

// Index returns the embedded index.html.
func Index() []byte {
	return index
}
