// ABOUTME: Embeds console and login templates into the binary using go:embed

package gateway

import "embed"

//go:embed templates/*.html
var templateFS embed.FS
