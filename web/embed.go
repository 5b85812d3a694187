// Package web embeds the control panel static assets for single-binary distribution.
package web

import "embed"

// Assets contains the panel page and its scripts under build/.
//
//go:embed all:build
var Assets embed.FS
