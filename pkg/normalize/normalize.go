// Package normalize reduces stylesheet and script text to a comparable form
// and fingerprints it.
//
// Normalization is lossy and exists only so that two files differing in
// comments or whitespace compare equal. The output is not guaranteed to be
// valid CSS or JavaScript, and the digest is a 32-bit polynomial hash used
// for grouping, never for integrity.
package normalize

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf16"
)

// Kind selects the normalization rules.
type Kind string

const (
	KindCSS Kind = "css"
	KindJS  Kind = "js"
)

// KindFor infers the kind from a file extension.
func KindFor(p string) (Kind, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".css":
		return KindCSS, true
	case ".js", ".mjs", ".cjs":
		return KindJS, true
	default:
		return "", false
	}
}

var (
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment    = regexp.MustCompile(`//[^\n]*`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	cssPunctuation = regexp.MustCompile(`\s*([;{}:,])\s*`)
)

// Normalize strips comments and insignificant whitespace from text.
//
// css: removes /* */ comments, collapses whitespace runs to one space and drops
// whitespace next to ; { } : and ,.
// js: removes /* */ and // comments and collapses whitespace runs. A // inside a
// string literal is treated as a comment too.
func Normalize(text string, kind Kind) string {
	switch kind {
	case KindCSS:
		text = blockComment.ReplaceAllString(text, "")
		text = whitespaceRun.ReplaceAllString(text, " ")
		text = cssPunctuation.ReplaceAllString(text, "$1")
	case KindJS:
		text = blockComment.ReplaceAllString(text, "")
		text = lineComment.ReplaceAllString(text, "")
		text = whitespaceRun.ReplaceAllString(text, " ")
	default:
		text = whitespaceRun.ReplaceAllString(text, " ")
	}
	return strings.TrimSpace(text)
}

// Digest computes h = h*31 + c over the UTF-16 code units of text with 32-bit
// wraparound. It is deterministic and order-sensitive.
func Digest(text string) int32 {
	var h int32
	for _, r := range text {
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			h = h*31 + hi
			h = h*31 + lo
			continue
		}
		h = h*31 + r
	}
	return h
}

// NormalizedDigest pairs a digest with the file it was computed from.
type NormalizedDigest struct {
	Digest     int32  `json:"digest"`
	SourcePath string `json:"source_path"`
}

// Fingerprint normalizes content and digests it.
func Fingerprint(sourcePath, content string, kind Kind) (NormalizedDigest, string) {
	norm := Normalize(content, kind)
	return NormalizedDigest{Digest: Digest(norm), SourcePath: sourcePath}, norm
}
