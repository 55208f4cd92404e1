package service

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces an uploaded name to a flat ASCII filename that is
// safe to join onto a storage directory. It returns "" when nothing usable
// is left.
func SecureFilename(name string) string {
	// Decompose accents so "é" keeps its base letter
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}

	cleaned := ascii.String()
	cleaned = strings.NewReplacer("/", " ", "\\", " ").Replace(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = unsafeFilenameChars.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(cleaned, "._")

	return cleaned
}

// mp3Name mirrors the download naming of the web UI: everything after the
// first dot is replaced by the mp3 extension.
func mp3Name(filename string) string {
	return strings.SplitN(filename, ".", 2)[0] + ".mp3"
}
