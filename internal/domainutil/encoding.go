package domainutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// RepairBytes decodes raw bytes of unknown encoding, trying UTF-8, GBK,
// GB2312, and Latin-1 in order, falling back to lossy UTF-8 replacement if
// none decode cleanly. Grounded on
// original_source/geo_server/utils/encoding.py's ensure_utf8_string (bytes
// branch).
func RepairBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	if utf8.Valid(data) {
		return string(data)
	}

	decoders := []func(string) (string, error){
		simplifiedchinese.GBK.NewDecoder().String,
		simplifiedchinese.HZGB2312.NewDecoder().String,
		charmap.ISO8859_1.NewDecoder().String,
	}
	for _, dec := range decoders {
		if s, err := dec(string(data)); err == nil && utf8.ValidString(s) {
			return s
		}
	}

	return strings.ToValidUTF8(string(data), "�")
}

// RepairString fixes a string that may be mojibake: UTF-8 bytes that were
// decoded as Latin-1 (or double UTF-8 encoded). It is a pure function and
// MUST be idempotent: RepairString(RepairString(x)) == RepairString(x).
// Grounded on original_source/geo_server/utils/encoding.py's string branch.
func RepairString(s string) string {
	if s == "" || !hasHighByteRune(s) {
		return s
	}

	// Level 1: UTF-8 bytes mis-decoded as Latin-1. Re-encoding the string as
	// Latin-1 recovers the original byte sequence; decoding those bytes as
	// UTF-8 recovers the intended text, but only if that round-trip is
	// itself lossless and valid UTF-8 — otherwise we'd be "fixing" ordinary
	// non-ASCII text that was never broken.
	level1, ok := tryLatin1ToUTF8(s)
	if !ok || !looksRepaired(s, level1) {
		return s
	}
	if !hasHighByteRune(level1) {
		return level1
	}

	// One level of double-encoding undo: only accept it if it fully
	// resolves the high-byte pattern, so a third pass over the result is
	// always a no-op (idempotence, §8 property 7).
	level2, ok := tryLatin1ToUTF8(level1)
	if ok && looksRepaired(level1, level2) && !hasHighByteRune(level2) {
		return level2
	}
	return level1
}

func tryLatin1ToUTF8(s string) (string, bool) {
	enc, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return "", false
	}
	if !utf8.ValidString(enc) {
		return "", false
	}
	return enc, true
}

func looksRepaired(original, candidate string) bool {
	if candidate == "" {
		return false
	}
	if containsCJK(candidate) {
		return true
	}
	return !hasGarbledPattern(original)
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4e00 && r <= 0x9fff {
			return true
		}
	}
	return false
}

// hasGarbledPattern mirrors the source's heuristic: a run of Latin-1
// "continuation-looking" high bytes (0x80-0x9f) in the first 100 runes is a
// strong mojibake signal.
func hasGarbledPattern(s string) bool {
	limit := 100
	count := 0
	for _, r := range s {
		if count >= limit {
			break
		}
		count++
		if r > 127 && r < 160 {
			return true
		}
	}
	return false
}

func hasHighByteRune(s string) bool {
	for _, r := range s {
		if r > 127 {
			return true
		}
	}
	return false
}
