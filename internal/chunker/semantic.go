package chunker

// fenceMarker is the Markdown/GFM code-fence delimiter. Nothing here
// attempts to parse full Markdown; it only tracks fence open/close state
// well enough to keep a pre-split boundary from landing inside a fenced
// block.
const fenceMarker = "```"

// insideFence reports whether pos falls inside an open code fence, counting
// fenceMarker occurrences in text[:pos]. An odd count means the fence
// opened before pos and has not yet closed.
func insideFence(text []rune, pos int) bool {
	return countFences(text, pos)%2 == 1
}

func countFences(text []rune, upTo int) int {
	if upTo > len(text) {
		upTo = len(text)
	}
	marker := []rune(fenceMarker)
	count := 0
	for i := 0; i+len(marker) <= upTo; i++ {
		if runesEqual(text[i:i+len(marker)], marker) {
			count++
			i += len(marker) - 1
		}
	}
	return count
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// preferFenceBoundary nudges a pre-split cut point that would otherwise
// fall mid-code-block: it first looks forward for the fence's closing
// marker (so the section containing the opening marker also contains the
// whole block), and only if no close exists before the text ends does it
// fall back to cutting just before the fence opened. If cut isn't inside a
// fence at all, it is returned unchanged.
func preferFenceBoundary(text []rune, cut int) int {
	if !insideFence(text, cut) {
		return cut
	}
	if end := nextFenceClose(text, cut); end >= 0 {
		return end
	}
	if start := precedingFenceStart(text, cut); start >= 0 {
		return start
	}
	return cut
}

// nextFenceClose returns the rune offset just past the next fenceMarker at
// or after from, or -1 if the block never closes.
func nextFenceClose(text []rune, from int) int {
	marker := []rune(fenceMarker)
	for i := from; i+len(marker) <= len(text); i++ {
		if runesEqual(text[i:i+len(marker)], marker) {
			return i + len(marker)
		}
	}
	return -1
}

// precedingFenceStart returns the rune offset of the fenceMarker that
// opened the block pos sits inside, or -1 if none is found.
func precedingFenceStart(text []rune, pos int) int {
	marker := []rune(fenceMarker)
	for i := pos - len(marker); i >= 0; i-- {
		if runesEqual(text[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}
