// Package fingerprint wraps the name-similarity and perceptual-hash
// primitives behind stable contracts: normalized names, a [0,1] similarity
// score, and Hamming-comparable 64-bit photo fingerprints in hex.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"regexp"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/corona10/goimagehash"
)

// MaxDistance is the upper bound of the fingerprint Hamming distance and the
// value reported when either fingerprint is absent or malformed.
const MaxDistance = 64

var (
	emojiRe  = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`)
	symbolRe = regexp.MustCompile(`[^a-z0-9@._\s-]+`)
	spaceRe  = regexp.MustCompile(`\s+`)

	dice = metrics.NewSorensenDice()
)

// Normalize lower-cases a display name, strips emoji, collapses every run of
// characters outside [a-z0-9@._ -] into a single space, and trims.
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	s := strings.ToLower(name)
	s = emojiRe.ReplaceAllString(s, "")
	s = symbolRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Similarity scores two normalized names in [0,1]: a Sørensen–Dice bigram
// base score plus a token-overlap bonus of min(0.1, shared*0.02), capped at 1.
// Symmetric; equal strings score 1.
func Similarity(a, b string) float64 {
	base := strutil.Similarity(a, b, dice)
	shared := sharedTokens(a, b)
	bonus := float64(shared) * 0.02
	if bonus > 0.1 {
		bonus = 0.1
	}
	score := base + bonus
	if score > 1 {
		score = 1
	}
	return score
}

func sharedTokens(a, b string) int {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(a) {
		set[tok] = struct{}{}
	}
	shared := 0
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(b) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := set[tok]; ok {
			shared++
		}
	}
	return shared
}

// Distance returns the Hamming distance between two hex fingerprints, or
// MaxDistance when either side is absent or malformed.
func Distance(a, b string) int {
	if a == "" || b == "" {
		return MaxDistance
	}
	ua, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return MaxDistance
	}
	ub, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return MaxDistance
	}
	return bits.OnesCount64(ua ^ ub)
}

// FromImage decodes image bytes and returns the 64-bit perception hash as a
// 16-digit hex fingerprint.
func FromImage(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return fmt.Sprintf("%016x", hash.GetHash()), nil
}
