package resolve

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
)

// hashAttr matches the dependency hash attribute of a rendered flake,
// whatever its current value: the lib.fakeHash sentinel, null, or a
// quoted SRI hash from a previous attempt.
var hashAttr = regexp.MustCompile(`(?m)^(\s*)(vendorHash|cargoHash)(\s*=\s*)([^;]+);`)

// ErrNoHashAttribute is returned when flake.nix has no vendorHash or
// cargoHash attribute to rewrite.
var ErrNoHashAttribute = errors.New("no vendorHash or cargoHash attribute found in flake.nix")

// RewriteHash replaces the value of the first hash attribute with the
// given SRI hash, preserving the attribute name and indentation.
func RewriteHash(flake []byte, hash string) ([]byte, error) {
	loc := hashAttr.FindSubmatchIndex(flake)
	if loc == nil {
		return nil, ErrNoHashAttribute
	}
	var out bytes.Buffer
	out.Grow(len(flake) + len(hash))
	out.Write(flake[:loc[8]])
	out.WriteString(`"`)
	out.WriteString(hash)
	out.WriteString(`"`)
	out.Write(flake[loc[9]:])
	return out.Bytes(), nil
}

// CurrentHash returns the SRI hash already present in the hash
// attribute. Sentinel and null values report no hash.
func CurrentHash(flake []byte) (string, bool) {
	m := hashAttr.FindSubmatch(flake)
	if m == nil {
		return "", false
	}
	value := strings.Trim(strings.TrimSpace(string(m[4])), `"`)
	if strings.HasPrefix(value, "sha256-") {
		return value, true
	}
	return "", false
}
