package resolve

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/nix-community/go-nix/pkg/nixbase32"
)

// Nix reports the hash it computed on a "got:" line, e.g.
//
//	error: hash mismatch in fixed-output derivation '/nix/store/…-vendor.drv':
//	         specified: sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=
//	            got:    sha256-CKbVsMcd2TW2A7Bygbqw7+3sba6drB8nyFy7omvibJM=
//
// Only the "got:" line carries the real hash; the specified line echoes
// the placeholder we wrote.
var gotLine = regexp.MustCompile(`(?m)^\s*got:\s*(\S+)\s*$`)

// ExtractMismatch scans build output for a hash mismatch diagnostic and
// returns the reported hash in SRI form. The first mismatch wins.
func ExtractMismatch(output string) (string, bool) {
	m := gotLine.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return normalizeHash(m[1])
}

// normalizeHash validates a reported hash and converts it to SRI form.
// Modern nix prints SRI directly; older releases print sha256: followed
// by nix's own base32 alphabet, which is decoded and re-encoded.
// Decoding is strict: a token with non-zero trailing padding bits is
// not a canonical encoding and cannot have come from nix.
func normalizeHash(token string) (string, bool) {
	switch {
	case strings.HasPrefix(token, "sha256-"):
		digest, err := base64.StdEncoding.Strict().DecodeString(token[len("sha256-"):])
		if err != nil || len(digest) != 32 {
			return "", false
		}
		return token, true
	case strings.HasPrefix(token, "sha256:"):
		digest, err := nixbase32.DecodeString(token[len("sha256:"):])
		if err != nil || len(digest) != 32 {
			return "", false
		}
		return "sha256-" + base64.StdEncoding.EncodeToString(digest), true
	}
	return "", false
}
