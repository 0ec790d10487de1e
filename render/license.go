package render

import "strings"

// SPDX identifiers mapped to nixpkgs lib.licenses attribute names.
var spdxToNix = map[string]string{
	"MIT":               "mit",
	"Apache-2.0":        "asl20",
	"GPL-2.0":           "gpl2Only",
	"GPL-2.0-only":      "gpl2Only",
	"GPL-2.0-or-later":  "gpl2Plus",
	"GPL-3.0":           "gpl3Only",
	"GPL-3.0-only":      "gpl3Only",
	"GPL-3.0-or-later":  "gpl3Plus",
	"LGPL-2.1-only":     "lgpl21Only",
	"LGPL-2.1-or-later": "lgpl21Plus",
	"LGPL-3.0-only":     "lgpl3Only",
	"LGPL-3.0-or-later": "lgpl3Plus",
	"AGPL-3.0-only":     "agpl3Only",
	"AGPL-3.0-or-later": "agpl3Plus",
	"BSD-2-Clause":      "bsd2",
	"BSD-3-Clause":      "bsd3",
	"0BSD":              "bsd0",
	"MPL-2.0":           "mpl20",
	"ISC":               "isc",
	"Zlib":              "zlib",
	"Unlicense":         "unlicense",
	"CC0-1.0":           "cc0",
	"EUPL-1.2":          "eupl12",
}

// nixLicense maps an SPDX expression to a nixpkgs license attribute.
// Compound expressions such as "MIT OR Apache-2.0" resolve to the first
// recognized identifier. Unknown licenses map to the empty string and
// the meta attribute is omitted from the flake.
func nixLicense(spdx string) string {
	tokens := strings.FieldsFunc(spdx, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == '/'
	})
	for _, tok := range tokens {
		if tok == "OR" || tok == "AND" || tok == "WITH" {
			continue
		}
		if attr, ok := spdxToNix[tok]; ok {
			return attr
		}
	}
	return ""
}
