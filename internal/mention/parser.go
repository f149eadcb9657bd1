// Package mention recognizes @-references in message text and resolves
// them to display names through a bounded persistent nickname cache
// backed by gateway lookups.
package mention

import "regexp"

// Two reference forms appear in normalized text: the delimited CQ code
// form and a bare @ followed by a 5-12 digit account number.
var (
	cqAtPattern   = regexp.MustCompile(`\[CQ:at,qq=(\d+)\]`)
	bareAtPattern = regexp.MustCompile(`@(\d{5,12})`)
)

// ExtractIDs returns the referenced account ids in order of first
// appearance: CQ-form ids first, then bare-form ids not already seen.
func ExtractIDs(text string) []string {
	var ids []string
	seen := make(map[string]bool)

	for _, m := range cqAtPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	for _, m := range bareAtPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// HasReference reports whether the text contains either reference form.
func HasReference(text string) bool {
	return cqAtPattern.MatchString(text) || bareAtPattern.MatchString(text)
}
