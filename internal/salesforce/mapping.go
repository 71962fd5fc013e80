package salesforce

import (
	"fmt"
	"regexp"
	"strings"
)

// SourceOEM is the source every synced lead is filed under.
const SourceOEM = "OEM"

// Sub-sources.
const (
	SubSourceWeb       = "Web"
	SubSourceTele      = "Tele"
	SubSourceBikewale  = "Affiliate Bikewale"
	SubSourceBikedekho = "Affiliate Bikedekho"
	SubSource91Wheels  = "Affiliate 91wheels"
)

var affiliateSources = map[string]string{
	"Bikewale":    SubSourceBikewale,
	"Bikewale-Q":  SubSourceBikewale,
	"Bikedekho":   SubSourceBikedekho,
	"Bikedekho-Q": SubSourceBikedekho,
	"91 Wheels":   SubSource91Wheels,
	"91 Wheels-Q": SubSource91Wheels,
	"91wheels":    SubSource91Wheels,
	"91wheels-Q":  SubSource91Wheels,
}

var webSources = map[string]bool{
	"Website":                 true,
	"Website_PO":              true,
	"Website_Optin":           true,
	"ai_chatbot":              true,
	"website_chatbot":         true,
	"Newspaper Ad - WhatsApp": true,
}

var teleSources = map[string]bool{
	"Telephonic":    true,
	"cb":            true,
	"ivr_abandoned": true,
	"ivr_callback":  true,
	"ivr_sales":     true,
}

// MapSource maps a Salesforce LeadSource to (source, sub_source). ok is
// false for sources the CRM does not track.
func MapSource(raw string) (source, subSource string, ok bool) {
	raw = strings.TrimSpace(raw)
	if sub, found := affiliateSources[raw]; found {
		return SourceOEM, sub, true
	}
	if webSources[raw] {
		return SourceOEM, SubSourceWeb, true
	}
	if teleSources[raw] {
		return SourceOEM, SubSourceTele, true
	}
	return "", "", false
}

var uidPrefixes = map[string]byte{
	SubSourceWeb:       'W',
	SubSourceTele:      'T',
	SubSourceBikewale:  'B',
	SubSourceBikedekho: 'D',
	SubSource91Wheels:  'N',
}

// GenerateUID builds {prefix}{letter}-{last4}-{NNNN} where the letter and
// counter both derive from seq.
func GenerateUID(subSource, mobile string, seq int64) string {
	prefix, ok := uidPrefixes[subSource]
	if !ok {
		prefix = 'S'
	}
	if seq < 0 {
		seq = -seq
	}
	letter := byte('A' + seq%26)
	mobile = strings.NewReplacer(" ", "", "-", "").Replace(mobile)
	last4 := mobile
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return fmt.Sprintf("%c%c-%s-%04d", prefix, letter, last4, seq%9999+1)
}

var (
	remarkSection = regexp.MustCompile(`(\d+)\.\s*`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// ParseRemarks splits "1. rnr 2. 3. VOC: ..." into numbered remarks. Empty
// and NONE sections are dropped; only sections 1-7 are kept.
func ParseRemarks(raw string) map[int]string {
	out := make(map[int]string)
	text := strings.TrimSpace(whitespace.ReplaceAllString(raw, " "))
	if text == "" {
		return out
	}
	matches := remarkSection.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		var n int
		if _, err := fmt.Sscanf(text[m[2]:m[3]], "%d", &n); err != nil || n < 1 || n > 7 {
			continue
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(text[m[1]:end])
		if content == "" || strings.EqualFold(content, "none") {
			continue
		}
		out[n] = content
	}
	return out
}

// FormatRemarks flattens parsed remarks back into a single line in call
// order.
func FormatRemarks(r map[int]string) string {
	parts := make([]string, 0, len(r))
	for n := 1; n <= 7; n++ {
		if v, ok := r[n]; ok {
			parts = append(parts, fmt.Sprintf("%d. %s", n, v))
		}
	}
	return strings.Join(parts, " ")
}
