package salesforce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSource(t *testing.T) {
	cases := []struct {
		raw     string
		sub     string
		tracked bool
	}{
		{"Bikewale", SubSourceBikewale, true},
		{"Bikewale-Q", SubSourceBikewale, true},
		{"Bikedekho-Q", SubSourceBikedekho, true},
		{"91 Wheels", SubSource91Wheels, true},
		{"91wheels-Q", SubSource91Wheels, true},
		{"Website_Optin", SubSourceWeb, true},
		{"Newspaper Ad - WhatsApp", SubSourceWeb, true},
		{"ivr_callback", SubSourceTele, true},
		{" Telephonic ", SubSourceTele, true},
		{"Walk-in", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			source, sub, ok := MapSource(tc.raw)
			assert.Equal(t, tc.tracked, ok)
			assert.Equal(t, tc.sub, sub)
			if ok {
				assert.Equal(t, SourceOEM, source)
			}
		})
	}
}

func TestGenerateUID(t *testing.T) {
	cases := []struct {
		sub    string
		mobile string
		seq    int64
		want   string
	}{
		{SubSourceWeb, "9876543210", 1, "WB-3210-0002"},
		{SubSourceTele, "9876543210", 0, "TA-3210-0001"},
		{SubSourceBikewale, "9876543210", 25, "BZ-3210-0026"},
		{SubSourceBikedekho, "98765-43210", 26, "DA-3210-0027"},
		{SubSource91Wheels, "9876543210", 9999, "NP-3210-0001"},
		{"Other", "9876543210", 3, "SD-3210-0004"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GenerateUID(tc.sub, tc.mobile, tc.seq))
	}
}

func TestParseRemarks(t *testing.T) {
	got := ParseRemarks("1. rnr  2.  3. VOC : cx enquired about\n on road price 4. NONE")
	assert.Equal(t, map[int]string{1: "rnr", 3: "VOC : cx enquired about on road price"}, got)
	assert.Equal(t, "1. rnr 3. VOC : cx enquired about on road price", FormatRemarks(got))

	assert.Empty(t, ParseRemarks(""))
	assert.Empty(t, ParseRemarks("no numbering at all"))
	assert.Equal(t, map[int]string{7: "final"}, ParseRemarks("8. ignored 7. final"))
}
