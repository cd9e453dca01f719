package gamecode

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// confusions maps a typed character to the alphabet characters it is often
// mistaken for.
var confusions = map[rune]string{
	'0': "QD",
	'O': "QD",
	'1': "JT7",
	'I': "JT7",
	'L': "JT7",
	'5': "S",
	'S': "5",
	'2': "Z",
	'Z': "2",
	'8': "B",
	'B': "8",
	'U': "V",
	'V': "U",
}

// Suggest returns the candidates an input probably meant: codes that match it
// after undoing common character confusions, or that are one edit away.
func Suggest(input string, candidates []string) []string {
	in := Normalize(input)
	if in == "" {
		return nil
	}
	var out []string
	for _, c := range candidates {
		if c == in {
			continue
		}
		if confusable(in, c) || levenshtein.ComputeDistance(in, c) == 1 {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func confusable(input, candidate string) bool {
	in := []rune(input)
	if len(in) != len(candidate) {
		return false
	}
	for i, want := range candidate {
		got := in[i]
		if got == want {
			continue
		}
		if !strings.ContainsRune(confusions[got], want) {
			return false
		}
	}
	return true
}
