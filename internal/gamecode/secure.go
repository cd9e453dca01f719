package gamecode

import "strings"

var keyboardRows = []string{
	"1234567890",
	"QWERTYUIOP",
	"ASDFGHJKL",
	"ZXCVBNM",
}

// Guessable reports codes a stranger could hit by trying obvious patterns:
// three identical characters in a row, four-long ascending or descending runs,
// four-long keyboard row runs, and codes built from a repeated 2 or 3
// character chunk.
func Guessable(code string) bool {
	return hasRepeat(code, 3) || hasSequence(code, 4) || hasKeyboardRun(code, 4) || isTiled(code)
}

func hasRepeat(code string, n int) bool {
	run := 1
	for i := 1; i < len(code); i++ {
		if code[i] == code[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func hasSequence(code string, n int) bool {
	up, down := 1, 1
	for i := 1; i < len(code); i++ {
		d := int(code[i]) - int(code[i-1])
		if d == 1 {
			up++
		} else {
			up = 1
		}
		if d == -1 {
			down++
		} else {
			down = 1
		}
		if up >= n || down >= n {
			return true
		}
	}
	return false
}

func hasKeyboardRun(code string, n int) bool {
	for i := 0; i+n <= len(code); i++ {
		chunk := code[i : i+n]
		rev := reverse(chunk)
		for _, row := range keyboardRows {
			if strings.Contains(row, chunk) || strings.Contains(row, rev) {
				return true
			}
		}
	}
	return false
}

func isTiled(code string) bool {
	for _, size := range []int{2, 3} {
		if len(code)%size != 0 || len(code) == size {
			continue
		}
		if strings.Repeat(code[:size], len(code)/size) == code {
			return true
		}
	}
	return false
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
