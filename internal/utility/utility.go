package utility

import (
	"fmt"
	"math/rand/v2"
)

// Color components stay away from pure black and white.
const (
	minComponent = 4
	maxComponent = 251
)

func RandomColorHex() string {
	c := func() int { return minComponent + rand.IntN(maxComponent-minComponent+1) }
	return fmt.Sprintf("#%02x%02x%02x", c(), c(), c())
}
