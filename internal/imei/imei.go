// Package imei generates candidate device identities for binary-info
// requests. The FUS server rejects some identities transiently, so
// candidates are generated from a device's TAC with randomized serial
// digits and a Luhn check digit; callers retry with fresh candidates.
package imei

import (
	"fmt"
	"math/rand"
)

// Digit distributions observed on real serial numbers. Fully uniform
// serials get rejected noticeably more often.
var (
	firstDigitChoices = []int{0, 5, 7}
	thirdDigitChoices = []int{0, 1, 3, 5, 6, 7}
)

// LuhnCheckDigit computes the trailing check digit for a 14-digit IMEI
// body.
func LuhnCheckDigit(body string) int {
	body += "0"
	parity := len(body) % 2
	sum := 0
	for i, ch := range body {
		d := int(ch - '0')
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// Generate produces a device identity from seed. A 15-digit seed is a
// complete IMEI and is returned unchanged; an 8-digit seed is a TAC and
// is expanded with six randomized serial digits plus the Luhn check
// digit. Any other length is an error.
func Generate(seed string) (string, error) {
	switch len(seed) {
	case 15:
		return seed, nil
	case 8:
		body := fmt.Sprintf("%s%d%d%d%d%02d",
			seed,
			firstDigitChoices[rand.Intn(len(firstDigitChoices))],
			rand.Intn(6)+4,
			thirdDigitChoices[rand.Intn(len(thirdDigitChoices))],
			rand.Intn(10),
			rand.Intn(100),
		)
		return fmt.Sprintf("%s%d", body, LuhnCheckDigit(body)), nil
	default:
		return "", fmt.Errorf("identity seed must be an 8-digit TAC or 15-digit IMEI, got %d digits", len(seed))
	}
}
