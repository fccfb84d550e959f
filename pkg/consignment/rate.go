package consignment

import (
	"strings"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/types"
)

// ParseRate normalizes a commission percentage to scale 2 with HALF_UP
// rounding: "15.126" becomes 15.13%. The input is parsed as decimal text so
// rounding never rides on float representation. Rates outside [0, 100] are
// rejected.
func ParseRate(s string) (types.Rate, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return 0, errdefs.Validationf("commission rate is required")
	}
	if strings.HasPrefix(in, "+") {
		in = in[1:]
	}
	if strings.HasPrefix(in, "-") {
		return 0, errdefs.Validationf("commission rate must be within [0, 100], got %s", s)
	}

	whole, frac := in, ""
	if i := strings.IndexByte(in, '.'); i >= 0 {
		whole, frac = in[:i], in[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, errdefs.Validationf("commission rate %q is not a number", s)
	}
	if whole == "" {
		whole = "0"
	}

	var hundredths int64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, errdefs.Validationf("commission rate %q is not a number", s)
		}
		hundredths = hundredths*10 + int64(c-'0')
		if hundredths > 100 {
			return 0, errdefs.Validationf("commission rate must be within [0, 100], got %s", s)
		}
	}
	hundredths *= 100

	atCeiling := hundredths == 100*100
	for i, c := range frac {
		if c < '0' || c > '9' {
			return 0, errdefs.Validationf("commission rate %q is not a number", s)
		}
		// 100.0…01 is out of range even though it would round to 100.00.
		if atCeiling && c != '0' {
			return 0, errdefs.Validationf("commission rate must be within [0, 100], got %s", s)
		}
		switch i {
		case 0:
			hundredths += 10 * int64(c-'0')
		case 1:
			hundredths += int64(c - '0')
		case 2:
			// Third decimal decides the HALF_UP carry; anything past
			// it cannot change which side of the half we are on.
			if c >= '5' {
				hundredths++
			}
		}
	}

	if hundredths > 100*100 {
		return 0, errdefs.Validationf("commission rate must be within [0, 100], got %s", s)
	}
	return types.Rate(hundredths), nil
}

// payoutCents is the consignor's share of a sale: the sale amount less the
// merchant's commission, rounded HALF_UP to the cent.
func payoutCents(saleCents int64, commission types.Rate) int64 {
	share := saleCents * (10000 - int64(commission))
	return (share + 5000) / 10000
}
