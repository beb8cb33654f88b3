package helpers

import (
	"regexp"
	"strconv"
	"strings"
)

// CurrencySymbol terminates every price mention on the monitored marketplaces.
const CurrencySymbol = "₽"

var (
	nonDigitRegex = regexp.MustCompile(`\D+`)
	numberRegex   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

	// Digit groups may be separated by spaces, NBSP or narrow NBSP, never by a line break.
	priceMentionRegex = regexp.MustCompile(`(\d[\d \t\x{00A0}\x{202F}]*)[ \x{00A0}\x{202F}]?` + CurrencySymbol)

	// "4,8 (120 отзывов)", "4.9 (1 234)"
	ratingReviewsRegex = regexp.MustCompile(`(?:^|[^\d.,])([0-5][.,]\d{1,2})\s*\(\s*(\d[\d \x{00A0}\x{202F}]*)`)

	bareRatingRegex = regexp.MustCompile(`(?:^|[^\d.,])([0-5][.,]\d)(?:$|[^\d.,%])`)
)

// ParseAmount strips every non-digit and parses the rest as a whole amount.
// Empty, digit-less or overflowing input yields 0.
func ParseAmount(text string) int {
	clean := nonDigitRegex.ReplaceAllString(text, "")
	if clean == "" {
		return 0
	}

	amount, err := strconv.Atoi(clean)
	if err != nil || amount < 0 {
		return 0
	}
	return amount
}

// ParseRating returns the first number in text, accepting '.' or ',' as the
// decimal separator. 0 means no rating was found.
func ParseRating(text string) float64 {
	match := numberRegex.FindString(text)
	if match == "" {
		return 0
	}
	return parseDecimal(match)
}

// ParsePriceMentions returns every "<digits> ₽" amount found in text, in order.
func ParsePriceMentions(text string) []int {
	matches := priceMentionRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	amounts := make([]int, 0, len(matches))
	for _, m := range matches {
		amounts = append(amounts, ParseAmount(m[1]))
	}
	return amounts
}

// ParseRatingReviews extracts an embedded "rating (reviewCount)" pair.
func ParseRatingReviews(text string) (float64, int, bool) {
	m := ratingReviewsRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}

	rating := parseDecimal(m[1])
	if rating <= 0 || rating > 5 {
		return 0, 0, false
	}
	return rating, ParseAmount(m[2]), true
}

// ParseBareRating finds a standalone one-decimal number in (0, 5].
func ParseBareRating(text string) (float64, bool) {
	m := bareRatingRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	rating := parseDecimal(m[1])
	if rating <= 0 || rating > 5 {
		return 0, false
	}
	return rating, true
}

func parseDecimal(s string) float64 {
	value, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return value
}
