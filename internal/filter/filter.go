package filter

import (
	"strings"

	"sjsage522/discountworker/internal/crawler"
)

// Criteria holds the thresholds a listing must meet to be alerted
type Criteria struct {
	MinDiscountPercent int
	MinPrice           int
	MinRating          float64
	MinReviewCount     int
	ExcludedKeywords   []string
}

// Reason names the rule that rejected a listing
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonBelowMinPrice    Reason = "below_min_price"
	ReasonExcludedKeyword  Reason = "excluded_keyword"
	ReasonLowRating        Reason = "low_rating"
	ReasonFewReviews       Reason = "few_reviews"
	ReasonNoDiscount       Reason = "no_discount"
	ReasonDiscountTooSmall Reason = "discount_too_small"
)

// DiscountPercent returns the whole-percent discount of price against oldPrice.
// It is 0 when there is no usable reference price.
func DiscountPercent(price, oldPrice int) int {
	if oldPrice <= 0 || oldPrice <= price {
		return 0
	}
	return (oldPrice - price) * 100 / oldPrice
}

// Qualifies reports whether l should be alerted under c
func Qualifies(l crawler.Listing, c Criteria) bool {
	ok, _ := Check(l, c)
	return ok
}

// Check applies the rules in order and returns the first one l fails.
// Absent or zero rating and review counts are unknown, never a rejection.
func Check(l crawler.Listing, c Criteria) (bool, Reason) {
	if l.Price < c.MinPrice {
		return false, ReasonBelowMinPrice
	}

	if containsKeyword(l.Title, c.ExcludedKeywords) {
		return false, ReasonExcludedKeyword
	}

	if l.Rating != nil && *l.Rating != 0 && *l.Rating < c.MinRating {
		return false, ReasonLowRating
	}

	if l.Reviews != nil && *l.Reviews != 0 && *l.Reviews < c.MinReviewCount {
		return false, ReasonFewReviews
	}

	if l.OldPrice <= l.Price {
		return false, ReasonNoDiscount
	}
	if DiscountPercent(l.Price, l.OldPrice) < c.MinDiscountPercent {
		return false, ReasonDiscountTooSmall
	}

	return true, ReasonNone
}

func containsKeyword(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
