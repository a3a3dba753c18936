package discount

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineItem is an order line enriched with the category membership needed for
// SELECTED_CATEGORIES matching. SubcategoryID is the product's direct
// subcategory; CategoryID is that subcategory's parent.
type LineItem struct {
	ProductID     string
	SubcategoryID string
	CategoryID    string
	Quantity      int
	UnitPrice     decimal.Decimal
}

// Applied records one rule's contribution to the order.
type Applied struct {
	Rule   Rule
	Amount decimal.Decimal
}

// Result is the outcome of a discount calculation.
type Result struct {
	SubtotalBeforeDiscount decimal.Decimal
	SubtotalAfterDiscount  decimal.Decimal
	OrderDiscount          decimal.Decimal
	LineDiscounts          []decimal.Decimal // aligned with the input items
	AppliedDiscounts       []Applied
	FinalTotal             decimal.Decimal
}

// Calculate resolves the discounts for the given line items against the
// supplied rules. It is pure: rules are evaluated in the order given, and a
// line receives at most one PER_PRODUCT discount (first matching rule wins,
// regardless of magnitude).
//
// With a voucher code, only rules gated by that exact code (case-insensitive)
// are considered; without one, only auto-apply rules (no code) are.
func Calculate(items []LineItem, voucherCode string, rules []Rule, now time.Time) Result {
	res := Result{
		OrderDiscount: decimal.Zero,
		LineDiscounts: make([]decimal.Decimal, len(items)),
	}
	for i := range res.LineDiscounts {
		res.LineDiscounts[i] = decimal.Zero
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	res.SubtotalBeforeDiscount = subtotal

	for _, rule := range applicable(rules, voucherCode, subtotal, now) {
		amount := applyRule(rule, items, res.LineDiscounts)
		if amount.IsZero() {
			continue
		}
		if rule.Scope == OrderTotal {
			res.OrderDiscount = res.OrderDiscount.Add(amount)
		}
		res.AppliedDiscounts = append(res.AppliedDiscounts, Applied{Rule: rule, Amount: amount})
	}

	lineTotal := decimal.Zero
	for _, d := range res.LineDiscounts {
		lineTotal = lineTotal.Add(d)
	}
	res.SubtotalAfterDiscount = subtotal.Sub(lineTotal)

	final := subtotal.Sub(lineTotal).Sub(res.OrderDiscount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	res.FinalTotal = final

	return res
}

// applicable filters rules to the set eligible for this order: voucher gate,
// validity window, minimum order value, and usage cap.
func applicable(rules []Rule, voucherCode string, subtotal decimal.Decimal, now time.Time) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !r.Active || !r.InWindow(now) || r.Exhausted() {
			continue
		}
		if voucherCode != "" {
			if !strings.EqualFold(r.VoucherCode, voucherCode) {
				continue
			}
		} else if r.VoucherCode != "" {
			continue
		}
		if r.MinOrderValue.GreaterThan(subtotal) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// applyRule computes the rule's discount amount. For PER_PRODUCT scopes it
// also records per-line amounts into lineDiscounts, skipping lines already
// discounted by an earlier rule in this pass.
func applyRule(rule Rule, items []LineItem, lineDiscounts []decimal.Decimal) decimal.Decimal {
	if rule.Scope == OrderTotal {
		// Order-total rules discount the combined subtotal of their matching
		// lines and never touch lineDiscounts, so the amount is counted once
		// regardless of the rule's product targeting.
		base := decimal.Zero
		for _, it := range items {
			if !matches(rule, it) {
				continue
			}
			base = base.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		return ruleAmount(rule, base)
	}

	total := decimal.Zero
	for i, it := range items {
		if lineDiscounts[i].IsPositive() {
			continue // first matching rule wins per line
		}
		if !matches(rule, it) {
			continue
		}
		lineSubtotal := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		amount := ruleAmount(rule, lineSubtotal)
		if amount.IsZero() {
			continue
		}
		lineDiscounts[i] = amount
		total = total.Add(amount)
	}
	return total
}

// matches reports whether the rule targets the given line item.
func matches(rule Rule, it LineItem) bool {
	switch rule.Type {
	case AllProducts:
		return true
	case SelectedProducts:
		for _, id := range rule.ProductIDs {
			if id == it.ProductID {
				return true
			}
		}
	case SelectedCategories:
		// A product matches if its subcategory is listed directly or the
		// subcategory's parent category is listed.
		for _, id := range rule.CategoryIDs {
			if id == it.SubcategoryID || (it.CategoryID != "" && id == it.CategoryID) {
				return true
			}
		}
	}
	return false
}

// ruleAmount computes the discount for a base amount. Percentage rules scale
// with the base; fixed rules are flat and capped at the base so a line never
// goes negative.
func ruleAmount(rule Rule, base decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.ValueType {
	case Percentage:
		amount = base.Mul(rule.Value).Div(hundred)
	case FixedAmount:
		amount = decimal.Min(rule.Value, base)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}
