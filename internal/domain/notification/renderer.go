package notification

import (
	"github.com/xenking/retail-orders/internal/domain/customer"
	"github.com/xenking/retail-orders/internal/domain/order"
)

// TokenData maps placeholder names to their rendered values for one order.
type TokenData map[string]string

// BuildTokenData snapshots the order and customer fields that templates may
// reference. Rendering happens once at schedule time against this snapshot.
func BuildTokenData(o *order.Order, c *customer.Customer) TokenData {
	return TokenData{
		"customerName":  c.Name,
		"customerPhone": c.Phone,
		"orderNumber":   o.Number,
		"orderTotal":    o.Total.StringFixed(2),
		"subtotal":      o.Subtotal.StringFixed(2),
		"discountTotal": o.DiscountTotal.StringFixed(2),
		"deliveryFee":   o.DeliveryFee.StringFixed(2),
		"voucherCode":   o.VoucherCode,
		"receiptNumber": o.ReceiptNumber,
		"orderClass":    string(o.Class),
	}
}

// Render substitutes every {{token}} in body with its value from data.
// Unknown tokens resolve to the empty string; rendering never fails.
func Render(body string, data TokenData) string {
	return tokenPattern.ReplaceAllStringFunc(body, func(match string) string {
		token := tokenPattern.FindStringSubmatch(match)[1]
		return data[token]
	})
}
