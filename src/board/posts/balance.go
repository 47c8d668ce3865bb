package posts

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const balanceUnavailable = "Balance unavailable"

var balancePlaceholder = regexp.MustCompile(`\[balance\](.*?)\[/balance\]`)

var printer = message.NewPrinter(language.English)

// ExpandBalances replaces every [balance]ADDRESS[/balance] token with the
// address's current balance. The oracle is asked once per occurrence, in
// order; any failure renders as unavailable.
func (r *Repository) ExpandBalances(ctx context.Context, description string) string {
	if !balancePlaceholder.MatchString(description) {
		return description
	}
	return balancePlaceholder.ReplaceAllStringFunc(description, func(token string) string {
		address := strings.TrimSpace(balancePlaceholder.FindStringSubmatch(token)[1])
		return balanceFragment(r.balanceText(ctx, address))
	})
}

func (r *Repository) balanceText(ctx context.Context, address string) string {
	if r.Oracle == nil || address == "" {
		return balanceUnavailable
	}
	bal, err := r.Oracle.TokenBalance(ctx, address)
	if err != nil {
		log.Printf("posts: balance for %s: %v", address, err)
		return balanceUnavailable
	}
	return fmt.Sprintf("%s: %s %s", address, FormatAmount(bal), r.TokenSymbol)
}

func balanceFragment(text string) string {
	return `<span class="inline-balance">` + text + `</span>`
}

// FormatAmount renders d with thousands separators and at most three
// fraction digits, e.g. 1234.5678 -> "1,234.568". Amounts beyond int64
// keep every digit.
func FormatAmount(d decimal.Decimal) string {
	d = d.Round(3)
	whole := d.Truncate(0)
	out := groupDigits(whole.Abs().BigInt())
	if d.IsNegative() {
		out = "-" + out
	}
	frac := d.Sub(whole).Abs().String()
	if i := strings.IndexByte(frac, '.'); i >= 0 {
		out += frac[i:]
	}
	return out
}

var thousand = big.NewInt(1000)

// groupDigits formats a non-negative integer with thousands separators.
func groupDigits(n *big.Int) string {
	if n.IsInt64() {
		return printer.Sprintf("%d", n.Int64())
	}
	q, r := new(big.Int).QuoRem(n, thousand, new(big.Int))
	return groupDigits(q) + fmt.Sprintf(",%03d", r.Int64())
}
