package linepay

import (
	"net/url"
	"strings"

	"checkout/internal/domain/model"
)

// RedirectURLs は決済ページから戻ってくる先（絶対URL）
type RedirectURLs struct {
	ConfirmURL string `json:"confirmUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// NewRedirectURLs は returnHost + path で組み立てる
func NewRedirectURLs(returnHost, confirmPath, cancelPath string) RedirectURLs {
	return RedirectURLs{
		ConfirmURL: returnHost + confirmPath,
		CancelURL:  returnHost + cancelPath,
	}
}

// forOrder は cancelUrl に orderId を付ける（confirmUrl にはゲートウェイが付けてくる）
func (r RedirectURLs) forOrder(orderID string) RedirectURLs {
	sep := "?"
	if strings.Contains(r.CancelURL, "?") {
		sep = "&"
	}
	return RedirectURLs{
		ConfirmURL: r.ConfirmURL,
		CancelURL:  r.CancelURL + sep + "orderId=" + url.QueryEscape(orderID),
	}
}

type ProductBody struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

type PackageBody struct {
	ID       string        `json:"id"`
	Amount   int64         `json:"amount"`
	Products []ProductBody `json:"products"`
}

// POST /payments/request のボディ。フィールド順がそのまま署名対象のキー順になる
type RequestBody struct {
	Amount       int64         `json:"amount"`
	Currency     string        `json:"currency"`
	OrderID      string        `json:"orderId"`
	Packages     []PackageBody `json:"packages"`
	RedirectURLs RedirectURLs  `json:"redirectUrls"`
}

// POST /payments/{transactionId}/confirm のボディ。
// ゲートウェイ側の記録と金額・通貨を突き合わせる（改ざん検知）
type ConfirmBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// BuildRequestBody は注文から新しい構造体を作る（ストアの明細を共有しない）
func BuildRequestBody(o model.Order, urls RedirectURLs) RequestBody {
	pkgs := make([]PackageBody, 0, len(o.Packages))
	for _, p := range o.Packages {
		products := make([]ProductBody, 0, len(p.Products))
		for _, pr := range p.Products {
			products = append(products, ProductBody{
				Name:     pr.Name,
				Quantity: pr.Quantity,
				Price:    pr.Price,
			})
		}
		pkgs = append(pkgs, PackageBody{
			ID:       p.ID,
			Amount:   p.Amount,
			Products: products,
		})
	}

	return RequestBody{
		Amount:       o.Amount,
		Currency:     o.Currency,
		OrderID:      o.ID,
		Packages:     pkgs,
		RedirectURLs: urls.forOrder(o.ID),
	}
}

func BuildConfirmBody(o model.Order) ConfirmBody {
	return ConfirmBody{
		Amount:   o.Amount,
		Currency: o.Currency,
	}
}
