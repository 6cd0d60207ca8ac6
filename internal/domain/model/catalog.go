package model

// 注文のひな形（チェックアウト時にコピーして新しいIDを振る）
type OrderTemplate struct {
	ID       string    `json:"id"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
	Packages []Package `json:"packages"`
}

// DefaultCurrency はサンプル商品の通貨
const DefaultCurrency = "TWD"

// SampleTemplates はデモ用の商品カタログ
func SampleTemplates() []OrderTemplate {
	return []OrderTemplate{
		{
			ID:       "1",
			Amount:   1000,
			Currency: DefaultCurrency,
			Packages: []Package{
				{
					ID:     "products_1",
					Amount: 1000,
					Products: []Product{
						{Name: "六角棒棒", Quantity: 1, Price: 1000},
					},
				},
			},
		},
		{
			ID:       "2",
			Amount:   2000,
			Currency: DefaultCurrency,
			Packages: []Package{
				{
					ID:     "products_1",
					Amount: 2000,
					Products: []Product{
						{Name: "六角棒棒", Quantity: 2, Price: 1000},
					},
				},
			},
		},
	}
}
