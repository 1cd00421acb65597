package domain

import "time"

// ItemStatus is the lifecycle state of a shopping list item.
type ItemStatus string

const (
	StatusActive  ItemStatus = "active"
	StatusOrdered ItemStatus = "ordered"
)

// ShoppingItem is a confirmed product on the shared shopping list.
type ShoppingItem struct {
	ID              int64      `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	UserName        string     `db:"user_name" json:"user_name"`
	ProductTitle    string     `db:"product_title" json:"product_title"`
	Quantity        int        `db:"quantity" json:"quantity"`
	Price           *float64   `db:"price" json:"price"`
	ProductURL      string     `db:"product_url" json:"product_url,omitempty"`
	ProductImageURL string     `db:"product_image_url" json:"product_image_url,omitempty"`
	Status          ItemStatus `db:"status" json:"status"`
	AddedAt         time.Time  `db:"added_at" json:"added_at"`
}
