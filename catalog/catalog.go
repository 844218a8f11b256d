// Package catalog supplies the storefront's product list.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vitwit/filmarket/types"
	"github.com/vitwit/filmarket/utils"
)

// CategoryAll selects every product.
const CategoryAll = "all"

// Category is a storefront tab.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var categories = []Category{
	{ID: CategoryAll, Name: "All Products"},
	{ID: "storage", Name: "Storage"},
	{ID: "digital", Name: "Digital Assets"},
	{ID: "hosting", Name: "Hosting"},
}

var validate = validator.New()

// record is the on-disk product shape; chainPrice carries its unit, e.g. "0.15 FIL".
type record struct {
	ID          int             `json:"id" validate:"gt=0"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Category    string          `json:"category" validate:"required,oneof=storage digital hosting"`
	Price       decimal.Decimal `json:"price"`
	ChainPrice  string          `json:"chainPrice" validate:"required"`
}

// Categories returns the storefront tabs in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Default returns the built-in product list.
func Default() []types.Product {
	return []types.Product{
		product(1, "Decentralized Storage Plan - 100GB", "storage", "🗄️", "Store your data securely on Filecoin network", "5.99", "0.15"),
		product(2, "NFT Marketplace Access", "digital", "🎨", "Premium NFT trading platform subscription", "29.99", "0.75"),
		product(3, "Web3 Development Kit", "digital", "💻", "Complete toolkit for building on Filecoin", "49.99", "1.25"),
		product(4, "Decentralized Storage - 1TB", "storage", "💾", "Enterprise-grade Filecoin storage solution", "49.99", "1.25"),
		product(5, "IPFS Hosting Package", "hosting", "🌐", "Host your website on IPFS via Filecoin", "19.99", "0.50"),
		product(6, "Smart Contract Templates", "digital", "📜", "Pre-built smart contracts for Filecoin", "39.99", "1.00"),
	}
}

func product(id int, name, category, image, description, price, chainPrice string) types.Product {
	return types.Product{
		ID:          types.ProductID(id),
		Name:        name,
		Description: description,
		Image:       image,
		Category:    category,
		UnitPrice:   decimal.RequireFromString(price),
		ChainPrice:  decimal.RequireFromString(chainPrice),
	}
}

// Filter returns the products in category, keeping their order.
func Filter(products []types.Product, category string) []types.Product {
	out := make([]types.Product, 0, len(products))
	for _, p := range products {
		if category == CategoryAll || p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the product with id.
func Find(products []types.Product, id types.ProductID) (types.Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return types.Product{}, false
}

// Load reads a JSON array of products. Every product is validated and ids
// must be unique.
func Load(r io.Reader) ([]types.Product, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, types.NewError(types.ErrCodeInvalidProduct, "failed to parse catalog", err)
	}

	seen := make(map[int]bool, len(records))
	products := make([]types.Product, 0, len(records))
	for i, rec := range records {
		if err := validate.Struct(&rec); err != nil {
			return nil, types.NewError(types.ErrCodeInvalidProduct, fmt.Sprintf("product %d: validation failed", i), err)
		}
		if seen[rec.ID] {
			return nil, types.NewError(types.ErrCodeInvalidProduct, fmt.Sprintf("duplicate product id %d", rec.ID), nil)
		}
		seen[rec.ID] = true

		if !rec.Price.IsPositive() {
			return nil, types.NewError(types.ErrCodeInvalidProduct, fmt.Sprintf("product %d: price must be positive", rec.ID), nil)
		}
		chainPrice, err := utils.ParseNativePrice(rec.ChainPrice)
		if err != nil {
			return nil, types.NewError(types.ErrCodeInvalidProduct, fmt.Sprintf("product %d: invalid chain price", rec.ID), err)
		}

		products = append(products, types.Product{
			ID:          types.ProductID(rec.ID),
			Name:        rec.Name,
			Description: rec.Description,
			Image:       rec.Image,
			Category:    rec.Category,
			UnitPrice:   rec.Price,
			ChainPrice:  chainPrice,
		})
	}
	return products, nil
}
