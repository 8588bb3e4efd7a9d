package app

import (
	"github.com/shopspring/decimal"
)

// DetteRequest is the input for SubmitDemande and CreateDette.
type DetteRequest struct {
	ClientID int
	Lines    []DetteLineRequest
}

// DetteLineRequest asks for Quantity units of an article. Prices always come
// from the catalog.
type DetteLineRequest struct {
	ArticleID int
	Quantity  int
}

// CreateClientRequest is the input for creating a client, optionally with a
// CLIENT login created in the same transaction.
type CreateClientRequest struct {
	LastName       string
	FirstName      string
	Phone          string
	Address        string
	PhotoRef       string
	CategoryID     *int
	MaxOutstanding *decimal.Decimal
	Login          string
	Password       string
}

// CreateArticleRequest is the input for adding an article to the catalog.
type CreateArticleRequest struct {
	Label         string
	UnitPrice     decimal.Decimal
	StockQuantity int
}

// CreateUserRequest is the input for creating a login.
type CreateUserRequest struct {
	Login    string
	Password string
	Role     string
	ClientID *int
}

// UpdateUserRequest changes a login and/or password. Empty means unchanged.
type UpdateUserRequest struct {
	UserID   int
	Login    string
	Password string
}
