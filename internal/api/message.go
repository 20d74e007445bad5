package api

import "github.com/ZilDuck/nft-marketplace/internal/entity"

const CallerHeader = "X-Caller"

type MintRequest struct {
	To string `json:"to,omitempty"`
}

type MintResponse struct {
	Collection entity.Principal `json:"collection"`
	TokenId    string           `json:"tokenId"`
}

type ApproveRequest struct {
	Operator string `json:"operator"`
}

type OperatorRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type OwnerResponse struct {
	Owner entity.Principal `json:"owner"`
}

type PriceRequest struct {
	Price string `json:"price"`
}

type BuyRequest struct {
	Value string `json:"value"`
}

type FundRequest struct {
	Amount string `json:"amount"`
}

type BalanceResponse struct {
	Principal entity.Principal `json:"principal"`
	Balance   string           `json:"balance"`
}

type ProceedsResponse struct {
	Principal entity.Principal `json:"principal"`
	Proceeds  string           `json:"proceeds"`
}

type MarketplaceResponse struct {
	Address entity.Principal `json:"address"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Collection string `json:"collection,omitempty"`
	TokenId    string `json:"tokenId,omitempty"`
	Price      string `json:"price,omitempty"`
}
