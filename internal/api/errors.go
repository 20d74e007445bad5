package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ZilDuck/nft-marketplace/internal/bank"
	"github.com/ZilDuck/nft-marketplace/internal/daemon"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
)

var (
	ErrMissingCaller = errors.New("missing " + CallerHeader + " header")
	ErrBadRequest    = errors.New("bad request")
)

var statuses = []struct {
	err    error
	status int
}{
	{marketplace.ErrNotListed, http.StatusNotFound},
	{marketplace.ErrAlreadyListed, http.StatusConflict},
	{marketplace.ErrNotOwner, http.StatusForbidden},
	{marketplace.ErrNotApprovedForMarketplace, http.StatusForbidden},
	{marketplace.ErrPriceNotMet, http.StatusPaymentRequired},
	{marketplace.ErrPriceMustBeAboveZero, http.StatusBadRequest},
	{marketplace.ErrNoProceeds, http.StatusBadRequest},
	{marketplace.ErrNonPayable, http.StatusBadRequest},
	{marketplace.ErrTransferFailed, http.StatusBadGateway},
	{registry.ErrTokenNotFound, http.StatusNotFound},
	{registry.ErrNotAuthorized, http.StatusForbidden},
	{registry.ErrNotTokenOwner, http.StatusForbidden},
	{registry.ErrInvalidRecipient, http.StatusBadRequest},
	{bank.ErrInsufficientBalance, http.StatusPaymentRequired},
	{entity.ErrInvalidPrincipal, http.StatusBadRequest},
	{entity.ErrInvalidValue, http.StatusBadRequest},
	{entity.ErrValueOverflow, http.StatusBadRequest},
	{repository.ErrListingNotIndexed, http.StatusNotFound},
	{ErrBadRequest, http.StatusBadRequest},
	{ErrMissingCaller, http.StatusUnauthorized},
	{daemon.ErrSequencerStopped, http.StatusServiceUnavailable},
	{context.Canceled, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}

	return http.StatusInternalServerError
}

func errorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: marketplace.Kind(err), Message: err.Error()}
	if resp.Error == "" {
		resp.Error = http.StatusText(statusFor(err))
	}

	var alreadyListed *marketplace.AlreadyListedError
	var notListed *marketplace.NotListedError
	var priceNotMet *marketplace.PriceNotMetError

	switch {
	case errors.As(err, &alreadyListed):
		resp.Collection = alreadyListed.Collection.Hex()
		resp.TokenId = alreadyListed.TokenId.Dec()
	case errors.As(err, &notListed):
		resp.Collection = notListed.Collection.Hex()
		resp.TokenId = notListed.TokenId.Dec()
	case errors.As(err, &priceNotMet):
		resp.Collection = priceNotMet.Collection.Hex()
		resp.TokenId = priceNotMet.TokenId.Dec()
		resp.Price = priceNotMet.Price.Dec()
	}

	return resp
}
