package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/messenger"
	"github.com/ZilDuck/nft-marketplace/pkg/client"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var api *client.Client

func main() {
	config.Init("cli")
	cfg := config.Get()

	var err error
	api, err = client.NewClient(cfg.ApiUrl, cfg.HttpTimeout, cfg.Debug)
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to create api client")
	}

	tokenFlags := []cli.Flag{
		&cli.StringFlag{Name: "collection", Required: true, Usage: "Collection address"},
		&cli.StringFlag{Name: "token", Required: true, Usage: "Token id"},
	}
	priceFlag := &cli.StringFlag{Name: "price", Required: true, Usage: "Price in base units"}

	app := &cli.App{
		Name:  "marketplace",
		Usage: "Drive a running marketplace daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "caller", Value: "", Usage: "Principal the calls are made as", EnvVars: []string{"CALLER"}},
		},
		Before: func(c *cli.Context) error {
			if c.String("caller") == "" {
				return nil
			}
			caller, err := entity.ParsePrincipal(c.String("caller"))
			if err != nil {
				return fmt.Errorf("caller: %w", err)
			}
			api = api.As(caller)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "mint",
				Usage:  "Mint the next token of a collection to the caller",
				Action: mint,
				Flags:  []cli.Flag{&cli.StringFlag{Name: "collection", Required: true, Usage: "Collection address"}},
			},
			{
				Name:   "approve",
				Usage:  "Approve the marketplace for a token",
				Action: approve,
				Flags:  tokenFlags,
			},
			{
				Name:   "mint-and-list",
				Usage:  "Mint a token, approve the marketplace and list it",
				Action: mintAndList,
				Flags:  []cli.Flag{&cli.StringFlag{Name: "collection", Required: true, Usage: "Collection address"}, priceFlag},
			},
			{
				Name:   "list",
				Usage:  "List a token for sale",
				Action: listItem,
				Flags:  append(tokenFlags, priceFlag),
			},
			{
				Name:   "update",
				Usage:  "Change the price of a listing",
				Action: updateListing,
				Flags:  append(tokenFlags, priceFlag),
			},
			{
				Name:   "delete",
				Usage:  "Cancel a listing",
				Action: deleteListing,
				Flags:  tokenFlags,
			},
			{
				Name:   "buy",
				Usage:  "Buy a listed token. Pays the listing price unless --value is given",
				Action: buyItem,
				Flags:  append(tokenFlags, &cli.StringFlag{Name: "value", Usage: "Value attached to the call"}),
			},
			{
				Name:   "withdraw",
				Usage:  "Withdraw the caller's proceeds",
				Action: withdraw,
			},
			{
				Name:   "listing",
				Usage:  "Show a listing",
				Action: showListing,
				Flags:  tokenFlags,
			},
			{
				Name:   "proceeds",
				Usage:  "Show the proceeds held for a principal",
				Action: showProceeds,
				Flags:  []cli.Flag{&cli.StringFlag{Name: "principal", Usage: "Defaults to the caller"}},
			},
			{
				Name:   "fund",
				Usage:  "Credit a principal's balance",
				Action: fund,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "principal", Usage: "Defaults to the caller"},
					&cli.StringFlag{Name: "amount", Required: true, Usage: "Amount in base units"},
				},
			},
			{
				Name:   "balance",
				Usage:  "Show a principal's balance",
				Action: showBalance,
				Flags:  []cli.Flag{&cli.StringFlag{Name: "principal", Usage: "Defaults to the caller"}},
			},
			{
				Name:   "history",
				Usage:  "Print the indexed actions of a token",
				Action: showHistory,
				Flags:  tokenFlags,
			},
			{
				Name:   "collection-listings",
				Usage:  "Print the indexed listings of a collection",
				Action: showCollectionListings,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "collection", Required: true, Usage: "Collection address"},
					&cli.StringFlag{Name: "status", Value: "", Usage: "active, canceled or sold"},
				},
			},
			{
				Name:   "events",
				Usage:  "Print the event log",
				Action: showEvents,
				Flags:  []cli.Flag{&cli.Uint64Flag{Name: "since", Value: 0, Usage: "First sequence number"}},
			},
			{
				Name:   "subscribe",
				Usage:  "Print events published to RabbitMQ as they arrive",
				Action: subscribe,
				Flags:  []cli.Flag{&cli.StringFlag{Name: "binding", Value: "marketplace.events.#", Usage: "Binding key, e.g. marketplace.events.ItemBought"}},
			},
			{
				Name:   "queue-size",
				Usage:  "Show the number of messages waiting in the events queue",
				Action: queueSize,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Command failed")
	}
}

func timeout(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, time.Duration(config.Get().HttpTimeout)*time.Second)
}

func token(c *cli.Context) (entity.Principal, *uint256.Int, error) {
	collection, err := entity.ParsePrincipal(c.String("collection"))
	if err != nil {
		return collection, nil, fmt.Errorf("collection: %w", err)
	}
	tokenId, err := entity.ParseValue(c.String("token"))
	if err != nil {
		return collection, nil, fmt.Errorf("token: %w", err)
	}

	return collection, tokenId, nil
}

func principal(c *cli.Context) (entity.Principal, error) {
	if c.String("principal") == "" {
		return api.Caller(), nil
	}

	return entity.ParsePrincipal(c.String("principal"))
}

func mint(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, err := entity.ParsePrincipal(c.String("collection"))
	if err != nil {
		return err
	}

	tokenId, err := api.Mint(ctx, collection, api.Caller())
	if err != nil {
		return err
	}

	zap.L().With(zap.String("collection", collection.Hex()), zap.String("tokenId", tokenId.Dec())).Info("Minted")
	return nil
}

func approve(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, tokenId, err := token(c)
	if err != nil {
		return err
	}
	market, err := api.Marketplace(ctx)
	if err != nil {
		return err
	}

	if err := api.Approve(ctx, collection, tokenId, market); err != nil {
		return err
	}

	zap.L().With(zap.String("tokenId", tokenId.Dec()), zap.String("operator", market.Hex())).Info("Approved")
	return nil
}

func mintAndList(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, err := entity.ParsePrincipal(c.String("collection"))
	if err != nil {
		return err
	}
	price, err := entity.ParseValue(c.String("price"))
	if err != nil {
		return err
	}
	market, err := api.Marketplace(ctx)
	if err != nil {
		return err
	}

	zap.L().Info("Minting NFT...")
	tokenId, err := api.Mint(ctx, collection, api.Caller())
	if err != nil {
		return err
	}

	zap.L().Info("Approving NFT...")
	if err := api.Approve(ctx, collection, tokenId, market); err != nil {
		return err
	}

	zap.L().Info("Listing NFT...")
	if err := api.ListItem(ctx, collection, tokenId, price); err != nil {
		return err
	}

	zap.L().With(zap.String("tokenId", tokenId.Dec()), zap.String("price", price.Dec())).Info("Listed")
	return nil
}

func listItem(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, tokenId, err := token(c)
	if err != nil {
		return err
	}
	price, err := entity.ParseValue(c.String("price"))
	if err != nil {
		return err
	}

	if err := api.ListItem(ctx, collection, tokenId, price); err != nil {
		return err
	}

	zap.L().With(zap.String("tokenId", tokenId.Dec()), zap.String("price", price.Dec())).Info("Listed")
	return nil
}

func updateListing(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, tokenId, err := token(c)
	if err != nil {
		return err
	}
	price, err := entity.ParseValue(c.String("price"))
	if err != nil {
		return err
	}

	if err := api.UpdateListing(ctx, collection, tokenId, price); err != nil {
		return err
	}

	zap.L().With(zap.String("tokenId", tokenId.Dec()), zap.String("price", price.Dec())).Info("Updated")
	return nil
}

func deleteListing(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, tokenId, err := token(c)
	if err != nil {
		return err
	}

	if err := api.DeleteListing(ctx, collection, tokenId); err != nil {
		return err
	}

	zap.L().With(zap.String("tokenId", tokenId.Dec())).Info("NFT Canceled!")
	return nil
}

func buyItem(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, tokenId, err := token(c)
	if err != nil {
		return err
	}

	var value *uint256.Int
	if c.String("value") != "" {
		if value, err = entity.ParseValue(c.String("value")); err != nil {
			return err
		}
	} else {
		listing, err := api.GetListing(ctx, collection, tokenId)
		if err != nil {
			return err
		}
		value = listing.Price
	}

	if err := api.BuyItem(ctx, collection, tokenId, value); err != nil {
		return err
	}

	zap.L().With(zap.String("tokenId", tokenId.Dec()), zap.String("value", value.Dec())).Info("Bought")
	return nil
}

func withdraw(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	if err := api.WithdrawProceeds(ctx); err != nil {
		return err
	}

	zap.L().With(zap.String("caller", api.Caller().Hex())).Info("Withdrawn")
	return nil
}

func showListing(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, tokenId, err := token(c)
	if err != nil {
		return err
	}

	listing, err := api.GetListing(ctx, collection, tokenId)
	if err != nil {
		return err
	}

	fmt.Printf("price=%s seller=%s\n", listing.Price.Dec(), listing.Seller.Hex())
	return nil
}

func showProceeds(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	p, err := principal(c)
	if err != nil {
		return err
	}

	amount, err := api.GetProceeds(ctx, p)
	if err != nil {
		return err
	}

	fmt.Println(amount.Dec())
	return nil
}

func fund(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	p, err := principal(c)
	if err != nil {
		return err
	}
	amount, err := entity.ParseValue(c.String("amount"))
	if err != nil {
		return err
	}

	return api.Fund(ctx, p, amount)
}

func showBalance(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	p, err := principal(c)
	if err != nil {
		return err
	}

	balance, err := api.BalanceOf(ctx, p)
	if err != nil {
		return err
	}

	fmt.Println(balance.Dec())
	return nil
}

func showEvents(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	events, err := api.Events(ctx, c.Uint64("since"))
	if err != nil {
		return err
	}

	for _, e := range events {
		fmt.Printf("%d %s caller=%s collection=%s tokenId=%s price=%s\n",
			e.Seq, e.Type, e.Caller.Hex(), e.Collection.Hex(), entity.ValueString(e.TokenId), entity.ValueString(e.Price))
	}

	return nil
}

func rabbit() (messenger.MessageService, error) {
	cfg := config.Get()
	if !cfg.Rabbitmq.Enabled() {
		return nil, errors.New("RABBITMQ_DSN is not set")
	}

	return messenger.NewMessenger(cfg.Rabbitmq, cfg.Network), nil
}

func subscribe(c *cli.Context) error {
	m, err := rabbit()
	if err != nil {
		return err
	}
	defer m.Close()

	return messenger.Subscribe(m, c.String("binding"), func(e entity.Event) {
		fmt.Printf("%d %s caller=%s collection=%s tokenId=%s price=%s\n",
			e.Seq, e.Type, e.Caller.Hex(), e.Collection.Hex(), entity.ValueString(e.TokenId), entity.ValueString(e.Price))
	})
}

func queueSize(c *cli.Context) error {
	m, err := rabbit()
	if err != nil {
		return err
	}
	defer m.Close()

	size, err := m.GetQueueSize(messenger.MarketplaceEvents)
	if err != nil {
		return err
	}

	fmt.Println(size)
	return nil
}

func showHistory(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, tokenId, err := token(c)
	if err != nil {
		return err
	}

	actions, err := api.History(ctx, collection, tokenId)
	if err != nil {
		return err
	}

	for _, a := range actions {
		fmt.Printf("%d %s caller=%s cost=%s time=%s\n", a.Seq, a.Action, a.Caller, a.Cost, a.Time.Format(time.RFC3339))
	}

	return nil
}

func showCollectionListings(c *cli.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	collection, err := entity.ParsePrincipal(c.String("collection"))
	if err != nil {
		return err
	}

	listings, err := api.CollectionListings(ctx, collection, entity.ListingStatus(c.String("status")))
	if err != nil {
		return err
	}

	for _, l := range listings {
		fmt.Printf("%s tokenId=%s status=%s price=%s seller=%s buyer=%s\n", l.Asset, l.TokenId, l.Status, l.Price, l.Seller, l.Buyer)
	}

	return nil
}
