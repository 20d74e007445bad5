package dic

import (
	"context"
	"testing"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/stretchr/testify/require"
)

var (
	collection = entity.MustParsePrincipal("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	seller     = entity.MustParsePrincipal("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

func testConfig(path string) *config.Config {
	return &config.Config{
		Network:            "test",
		MarketplaceAddress: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
		DatastorePath:      path,
		QueueSize:          4,
	}
}

func TestContainerInMemory(t *testing.T) {
	c, err := NewContainer(testConfig(""))
	require.NoError(t, err)

	market, err := c.GetMarketplace()
	require.NoError(t, err)
	require.Equal(t, entity.MustParsePrincipal("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"), market.Address())
	require.Same(t, market, mustMarketplace(t, c), "services are built once")

	_, err = c.GetElastic()
	require.ErrorIs(t, err, ErrElasticDisabled)
	_, err = c.GetMessenger()
	require.ErrorIs(t, err, ErrRabbitmqDisabled)

	require.NotNil(t, c.GetApi().Router())
	require.NoError(t, c.Delete())
}

func TestContainerRejectsInvalidAddress(t *testing.T) {
	cfg := testConfig("")
	cfg.MarketplaceAddress = "not-an-address"

	c, err := NewContainer(cfg)
	require.NoError(t, err)

	_, err = c.GetMarketplace()
	require.Error(t, err)
}

func TestContainerPersistsToLeveldb(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	c, err := NewContainer(testConfig(path))
	require.NoError(t, err)

	market := mustMarketplace(t, c)
	tokenId, err := c.GetRegistry().Mint(ctx, collection, seller)
	require.NoError(t, err)
	require.NoError(t, c.GetRegistry().Approve(ctx, seller, collection, tokenId, market.Address()))
	require.NoError(t, market.ListItem(ctx, marketplace.NewCallContext(seller), collection, tokenId, entity.NewValue(100)))
	require.NoError(t, c.Delete())

	reopened, err := NewContainer(testConfig(path))
	require.NoError(t, err)
	defer reopened.Delete()

	owner, err := reopened.GetRegistry().OwnerOf(ctx, collection, tokenId)
	require.NoError(t, err)
	require.Equal(t, seller, owner)

	listing, err := mustMarketplace(t, reopened).GetListing(ctx, collection, tokenId)
	require.NoError(t, err)
	require.Equal(t, seller, listing.Seller)
	require.Equal(t, "100", listing.Price.Dec())

	n, err := reopened.GetEventLog().Len(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}

func mustMarketplace(t *testing.T, c *Container) *marketplace.Marketplace {
	t.Helper()

	market, err := c.GetMarketplace()
	require.NoError(t, err)

	return market
}
