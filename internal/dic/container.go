package dic

import (
	"github.com/ZilDuck/nft-marketplace/internal/api"
	"github.com/ZilDuck/nft-marketplace/internal/bank"
	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/daemon"
	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/messenger"
	"github.com/ZilDuck/nft-marketplace/internal/metrics"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"github.com/sarulabs/di/v2"
)

// Container builds every service lazily, once, in the app scope.
type Container struct {
	ctn di.Container
	cfg *config.Config
}

func NewContainer(cfg *config.Config) (*Container, error) {
	builder, err := di.NewBuilder()
	if err != nil {
		return nil, err
	}

	if err := builder.Add(definitions(cfg)...); err != nil {
		return nil, err
	}

	return &Container{builder.Build(), cfg}, nil
}

func (c *Container) Config() *config.Config {
	return c.cfg
}

// Delete closes every built service: the sequencer is stopped, listeners drained and the
// datastore closed.
func (c *Container) Delete() error {
	return c.ctn.Delete()
}

func (c *Container) GetTree() *state.Tree {
	return c.ctn.Get("tree").(*state.Tree)
}

func (c *Container) GetRegistry() *registry.Registry {
	return c.ctn.Get("registry").(*registry.Registry)
}

func (c *Container) GetBank() *bank.Bank {
	return c.ctn.Get("bank").(*bank.Bank)
}

func (c *Container) GetMetrics() *metrics.Metrics {
	return c.ctn.Get("metrics").(*metrics.Metrics)
}

func (c *Container) GetEventManager() *event.Manager {
	return c.ctn.Get("event.manager").(*event.Manager)
}

func (c *Container) GetEventLog() *event.Log {
	return c.ctn.Get("event.log").(*event.Log)
}

func (c *Container) GetMarketplace() (*marketplace.Marketplace, error) {
	m, err := c.ctn.SafeGet("marketplace")
	if err != nil {
		return nil, err
	}

	return m.(*marketplace.Marketplace), nil
}

func (c *Container) GetSequencer() *daemon.Sequencer {
	return c.ctn.Get("sequencer").(*daemon.Sequencer)
}

func (c *Container) GetElastic() (elastic_search.Index, error) {
	elastic, err := c.ctn.SafeGet("elastic")
	if err != nil {
		return nil, err
	}

	return elastic.(elastic_search.Index), nil
}

func (c *Container) GetIndexer() (*elastic_search.Indexer, error) {
	indexer, err := c.ctn.SafeGet("indexer")
	if err != nil {
		return nil, err
	}

	return indexer.(*elastic_search.Indexer), nil
}

func (c *Container) GetMessenger() (messenger.MessageService, error) {
	service, err := c.ctn.SafeGet("messenger")
	if err != nil {
		return nil, err
	}

	return service.(messenger.MessageService), nil
}

func (c *Container) GetApi() api.Server {
	return c.ctn.Get("api").(api.Server)
}
