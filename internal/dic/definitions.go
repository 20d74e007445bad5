package dic

import (
	"errors"

	"github.com/ZilDuck/nft-marketplace/internal/api"
	"github.com/ZilDuck/nft-marketplace/internal/bank"
	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/daemon"
	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/messenger"
	"github.com/ZilDuck/nft-marketplace/internal/metrics"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	levelds "github.com/ipfs/go-ds-leveldb"
	"github.com/sarulabs/di/v2"
	ldbopts "github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/zap"
)

var (
	ErrElasticDisabled  = errors.New("elastic search is not configured")
	ErrRabbitmqDisabled = errors.New("rabbitmq is not configured")
)

func definitions(cfg *config.Config) []di.Def {
	return []di.Def{
		{
			Name: "datastore",
			Build: func(ctn di.Container) (interface{}, error) {
				if cfg.DatastorePath == "" {
					zap.L().Warn("Datastore: No path configured, state is kept in memory")
					return ds_sync.MutexWrap(ds.NewMapDatastore()), nil
				}

				store, err := levelds.NewDatastore(cfg.DatastorePath, &levelds.Options{
					Compression: ldbopts.NoCompression,
					NoSync:      false,
					Strict:      ldbopts.StrictAll,
				})
				if err != nil {
					zap.L().With(zap.Error(err), zap.String("path", cfg.DatastorePath)).Error("Datastore: Failed to open leveldb")
					return nil, err
				}

				return store, nil
			},
			Close: func(obj interface{}) error {
				return obj.(ds.Batching).Close()
			},
		},
		{
			Name: "tree",
			Build: func(ctn di.Container) (interface{}, error) {
				return state.NewTree(ctn.Get("datastore").(ds.Batching)), nil
			},
		},
		{
			Name: "registry",
			Build: func(ctn di.Container) (interface{}, error) {
				return registry.NewRegistry(ctn.Get("tree").(*state.Tree)), nil
			},
		},
		{
			Name: "bank",
			Build: func(ctn di.Container) (interface{}, error) {
				return bank.NewBank(ctn.Get("tree").(*state.Tree)), nil
			},
		},
		{
			Name: "metrics",
			Build: func(ctn di.Container) (interface{}, error) {
				return metrics.New(), nil
			},
		},
		{
			Name: "event.manager",
			Build: func(ctn di.Container) (interface{}, error) {
				manager := event.NewManager()
				manager.AddEventListener(event.AnyEvent, ctn.Get("metrics").(*metrics.Metrics).ObserveEvent)

				if cfg.ElasticSearch.Enabled() {
					manager.AddEventListener(event.AnyEvent, ctn.Get("indexer").(*elastic_search.Indexer).HandleEvent)
				}
				if cfg.Rabbitmq.Enabled() {
					manager.AddEventListener(event.AnyEvent, ctn.Get("event.publisher").(*messenger.EventPublisher).HandleEvent)
				}

				return manager, nil
			},
			Close: func(obj interface{}) error {
				obj.(*event.Manager).Close()
				return nil
			},
		},
		{
			Name: "event.log",
			Build: func(ctn di.Container) (interface{}, error) {
				return event.NewLog(ctn.Get("tree").(*state.Tree), ctn.Get("event.manager").(*event.Manager)), nil
			},
		},
		{
			Name: "listing.repo",
			Build: func(ctn di.Container) (interface{}, error) {
				return repository.NewListingRepository(ctn.Get("tree").(*state.Tree)), nil
			},
		},
		{
			Name: "proceeds.repo",
			Build: func(ctn di.Container) (interface{}, error) {
				return repository.NewProceedsRepository(ctn.Get("tree").(*state.Tree)), nil
			},
		},
		{
			Name: "marketplace",
			Build: func(ctn di.Container) (interface{}, error) {
				address, err := entity.ParsePrincipal(cfg.MarketplaceAddress)
				if err != nil {
					zap.L().With(zap.Error(err), zap.String("address", cfg.MarketplaceAddress)).Error("Marketplace: Invalid address")
					return nil, err
				}

				return marketplace.NewMarketplace(
					address,
					ctn.Get("tree").(*state.Tree),
					ctn.Get("listing.repo").(repository.ListingRepository),
					ctn.Get("proceeds.repo").(repository.ProceedsRepository),
					ctn.Get("registry").(*registry.Registry),
					ctn.Get("bank").(*bank.Bank).Account(address),
					ctn.Get("event.log").(*event.Log),
				), nil
			},
		},
		{
			Name: "sequencer",
			Build: func(ctn di.Container) (interface{}, error) {
				return daemon.NewSequencer(
					ctn.Get("marketplace").(*marketplace.Marketplace),
					ctn.Get("metrics").(*metrics.Metrics),
					cfg.QueueSize,
				), nil
			},
			Close: func(obj interface{}) error {
				obj.(*daemon.Sequencer).Stop()
				return nil
			},
		},
		{
			Name: "elastic",
			Build: func(ctn di.Container) (interface{}, error) {
				if !cfg.ElasticSearch.Enabled() {
					return nil, ErrElasticDisabled
				}

				return elastic_search.New(cfg.ElasticSearch, cfg.Aws)
			},
		},
		{
			Name: "indexer",
			Build: func(ctn di.Container) (interface{}, error) {
				elastic, err := ctn.SafeGet("elastic")
				if err != nil {
					return nil, err
				}
				address, err := entity.ParsePrincipal(cfg.MarketplaceAddress)
				if err != nil {
					return nil, err
				}

				return elastic_search.NewIndexer(elastic.(elastic_search.Index), address), nil
			},
		},
		{
			Name: "action.repo",
			Build: func(ctn di.Container) (interface{}, error) {
				elastic, err := ctn.SafeGet("elastic")
				if err != nil {
					return nil, err
				}

				return repository.NewMarketplaceActionRepository(elastic.(elastic_search.Index)), nil
			},
		},
		{
			Name: "messenger",
			Build: func(ctn di.Container) (interface{}, error) {
				if !cfg.Rabbitmq.Enabled() {
					return nil, ErrRabbitmqDisabled
				}

				return messenger.NewMessenger(cfg.Rabbitmq, cfg.Network), nil
			},
			Close: func(obj interface{}) error {
				return obj.(messenger.MessageService).Close()
			},
		},
		{
			Name: "event.publisher",
			Build: func(ctn di.Container) (interface{}, error) {
				service, err := ctn.SafeGet("messenger")
				if err != nil {
					return nil, err
				}

				return messenger.NewEventPublisher(service.(messenger.MessageService), true), nil
			},
		},
		{
			Name: "api",
			Build: func(ctn di.Container) (interface{}, error) {
				server := api.NewServer(
					ctn.Get("marketplace").(*marketplace.Marketplace),
					ctn.Get("registry").(*registry.Registry),
					ctn.Get("bank").(*bank.Bank),
					ctn.Get("event.log").(*event.Log),
					ctn.Get("sequencer").(*daemon.Sequencer),
					ctn.Get("metrics").(*metrics.Metrics),
				)
				if cfg.ElasticSearch.Enabled() {
					server = server.WithHistory(ctn.Get("action.repo").(repository.MarketplaceActionRepository))
				}

				return server, nil
			},
		},
	}
}
