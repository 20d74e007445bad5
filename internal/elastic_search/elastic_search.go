package elastic_search

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/aws/aws-sdk-go/aws/credentials"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/olivere/elastic/v7"
	"github.com/patrickmn/go-cache"
	"github.com/sha1sum/aws_signing_client"
	"go.uber.org/zap"
)

//go:embed mappings/*.json
var mappings embed.FS

var ErrPersistFailed = errors.New("elastic: failed to persist requests")

// Document is anything stored in an index under its slug.
type Document interface {
	Slug() string
}

type Index interface {
	GetClient() *elastic.Client

	InstallMappings(ctx context.Context) error

	AddIndexRequest(index string, doc Document, reqAction RequestAction)
	AddUpdateRequest(index string, doc Document, reqAction RequestAction)
	HasRequest(doc Document) bool
	GetRequests() []Request
	GetRequest(id string) *Request
	ClearRequests()

	BatchPersist(ctx context.Context) bool
	Persist(ctx context.Context) (int, error)
}

type index struct {
	client    *elastic.Client
	cache     *cache.Cache
	refresh   string
	bulkCount int
}

type Request struct {
	Index  string
	Doc    Document
	Type   RequestType
	Action RequestAction
}

type RequestType string

const (
	IndexRequest  RequestType = "index"
	UpdateRequest RequestType = "update"
)

type RequestAction string

const (
	MarketplaceAction   RequestAction = "MarketplaceAction"
	ListingCreate       RequestAction = "ListingCreate"
	ListingUpdatePrice  RequestAction = "ListingUpdatePrice"
	ListingUpdateStatus RequestAction = "ListingUpdateStatus"
)

const batchPersistSize = 250

func New(cfg config.ElasticSearchConfig, aws config.AwsConfig) (Index, error) {
	client, err := newClient(cfg, aws)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("ElasticSearch: Failed to create client")
		return nil, err
	}

	return NewIndex(client, cfg), nil
}

// NewIndex wraps an existing client. The request buffer lives in memory until persisted.
func NewIndex(client *elastic.Client, cfg config.ElasticSearchConfig) Index {
	bulkCount := cfg.BulkPersistCount
	if bulkCount <= 0 {
		bulkCount = batchPersistSize
	}

	return index{client, cache.New(cache.NoExpiration, 10*time.Minute), cfg.Refresh, bulkCount}
}

func newClient(cfg config.ElasticSearchConfig, aws config.AwsConfig) (*elastic.Client, error) {
	opts := []elastic.ClientOptionFunc{
		elastic.SetURL(cfg.Hosts...),
		elastic.SetSniff(cfg.Sniff),
		elastic.SetHealthcheck(cfg.HealthCheck),
	}

	if cfg.Debug {
		opts = append(opts, elastic.SetTraceLog(ElasticLogger{}))
	}

	if cfg.Aws {
		creds := credentials.NewStaticCredentials(aws.AccessKey, aws.SecretKey, "")
		awsClient, err := aws_signing_client.New(v4.NewSigner(creds), nil, "es", aws.Region)
		if err != nil {
			return nil, err
		}

		opts = append(opts, elastic.SetHttpClient(awsClient))
		opts = append(opts, elastic.SetScheme("https"))
		return elastic.NewClient(opts...)
	}

	if cfg.Username != "" {
		opts = append(opts, elastic.SetBasicAuth(cfg.Username, cfg.Password))
	}

	return elastic.NewClient(opts...)
}

func (i index) GetClient() *elastic.Client {
	return i.client
}

func (i index) InstallMappings(ctx context.Context) error {
	zap.L().Info("ElasticSearch: Install Mappings")

	for _, idx := range All() {
		b, err := mappings.ReadFile("mappings/" + string(idx) + ".json")
		if err != nil {
			zap.L().With(zap.Error(err), zap.String("index", string(idx))).Error("ElasticSearch: Elastic mappings file error")
			return err
		}

		if err = i.createIndex(ctx, idx.Get(), b); err != nil {
			zap.L().With(zap.Error(err), zap.String("index", idx.Get())).Error("ElasticSearch: Failed to create index")
			return err
		}
	}

	return nil
}

func (i index) createIndex(ctx context.Context, index string, mapping []byte) error {
	exists, err := i.client.IndexExists(index).Do(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	createIndex, err := i.client.CreateIndex(index).BodyString(string(mapping)).Do(ctx)
	if err != nil {
		return err
	}

	if createIndex.Acknowledged {
		zap.S().Infof("ElasticSearch: Created index %s", index)
	}

	return nil
}

func (i index) AddIndexRequest(index string, doc Document, reqAction RequestAction) {
	zap.L().With(
		zap.String("index", index),
		zap.String("slug", doc.Slug()),
		zap.String("action", string(reqAction)),
	).Debug("ElasticSearch: AddIndexRequest")

	i.addRequest(index, doc, IndexRequest, reqAction)
}

// AddUpdateRequest folds the update into a pending request for the same document, so a
// document indexed and updated before a persist is sent once.
func (i index) AddUpdateRequest(index string, doc Document, reqAction RequestAction) {
	zap.L().With(
		zap.String("index", index),
		zap.String("slug", doc.Slug()),
		zap.String("action", string(reqAction)),
	).Debug("ElasticSearch: AddUpdateRequest")

	if cached := i.GetRequest(doc.Slug()); cached != nil {
		merged := mergeRequests(*cached, reqAction, doc)
		i.addRequest(index, merged, cached.Type, reqAction)
		return
	}

	i.addRequest(index, doc, UpdateRequest, reqAction)
}

func (i index) HasRequest(doc Document) bool {
	_, found := i.cache.Get(doc.Slug())

	return found
}

func (i index) addRequest(index string, doc Document, reqType RequestType, reqAction RequestAction) {
	i.cache.Set(doc.Slug(), Request{index, doc, reqType, reqAction}, cache.NoExpiration)
}

func (i index) GetRequests() []Request {
	requests := make([]Request, 0)

	for _, item := range i.cache.Items() {
		requests = append(requests, item.Object.(Request))
	}

	return requests
}

func (i index) GetRequest(id string) *Request {
	if item, found := i.cache.Get(id); found {
		req := item.(Request)
		return &req
	}

	return nil
}

func (i index) ClearRequests() {
	i.cache.Flush()
}

func (i index) BatchPersist(ctx context.Context) bool {
	if i.cache.ItemCount() < i.bulkCount {
		return false
	}

	actions := i.cache.ItemCount()
	start := time.Now()
	if _, err := i.Persist(ctx); err != nil {
		return false
	}

	zap.L().With(
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("actions", actions),
	).Info("ElasticSearch: Persisting data")

	return true
}

// Persist sends every buffered request in bulk. Requests that fail stay buffered for the next
// attempt.
func (i index) Persist(ctx context.Context) (int, error) {
	requests := i.GetRequests()
	persisted := 0

	for start := 0; start < len(requests); start += i.bulkCount {
		end := start + i.bulkCount
		if end > len(requests) {
			end = len(requests)
		}

		bulk := i.client.Bulk()
		for _, r := range requests[start:end] {
			if r.Type == IndexRequest {
				bulk.Add(elastic.NewBulkIndexRequest().Index(r.Index).Id(r.Doc.Slug()).Doc(r.Doc))
			} else {
				bulk.Add(elastic.NewBulkUpdateRequest().Index(r.Index).Id(r.Doc.Slug()).Doc(r.Doc).DocAsUpsert(true))
			}
		}

		n, err := i.persist(ctx, bulk, requests[start:end])
		persisted += n
		if err != nil {
			return persisted, err
		}
	}

	return persisted, nil
}

func (i index) persist(ctx context.Context, bulk *elastic.BulkService, requests []Request) (int, error) {
	actions := bulk.NumberOfActions()
	zap.S().Debugf("ElasticSearch: Persisting %d actions", actions)

	response, err := bulk.Refresh(i.refresh).Do(ctx)
	if err != nil {
		if elastic.IsStatusCode(err, 429) {
			zap.L().With(zap.Error(err)).Warn("ElasticSearch: 429 (Too Many Requests)")
		} else {
			zap.L().With(zap.Error(err)).Error("ElasticSearch: Failed to persist requests")
		}
		return 0, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	failed := make(map[string]bool)
	for _, item := range response.Failed() {
		zap.L().With(
			zap.Any("error", item.Error),
			zap.String("index", item.Index),
			zap.String("id", item.Id),
		).Error("ElasticSearch: Failed to persist request. Retrying on next persist")
		failed[item.Id] = true
	}

	for _, r := range requests {
		if !failed[r.Doc.Slug()] {
			i.cache.Delete(r.Doc.Slug())
		}
	}

	if len(failed) != 0 {
		return actions - len(failed), ErrPersistFailed
	}

	return actions, nil
}
