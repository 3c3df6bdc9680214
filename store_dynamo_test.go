package spot

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"

	"github.com/goforj/spot/cachetest"
)

type dynStub struct {
	mu          sync.Mutex
	items       map[string]map[string]types.AttributeValue
	tables      map[string]bool
	describeErr []error
	batchSizes  []int
}

func newDynStub() *dynStub {
	return &dynStub{
		items:  map[string]map[string]types.AttributeValue{},
		tables: map[string]bool{},
	}
}

func dynKey(key map[string]types.AttributeValue) string {
	return key["k"].(*types.AttributeValueMemberS).Value
}

func (d *dynStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[dynKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (d *dynStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[dynKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (d *dynStub) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, dynKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *dynStub) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, writes := range in.RequestItems {
		d.batchSizes = append(d.batchSizes, len(writes))
		for _, wr := range writes {
			if dr := wr.DeleteRequest; dr != nil {
				delete(d.items, dynKey(dr.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (d *dynStub) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var items []map[string]types.AttributeValue
	for k := range d.items {
		items = append(items, map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: k},
		})
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (d *dynStub) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[*in.TableName] = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *dynStub) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.describeErr) > 0 {
		err := d.describeErr[0]
		d.describeErr = d.describeErr[1:]
		return nil, err
	}
	if !d.tables[*in.TableName] {
		return nil, &types.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func newTestDynamoStore(t *testing.T, stub *dynStub, prefix string) Store {
	t.Helper()
	cfg := StoreConfig{DynamoClient: stub, DynamoTable: "spot_entries"}
	cfg.Prefix = prefix
	store, err := newDynamoStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new dynamo store: %v", err)
	}
	return store
}

func TestDynamoStoreContract(t *testing.T) {
	store := newTestDynamoStore(t, newDynStub(), "contract")
	cachetest.RunStoreContract(t, store, cachetest.Options{})
}

func TestDynamoStoreCreatesMissingTable(t *testing.T) {
	stub := newDynStub()
	newTestDynamoStore(t, stub, "p")
	if !stub.tables["spot_entries"] {
		t.Fatalf("expected table to be created")
	}
}

func TestDynamoStoreRetriesStartupErrors(t *testing.T) {
	stub := newDynStub()
	stub.tables["spot_entries"] = true
	stub.describeErr = []error{errors.New("dial tcp: connection refused")}
	newTestDynamoStore(t, stub, "p")

	stub.describeErr = []error{errors.New("access denied")}
	_, err := newDynamoStore(context.Background(), StoreConfig{DynamoClient: stub, DynamoTable: "spot_entries"})
	if err == nil {
		t.Fatalf("expected non-retryable error to surface")
	}
}

func TestDynamoStoreDeleteManyBatches(t *testing.T) {
	stub := newDynStub()
	store := newTestDynamoStore(t, stub, "p")
	ctx := context.Background()
	keys := make([]string, 60)
	for i := range keys {
		keys[i] = "k" + strconv.Itoa(i)
		if err := store.Set(ctx, keys[i], []byte("v"), 0); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	if err := store.DeleteMany(ctx, keys...); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if len(stub.batchSizes) != 3 || stub.batchSizes[0] != 25 || stub.batchSizes[2] != 10 {
		t.Fatalf("unexpected batches %v", stub.batchSizes)
	}
	if len(stub.items) != 0 {
		t.Fatalf("expected all items deleted, %d left", len(stub.items))
	}
}

func TestDynamoStoreFlushScopedToPrefix(t *testing.T) {
	stub := newDynStub()
	ctx := context.Background()
	mine := newTestDynamoStore(t, stub, "mine")
	theirs := newTestDynamoStore(t, stub, "theirs")
	if err := mine.Set(ctx, "k", []byte("a"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := theirs.Set(ctx, "k", []byte("b"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := mine.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, ok, _ := mine.Get(ctx, "k"); ok {
		t.Fatalf("expected own item flushed")
	}
	if _, ok, _ := theirs.Get(ctx, "k"); !ok {
		t.Fatalf("expected other prefix untouched")
	}
}

func TestDynamoExpired(t *testing.T) {
	past := strconv.FormatInt(time.Now().Add(-time.Minute).UnixMilli(), 10)
	future := strconv.FormatInt(time.Now().Add(time.Minute).UnixMilli(), 10)
	cases := map[string]struct {
		item map[string]types.AttributeValue
		want bool
	}{
		"never":   {map[string]types.AttributeValue{"ea": &types.AttributeValueMemberN{Value: "0"}}, false},
		"missing": {map[string]types.AttributeValue{}, false},
		"past":    {map[string]types.AttributeValue{"ea": &types.AttributeValueMemberN{Value: past}}, true},
		"future":  {map[string]types.AttributeValue{"ea": &types.AttributeValueMemberN{Value: future}}, false},
	}
	for name, tc := range cases {
		if got := expired(tc.item); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, got)
		}
	}
}
