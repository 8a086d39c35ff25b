package resolve

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/migrc/pkg/catalog"
	"github.com/walteh/migrc/pkg/retry"
	"github.com/walteh/migrc/pkg/woo"
	"gitlab.com/tozd/go/errors"
)

// fakeDestination is an in-memory Destination with call counting
type fakeDestination struct {
	mu          sync.Mutex
	bySKU       map[string][]woo.Product
	bySourceID  map[int64][]woo.Product
	byName      map[string][]woo.Product
	skuCalls    int
	idCalls     int
	nameCalls   int
	skuFailures int // transient failures before FindBySKU succeeds
}

func (f *fakeDestination) FindBySKU(ctx context.Context, sku string) ([]woo.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skuCalls++
	if f.skuFailures > 0 {
		f.skuFailures--
		return nil, &woo.Error{Kind: woo.KindServer, Status: 503, Endpoint: "products", Err: errors.New("unavailable")}
	}
	return f.bySKU[sku], nil
}

func (f *fakeDestination) FindBySourceID(ctx context.Context, sourceID int64) ([]woo.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idCalls++
	return f.bySourceID[sourceID], nil
}

func (f *fakeDestination) SearchByName(ctx context.Context, name string) ([]woo.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls++
	return f.byName[name], nil
}

func (f *fakeDestination) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skuCalls + f.idCalls + f.nameCalls
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	l := zerolog.New(zerolog.NewTestWriter(t))
	return l.WithContext(context.Background())
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		ShouldRetry: woo.IsRetryable,
	}
}

func mustProduct(t *testing.T, id int64, sku, name string) catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(id, sku, name, 0, nil)
	require.NoError(t, err)
	return p
}

func TestResolveBySKU(t *testing.T) {
	dest := &fakeDestination{bySKU: map[string][]woo.Product{
		"SKU-10": {{ID: 501, SKU: "SKU-10"}},
	}}
	resolver := NewResolver(dest, fastRetry())

	ref, err := resolver.Resolve(testCtx(t), mustProduct(t, 10, "SKU-10", "Blue Shirt"))
	require.NoError(t, err)
	assert.Equal(t, int64(501), ref.DestinationID)
	assert.Equal(t, MatchBySKU, ref.MatchedBy)
	assert.InDelta(t, 1.0, ref.Confidence, 0.001)

	// Only the SKU strategy ran
	assert.Equal(t, 1, dest.skuCalls)
	assert.Equal(t, 0, dest.idCalls)
	assert.Equal(t, 0, dest.nameCalls)
}

func TestResolveFallsBackToSourceID(t *testing.T) {
	dest := &fakeDestination{bySourceID: map[int64][]woo.Product{
		10: {{ID: 502}},
	}}
	resolver := NewResolver(dest, fastRetry())

	ref, err := resolver.Resolve(testCtx(t), mustProduct(t, 10, "SKU-10", "Blue Shirt"))
	require.NoError(t, err)
	assert.Equal(t, int64(502), ref.DestinationID)
	assert.Equal(t, MatchByID, ref.MatchedBy)
}

func TestResolveFallsBackToName(t *testing.T) {
	dest := &fakeDestination{byName: map[string][]woo.Product{
		"Blue Shirt": {
			{ID: 503, Name: "blue shirt"},     // case-insensitive exact match
			{ID: 504, Name: "Blue Shirt Two"}, // not exact, ignored
		},
	}}
	resolver := NewResolver(dest, fastRetry())

	ref, err := resolver.Resolve(testCtx(t), mustProduct(t, 10, "", "Blue Shirt"))
	require.NoError(t, err)
	assert.Equal(t, int64(503), ref.DestinationID)
	assert.Equal(t, MatchByName, ref.MatchedBy)

	// No SKU, so the SKU strategy was skipped entirely
	assert.Equal(t, 0, dest.skuCalls)
}

func TestResolveAmbiguousNameFails(t *testing.T) {
	dest := &fakeDestination{byName: map[string][]woo.Product{
		"Blue Shirt": {
			{ID: 503, Name: "Blue Shirt"},
			{ID: 504, Name: "blue shirt"},
		},
	}}
	resolver := NewResolver(dest, fastRetry())

	_, err := resolver.Resolve(testCtx(t), mustProduct(t, 10, "", "Blue Shirt"))
	require.Error(t, err)

	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Contains(t, nferr.Reason, "matches 2")
}

func TestResolveAmbiguousSKUFails(t *testing.T) {
	dest := &fakeDestination{bySKU: map[string][]woo.Product{
		"SKU-10": {{ID: 501}, {ID: 502}},
	}}
	resolver := NewResolver(dest, fastRetry())

	_, err := resolver.Resolve(testCtx(t), mustProduct(t, 10, "SKU-10", "Blue Shirt"))
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestResolveNoMatchFails(t *testing.T) {
	dest := &fakeDestination{}
	resolver := NewResolver(dest, fastRetry())

	_, err := resolver.Resolve(testCtx(t), mustProduct(t, 10, "SKU-10", "Blue Shirt"))
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, int64(10), nferr.SourceID)
}

func TestResolveIsIdempotentWithinRun(t *testing.T) {
	dest := &fakeDestination{bySKU: map[string][]woo.Product{
		"SKU-10": {{ID: 501}},
	}}
	resolver := NewResolver(dest, fastRetry())
	product := mustProduct(t, 10, "SKU-10", "Blue Shirt")

	first, err := resolver.Resolve(testCtx(t), product)
	require.NoError(t, err)
	callsAfterFirst := dest.totalCalls()

	second, err := resolver.Resolve(testCtx(t), product)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, dest.totalCalls(), "cache hit must not reach the network")
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	dest := &fakeDestination{
		bySKU:       map[string][]woo.Product{"SKU-10": {{ID: 501}}},
		skuFailures: 2,
	}
	resolver := NewResolver(dest, fastRetry())

	ref, err := resolver.Resolve(testCtx(t), mustProduct(t, 10, "SKU-10", "Blue Shirt"))
	require.NoError(t, err)
	assert.Equal(t, int64(501), ref.DestinationID)
	assert.Equal(t, 3, dest.skuCalls)
}

func TestResolveConcurrentSameProduct(t *testing.T) {
	dest := &fakeDestination{bySKU: map[string][]woo.Product{
		"SKU-10": {{ID: 501}},
	}}
	resolver := NewResolver(dest, fastRetry())
	product := mustProduct(t, 10, "SKU-10", "Blue Shirt")
	ctx := testCtx(t)

	var wg sync.WaitGroup
	refs := make([]ProductRef, 8)
	for i := range refs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := resolver.Resolve(ctx, product)
			assert.NoError(t, err)
			refs[i] = ref
		}()
	}
	wg.Wait()

	for _, ref := range refs {
		assert.Equal(t, int64(501), ref.DestinationID)
	}
}
