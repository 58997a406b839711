package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
)

const openPhishBody = `# community feed
https://login.evil.example/verify
http://paypal-secure.test/
`

const phishTankBody = `phish_id,url,phish_detail_url,submission_time,verified,verification_time,online,target
101,http://bank.test/login?session=1,https://phishtank.org/phish_detail.php?phish_id=101,2024-01-01T00:00:00+00:00,yes,2024-01-01T01:00:00+00:00,yes,Bank
102,http://shop.test/pay,https://phishtank.org/phish_detail.php?phish_id=102,2024-01-02T00:00:00+00:00,no,,yes,Other
`

func feedServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		time.Sleep(10 * time.Millisecond)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenPhish(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, openPhishBody, &hits)
	p := NewOpenPhish(srv.URL, time.Hour, HTTPOptions{Client: srv.Client()}, nil)
	ctx := context.Background()

	tests := []struct {
		value  string
		typ    domain.IndicatorType
		listed bool
	}{
		{"https://login.evil.example/verify", domain.TypeURL, true},
		{"http://paypal-secure.test", domain.TypeURL, true},
		{"evil.example", domain.TypeDomain, true},
		{"login.evil.example", domain.TypeDomain, true},
		{"example", domain.TypeDomain, false},
		{"good.example", domain.TypeDomain, false},
		{"https://login.evil.example/other", domain.TypeURL, false},
	}
	for _, tt := range tests {
		sig, err := p.Invoke(ctx, tt.value, tt.typ)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.listed, sig.Detail["listed"], tt.value)
		if tt.listed {
			assert.Equal(t, 9.0, sig.Score, tt.value)
		} else {
			assert.Zero(t, sig.Score, tt.value)
		}
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestPhishTank(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, phishTankBody, &hits)
	p := NewPhishTank(srv.URL, time.Hour, HTTPOptions{Client: srv.Client()}, nil)
	ctx := context.Background()

	sig, err := p.Invoke(ctx, "http://bank.test/login", domain.TypeURL)
	require.NoError(t, err)
	assert.Equal(t, 9.0, sig.Score)
	assert.Equal(t, true, sig.Detail["verified"])
	assert.Equal(t, "Bank", sig.Detail["target"])

	sig, err = p.Invoke(ctx, "HTTP://SHOP.TEST/pay", domain.TypeURL)
	require.NoError(t, err)
	assert.Equal(t, 8.0, sig.Score)
	assert.Equal(t, false, sig.Detail["verified"])

	sig, err = p.Invoke(ctx, "http://clean.test/", domain.TypeURL)
	require.NoError(t, err)
	assert.Zero(t, sig.Score)
	assert.Equal(t, false, sig.Detail["listed"])

	assert.False(t, p.Applicable(domain.TypeDomain))
}

func TestFeedCache_CollapsesConcurrentRefreshes(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, openPhishBody, &hits)
	p := NewOpenPhish(srv.URL, time.Hour, HTTPOptions{Client: srv.Client()}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Invoke(context.Background(), "evil.example", domain.TypeDomain)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 2, p.feed.Size())
}

func TestFeedCache_ServesStaleOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, openPhishBody)
	}))
	defer srv.Close()

	p := NewOpenPhish(srv.URL, time.Minute, HTTPOptions{Client: srv.Client()}, nil)
	clock := time.Now()
	p.feed.now = func() time.Time { return clock }
	require.NoError(t, p.Preload(context.Background()))

	fail.Store(true)
	clock = clock.Add(2 * time.Minute)

	sig, err := p.Invoke(context.Background(), "evil.example", domain.TypeDomain)
	require.NoError(t, err)
	assert.Equal(t, true, sig.Detail["listed"])
}

func TestFeedCache_FirstLoadFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewPhishTank(srv.URL, time.Hour, HTTPOptions{Client: srv.Client()}, nil)
	_, err := p.Invoke(context.Background(), "http://bank.test/login", domain.TypeURL)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindUpstream, kindOf(t, err))
}
