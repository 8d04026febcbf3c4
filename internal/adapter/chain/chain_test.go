package chain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/internal/core/ports/mocks"
	"wallet-risk-monitor/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testWallet(chain string) *domain.Wallet {
	return &domain.Wallet{ID: uuid.New(), Address: "0xabc0000000000000000000000000000000000001", Chain: chain, Active: true}
}

func TestRouter_Dispatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	eth := mocks.NewMockChainAdapter(ctrl)
	w := testWallet("ethereum")
	want := &ports.FetchResult{}

	eth.EXPECT().Fetch(gomock.Any(), w, nil).Return(want, nil)

	r := NewRouter()
	r.Register("ethereum", eth)
	r.Register("bitcoin", mocks.NewMockChainAdapter(ctrl))

	got, err := r.Fetch(context.Background(), w, nil)
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, []string{"bitcoin", "ethereum"}, r.Chains())
}

func TestRouter_UnknownChainIsPermanent(t *testing.T) {
	_, err := NewRouter().Fetch(context.Background(), testWallet("dogecoin"), nil)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodePermanentUnitFailure))
}

func TestHTTPAdapter_FetchFromStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/addresses/0xabc0000000000000000000000000000000000001/transactions", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("after_block"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"transactions":[
			{"hash":"0x1","from":"a","to":"b","amount":"1.5","timestamp":"1700000000","block_number":10,"tx_index":0},
			{"hash":"0x2","from":"a","to":"c","amount":"2","timestamp":"1700000100","block_number":10,"tx_index":3}
		]}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter("ethereum", srv.URL+"/", 2, time.Second, srv.Client())
	res, err := a.Fetch(context.Background(), testWallet("ethereum"), nil)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, "1.5", res.Transactions[0].Amount)
	require.NotNil(t, res.Next)
	assert.Equal(t, domain.Position{Block: 10, Index: 3}, *res.Next, "next defaults to the last record")
}

func TestHTTPAdapter_ResumesAfterCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("after_block"))
		assert.Equal(t, "3", r.URL.Query().Get("after_index"))
		_, _ = w.Write([]byte(`{"transactions":[
			{"hash":"0x2","block_number":10,"tx_index":3},
			{"hash":"0x3","block_number":11,"tx_index":0}
		],"next":{"block":12,"index":0}}`))
	}))
	defer srv.Close()

	w := testWallet("ethereum")
	cursor := domain.CursorAt(w.UnitKey(), domain.Position{Block: 10, Index: 3})

	a := NewHTTPAdapter("ethereum", srv.URL, 0, time.Second, srv.Client())
	res, err := a.Fetch(context.Background(), w, cursor)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1, "boundary record is not returned twice")
	assert.Equal(t, "0x3", res.Transactions[0].Hash)
	assert.Equal(t, domain.Position{Block: 12, Index: 0}, *res.Next)
}

func TestHTTPAdapter_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transactions":[]}`))
	}))
	defer srv.Close()

	res, err := NewHTTPAdapter("ethereum", srv.URL, 10, time.Second, srv.Client()).
		Fetch(context.Background(), testWallet("ethereum"), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Nil(t, res.Next)
}

func TestHTTPAdapter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"server error", http.StatusBadGateway, apperror.CodeAdapterUnavailable},
		{"throttled", http.StatusTooManyRequests, apperror.CodeAdapterUnavailable},
		{"cursor conflict", http.StatusConflict, apperror.CodeInvalidCursor},
		{"cursor gone", http.StatusGone, apperror.CodeInvalidCursor},
		{"bad address", http.StatusBadRequest, apperror.CodePermanentUnitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewHTTPAdapter("ethereum", srv.URL, 10, time.Second, srv.Client()).
				Fetch(context.Background(), testWallet("ethereum"), nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
		})
	}
}

func TestHTTPAdapter_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPAdapter("ethereum", srv.URL, 10, 20*time.Millisecond, srv.Client()).
		Fetch(context.Background(), testWallet("ethereum"), nil)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeAdapterUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPAdapter_GarbageBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewHTTPAdapter("ethereum", srv.URL, 10, time.Second, srv.Client()).
		Fetch(context.Background(), testWallet("ethereum"), nil)
	assert.True(t, apperror.Is(err, apperror.CodeAdapterUnavailable))
}
