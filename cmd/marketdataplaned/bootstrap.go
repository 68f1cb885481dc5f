package main

import (
	"fmt"
	"os"

	"github.com/sawpanic/marketdataplane/internal/adapters"
	"github.com/sawpanic/marketdataplane/internal/adapterutil"
	"github.com/sawpanic/marketdataplane/internal/config"
	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/platform"
	"github.com/sawpanic/marketdataplane/internal/storage"
)

// system bundles everything bootstrap wires together, so serve and cycle
// can share construction without duplicating it.
type system struct {
	sysctx  *platform.SystemContext
	catalog *config.Catalog
	store   *storage.Store
	hot     *storage.RedisHotStore
	durable *storage.PostgresDurableStore
	adapterSet map[string]adapters.Adapter
}

// bootstrap constructs the SystemContext, loads and validates the catalog,
// opens the Redis/Postgres stores, and builds one Guard-wrapped adapter
// per declared source. Grounded on the teacher's main.go wiring order:
// logger/metrics first, then config, then infra clients, then domain
// components.
func bootstrap(path string) (*system, error) {
	sysctx := platform.New(isTTY())

	catalog, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	hot := storage.NewRedisHotStore(catalog.Runtime.HotStoreAddr)
	durable, err := storage.Open(catalog.Runtime.DurableStoreDSN)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open durable store: %w", err)
	}

	categoryOf := func(seriesKey string) domain.Category {
		if d, ok := catalog.Series[seriesKey]; ok {
			return d.Category
		}
		return domain.CategoryCustom
	}
	store := storage.New(hot, durable, categoryOf)

	adapterSet := buildAdapterSet(catalog)

	return &system{
		sysctx:     sysctx,
		catalog:    catalog,
		store:      store,
		hot:        hot,
		durable:    durable,
		adapterSet: adapterSet,
	}, nil
}

func (s *system) close() {
	if s.hot != nil {
		_ = s.hot.Close()
	}
	if s.durable != nil {
		_ = s.durable.Close()
	}
}

// buildAdapterSet constructs one Guard-wrapped Adapter per declared source,
// keyed by source_id. The source_id itself selects the adapter family — a
// deployment names its sources after the provider family it fronts (e.g.
// "retail_quote", "fred_econ"), matching spec §8's literal scenarios.
func buildAdapterSet(catalog *config.Catalog) map[string]adapters.Adapter {
	out := make(map[string]adapters.Adapter, len(catalog.Sources))
	for id, src := range catalog.Sources {
		guard := adapterutil.NewGuard(adapterutil.GuardConfigFrom(src, 0))
		apiKey := os.Getenv(src.APIKeyEnv)

		switch id {
		case "retail_quote":
			out[id] = adapters.NewRetailQuoteAdapter(guard, src.BaseURL)
		case "intraday_bars":
			out[id] = adapters.NewIntradayBarsAdapter(guard, src.BaseURL, apiKey)
		case "fred_econ":
			out[id] = adapters.NewFREDEconAdapter(guard, src.BaseURL, apiKey)
		case "forex_rate":
			out[id] = adapters.NewForexRateAdapter(guard, src.BaseURL)
		case "crypto_public":
			out[id] = adapters.NewCryptoPublicAdapter(guard, src.BaseURL)
		case "news_headline":
			out[id] = adapters.NewNewsHeadlineAdapter(guard, src.BaseURL, apiKey)
		}
	}
	return out
}

func isTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
