package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/capboard/internal/adapters/repository"
	app "github.com/okian/capboard/internal/app"
	"github.com/okian/capboard/internal/config"
	"github.com/okian/capboard/internal/domain/ranking"
	"github.com/okian/capboard/pkg/logger"
)

const seedJSON = `[
  {"symbol": "AAPL", "marketCap": 3000000000000, "company": "Apple", "country": "United States"},
  {"symbol": "MSFT", "marketCap": "2900000000000.50", "company": "Microsoft", "country": "United States"},
  {"symbol": "", "marketCap": 1},
  {"symbol": "TSM", "marketCap": 500000000000, "company": "TSMC", "country": "Taiwan"}
]`

func writeSeed(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "companies.json")
	if err := os.WriteFile(path, []byte(seedJSON), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestOpenStoreAndSeed(t *testing.T) {
	convey.Convey("Given a journaled memory store config", t, func() {
		ctx := context.Background()
		log := logger.Nop()
		cfg := config.New(ctx)
		cfg.DataDir = t.TempDir()
		seedPath := writeSeed(t)

		convey.Convey("When the service is seeded, stopped and reopened", func() {
			store, release, err := openStore(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			svc := app.New(app.WithLogger(log), app.WithStore(store), app.WithWorkerCount(1))
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			convey.So(seedStore(ctx, seedPath, store, svc, log), convey.ShouldBeNil)
			_, err = svc.IncrementScore(ctx, "tsm", decimal.NewFromInt(1))
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Stop(ctx), convey.ShouldBeNil)
			release()

			store2, release2, err := openStore(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer release2()
			svc2 := app.New(app.WithLogger(log), app.WithStore(store2), app.WithWorkerCount(1))
			convey.So(svc2.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc2.Stop(ctx) }()

			convey.So(seedStore(ctx, seedPath, store2, svc2, log), convey.ShouldBeNil)

			convey.Convey("Then the journal restores the state and the seed is not reapplied", func() {
				rows, err := svc2.GetRanked(ctx, ranking.ModeAll)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(rows), convey.ShouldEqual, 3)
				convey.So(rows[0].Symbol, convey.ShouldEqual, "aapl")
				convey.So(rows[1].MarketCap, convey.ShouldEqual, "2900000000000.5")
				convey.So(rows[2].MarketCap, convey.ShouldEqual, "500000000001")
			})
		})
	})

	convey.Convey("Given a redis URI nobody listens on", t, func() {
		cfg := config.New(context.Background())
		cfg.StoreURI = "redis://127.0.0.1:1/0"

		convey.Convey("Then openStore reports the backend as unavailable", func() {
			_, _, err := openStore(context.Background(), cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, repository.ErrBackendUnavailable), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a missing seed file", t, func() {
		ctx := context.Background()
		store, err := repository.NewMemoryStore(ctx)
		convey.So(err, convey.ShouldBeNil)
		svc := app.New(app.WithLogger(logger.Nop()), app.WithStore(store), app.WithWorkerCount(1))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		convey.Convey("Then seeding fails", func() {
			err := seedStore(ctx, filepath.Join(t.TempDir(), "none.json"), store, svc, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the assembled HTTP handler", t, func() {
		ctx := context.Background()
		store, err := repository.NewMemoryStore(ctx)
		convey.So(err, convey.ShouldBeNil)
		svc := app.New(app.WithLogger(logger.Nop()), app.WithStore(store), app.WithWorkerCount(1))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		convey.So(seedStore(ctx, writeSeed(t), store, svc, logger.Nop()), convey.ShouldBeNil)

		srv := httptest.NewServer(newHandler(ctx, svc, logger.Nop()))
		defer srv.Close()

		convey.Convey("Then API and docs routes are served", func() {
			resp, err := http.Get(srv.URL + "/companies?sort=top")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			var rows []map[string]any
			convey.So(json.NewDecoder(resp.Body).Decode(&rows), convey.ShouldBeNil)
			convey.So(len(rows), convey.ShouldEqual, 3)

			for _, path := range []string{"/healthz", "/openapi.yaml", "/api-docs", "/metrics"} {
				r, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				_ = r.Body.Close()
				convey.So(r.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}
