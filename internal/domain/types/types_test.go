package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/capboard/internal/domain/model"
	types "github.com/okian/capboard/internal/domain/types"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewRanked(t *testing.T) {
	Convey("Given a company with a large market cap", t, func() {
		c := model.Company{
			Symbol:    "aapl",
			MarketCap: decimal.RequireFromString("2913283890000.123456789"),
			Name:      "Apple",
			Country:   "United States",
		}

		Convey("When building the ranked record", func() {
			r := types.NewRanked(c, 3)

			Convey("Then every field is copied and the score stays exact", func() {
				So(r.Company, ShouldEqual, "Apple")
				So(r.Country, ShouldEqual, "United States")
				So(r.MarketCap, ShouldEqual, "2913283890000.123456789")
				So(r.Rank, ShouldEqual, 3)
				So(r.Symbol, ShouldEqual, "aapl")
			})
		})

		Convey("When encoding to JSON", func() {
			b, err := json.Marshal(types.NewRanked(c, 1))
			So(err, ShouldBeNil)

			Convey("Then it uses the public field names and a string market cap", func() {
				So(string(b), ShouldEqual,
					`{"company":"Apple","country":"United States","marketCap":"2913283890000.123456789","rank":1,"symbol":"aapl"}`)
			})
		})
	})

	Convey("Given a negative score", t, func() {
		c := model.Company{Symbol: "zz", MarketCap: decimal.RequireFromString("-12.5")}

		Convey("Then the sign is kept", func() {
			So(types.NewRanked(c, 1).MarketCap, ShouldEqual, "-12.5")
		})
	})
}
