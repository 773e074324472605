package types_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	types "github.com/okian/capboard/internal/domain/types"
)

func TestCompanyRecord(t *testing.T) {
	Convey("Given seed-style company records", t, func() {
		Convey("When marketCap is a JSON number", func() {
			var r types.CompanyRecord
			So(json.Unmarshal([]byte(`{"symbol":" AAPL ","marketCap":2913283890000,"company":"Apple","country":"United States"}`), &r), ShouldBeNil)
			c, err := r.ToCompany()

			Convey("Then the symbol is normalized and the score parsed", func() {
				So(err, ShouldBeNil)
				So(c.Symbol, ShouldEqual, "aapl")
				So(c.MarketCap.String(), ShouldEqual, "2913283890000")
				So(c.Name, ShouldEqual, "Apple")
				So(c.Country, ShouldEqual, "United States")
				So(r.Company, ShouldEqual, "Apple")
			})
		})

		Convey("When marketCap is a string", func() {
			var r types.CompanyRecord
			So(json.Unmarshal([]byte(`{"symbol":"x","marketCap":"10.25"}`), &r), ShouldBeNil)
			c, err := r.ToCompany()

			Convey("Then it is parsed exactly", func() {
				So(err, ShouldBeNil)
				So(c.MarketCap.String(), ShouldEqual, "10.25")
			})
		})

		Convey("When marketCap or symbol is missing", func() {
			var noCap, noSym types.CompanyRecord
			So(json.Unmarshal([]byte(`{"symbol":"x"}`), &noCap), ShouldBeNil)
			So(json.Unmarshal([]byte(`{"symbol":"  ","marketCap":1}`), &noSym), ShouldBeNil)
			_, err1 := noCap.ToCompany()
			_, err2 := noSym.ToCompany()

			Convey("Then the record is invalid", func() {
				So(errors.Is(err1, types.ErrInvalidCompany), ShouldBeTrue)
				So(errors.Is(err2, types.ErrInvalidCompany), ShouldBeTrue)
			})
		})
	})
}

func TestTickMessage(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	Convey("Given tick messages", t, func() {
		Convey("When the message is complete", func() {
			var m types.TickMessage
			So(json.Unmarshal([]byte(`{"tick_id":"t-1","symbol":"MSFT","amount":"-1.5","ts":"2025-06-01T00:00:00Z"}`), &m), ShouldBeNil)
			tk, err := m.Tick(now)

			Convey("Then it converts to a domain tick", func() {
				So(err, ShouldBeNil)
				So(tk.Symbol, ShouldEqual, "msft")
				So(tk.Amount.String(), ShouldEqual, "-1.5")
				So(tk.TS.Year(), ShouldEqual, 2025)
			})

			Convey("And it survives a wire round trip", func() {
				b, err := json.Marshal(types.NewTickMessage(tk))
				So(err, ShouldBeNil)
				var back types.TickMessage
				So(json.Unmarshal(b, &back), ShouldBeNil)
				again, err := back.Tick(now)
				So(err, ShouldBeNil)
				So(again.Amount.Equal(tk.Amount), ShouldBeTrue)
				So(again.TickID, ShouldEqual, "t-1")
			})
		})

		Convey("When the timestamp is missing", func() {
			var m types.TickMessage
			So(json.Unmarshal([]byte(`{"tick_id":"t-1","symbol":"a","amount":1}`), &m), ShouldBeNil)
			tk, err := m.Tick(now)

			Convey("Then now is used", func() {
				So(err, ShouldBeNil)
				So(tk.TS, ShouldEqual, now)
			})
		})

		Convey("When required fields are missing", func() {
			for _, body := range []string{
				`{"symbol":"a","amount":1}`,
				`{"tick_id":"t","amount":1}`,
				`{"tick_id":"t","symbol":"a"}`,
			} {
				var m types.TickMessage
				So(json.Unmarshal([]byte(body), &m), ShouldBeNil)
				_, err := m.Tick(now)
				So(errors.Is(err, types.ErrInvalidTick), ShouldBeTrue)
			}
		})
	})
}
