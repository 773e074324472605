package seed

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	. "github.com/smartystreets/goconvey/convey"
)

const sample = `[
  {"symbol": "AAPL", "marketCap": 2913283890000, "company": "Apple", "country": "United States"},
  {"symbol": "msft", "marketCap": "3120000000000.25", "company": "Microsoft", "country": "United States"},
  {"symbol": "", "marketCap": 1, "company": "Nameless"},
  {"symbol": "nocap", "company": "No Cap"},
  {"symbol": "bad", "marketCap": "lots"},
  {"symbol": "Aapl", "marketCap": 1, "company": "Apple Again", "country": "United States"}
]`

func TestLoad(t *testing.T) {
	Convey("Given a seed file with good and bad rows", t, func() {
		companies, err := Load(strings.NewReader(sample))

		Convey("Then the good rows are returned normalized", func() {
			So(len(companies), ShouldEqual, 2)
			So(companies[0].Symbol, ShouldEqual, "aapl")
			So(companies[1].Symbol, ShouldEqual, "msft")
			So(companies[1].MarketCap.String(), ShouldEqual, "3120000000000.25")
		})

		Convey("Then a repeated symbol replaces the earlier row", func() {
			So(companies[0].Name, ShouldEqual, "Apple Again")
			So(companies[0].MarketCap.String(), ShouldEqual, "1")
		})

		Convey("Then every bad row is reported", func() {
			So(errors.Is(err, ErrInvalidRecord), ShouldBeTrue)
			var merr *multierror.Error
			So(errors.As(err, &merr), ShouldBeTrue)
			So(len(merr.Errors), ShouldEqual, 3)
			So(err.Error(), ShouldContainSubstring, "row 2")
			So(err.Error(), ShouldContainSubstring, "row 3")
			So(err.Error(), ShouldContainSubstring, "row 4")
		})
	})

	Convey("Given a clean seed file", t, func() {
		companies, err := Load(strings.NewReader(`[{"symbol":"x","marketCap":1}]`))

		Convey("Then there is no error", func() {
			So(err, ShouldBeNil)
			So(len(companies), ShouldEqual, 1)
		})
	})

	Convey("Given something that is not an array", t, func() {
		_, err := Load(strings.NewReader(`{"symbol":"x"}`))

		Convey("Then decoding fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoadFile(t *testing.T) {
	Convey("Given a seed file on disk", t, func() {
		path := filepath.Join(t.TempDir(), "companies_data.json")
		So(os.WriteFile(path, []byte(`[{"symbol":"tsla","marketCap":"1.5","company":"Tesla","country":"United States"}]`), 0o600), ShouldBeNil)

		companies, err := LoadFile(path)

		Convey("Then it is loaded", func() {
			So(err, ShouldBeNil)
			So(companies[0].Name, ShouldEqual, "Tesla")
		})
	})

	Convey("Given a missing file", t, func() {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))

		Convey("Then the open error is returned", func() {
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
		})
	})
}
