//go:build property

package value

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestArithmeticProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("integer text stays integer", prop.ForAll(
		func(a, b int32) bool {
			got, err := Int(int64(a)).Add(String(strconv.Itoa(int(b))))
			return err == nil && got.Kind() == KindInteger && got.Value() == int64(a)+int64(b)
		},
		gen.Int32(),
		gen.Int32(),
	))

	properties.Property("any double operand promotes", prop.ForAll(
		func(a int32, b float64) bool {
			got, err := Int(int64(a)).Mul(Float(b))
			return err == nil && got.Kind() == KindDouble
		},
		gen.Int32(),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("compare is antisymmetric", prop.ForAll(
		func(a, b int64) bool {
			x, err1 := Int(a).Compare(Int(b))
			y, err2 := Int(b).Compare(Int(a))
			return err1 == nil && err2 == nil && x == -y
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
