package scalars

import (
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateScalar(t *testing.T) {
	scalar := Date()

	input := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-15T10:30:00Z", scalar.Serialize(input))
	assert.Equal(t, "2024-01-15", scalar.Serialize("2024-01-15"))

	parsed := scalar.ParseValue("2024-01-02T11:12:13Z")
	require.IsType(t, time.Time{}, parsed)
	assert.Equal(t, 11, parsed.(time.Time).Hour())

	day := scalar.ParseValue("2024-01-02")
	require.IsType(t, time.Time{}, day)
	assert.Equal(t, "2024-01-02", day.(time.Time).Format("2006-01-02"))

	assert.Nil(t, scalar.ParseValue("yesterday"))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "1"}))
}

func TestJSONScalar(t *testing.T) {
	scalar := JSON()

	input := map[string]interface{}{"name": "ava", "active": true}
	assert.Equal(t, input, scalar.Serialize(input))
	assert.Equal(t, map[string]interface{}{"ok": true}, scalar.Serialize([]byte(`{"ok":true}`)))
	assert.Equal(t, "plain", scalar.Serialize([]byte("plain")))

	assert.Equal(t, input, scalar.ParseValue(input))
}

func TestJSONScalarLiteral(t *testing.T) {
	literal := &ast.ObjectValue{
		Fields: []*ast.ObjectField{
			{Name: &ast.Name{Value: "title"}, Value: &ast.StringValue{Value: "hello"}},
			{Name: &ast.Name{Value: "views"}, Value: &ast.ObjectValue{
				Fields: []*ast.ObjectField{
					{Name: &ast.Name{Value: "gt"}, Value: &ast.IntValue{Value: "10"}},
				},
			}},
			{Name: &ast.Name{Value: "authorId"}, Value: &ast.Variable{Name: &ast.Name{Value: "author"}}},
			{Name: &ast.Name{Value: "tags"}, Value: &ast.ListValue{Values: []ast.Value{
				&ast.StringValue{Value: "go"},
				&ast.FloatValue{Value: "1.5"},
				&ast.BooleanValue{Value: true},
			}}},
		},
	}

	parsed := JSON().ParseLiteral(literal)
	assert.Equal(t, map[string]interface{}{
		"title":    "hello",
		"views":    map[string]interface{}{"gt": 10},
		"authorId": Variable{Name: "author"},
		"tags":     []interface{}{"go", 1.5, true},
	}, parsed)
}

func TestScalarsAreShared(t *testing.T) {
	assert.Same(t, JSON(), JSON())
	assert.Same(t, Date(), Date())
	assert.Same(t, NonNegativeInt(), NonNegativeInt())
}

func TestNonNegativeIntScalar(t *testing.T) {
	scalar := NonNegativeInt()

	assert.Equal(t, 3, scalar.Serialize(3))
	assert.Nil(t, scalar.Serialize(-1))

	assert.Equal(t, 4, scalar.ParseValue("4"))
	assert.Nil(t, scalar.ParseValue("-2"))

	literal := scalar.ParseLiteral(&ast.IntValue{Value: "7"})
	assert.Equal(t, 7, literal)
}
