package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/formbase/model"
)

func TestIdentifierValid(t *testing.T) {
	valid := []string{"orders", "order_items", "a-b-c", "ABC", "x_1", "abc"}
	for _, s := range valid {
		assert.True(t, IdentifierValid(s), "expected %q to be valid", s)
	}

	invalid := []string{"", "ab", "has space", "semi;colon", "q(uote", "ünïcode",
		"dash.dot", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	for _, s := range invalid {
		assert.False(t, IdentifierValid(s), "expected %q to be invalid", s)
	}
}

func TestIdentifierCondition(t *testing.T) {
	check := Identifier("form identifier")

	p := &Parameter{Name: "identifier", Value: model.String("ord;ers")}
	assert.False(t, check(p))
	assert.Equal(t, model.FieldInvalid, p.ErrorCode)

	p = &Parameter{Name: "identifier", Value: model.String("")}
	assert.False(t, check(p))
	assert.Equal(t, model.FieldRequired, p.ErrorCode)

	p = &Parameter{Name: "identifier", Value: model.String("orders")}
	assert.True(t, check(p))
	assert.Empty(t, p.ErrorCode)
}

func TestVerifyFieldDefaultRewrite(t *testing.T) {
	check := VerifyField("status", FieldSpec{
		Type:     "text",
		Required: true,
		Default:  model.String("pending"),
	})

	p := &Parameter{Name: "status", Value: model.Empty()}
	assert.True(t, check(p))
	assert.Equal(t, "pending", p.Value.String())
}

func TestVerifyFieldRequiredNoDefault(t *testing.T) {
	check := VerifyField("amount", FieldSpec{Type: "integer", Required: true})

	p := &Parameter{Name: "amount", Value: model.String("")}
	assert.False(t, check(p))
	assert.Equal(t, model.FieldRequired, p.ErrorCode)
}

func TestVerifyFieldOptionalEmpty(t *testing.T) {
	check := VerifyField("note", FieldSpec{Type: "text"})

	p := &Parameter{Name: "note", Value: model.Empty()}
	assert.True(t, check(p))
	assert.True(t, p.Value.IsEmpty())
}

func TestVerifyFieldTypeMismatch(t *testing.T) {
	check := VerifyField("amount", FieldSpec{Type: "integer", Required: true})

	p := &Parameter{Name: "amount", Value: model.String("not-a-number")}
	assert.False(t, check(p))
	assert.Equal(t, model.FieldType, p.ErrorCode)
}

func TestVerifyFieldTypeCoercion(t *testing.T) {
	cases := []struct {
		name  string
		typ   string
		value model.Value
		ok    bool
	}{
		{"integer from string", "integer", model.String("42"), true},
		{"integer native", "integer", model.Int(42), true},
		{"integer from decimal text", "integer", model.String("4.2"), false},
		{"decimal from string", "decimal", model.String("4.2"), true},
		{"decimal widens integer", "decimal", model.Int(4), true},
		{"boolean from string", "boolean", model.String("true"), true},
		{"boolean garbage", "boolean", model.String("maybe"), false},
		{"link from string", "link", model.String("7"), true},
		{"link garbage", "link", model.String("seven"), false},
		{"date is text", "date", model.String("2026-01-15"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check := VerifyField("f", FieldSpec{Type: tc.typ, Required: true})
			p := &Parameter{Name: "f", Value: tc.value}
			assert.Equal(t, tc.ok, check(p))
		})
	}
}

func TestVerifyFieldLength(t *testing.T) {
	check := VerifyField("code", FieldSpec{Type: "text", Length: 4})

	p := &Parameter{Name: "code", Value: model.String("abcde")}
	assert.False(t, check(p))
	assert.Equal(t, model.FieldInvalid, p.ErrorCode)

	p = &Parameter{Name: "code", Value: model.String("abcd")}
	assert.True(t, check(p))
}
