package validator

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePhoneNumber(t *testing.T) {
	assert.NoError(t, ValidatePhoneNumber("5511999999999"))
	assert.NoError(t, ValidatePhoneNumber("1199999999"))

	assert.Error(t, ValidatePhoneNumber(""))
	assert.Error(t, ValidatePhoneNumber("123"))
	assert.Error(t, ValidatePhoneNumber("55119999999999999"))
	assert.Error(t, ValidatePhoneNumber("+5511999999999"))
}

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "5511999999999", OnlyDigits("+55 (11) 99999-9999"))
	assert.Equal(t, "", OnlyDigits("abc"))
	assert.Equal(t, "123", OnlyDigits("123"))
}

func TestValidateJSON(t *testing.T) {
	type payload struct {
		ID string `json:"id"`
	}

	var p payload
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"id":"x"}`))
	assert.NoError(t, ValidateJSON(req, &p))
	assert.Equal(t, "x", p.ID)

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"id":"x","extra":1}`))
	assert.Error(t, ValidateJSON(req, &p), "campo desconhecido deve ser rejeitado")

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"id":`))
	assert.Error(t, ValidateJSON(req, &p))
}
