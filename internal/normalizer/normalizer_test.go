package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"lowercase", "PIX", "pix"},
		{"accents", "Cálculo de Horas", "calculo de horas"},
		{"cedilla and tilde", "Validação Cadastral", "validacao cadastral"},
		{"collapse whitespace", "  pessoa \t  jurídica\n", "pessoa juridica"},
		{"decomposed input", "área", "area"},
		{"dotted capital I", "İNDICE", "indice"},
		{"question", "Onde alterar o cálculo de horas para Pessoa Jurídica?", "onde alterar o calculo de horas para pessoa juridica?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Onde alterar o cálculo de horas para Pessoa Jurídica?",
		"İstanbul ÇALIŞMA",
		"  ÀÉÎÕÜ   ñ  ",
		"REGRA_CALCULO_HORAS_PJ",
		"日本語 テキスト",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeEquivalentQuestions(t *testing.T) {
	a := Normalize("Validação de CNPJ")
	b := Normalize("  validacao   de cnpj ")
	c := Normalize("VALIDAÇÃO DE CNPJ")
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("regra de pagamento pix", []string{"boleto", "pix"}))
	assert.False(t, ContainsAny("regra de pagamento", []string{"cnpj"}))
	assert.False(t, ContainsAny("qualquer", []string{""}))
	assert.False(t, ContainsAny("qualquer", nil))
}
