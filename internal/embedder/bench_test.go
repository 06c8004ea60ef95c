package embedder

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkComputeHash(b *testing.B) {
	texts := []string{
		"pix",
		"validacao de cnpj no cadastro",
		"REGRA_CALCULO_HORAS_PJ calcula as horas faturaveis de prestadores pessoa juridica com base no contrato",
	}

	for _, text := range texts {
		b.Run(fmt.Sprintf("len=%d", len(text)), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = ComputeHash(text)
			}
		})
	}
}

func BenchmarkLocalProvider(b *testing.B) {
	p, _ := NewLocalProvider(nil)
	ctx := context.Background()
	req := EmbeddingRequest{Text: "Onde alterar o cálculo de horas para Pessoa Jurídica?"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.GenerateEmbedding(ctx, req)
	}
}

func BenchmarkQueryCache(b *testing.B) {
	c := NewQueryCache()
	vec := make([]float32, LocalDimension)
	for i := 0; i < 1000; i++ {
		c.Put(fmt.Sprintf("q-%d", i), vec)
	}

	b.Run("get-hit", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = c.Get(fmt.Sprintf("q-%d", i%1000))
		}
	})

	b.Run("get-miss", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = c.Get("absent")
		}
	})
}
